package actors

import (
	"strings"

	"storyloop/internal/story"
)

type keywordMapping struct {
	keyword string
	target  story.ActionKind
}

// keywordRemap maps verbs models commonly invent to catalog kinds. Applied
// only when the proposed kind is off-catalog; the mapped kind must still be
// allowed. Order matters: first match wins.
var keywordRemap = []keywordMapping{
	{"check", "investigate"},
	{"examine", "investigate"},
	{"inspect", "investigate"},
	{"look", "investigate"},
	{"assess", "investigate"},
	{"search", "investigate"},
	{"call", "summon_help"},
	{"phone", "summon_help"},
	{"help", "summon_help"},
	{"bargain", "negotiate"},
	{"deal", "negotiate"},
	{"offer", "negotiate"},
	{"propose", "negotiate"},
	{"compromise", "negotiate"},
	{"agree", "accept_terms"},
	{"accept", "accept_terms"},
	{"fight", "confront"},
	{"challenge", "confront"},
	{"approach", "confront"},
	{"threaten", "confront"},
	{"show", "present_evidence"},
	{"reveal", "present_evidence"},
	{"prove", "present_evidence"},
	{"display", "present_evidence"},
	{"mediate", "intervene"},
	{"stop", "intervene"},
	{"separate", "intervene"},
	{"calm", "intervene"},
	{"leave", "exit_scene"},
	{"depart", "exit_scene"},
	{"walk", "exit_scene"},
	{"flee", "exit_scene"},
	{"run", "exit_scene"},
	{"pay", "make_payment"},
	{"money", "make_payment"},
	{"bribe", "make_payment"},
	{"compensate", "make_payment"},
	{"decide", "take_decisive_action"},
	{"bold", "take_decisive_action"},
}

// CanonicalKind lowercases a proposed kind and normalizes separators.
func CanonicalKind(text string) story.ActionKind {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return story.ActionKind(s)
}

// RemapKind maps an off-catalog kind to the closest allowed one: first a
// direct substring match against allowed kinds, then the keyword table.
func RemapKind(kind story.ActionKind, allowed []story.ActionKind) (story.ActionKind, bool) {
	k := string(kind)
	if k == "" {
		return "", false
	}

	for _, a := range allowed {
		if strings.Contains(string(a), k) || strings.Contains(k, string(a)) {
			return a, true
		}
	}

	for _, m := range keywordRemap {
		if strings.Contains(k, m.keyword) && contains(allowed, m.target) {
			return m.target, true
		}
	}

	return "", false
}
