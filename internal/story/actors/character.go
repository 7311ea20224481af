// Package actors implements the character decision unit: one character's
// observe-reason-decide turn, built exclusively from that character's own
// memory.
package actors

import (
	"context"
	"strings"

	"storyloop/internal/debug"
	"storyloop/internal/llm"
	"storyloop/internal/story"
	"storyloop/internal/story/actions"
	"storyloop/internal/story/normalize"
)

// Character produces turn decisions for one cast member.
type Character struct {
	profile story.CharacterProfile
	comp    llm.Completer
	catalog *actions.Catalog
	debug   *debug.Logger
}

func NewCharacter(profile story.CharacterProfile, comp llm.Completer, catalog *actions.Catalog, dbg *debug.Logger) *Character {
	return &Character{profile: profile, comp: comp, catalog: catalog, debug: dbg}
}

// Name returns the character's name.
func (c *Character) Name() string { return c.profile.Name }

// Decide runs one turn for the character. The context view is built only
// from the character's own memory, never the global log. The returned
// decision is always valid; malformed model output is repaired or replaced
// by the normalizer cascade. Decide has no side effects on state.
func (c *Character) Decide(ctx context.Context, st *story.State, forceAct bool, suggested story.ActionKind) story.Decision {
	allowed := c.catalog.Allowed(st)
	if suggested != "" {
		allowed = frontLoad(allowed, suggested)
	}

	prompt := buildDecisionPrompt(c.profile, st, allowed, c.catalog, forceAct)

	raw := c.comp.Complete(ctx, llm.Request{
		System:    prompt.system,
		User:      prompt.user,
		MaxTokens: 500,
		JSON:      true,
		Operation: "character.decide",
	})

	rep := normalize.CompleterRepairer{Completer: c.comp, Operation: "character.repair"}
	decision := normalize.Normalize(ctx, raw, c.decisionSchema(st, allowed, forceAct), rep)

	if forceAct && decision.Mode == story.ModeTalk && len(allowed) > 0 {
		decision = c.forceActOverride(decision, st, allowed)
	}

	c.debug.Printf("[%s] decision mode=%s action=%v", c.profile.Name, decision.Mode, decision.Action)
	return decision
}

// forceActOverride turns a TALK decision into an ACT one, preferring kinds
// not yet taken. When every kind is at its limit the decision stays TALK;
// force-act never violates a use limit.
func (c *Character) forceActOverride(d story.Decision, st *story.State, allowed []story.ActionKind) story.Decision {
	kind, ok := pickKind(st, allowed)
	if !ok {
		return d
	}

	spec, _ := c.catalog.Lookup(kind)
	c.debug.Printf("[%s] force-act override: TALK -> ACT (%s)", c.profile.Name, kind)

	out := d
	out.Mode = story.ModeAct
	out.Action = &story.ActionChoice{
		Kind:      kind,
		Narration: actions.FallbackNarration(spec, c.profile.Name),
	}
	if out.Observation == "" {
		out.Observation = "The situation demands action."
	}
	if out.Reasoning == "" {
		out.Reasoning = "I must act now."
	}
	if out.Emotion == "" {
		out.Emotion = "determined"
	}
	return out
}

// decisionSchema wires the normalizer levels for a character turn.
func (c *Character) decisionSchema(st *story.State, allowed []story.ActionKind, forceAct bool) normalize.Schema[story.Decision] {
	return normalize.Schema[story.Decision]{
		Name: "character_decision",
		Hint: `{"observation": "what you notice", "reasoning": "your thought", "emotion": "emotion", "mode": "TALK", "speech": "your dialogue, 2-3 sentences", "action": null}`,
		FromObject: func(obj map[string]any) (story.Decision, bool) {
			return c.decisionFromObject(obj, st, allowed)
		},
		FromProse: func(text string) (story.Decision, bool) {
			return story.Decision{
				Observation: "The scene demands attention.",
				Reasoning:   "I speak my mind.",
				Emotion:     "engaged",
				Mode:        story.ModeTalk,
				Speech:      text,
			}, true
		},
		Fallback: func() story.Decision {
			return c.fallbackDecision(st, allowed, forceAct)
		},
	}
}

func (c *Character) decisionFromObject(obj map[string]any, st *story.State, allowed []story.ActionKind) (story.Decision, bool) {
	d := story.Decision{
		Observation: stringField(obj, "observation"),
		Reasoning:   stringField(obj, "reasoning"),
		Emotion:     stringField(obj, "emotion"),
	}
	if d.Emotion == "" {
		d.Emotion = "neutral"
	}

	mode := strings.ToUpper(strings.TrimSpace(stringField(obj, "mode")))
	if mode != string(story.ModeAct) {
		mode = string(story.ModeTalk)
	}

	speech := stringField(obj, "speech")
	if speech == "" {
		speech = stringField(obj, "dialogue")
	}

	if mode == string(story.ModeTalk) {
		if speech == "" {
			speech = "..."
		}
		d.Mode = story.ModeTalk
		d.Speech = speech
		return d, true
	}

	rawAction, _ := obj["action"].(map[string]any)
	if rawAction == nil {
		// ACT with no action payload degrades to TALK.
		if speech == "" {
			speech = "I need to think about this."
		}
		d.Mode = story.ModeTalk
		d.Speech = speech
		return d, true
	}

	kindText := stringField(rawAction, "kind")
	if kindText == "" {
		kindText = stringField(rawAction, "type")
	}
	kind, ok := c.resolveKind(kindText, st, allowed)
	if !ok {
		c.debug.Printf("[%s] invalid action %q with nothing allowed, degrading to TALK", c.profile.Name, kindText)
		if speech == "" {
			speech = "I'll reconsider my approach."
		}
		d.Mode = story.ModeTalk
		d.Speech = speech
		return d, true
	}

	narration := stringField(rawAction, "narration")
	if narration == "" {
		if params, ok := rawAction["params"].(map[string]any); ok {
			narration = stringField(params, "narration")
		}
	}

	d.Mode = story.ModeAct
	d.Speech = speech
	d.Action = &story.ActionChoice{Kind: kind, Narration: narration}
	return d, true
}

// resolveKind canonicalizes a proposed action kind, applying the keyword
// remap table for off-catalog names and falling back to a default allowed
// kind.
func (c *Character) resolveKind(text string, st *story.State, allowed []story.ActionKind) (story.ActionKind, bool) {
	kind := CanonicalKind(text)

	if contains(allowed, kind) {
		return kind, true
	}

	if mapped, ok := RemapKind(kind, allowed); ok {
		c.debug.Printf("[%s] remapped action %q -> %q", c.profile.Name, kind, mapped)
		return mapped, true
	}

	return pickKind(st, allowed)
}

// fallbackDecision is the deterministic floor: it uses only local rules
// and cannot fail.
func (c *Character) fallbackDecision(st *story.State, allowed []story.ActionKind, forceAct bool) story.Decision {
	if forceAct {
		if kind, ok := pickKind(st, allowed); ok {
			spec, _ := c.catalog.Lookup(kind)
			return story.Decision{
				Observation: "The situation demands action.",
				Reasoning:   "As " + c.profile.Name + ", I must act now.",
				Emotion:     "determined",
				Mode:        story.ModeAct,
				Action: &story.ActionChoice{
					Kind:      kind,
					Narration: actions.FallbackNarration(spec, c.profile.Name),
				},
			}
		}
	}

	return story.Decision{
		Observation: "The scene demands attention.",
		Reasoning:   "I need to assess the situation.",
		Emotion:     "alert",
		Mode:        story.ModeTalk,
		Speech:      fallbackSpeech(c.profile),
	}
}

// fallbackSpeech seeds an in-character line from the profile description.
func fallbackSpeech(p story.CharacterProfile) string {
	desc := strings.ToLower(p.Description)
	switch {
	case strings.Contains(desc, "police") || strings.Contains(desc, "officer") || strings.Contains(desc, "guard"):
		return "Everyone stay calm. I need to understand what happened here."
	case strings.Contains(desc, "driver") || strings.Contains(desc, "worker"):
		return "This wasn't my fault — look at it yourself."
	case strings.Contains(desc, "mother") || strings.Contains(desc, "elder"):
		return "What is going on here? Someone needs to explain this to me."
	default:
		return "Let me see what's really happening here."
	}
}

// pickKind prefers a kind not yet taken, then any allowed kind.
func pickKind(st *story.State, allowed []story.ActionKind) (story.ActionKind, bool) {
	if len(allowed) == 0 {
		return "", false
	}
	for _, k := range allowed {
		if !st.ActionTaken(k) {
			return k, true
		}
	}
	return allowed[0], true
}

func frontLoad(kinds []story.ActionKind, first story.ActionKind) []story.ActionKind {
	if !contains(kinds, first) {
		return kinds
	}
	out := []story.ActionKind{first}
	for _, k := range kinds {
		if k != first {
			out = append(out, k)
		}
	}
	return out
}

func contains(kinds []story.ActionKind, kind story.ActionKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
