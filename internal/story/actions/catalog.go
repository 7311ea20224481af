// Package actions holds the deterministic action system. The language
// model proposes an action; this package validates preconditions and
// use limits and applies effects to world state. Generated text never
// mutates state directly.
package actions

import (
	"fmt"
	"sort"
	"strings"

	"storyloop/internal/story"
)

// Well-known catalog kinds. The default table ships these ten; scenarios
// may replace the table entirely.
const (
	KindInvestigate        story.ActionKind = "investigate"
	KindConfront           story.ActionKind = "confront"
	KindNegotiate          story.ActionKind = "negotiate"
	KindAcceptTerms        story.ActionKind = "accept_terms"
	KindPresentEvidence    story.ActionKind = "present_evidence"
	KindIntervene          story.ActionKind = "intervene"
	KindSummonHelp         story.ActionKind = "summon_help"
	KindMakePayment        story.ActionKind = "make_payment"
	KindTakeDecisiveAction story.ActionKind = "take_decisive_action"
	KindExitScene          story.ActionKind = "exit_scene"
)

// DefaultSpecs is the shipped action table. Four kinds set resolution
// signals; accept_terms chains on negotiate's world flag.
func DefaultSpecs() []story.ActionSpec {
	return []story.ActionSpec{
		{Kind: KindInvestigate, Description: "Investigate the scene for details", MaxUses: 2,
			WorldKey: "scene_investigated", NarrationHint: "looks the scene over carefully, noting every detail"},
		{Kind: KindConfront, Description: "Confront another character directly", MaxUses: 2,
			WorldKey: "confrontation_escalated", NarrationHint: "squares up and forces the issue into the open"},
		{Kind: KindNegotiate, Description: "Propose terms to settle the dispute", MaxUses: 2,
			WorldKey: "negotiation_proposed", NarrationHint: "lays out terms that could settle this"},
		{Kind: KindAcceptTerms, Description: "Accept the proposed terms", MaxUses: 1,
			Requires: map[string]bool{"negotiation_proposed": true},
			WorldKey: "terms_accepted", Resolution: true, NarrationHint: "agrees to the terms on the table"},
		{Kind: KindPresentEvidence, Description: "Present evidence to support a claim", MaxUses: 2,
			WorldKey: "evidence_presented", NarrationHint: "produces evidence for everyone to see"},
		{Kind: KindIntervene, Description: "Step in to defuse the situation", MaxUses: 2,
			WorldKey: "intervention_made", NarrationHint: "steps between the others to calm things down"},
		{Kind: KindSummonHelp, Description: "Call for outside help", MaxUses: 1,
			WorldKey: "help_summoned", Resolution: true, NarrationHint: "calls for someone who can settle this"},
		{Kind: KindMakePayment, Description: "Hand over money to settle things", MaxUses: 1,
			WorldKey: "payment_made", Resolution: true, NarrationHint: "hands over the money"},
		{Kind: KindTakeDecisiveAction, Description: "Commit to a bold, irreversible move", MaxUses: 1,
			WorldKey: "decisive_action_taken", Resolution: true, NarrationHint: "does the one thing nobody expected"},
		{Kind: KindExitScene, Description: "Leave the scene", MaxUses: 2,
			PerActor: true, NarrationHint: "turns and walks away from the scene"},
	}
}

// Catalog is an immutable action table for one story.
type Catalog struct {
	specs map[story.ActionKind]story.ActionSpec
	order []story.ActionKind
}

// NewCatalog builds a catalog from specs; empty input loads the defaults.
func NewCatalog(specs []story.ActionSpec) *Catalog {
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	c := &Catalog{specs: map[story.ActionKind]story.ActionSpec{}}
	for _, s := range specs {
		if _, dup := c.specs[s.Kind]; dup {
			continue
		}
		c.specs[s.Kind] = s
		c.order = append(c.order, s.Kind)
	}
	return c
}

// Lookup returns the spec for kind.
func (c *Catalog) Lookup(kind story.ActionKind) (story.ActionSpec, bool) {
	s, ok := c.specs[kind]
	return s, ok
}

// Kinds returns all catalog kinds in table order.
func (c *Catalog) Kinds() []story.ActionKind {
	return append([]story.ActionKind(nil), c.order...)
}

// ResolutionKinds returns the kinds whose world keys are resolution
// signals.
func (c *Catalog) ResolutionKinds() []story.ActionKind {
	var out []story.ActionKind
	for _, k := range c.order {
		if c.specs[k].Resolution {
			out = append(out, k)
		}
	}
	return out
}

// ResolutionKeys returns the world-state keys that count as resolution
// signals.
func (c *Catalog) ResolutionKeys() []string {
	var out []string
	for _, k := range c.order {
		if s := c.specs[k]; s.Resolution && s.WorldKey != "" {
			out = append(out, s.WorldKey)
		}
	}
	return out
}

// HasResolutionSignal reports whether any resolution world flag is set.
func (c *Catalog) HasResolutionSignal(st *story.State) bool {
	for _, key := range c.ResolutionKeys() {
		if st.WorldFlag(key) {
			return true
		}
	}
	return false
}

// Allowed returns the kinds currently executable: under their use limit
// with preconditions satisfied by the present world state.
func (c *Catalog) Allowed(st *story.State) []story.ActionKind {
	var out []story.ActionKind
	for _, k := range c.order {
		spec := c.specs[k]
		if st.ActionUses[k] >= spec.MaxUses {
			continue
		}
		if !preconditionsMet(spec, st) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// AllowedUnused returns allowed kinds not yet in distinct_actions_taken,
// sorted for determinism.
func (c *Catalog) AllowedUnused(st *story.State) []story.ActionKind {
	var out []story.ActionKind
	for _, k := range c.Allowed(st) {
		if !st.ActionTaken(k) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExitKind returns the per-actor departure kind, if the table has one.
func (c *Catalog) ExitKind() story.ActionKind {
	for _, k := range c.order {
		if c.specs[k].PerActor {
			return k
		}
	}
	return ""
}

// Describe renders "kind: description" lines for prompt building.
func (c *Catalog) Describe(kinds []story.ActionKind) string {
	var b strings.Builder
	for _, k := range kinds {
		if spec, ok := c.specs[k]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", k, spec.Description)
		}
	}
	return b.String()
}

func preconditionsMet(spec story.ActionSpec, st *story.State) bool {
	for key, want := range spec.Requires {
		if st.WorldFlag(key) != want {
			return false
		}
	}
	return true
}

// worldKeyFor resolves the effect key, parameterizing per-actor kinds.
func worldKeyFor(spec story.ActionSpec, actor string) string {
	if spec.PerActor {
		return departedKey(actor)
	}
	return spec.WorldKey
}

func departedKey(actor string) string {
	return strings.ToLower(strings.ReplaceAll(actor, " ", "_")) + "_departed"
}
