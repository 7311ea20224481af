package director

import (
	"fmt"

	"storyloop/internal/story"
	"storyloop/internal/story/actions"
)

// PacingRules tunes the multi-stage force-act logic. The exact thresholds
// are configuration, not constants; what matters is monotonically
// increasing pressure toward unmet action and resolution requirements as
// turns run out.
type PacingRules struct {
	// StallTurns forces an action after this many consecutive turns with
	// no successful action.
	StallTurns int
	// MidpointFraction is the turn fraction after which less than half of
	// the required distinct actions forces an action. It also gates the
	// conclusion check.
	MidpointFraction float64
	// LateFraction is the turn fraction after which any shortfall in
	// distinct actions forces one.
	LateFraction float64
	// EndgameFraction is the turn fraction after which a missing
	// resolution signal forces resolution-oriented actions.
	EndgameFraction float64
	// CountdownSlack widens the final unconditional countdown window.
	CountdownSlack int
	// MaxConsecutiveTurns caps a speaker's run before reselection is
	// blocked.
	MaxConsecutiveTurns int
}

// DefaultPacingRules returns the shipped thresholds.
func DefaultPacingRules() PacingRules {
	return PacingRules{
		StallTurns:          2,
		MidpointFraction:    0.5,
		LateFraction:        0.7,
		EndgameFraction:     0.8,
		CountdownSlack:      1,
		MaxConsecutiveTurns: 2,
	}
}

// Pacing is the deterministic per-turn pacing verdict.
type Pacing struct {
	ForceAct  bool
	Endgame   bool
	Suggested story.ActionKind
	// Stages lists which rules fired, for director notes and debugging.
	Stages []string
}

// ComputePacing evaluates the five force-act stages against the current
// state. All stages are evaluated so the notes show every reason, not just
// the first.
func ComputePacing(st *story.State, catalog *actions.Catalog, rules PacingRules) Pacing {
	var p Pacing

	distinct := st.DistinctActionCount()
	frac := st.TurnFraction()
	remaining := st.MaxTurns - st.Turn
	needed := st.MinActions - distinct

	if rules.StallTurns > 0 && st.TalkStreak >= rules.StallTurns {
		p.ForceAct = true
		p.Stages = append(p.Stages, fmt.Sprintf("stalled %d turns", st.TalkStreak))
	}

	if frac >= rules.MidpointFraction && distinct*2 < st.MinActions {
		p.ForceAct = true
		p.Stages = append(p.Stages, "midpoint action pressure")
	}

	if frac >= rules.LateFraction && distinct < st.MinActions {
		p.ForceAct = true
		p.Stages = append(p.Stages, "late action pressure")
	}

	p.Endgame = frac >= rules.EndgameFraction
	if p.Endgame && !catalog.HasResolutionSignal(st) {
		p.ForceAct = true
		p.Stages = append(p.Stages, "endgame resolution push")
	}

	if needed > 0 && remaining <= needed+rules.CountdownSlack {
		p.ForceAct = true
		p.Stages = append(p.Stages, "countdown")
	}

	if p.ForceAct {
		p.Suggested = suggestKind(st, catalog, p.Endgame)
	}

	return p
}

// suggestKind picks an unused, currently-allowed kind, preferring
// resolution-signal kinds in the endgame.
func suggestKind(st *story.State, catalog *actions.Catalog, preferResolution bool) story.ActionKind {
	unused := catalog.AllowedUnused(st)
	if len(unused) == 0 {
		return ""
	}

	if preferResolution {
		for _, rk := range catalog.ResolutionKinds() {
			for _, k := range unused {
				if k == rk {
					return k
				}
			}
		}
	}

	return unused[0]
}
