// Package director implements the director decision unit: speaker
// selection with deterministic pacing rules, the gated conclusion check,
// upfront arc planning, and the closing narration.
package director

import (
	"context"
	"fmt"
	"strings"

	"storyloop/internal/debug"
	"storyloop/internal/llm"
	"storyloop/internal/story"
	"storyloop/internal/story/actions"
	"storyloop/internal/story/normalize"
)

// Director drives the dramatic shape of one story. Its generated output is
// advisory; every hard rule here is enforced after the model answers.
type Director struct {
	comp    llm.Completer
	catalog *actions.Catalog
	rules   PacingRules
	debug   *debug.Logger
}

func New(comp llm.Completer, catalog *actions.Catalog, rules PacingRules, dbg *debug.Logger) *Director {
	if rules.MaxConsecutiveTurns <= 0 {
		rules = DefaultPacingRules()
	}
	return &Director{comp: comp, catalog: catalog, rules: rules, debug: dbg}
}

// Rules exposes the active pacing configuration.
func (d *Director) Rules() PacingRules { return d.rules }

// Selection is the director's verdict for one turn.
type Selection struct {
	Speaker   string
	Narration string
	ForceAct  bool
	Endgame   bool
	Suggested story.ActionKind
	Stages    []string
}

// SelectSpeaker picks the next speaker and optional narration. The
// anti-monopolization rule is hard: a character at the consecutive-turn cap
// is excluded from the candidate set and the model's choice is corrected
// post-hoc if it names one anyway.
func (d *Director) SelectSpeaker(ctx context.Context, st *story.State) Selection {
	eligible := d.eligibleSpeakers(st)
	pacing := ComputePacing(st, d.catalog, d.rules)

	prompt := buildSelectPrompt(st, eligible, d.catalog, pacing)
	raw := d.comp.Complete(ctx, llm.Request{
		System:    directorSystemPrompt,
		User:      prompt,
		MaxTokens: 400,
		JSON:      true,
		Operation: "director.select_speaker",
	})

	rep := normalize.CompleterRepairer{Completer: d.comp, Operation: "director.repair"}
	pick := normalize.Normalize(ctx, raw, d.selectSchema(st, eligible), rep)

	return Selection{
		Speaker:   pick.Speaker,
		Narration: pick.Narration,
		ForceAct:  pacing.ForceAct,
		Endgame:   pacing.Endgame,
		Suggested: pacing.Suggested,
		Stages:    pacing.Stages,
	}
}

type speakerPick struct {
	Speaker   string
	Narration string
}

func (d *Director) selectSchema(st *story.State, eligible []string) normalize.Schema[speakerPick] {
	return normalize.Schema[speakerPick]{
		Name: "speaker_selection",
		Hint: `{"next_speaker": "character name", "narration": "1-2 sentences of scene narration, or empty"}`,
		FromObject: func(obj map[string]any) (speakerPick, bool) {
			speaker, _ := obj["next_speaker"].(string)
			narration, _ := obj["narration"].(string)
			speaker = strings.TrimSpace(speaker)
			if !containsString(eligible, speaker) {
				// Hard rule wins over the model's choice.
				d.debug.Printf("director picked ineligible speaker %q, adjusting", speaker)
				speaker = d.roundRobin(st, eligible)
			}
			return speakerPick{Speaker: speaker, Narration: strings.TrimSpace(narration)}, true
		},
		Fallback: func() speakerPick {
			return speakerPick{Speaker: d.roundRobin(st, eligible)}
		},
	}
}

// eligibleSpeakers filters out departed characters and any character whose
// consecutive-turn run has hit the cap.
func (d *Director) eligibleSpeakers(st *story.State) []string {
	var out []string
	for _, name := range st.CharacterNames() {
		if mem := st.Memories[name]; mem != nil && !mem.Present {
			continue
		}
		if st.ConsecutiveTurns[name] >= d.rules.MaxConsecutiveTurns {
			continue
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		// Everyone is capped or departed; fall back to all present rather
		// than stalling the story.
		for _, name := range st.CharacterNames() {
			if mem := st.Memories[name]; mem != nil && !mem.Present {
				continue
			}
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		out = st.CharacterNames()
	}
	return out
}

// roundRobin deterministically picks the eligible character after the last
// speaker, in scenario order.
func (d *Director) roundRobin(st *story.State, eligible []string) string {
	if len(eligible) == 0 {
		return ""
	}
	names := st.CharacterNames()
	start := 0
	for i, name := range names {
		if name == st.LastSpeaker {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(names); i++ {
		candidate := names[(start+i)%len(names)]
		if containsString(eligible, candidate) {
			return candidate
		}
	}
	return eligible[0]
}

// Verdict is the conclusion check's answer.
type Verdict struct {
	ShouldEnd bool
	Reason    string
}

// CheckConclusion decides whether the story should end. The deterministic
// guard runs first and short-circuits the generation call: the story can
// never end before min_turns, before half the turn budget, with too few
// distinct actions, or without a resolution signal. Only when every guard
// holds is the model asked whether the narrative feels concluded.
func (d *Director) CheckConclusion(ctx context.Context, st *story.State) Verdict {
	if st.Turn < st.MinTurns {
		return Verdict{}
	}
	if st.TurnFraction() < d.rules.MidpointFraction {
		return Verdict{}
	}
	if st.DistinctActionCount() < st.MinActions {
		return Verdict{}
	}
	if !d.catalog.HasResolutionSignal(st) {
		return Verdict{}
	}

	raw := d.comp.Complete(ctx, llm.Request{
		System:    directorSystemPrompt,
		User:      buildConclusionPrompt(st),
		MaxTokens: 300,
		JSON:      true,
		Operation: "director.check_conclusion",
	})

	rep := normalize.CompleterRepairer{Completer: d.comp, Operation: "director.repair"}
	return normalize.Normalize(ctx, raw, conclusionSchema(), rep)
}

func conclusionSchema() normalize.Schema[Verdict] {
	return normalize.Schema[Verdict]{
		Name: "conclusion_check",
		Hint: `{"should_end": false, "conclusion_narration": "why the story feels finished, or empty"}`,
		FromObject: func(obj map[string]any) (Verdict, bool) {
			shouldEnd, _ := obj["should_end"].(bool)
			reason, _ := obj["conclusion_narration"].(string)
			return Verdict{ShouldEnd: shouldEnd, Reason: strings.TrimSpace(reason)}, true
		},
		// An unparseable answer means the story continues; ending is never
		// the failure default.
		Fallback: func() Verdict { return Verdict{} },
	}
}

// PlanArc produces the advisory arc plan. Called once before turn 0 and
// never authoritative over any invariant.
func (d *Director) PlanArc(ctx context.Context, st *story.State) []story.PlannedBeat {
	raw := d.comp.Complete(ctx, llm.Request{
		System:    directorSystemPrompt,
		User:      buildArcPrompt(st, d.catalog),
		MaxTokens: 800,
		JSON:      true,
		Operation: "director.plan_arc",
	})

	rep := normalize.CompleterRepairer{Completer: d.comp, Operation: "director.repair"}
	return normalize.Normalize(ctx, raw, d.arcSchema(st), rep)
}

func (d *Director) arcSchema(st *story.State) normalize.Schema[[]story.PlannedBeat] {
	return normalize.Schema[[]story.PlannedBeat]{
		Name: "arc_plan",
		Hint: `{"arc_plan": [{"turn": 0, "phase": "setup", "beat": "what happens", "suggested_speaker": "name or empty"}]}`,
		FromObject: func(obj map[string]any) ([]story.PlannedBeat, bool) {
			rawBeats, ok := obj["arc_plan"].([]any)
			if !ok || len(rawBeats) == 0 {
				return nil, false
			}
			var beats []story.PlannedBeat
			for _, rb := range rawBeats {
				m, ok := rb.(map[string]any)
				if !ok {
					continue
				}
				beat := story.PlannedBeat{}
				if turn, ok := m["turn"].(float64); ok {
					beat.Turn = int(turn)
				}
				beat.Phase, _ = m["phase"].(string)
				beat.Beat, _ = m["beat"].(string)
				beat.SuggestedSpeaker, _ = m["suggested_speaker"].(string)
				if kinds, ok := m["suggested_action_kinds"].([]any); ok {
					for _, k := range kinds {
						if s, ok := k.(string); ok {
							beat.SuggestedActionKinds = append(beat.SuggestedActionKinds, story.ActionKind(s))
						}
					}
				}
				beats = append(beats, beat)
			}
			if len(beats) == 0 {
				return nil, false
			}
			return beats, true
		},
		Fallback: func() []story.PlannedBeat { return d.fallbackArc(st) },
	}
}

// fallbackArc is a deterministic plan: opening narration, then characters
// in rotation, with resolution pressure in the final stretch.
func (d *Director) fallbackArc(st *story.State) []story.PlannedBeat {
	names := st.CharacterNames()
	beats := make([]story.PlannedBeat, 0, st.MaxTurns)
	for turn := 0; turn < st.MaxTurns; turn++ {
		beat := story.PlannedBeat{
			Turn:  turn,
			Phase: story.Phase(turn, st.MaxTurns),
		}
		if len(names) > 0 {
			beat.SuggestedSpeaker = names[turn%len(names)]
		}
		if beat.Phase == "resolution" {
			beat.SuggestedActionKinds = d.catalog.ResolutionKinds()
		}
		beats = append(beats, beat)
	}
	return beats
}

// Conclude produces the terminal narration. It always succeeds; a failed
// generation falls back to a deterministic closing line.
func (d *Director) Conclude(ctx context.Context, st *story.State) string {
	raw := d.comp.Complete(ctx, llm.Request{
		System:    directorSystemPrompt,
		User:      buildConcludePrompt(st),
		MaxTokens: 300,
		Operation: "director.conclude",
	})

	if raw.OK {
		if text := strings.TrimSpace(raw.Text); text != "" {
			return text
		}
	}
	return fmt.Sprintf("The scene of %q finally draws to a close as the moment passes.", st.Title)
}

const directorSystemPrompt = "You are the director of a short dramatic scene. You orchestrate pacing and speaker order; you never speak for the characters. Answer exactly in the requested format."

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
