// Package engine runs the turn state machine. One orchestrator owns one
// story's state for the story's whole life; decision units and the
// executor only ever see the state the orchestrator hands them.
package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"storyloop/internal/debug"
	"storyloop/internal/llm"
	"storyloop/internal/story"
	"storyloop/internal/story/actions"
	"storyloop/internal/story/actors"
	"storyloop/internal/story/director"
	"storyloop/internal/telemetry"
)

// Phase is one state of the turn machine.
type Phase string

const (
	PhasePlanning    Phase = "PLANNING"
	PhaseSelecting   Phase = "SELECTING"
	PhaseDeciding    Phase = "DECIDING"
	PhaseExecuting   Phase = "EXECUTING"
	PhasePropagating Phase = "PROPAGATING"
	PhaseChecking    Phase = "CHECKING"
	PhaseConcluding  Phase = "CONCLUDING"
	PhaseDone        Phase = "DONE"
)

// InvariantError is fatal: it means owned state was corrupted, and the
// run stops rather than continuing on a broken world.
type InvariantError struct {
	Phase  Phase
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Phase, e.Detail)
}

// Observer is notified of each finalized event, in order. Used by the
// terminal viewer; a nil observer is fine.
type Observer func(ev story.Event)

// Orchestrator drives one story from planning to its trace.
type Orchestrator struct {
	state           *story.State
	characters      map[string]*actors.Character
	director        *director.Director
	executor        *actions.Executor
	catalog         *actions.Catalog
	memories        *story.MemoryStore
	sink            telemetry.Sink
	observer        Observer
	debug           *debug.Logger
	decisionTimeout time.Duration
}

// Options wires an orchestrator. Completer and Scenario are required;
// everything else has a working default.
type Options struct {
	StoryID   string
	Scenario  *story.Scenario
	Completer llm.Completer
	Rules     director.PacingRules
	Sink      telemetry.Sink
	Observer  Observer
	Debug     *debug.Logger
	// DecisionTimeout bounds one logical decision end to end, the repair
	// round-trip included. Defaults to 120s.
	DecisionTimeout time.Duration
}

// New builds an orchestrator for a validated scenario.
func New(opts Options) (*Orchestrator, error) {
	if opts.Scenario == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	if err := opts.Scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.NopSink{}
	}
	if opts.Rules.MaxConsecutiveTurns <= 0 {
		opts.Rules = director.DefaultPacingRules()
	}
	if opts.DecisionTimeout <= 0 {
		opts.DecisionTimeout = 120 * time.Second
	}

	catalog := actions.NewCatalog(opts.Scenario.Actions)
	st := story.NewState(opts.StoryID, opts.Scenario)

	chars := make(map[string]*actors.Character, len(st.Profiles))
	for _, p := range st.Profiles {
		chars[p.Name] = actors.NewCharacter(p, opts.Completer, catalog, opts.Debug)
	}

	return &Orchestrator{
		state:           st,
		characters:      chars,
		director:        director.New(opts.Completer, catalog, opts.Rules, opts.Debug),
		executor:        actions.NewExecutor(catalog),
		catalog:         catalog,
		memories:        story.NewMemoryStore(catalog.ExitKind()),
		sink:            opts.Sink,
		observer:        opts.Observer,
		debug:           opts.Debug,
		decisionTimeout: opts.DecisionTimeout,
	}, nil
}

// decisionCtx carries the budget one logical decision shares across its
// completion call and any repair round-trip.
func (o *Orchestrator) decisionCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.decisionTimeout)
}

// State exposes the live state for read-only inspection.
func (o *Orchestrator) State() *story.State { return o.state }

// Run executes the story to completion and returns its trace. The
// returned error is non-nil only for context cancellation or an
// invariant violation; generation failures never surface here.
func (o *Orchestrator) Run(ctx context.Context) (*story.Trace, error) {
	phase := PhasePlanning

	var (
		sel      director.Selection
		dec      story.Decision
		finalEv  story.Event
		verdict  director.Verdict
		prevTurn int
	)

	for phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch phase {
		case PhasePlanning:
			dctx, cancel := o.decisionCtx(ctx)
			o.state.ArcPlan = o.director.PlanArc(dctx, o.state)
			cancel()
			o.debug.Printf("[engine] arc planned: %d beats", len(o.state.ArcPlan))
			phase = PhaseSelecting

		case PhaseSelecting:
			if o.presentCount() == 0 {
				verdict = director.Verdict{ShouldEnd: true, Reason: "everyone has left the scene"}
				phase = PhaseConcluding
				continue
			}

			dctx, cancel := o.decisionCtx(ctx)
			sel = o.director.SelectSpeaker(dctx, o.state)
			cancel()
			if mem := o.state.Memories[sel.Speaker]; mem != nil && !mem.Present {
				return nil, &InvariantError{Phase: PhaseSelecting,
					Detail: fmt.Sprintf("departed character %q selected to speak", sel.Speaker)}
			}
			o.state.RecordSpeaker(sel.Speaker)

			for _, stage := range sel.Stages {
				o.state.DirectorNotes = append(o.state.DirectorNotes,
					fmt.Sprintf("turn %d: %s", o.state.Turn, stage))
			}

			if sel.Narration != "" {
				nev := story.Event{Turn: o.state.Turn, Kind: story.EventNarration, Content: sel.Narration}
				o.state.AppendEvent(nev)
				o.memories.Propagate(nev, o.state, story.SpeakerUpdate{})
				o.emit(nev)
			}
			phase = PhaseDeciding

		case PhaseDeciding:
			dctx, cancel := o.decisionCtx(ctx)
			dec = o.characters[sel.Speaker].Decide(dctx, o.state, sel.ForceAct, sel.Suggested)
			cancel()
			phase = PhaseExecuting

		case PhaseExecuting:
			finalEv = o.applyDecision(sel.Speaker, &dec)
			phase = PhasePropagating

		case PhasePropagating:
			o.memories.Propagate(finalEv, o.state, story.SpeakerUpdate{Emotion: dec.Emotion})
			if dec.Emotion != "" {
				o.state.EmotionHistory = append(o.state.EmotionHistory, story.EmotionEntry{
					Turn: o.state.Turn, Character: sel.Speaker, Emotion: dec.Emotion,
				})
			}
			o.emit(finalEv)
			// The sink marshals in the background; hand it a copy so later
			// turns can't leak into this turn's snapshot.
			o.sink.Record(telemetry.Snapshot{
				StoryID: o.state.StoryID,
				Turn:    o.state.Turn,
				Event:   finalEv,
				World:   maps.Clone(o.state.World),
			})
			phase = PhaseChecking

		case PhaseChecking:
			if err := o.checkInvariants(prevTurn); err != nil {
				return nil, err
			}
			o.state.Turn++
			prevTurn = o.state.Turn

			if o.state.Turn >= o.state.MaxTurns {
				verdict = director.Verdict{ShouldEnd: true, Reason: "the scene has run its course"}
				phase = PhaseConcluding
				continue
			}
			dctx, cancel := o.decisionCtx(ctx)
			verdict = o.director.CheckConclusion(dctx, o.state)
			cancel()
			if verdict.ShouldEnd {
				phase = PhaseConcluding
			} else {
				phase = PhaseSelecting
			}

		case PhaseConcluding:
			dctx, cancel := o.decisionCtx(ctx)
			narration := o.director.Conclude(dctx, o.state)
			cancel()
			o.state.Concluded = true
			o.state.ConclusionReason = verdict.Reason

			cev := story.Event{
				Turn:       o.state.Turn,
				Kind:       story.EventNarration,
				Content:    narration,
				Conclusion: true,
			}
			o.state.AppendEvent(cev)
			o.emit(cev)
			o.sink.Record(telemetry.Snapshot{
				StoryID: o.state.StoryID,
				Turn:    o.state.Turn,
				Event:   cev,
				World:   maps.Clone(o.state.World),
			})
			phase = PhaseDone
		}
	}

	return story.BuildTrace(o.state), nil
}

// applyDecision turns a normalized decision into exactly one finalized
// event. An action the executor rejects degrades to dialogue; a turn
// never fails.
func (o *Orchestrator) applyDecision(speaker string, dec *story.Decision) story.Event {
	if dec.Mode == story.ModeAct && dec.Action != nil {
		outcome, err := o.executor.Execute(dec.Action.Kind, speaker, dec.Action.Narration, o.state)
		if err == nil {
			o.state.TalkStreak = 0
			return outcome.Event
		}
		o.debug.Printf("[engine] action %s by %s rejected: %v", dec.Action.Kind, speaker, err)
		dec.Mode = story.ModeTalk
		if dec.Speech == "" {
			dec.Speech = fmt.Sprintf("%s hesitates, then thinks better of it.", speaker)
		}
	}

	speech := dec.Speech
	if speech == "" {
		speech = "..."
	}
	ev := story.Event{
		Turn:    o.state.Turn,
		Kind:    story.EventDialogue,
		Speaker: speaker,
		Content: speech,
	}
	o.state.AppendEvent(ev)
	o.state.TalkStreak++
	return ev
}

func (o *Orchestrator) checkInvariants(prevTurn int) error {
	if o.state.Turn < prevTurn {
		return &InvariantError{Phase: PhaseChecking,
			Detail: fmt.Sprintf("turn counter went backwards: %d < %d", o.state.Turn, prevTurn)}
	}
	for kind, uses := range o.state.ActionUses {
		spec, ok := o.catalog.Lookup(kind)
		if !ok {
			return &InvariantError{Phase: PhaseChecking,
				Detail: fmt.Sprintf("use count recorded for unknown kind %q", kind)}
		}
		if uses > spec.MaxUses {
			return &InvariantError{Phase: PhaseChecking,
				Detail: fmt.Sprintf("%s used %d times, limit %d", kind, uses, spec.MaxUses)}
		}
	}
	return nil
}

func (o *Orchestrator) presentCount() int {
	n := 0
	for _, mem := range o.state.Memories {
		if mem.Present {
			n++
		}
	}
	return n
}

func (o *Orchestrator) emit(ev story.Event) {
	if o.observer != nil {
		o.observer(ev)
	}
}
