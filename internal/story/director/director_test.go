package director

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/llm"
	"storyloop/internal/story"
	"storyloop/internal/story/actions"
)

// opCompleter answers by operation name; unlisted operations fail.
type opCompleter struct {
	responses map[string]string
}

func (o *opCompleter) Complete(_ context.Context, req llm.Request) llm.RawResult {
	if text, ok := o.responses[req.Operation]; ok {
		return llm.RawResult{Text: text, OK: true}
	}
	return llm.RawResult{OK: false}
}

func newTestDirector(comp llm.Completer) *Director {
	return New(comp, actions.NewCatalog(nil), DefaultPacingRules(), nil)
}

func TestSelectSpeaker(t *testing.T) {
	comp := &opCompleter{responses: map[string]string{
		"director.select_speaker": `{"next_speaker": "Marta", "narration": "The rain picks up."}`,
	}}
	d := newTestDirector(comp)
	st := pacingState(t)

	sel := d.SelectSpeaker(context.Background(), st)
	assert.Equal(t, "Marta", sel.Speaker)
	assert.Equal(t, "The rain picks up.", sel.Narration)
}

func TestSelectSpeakerCorrectsIneligiblePick(t *testing.T) {
	comp := &opCompleter{responses: map[string]string{
		"director.select_speaker": `{"next_speaker": "Marta", "narration": ""}`,
	}}
	d := newTestDirector(comp)
	st := pacingState(t)

	// Marta has spoken twice in a row; the cap excludes her.
	st.RecordSpeaker("Marta")
	st.RecordSpeaker("Marta")

	sel := d.SelectSpeaker(context.Background(), st)
	assert.Equal(t, "Officer Chen", sel.Speaker, "hard rule overrides the model's pick")
}

func TestSelectSpeakerExcludesDeparted(t *testing.T) {
	comp := &opCompleter{responses: map[string]string{
		"director.select_speaker": `{"next_speaker": "Officer Chen"}`,
	}}
	d := newTestDirector(comp)
	st := pacingState(t)
	st.Memories["Officer Chen"].Present = false

	sel := d.SelectSpeaker(context.Background(), st)
	assert.Equal(t, "Marta", sel.Speaker)
}

func TestSelectSpeakerFallbackRoundRobin(t *testing.T) {
	d := newTestDirector(&opCompleter{})
	st := pacingState(t)
	st.LastSpeaker = "Officer Chen"

	sel := d.SelectSpeaker(context.Background(), st)
	assert.Equal(t, "Marta", sel.Speaker, "rotation continues past the last speaker")
}

func TestCheckConclusionGuards(t *testing.T) {
	// The model would end the story immediately; the guards must not let it.
	comp := &opCompleter{responses: map[string]string{
		"director.check_conclusion": `{"should_end": true, "conclusion_narration": "All settled."}`,
	}}
	d := newTestDirector(comp)

	t.Run("before min turns", func(t *testing.T) {
		st := pacingState(t)
		st.Turn = 3
		assert.False(t, d.CheckConclusion(context.Background(), st).ShouldEnd)
	})

	t.Run("before midpoint", func(t *testing.T) {
		st := pacingState(t)
		st.Turn = 6
		assert.False(t, d.CheckConclusion(context.Background(), st).ShouldEnd)
	})

	t.Run("too few distinct actions", func(t *testing.T) {
		st := pacingState(t)
		st.Turn = 12
		st.World["payment_made"] = true
		assert.False(t, d.CheckConclusion(context.Background(), st).ShouldEnd)
	})

	t.Run("no resolution signal", func(t *testing.T) {
		st := pacingState(t)
		st.Turn = 12
		for _, k := range []story.ActionKind{"investigate", "confront", "negotiate", "present_evidence"} {
			st.DistinctActions[k] = struct{}{}
		}
		assert.False(t, d.CheckConclusion(context.Background(), st).ShouldEnd)
	})

	t.Run("all guards pass", func(t *testing.T) {
		st := pacingState(t)
		st.Turn = 12
		st.World["payment_made"] = true
		for _, k := range []story.ActionKind{"investigate", "confront", "negotiate", "make_payment"} {
			st.DistinctActions[k] = struct{}{}
		}
		v := d.CheckConclusion(context.Background(), st)
		assert.True(t, v.ShouldEnd)
		assert.Equal(t, "All settled.", v.Reason)
	})
}

func TestCheckConclusionFailedCompletionContinues(t *testing.T) {
	d := newTestDirector(&opCompleter{})
	st := pacingState(t)
	st.Turn = 12
	st.World["payment_made"] = true
	for _, k := range []story.ActionKind{"investigate", "confront", "negotiate", "make_payment"} {
		st.DistinctActions[k] = struct{}{}
	}

	v := d.CheckConclusion(context.Background(), st)
	assert.False(t, v.ShouldEnd, "ending is never the failure default")
}

func TestPlanArc(t *testing.T) {
	comp := &opCompleter{responses: map[string]string{
		"director.plan_arc": `{"arc_plan": [
			{"turn": 0, "phase": "setup", "beat": "introductions", "suggested_speaker": "Marta"},
			{"turn": 1, "phase": "conflict", "beat": "blame flies", "suggested_action_kinds": ["confront"]}
		]}`,
	}}
	d := newTestDirector(comp)
	st := pacingState(t)

	plan := d.PlanArc(context.Background(), st)
	require.Len(t, plan, 2)
	assert.Equal(t, "setup", plan[0].Phase)
	assert.Equal(t, "Marta", plan[0].SuggestedSpeaker)
	assert.Equal(t, []story.ActionKind{"confront"}, plan[1].SuggestedActionKinds)
}

func TestPlanArcFallback(t *testing.T) {
	d := newTestDirector(&opCompleter{})
	st := pacingState(t)

	plan := d.PlanArc(context.Background(), st)
	require.Len(t, plan, st.MaxTurns)
	assert.Equal(t, "setup", plan[0].Phase)
	assert.Equal(t, "resolution", plan[st.MaxTurns-1].Phase)
}

func TestConcludeFallback(t *testing.T) {
	d := newTestDirector(&opCompleter{})
	st := pacingState(t)

	assert.NotEmpty(t, d.Conclude(context.Background(), st))
}

func TestPreviewKeepsRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := preview(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 131, utf8.RuneCountInString(got), "130 runes plus the ellipsis")
}
