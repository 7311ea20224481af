package director

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/story"
	"storyloop/internal/story/actions"
)

func pacingState(t *testing.T) *story.State {
	t.Helper()
	sc := &story.Scenario{
		Title:       "Roadside Dispute",
		Description: "Two drivers and an officer argue over a dented fender.",
		Characters: []story.CharacterProfile{
			{Name: "Officer Chen", Description: "a tired traffic officer"},
			{Name: "Marta", Description: "a delivery driver"},
		},
		MaxTurns:   20,
		MinTurns:   5,
		MinActions: 4,
	}
	require.NoError(t, sc.Validate())
	return story.NewState("test", sc)
}

func TestComputePacingQuiet(t *testing.T) {
	st := pacingState(t)
	st.Turn = 2

	p := ComputePacing(st, actions.NewCatalog(nil), DefaultPacingRules())
	assert.False(t, p.ForceAct)
	assert.False(t, p.Endgame)
	assert.Empty(t, p.Stages)
}

func TestComputePacingStall(t *testing.T) {
	st := pacingState(t)
	st.Turn = 2
	st.TalkStreak = 2

	p := ComputePacing(st, actions.NewCatalog(nil), DefaultPacingRules())
	assert.True(t, p.ForceAct)
	assert.Contains(t, p.Stages, "stalled 2 turns")
	assert.NotEmpty(t, p.Suggested)
}

func TestComputePacingMidpointPressure(t *testing.T) {
	st := pacingState(t)
	st.Turn = 10 // fraction 0.5, zero of 4 required actions
	st.TalkStreak = 1

	p := ComputePacing(st, actions.NewCatalog(nil), DefaultPacingRules())
	assert.True(t, p.ForceAct)
	assert.Contains(t, p.Stages, "midpoint action pressure")
}

func TestComputePacingLatePressure(t *testing.T) {
	st := pacingState(t)
	st.Turn = 14 // fraction 0.7
	st.TalkStreak = 1
	// Three of four: enough to clear the midpoint rule, not the late one.
	st.DistinctActions["investigate"] = struct{}{}
	st.DistinctActions["confront"] = struct{}{}
	st.DistinctActions["negotiate"] = struct{}{}

	p := ComputePacing(st, actions.NewCatalog(nil), DefaultPacingRules())
	assert.True(t, p.ForceAct)
	assert.Contains(t, p.Stages, "late action pressure")
	assert.NotContains(t, p.Stages, "midpoint action pressure")
}

func TestComputePacingEndgameResolutionPush(t *testing.T) {
	st := pacingState(t)
	st.Turn = 16 // fraction 0.8
	st.TalkStreak = 1
	for _, k := range []story.ActionKind{"investigate", "confront", "negotiate", "present_evidence"} {
		st.DistinctActions[k] = struct{}{}
	}

	catalog := actions.NewCatalog(nil)
	p := ComputePacing(st, catalog, DefaultPacingRules())
	assert.True(t, p.Endgame)
	assert.True(t, p.ForceAct)
	assert.Contains(t, p.Stages, "endgame resolution push")

	// A resolution-signal kind is suggested.
	spec, ok := catalog.Lookup(p.Suggested)
	require.True(t, ok)
	assert.True(t, spec.Resolution)

	t.Run("signal present clears the push", func(t *testing.T) {
		st.World["terms_accepted"] = true
		p := ComputePacing(st, catalog, DefaultPacingRules())
		assert.NotContains(t, p.Stages, "endgame resolution push")
	})
}

func TestComputePacingCountdown(t *testing.T) {
	st := pacingState(t)
	st.Turn = 16 // 4 turns remain, 3 actions still needed, slack 1
	st.TalkStreak = 1
	st.DistinctActions["investigate"] = struct{}{}
	st.World["payment_made"] = true // no endgame push

	p := ComputePacing(st, actions.NewCatalog(nil), DefaultPacingRules())
	assert.True(t, p.ForceAct)
	assert.Contains(t, p.Stages, "countdown")
}
