package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/story"
)

func testState(t *testing.T) *story.State {
	t.Helper()
	sc := &story.Scenario{
		Title:       "Roadside Dispute",
		Description: "Two drivers and an officer argue over a dented fender.",
		Characters: []story.CharacterProfile{
			{Name: "Officer Chen", Description: "a tired traffic officer"},
			{Name: "Marta", Description: "a delivery driver"},
			{Name: "Old Wu", Description: "an elderly bystander"},
		},
		MaxTurns:   20,
		MinTurns:   5,
		MinActions: 3,
	}
	require.NoError(t, sc.Validate())
	return story.NewState("test-story", sc)
}

func TestExecuteAppliesEffects(t *testing.T) {
	catalog := NewCatalog(nil)
	exec := NewExecutor(catalog)
	st := testState(t)
	st.Turn = 4

	out, err := exec.Execute(KindInvestigate, "Officer Chen", "peers under the bumper", st)
	require.NoError(t, err)

	assert.Equal(t, KindInvestigate, out.Kind)
	assert.Equal(t, "scene_investigated", out.WorldKey)
	assert.Equal(t, "peers under the bumper", out.Narration)

	assert.True(t, st.WorldFlag("scene_investigated"))
	assert.Equal(t, 1, st.ActionUses[KindInvestigate])
	assert.Equal(t, 1, st.DistinctActionCount())

	ev, ok := st.LastEvent()
	require.True(t, ok)
	assert.Equal(t, story.EventAction, ev.Kind)
	assert.Equal(t, 4, ev.Turn)
	assert.Equal(t, "Officer Chen", ev.Speaker)
	assert.Equal(t, KindInvestigate, ev.ActionKind)
}

func TestExecuteUnknownKind(t *testing.T) {
	exec := NewExecutor(NewCatalog(nil))
	st := testState(t)

	_, err := exec.Execute("do_a_flip", "Marta", "", st)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Empty(t, st.Events)
	assert.Empty(t, st.World)
}

func TestExecuteUseLimit(t *testing.T) {
	exec := NewExecutor(NewCatalog(nil))
	st := testState(t)

	_, err := exec.Execute(KindMakePayment, "Marta", "", st)
	require.NoError(t, err)

	_, err = exec.Execute(KindMakePayment, "Marta", "", st)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, 1, st.ActionUses[KindMakePayment])
}

func TestExecutePreconditions(t *testing.T) {
	exec := NewExecutor(NewCatalog(nil))
	st := testState(t)

	t.Run("accept_terms before negotiate is rejected", func(t *testing.T) {
		_, err := exec.Execute(KindAcceptTerms, "Marta", "", st)
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("rejection mutates nothing", func(t *testing.T) {
		assert.Zero(t, st.ActionUses[KindAcceptTerms])
		assert.Zero(t, st.DistinctActionCount())
		assert.Empty(t, st.Events)
		assert.False(t, st.WorldFlag("terms_accepted"))
	})

	t.Run("accept_terms after negotiate succeeds", func(t *testing.T) {
		_, err := exec.Execute(KindNegotiate, "Old Wu", "suggests splitting the cost", st)
		require.NoError(t, err)

		out, err := exec.Execute(KindAcceptTerms, "Marta", "", st)
		require.NoError(t, err)
		assert.Equal(t, "terms_accepted", out.WorldKey)
		assert.True(t, st.WorldFlag("terms_accepted"))
	})
}

func TestExecutePerActorWorldKey(t *testing.T) {
	exec := NewExecutor(NewCatalog(nil))
	st := testState(t)

	out, err := exec.Execute(KindExitScene, "Old Wu", "", st)
	require.NoError(t, err)
	assert.Equal(t, "old_wu_departed", out.WorldKey)
	assert.True(t, st.WorldFlag("old_wu_departed"))
}

func TestExecuteEmptyNarrationFallsBack(t *testing.T) {
	catalog := NewCatalog(nil)
	exec := NewExecutor(catalog)
	st := testState(t)

	out, err := exec.Execute(KindConfront, "Marta", "   ", st)
	require.NoError(t, err)
	assert.Equal(t, "Marta squares up and forces the issue into the open.", out.Narration)
}

func TestCatalogAllowed(t *testing.T) {
	catalog := NewCatalog(nil)
	st := testState(t)

	allowed := catalog.Allowed(st)
	assert.NotContains(t, allowed, KindAcceptTerms, "precondition unmet at start")
	assert.Contains(t, allowed, KindNegotiate)

	st.World["negotiation_proposed"] = true
	assert.Contains(t, catalog.Allowed(st), KindAcceptTerms)

	st.ActionUses[KindNegotiate] = 2
	assert.NotContains(t, catalog.Allowed(st), KindNegotiate, "at use limit")
}

func TestCatalogAllowedUnusedSorted(t *testing.T) {
	catalog := NewCatalog(nil)
	st := testState(t)
	st.DistinctActions[KindInvestigate] = struct{}{}

	unused := catalog.AllowedUnused(st)
	assert.NotContains(t, unused, KindInvestigate)
	for i := 1; i < len(unused); i++ {
		assert.Less(t, string(unused[i-1]), string(unused[i]))
	}
}

func TestCatalogResolutionSignal(t *testing.T) {
	catalog := NewCatalog(nil)
	st := testState(t)

	assert.False(t, catalog.HasResolutionSignal(st))
	st.World["payment_made"] = true
	assert.True(t, catalog.HasResolutionSignal(st))
}

func TestCatalogExitKind(t *testing.T) {
	assert.Equal(t, KindExitScene, NewCatalog(nil).ExitKind())

	custom := NewCatalog([]story.ActionSpec{
		{Kind: "shout", Description: "shout", MaxUses: 3, WorldKey: "shouted"},
	})
	assert.Equal(t, story.ActionKind(""), custom.ExitKind())
}

func TestCatalogCustomSpecsReplaceDefaults(t *testing.T) {
	custom := NewCatalog([]story.ActionSpec{
		{Kind: "sound_alarm", Description: "raise the alarm", MaxUses: 1, WorldKey: "alarm_raised", Resolution: true},
	})
	_, ok := custom.Lookup(KindInvestigate)
	assert.False(t, ok)
	assert.Equal(t, []string{"alarm_raised"}, custom.ResolutionKeys())
}
