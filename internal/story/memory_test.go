package story

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disputeScenario() *Scenario {
	return &Scenario{
		Title:       "Roadside Dispute",
		Description: "Two drivers and an officer argue over a dented fender.",
		Characters: []CharacterProfile{
			{Name: "Officer Chen", Description: "a tired traffic officer", InitialEmotion: "weary"},
			{Name: "Marta", Description: "a delivery driver", Inventory: []string{"phone"}},
			{Name: "Old Wu", Description: "an elderly bystander",
				Perceptions: map[string]string{"Marta": "seems rattled"}},
		},
		MaxTurns:   20,
		MinTurns:   5,
		MinActions: 3,
	}
}

func TestNewCharacterMemorySeedsFromProfile(t *testing.T) {
	st := NewState("s1", disputeScenario())

	chen := st.Memories["Officer Chen"]
	require.NotNil(t, chen)
	assert.Equal(t, "weary", chen.EmotionalState)
	assert.True(t, chen.Present)

	marta := st.Memories["Marta"]
	assert.Equal(t, []string{"phone"}, marta.Inventory)
	assert.Equal(t, "neutral", marta.EmotionalState)

	wu := st.Memories["Old Wu"]
	assert.Equal(t, "seems rattled", wu.Perceptions["Marta"])
}

func TestRecentEventsFIFO(t *testing.T) {
	sc := disputeScenario()
	sc.MemoryBufferSize = 3
	st := NewState("s1", sc)
	ms := NewMemoryStore("exit_scene")

	for i := 0; i < 5; i++ {
		ms.Propagate(Event{
			Turn: i, Kind: EventDialogue, Speaker: "Marta",
			Content: fmt.Sprintf("line %d", i),
		}, st, SpeakerUpdate{})
	}

	mem := st.Memories["Officer Chen"]
	require.Len(t, mem.RecentEvents, 3)
	assert.Contains(t, mem.RecentEvents[0], "line 2")
	assert.Contains(t, mem.RecentEvents[2], "line 4")
}

func TestPropagateActorKnowledgeAndEmotion(t *testing.T) {
	st := NewState("s1", disputeScenario())
	ms := NewMemoryStore("exit_scene")

	st.World["scene_investigated"] = true
	ms.Propagate(Event{
		Turn: 2, Kind: EventAction, Speaker: "Officer Chen",
		Content: "kneels by the fender", ActionKind: "investigate",
	}, st, SpeakerUpdate{
		Emotion:     "focused",
		Perceptions: map[string]string{"Marta": "telling the truth", "Officer Chen": "ignored"},
	})

	chen := st.Memories["Officer Chen"]
	assert.Contains(t, chen.Knowledge, "I performed investigate at turn 2")
	assert.Equal(t, "focused", chen.EmotionalState)
	assert.Equal(t, "telling the truth", chen.Perceptions["Marta"])
	assert.NotContains(t, chen.Perceptions, "Officer Chen", "no self-perception")

	// Other characters learn the observable fact, not the first-person entry.
	marta := st.Memories["Marta"]
	assert.NotContains(t, marta.Knowledge, "I performed investigate at turn 2")
	require.NotEmpty(t, marta.Knowledge)
	assert.Contains(t, marta.Knowledge[0], "[FACT] investigate by Officer Chen")
	assert.Contains(t, marta.Knowledge[0], "scene investigated")
}

func TestPropagateExitStopsUpdates(t *testing.T) {
	st := NewState("s1", disputeScenario())
	ms := NewMemoryStore("exit_scene")

	ms.Propagate(Event{
		Turn: 3, Kind: EventAction, Speaker: "Old Wu",
		Content: "shuffles away", ActionKind: "exit_scene",
	}, st, SpeakerUpdate{})

	wu := st.Memories["Old Wu"]
	assert.False(t, wu.Present, "departure is terminal")
	// The exit itself is the final update Old Wu receives.
	require.NotEmpty(t, wu.RecentEvents)
	before := len(wu.RecentEvents)

	ms.Propagate(Event{
		Turn: 4, Kind: EventDialogue, Speaker: "Marta", Content: "He's gone.",
	}, st, SpeakerUpdate{})

	assert.Len(t, wu.RecentEvents, before, "departed characters receive nothing")
	assert.Contains(t, st.Memories["Officer Chen"].RecentEvents[len(st.Memories["Officer Chen"].RecentEvents)-1],
		"Marta said")
}

func TestRecordSpeakerConsecutiveRuns(t *testing.T) {
	st := NewState("s1", disputeScenario())

	st.RecordSpeaker("Marta")
	st.RecordSpeaker("Marta")
	assert.Equal(t, 2, st.ConsecutiveTurns["Marta"])

	st.RecordSpeaker("Old Wu")
	assert.Equal(t, 1, st.ConsecutiveTurns["Old Wu"])
	assert.Zero(t, st.ConsecutiveTurns["Marta"], "run resets on speaker change")
}

func TestPhaseBoundaries(t *testing.T) {
	assert.Equal(t, "setup", Phase(0, 20))
	assert.Equal(t, "conflict", Phase(5, 20))
	assert.Equal(t, "climax", Phase(12, 20))
	assert.Equal(t, "resolution", Phase(17, 20))
}

func TestPreviewKeepsRuneBoundary(t *testing.T) {
	long := strings.Repeat("誰", 100)
	got := preview(long, 80)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 80, utf8.RuneCountInString(got))

	ev := Event{Turn: 1, Kind: EventDialogue, Speaker: "Marta", Content: long}
	assert.True(t, utf8.ValidString(describeEvent(ev)))
}
