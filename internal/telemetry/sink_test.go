package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/story"
)

func newTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func drain(t *testing.T, sink *SQLiteSink, storyID string, want int) []Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snaps, err := sink.ReadStory(storyID)
		require.NoError(t, err)
		if len(snaps) >= want {
			return snaps
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d snapshots", want)
	return nil
}

func TestSinkRecordAndReadBack(t *testing.T) {
	sink := newTestSink(t)

	sink.Record(Snapshot{
		StoryID: "story-1",
		Turn:    0,
		Event:   story.Event{Turn: 0, Kind: story.EventDialogue, Speaker: "Marta", Content: "line one"},
		World:   map[string]any{},
	})
	sink.Record(Snapshot{
		StoryID: "story-1",
		Turn:    1,
		Event:   story.Event{Turn: 1, Kind: story.EventAction, Speaker: "Officer Chen", ActionKind: "investigate", Content: "kneels down"},
		World:   map[string]any{"scene_investigated": true},
	})

	snaps := drain(t, sink, "story-1", 2)
	assert.Equal(t, "Marta", snaps[0].Event.Speaker)
	assert.Equal(t, story.ActionKind("investigate"), snaps[1].Event.ActionKind)
	assert.Equal(t, true, snaps[1].World["scene_investigated"])
}

func TestSinkListStories(t *testing.T) {
	sink := newTestSink(t)

	sink.Record(Snapshot{StoryID: "older", Turn: 0, Event: story.Event{Content: "a"}, World: map[string]any{}})
	drain(t, sink, "older", 1)
	sink.Record(Snapshot{StoryID: "newer", Turn: 0, Event: story.Event{Content: "b"}, World: map[string]any{}})
	drain(t, sink, "newer", 1)

	ids, err := sink.ListStories()
	require.NoError(t, err)
	assert.Equal(t, []string{"newer", "older"}, ids)
}

func TestSinkRatings(t *testing.T) {
	sink := newTestSink(t)

	require.NoError(t, sink.RateStory("story-1", 4, "good pacing"))

	rating, notes, ok, err := sink.StoryRating("story-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, rating)
	assert.Equal(t, "good pacing", notes)

	t.Run("rerating replaces", func(t *testing.T) {
		require.NoError(t, sink.RateStory("story-1", 2, ""))
		rating, _, ok, err := sink.StoryRating("story-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2, rating)
	})

	t.Run("out of range", func(t *testing.T) {
		assert.Error(t, sink.RateStory("story-1", 6, ""))
	})

	t.Run("unrated story", func(t *testing.T) {
		_, _, ok, err := sink.StoryRating("story-2")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSinkReadMissingStory(t *testing.T) {
	sink := newTestSink(t)
	snaps, err := sink.ReadStory("nope")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
