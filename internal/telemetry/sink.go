// Package telemetry persists per-turn story snapshots to SQLite for
// later replay. Recording is fire-and-forget: a slow or broken sink
// never stalls a running story.
package telemetry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"storyloop/internal/debug"
	"storyloop/internal/story"
)

// Snapshot is one recorded moment of a story: the event that just
// finalized plus the world state after it.
type Snapshot struct {
	StoryID string         `json:"story_id"`
	Turn    int            `json:"turn"`
	Event   story.Event    `json:"event"`
	World   map[string]any `json:"world"`
}

// Sink receives snapshots. Record must never block the caller.
type Sink interface {
	Record(snap Snapshot)
	Close() error
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) Record(Snapshot) {}
func (NopSink) Close() error    { return nil }

const sinkSchema = `
CREATE TABLE IF NOT EXISTS story_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	story_id   TEXT NOT NULL,
	turn       INTEGER NOT NULL,
	event_json TEXT NOT NULL,
	world_json TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_story_events_story ON story_events(story_id, id);
CREATE TABLE IF NOT EXISTS story_ratings (
	story_id   TEXT PRIMARY KEY,
	rating     INTEGER NOT NULL,
	notes      TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteSink writes snapshots from a background goroutine. The buffer is
// bounded; when it fills, new snapshots are dropped rather than blocking
// the story loop.
type SQLiteSink struct {
	db    *sql.DB
	ch    chan Snapshot
	done  chan struct{}
	debug *debug.Logger
}

// NewSQLiteSink opens (creating if needed) the database at path and
// starts the writer goroutine.
func NewSQLiteSink(path string, dbg *debug.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry db: %w", err)
	}
	if _, err := db.Exec(sinkSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing telemetry schema: %w", err)
	}

	s := &SQLiteSink{
		db:    db,
		ch:    make(chan Snapshot, 256),
		done:  make(chan struct{}),
		debug: dbg,
	}
	go s.run()
	return s, nil
}

// Record enqueues a snapshot. Full buffer means the snapshot is dropped.
func (s *SQLiteSink) Record(snap Snapshot) {
	select {
	case s.ch <- snap:
	default:
		s.debug.Printf("[telemetry] buffer full, dropping snapshot story=%s turn=%d", snap.StoryID, snap.Turn)
	}
}

// Close drains pending snapshots and closes the database.
func (s *SQLiteSink) Close() error {
	close(s.ch)
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.debug.Println("[telemetry] close timed out waiting for writer")
	}
	return s.db.Close()
}

func (s *SQLiteSink) run() {
	defer close(s.done)
	for snap := range s.ch {
		s.write(snap)
	}
}

func (s *SQLiteSink) write(snap Snapshot) {
	eventJSON, err := json.Marshal(snap.Event)
	if err != nil {
		s.debug.Printf("[telemetry] marshal event: %v", err)
		return
	}
	worldJSON, err := json.Marshal(snap.World)
	if err != nil {
		s.debug.Printf("[telemetry] marshal world: %v", err)
		return
	}
	_, err = s.db.Exec(
		"INSERT INTO story_events (story_id, turn, event_json, world_json) VALUES (?, ?, ?, ?)",
		snap.StoryID, snap.Turn, string(eventJSON), string(worldJSON),
	)
	if err != nil {
		s.debug.Printf("[telemetry] insert: %v", err)
	}
}

// ReadStory loads every recorded snapshot for a story in insertion order.
func (s *SQLiteSink) ReadStory(storyID string) ([]Snapshot, error) {
	rows, err := s.db.Query(
		"SELECT story_id, turn, event_json, world_json FROM story_events WHERE story_id = ? ORDER BY id",
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying story %s: %w", storyID, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var eventJSON, worldJSON string
		if err := rows.Scan(&snap.StoryID, &snap.Turn, &eventJSON, &worldJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(eventJSON), &snap.Event); err != nil {
			return nil, fmt.Errorf("decoding event for story %s turn %d: %w", snap.StoryID, snap.Turn, err)
		}
		if err := json.Unmarshal([]byte(worldJSON), &snap.World); err != nil {
			return nil, fmt.Errorf("decoding world for story %s turn %d: %w", snap.StoryID, snap.Turn, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// RateStory stores a quality rating for a recorded story. Ratings are
// 1 to 5; rating again replaces the previous one.
func (s *SQLiteSink) RateStory(storyID string, rating int, notes string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	_, err := s.db.Exec(
		`INSERT INTO story_ratings (story_id, rating, notes) VALUES (?, ?, ?)
		 ON CONFLICT(story_id) DO UPDATE SET rating = excluded.rating, notes = excluded.notes`,
		storyID, rating, notes,
	)
	if err != nil {
		return fmt.Errorf("rating story %s: %w", storyID, err)
	}
	return nil
}

// StoryRating returns the rating for a story, if one was recorded.
func (s *SQLiteSink) StoryRating(storyID string) (rating int, notes string, ok bool, err error) {
	row := s.db.QueryRow("SELECT rating, COALESCE(notes, '') FROM story_ratings WHERE story_id = ?", storyID)
	switch err = row.Scan(&rating, &notes); err {
	case nil:
		return rating, notes, true, nil
	case sql.ErrNoRows:
		return 0, "", false, nil
	default:
		return 0, "", false, err
	}
}

// ListStories returns the distinct story IDs on record, newest first.
func (s *SQLiteSink) ListStories() ([]string, error) {
	rows, err := s.db.Query(
		"SELECT story_id, MAX(id) AS last FROM story_events GROUP BY story_id ORDER BY last DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		var last int64
		if err := rows.Scan(&id, &last); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
