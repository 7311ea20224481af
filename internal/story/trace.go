package story

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Trace is the lossless artifact a finished story produces. Downstream
// presentation consumes this, never the live State.
type Trace struct {
	StoryID     string `json:"story_id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	Turns    int `json:"turns"`
	MaxTurns int `json:"max_turns"`

	Events []Event        `json:"events"`
	World  map[string]any `json:"world"`

	ActionUses      map[ActionKind]int `json:"action_uses"`
	DistinctActions []ActionKind       `json:"distinct_actions"`

	Memories       map[string]*CharacterMemory `json:"memories"`
	EmotionHistory []EmotionEntry              `json:"emotion_history,omitempty"`
	DirectorNotes  []string                    `json:"director_notes,omitempty"`
	ArcPlan        []PlannedBeat               `json:"arc_plan,omitempty"`

	Concluded        bool   `json:"concluded"`
	ConclusionReason string `json:"conclusion_reason,omitempty"`
}

// BuildTrace snapshots a finished state into its trace artifact.
func BuildTrace(st *State) *Trace {
	distinct := make([]ActionKind, 0, len(st.DistinctActions))
	for k := range st.DistinctActions {
		distinct = append(distinct, k)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })

	return &Trace{
		StoryID:          st.StoryID,
		Title:            st.Title,
		Description:      st.Description,
		Turns:            st.Turn,
		MaxTurns:         st.MaxTurns,
		Events:           append([]Event(nil), st.Events...),
		World:            st.World,
		ActionUses:       st.ActionUses,
		DistinctActions:  distinct,
		Memories:         st.Memories,
		EmotionHistory:   st.EmotionHistory,
		DirectorNotes:    st.DirectorNotes,
		ArcPlan:          st.ArcPlan,
		Concluded:        st.Concluded,
		ConclusionReason: st.ConclusionReason,
	}
}

// JSON renders the trace with indentation.
func (t *Trace) JSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// WriteFile writes the trace as JSON to path.
func (t *Trace) WriteFile(path string) error {
	data, err := t.JSON()
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}
