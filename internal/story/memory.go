package story

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultMemoryBufferSize caps recent_events when the scenario doesn't set
// its own size.
const DefaultMemoryBufferSize = 8

// CharacterMemory is the structured memory owned by one character. The
// memory store is its only writer; the character decision unit reads it.
type CharacterMemory struct {
	// Knowledge is the character's unbounded first-person audit trail.
	Knowledge []string `json:"knowledge"`

	Inventory []string `json:"inventory"`

	EmotionalState string `json:"emotional_state"`

	// Perceptions holds this character's current opinion of the others.
	Perceptions map[string]string `json:"perceptions"`

	// RecentEvents is a FIFO buffer; oldest entries are evicted at
	// capacity.
	RecentEvents []string `json:"recent_events"`

	// Present flips to false when the character exits the scene. Once
	// false the character receives no further updates; its memory is a
	// strict prefix of the event log.
	Present bool `json:"present"`

	capacity int
}

// NewCharacterMemory seeds a memory from a profile.
func NewCharacterMemory(p CharacterProfile, bufferSize int) *CharacterMemory {
	if bufferSize <= 0 {
		bufferSize = DefaultMemoryBufferSize
	}
	emotion := p.InitialEmotion
	if emotion == "" {
		emotion = "neutral"
	}
	perceptions := map[string]string{}
	for k, v := range p.Perceptions {
		perceptions[k] = v
	}
	return &CharacterMemory{
		Knowledge:      []string{},
		Inventory:      append([]string(nil), p.Inventory...),
		EmotionalState: emotion,
		Perceptions:    perceptions,
		RecentEvents:   []string{},
		Present:        true,
		capacity:       bufferSize,
	}
}

func (m *CharacterMemory) remember(line string) {
	m.RecentEvents = append(m.RecentEvents, line)
	if len(m.RecentEvents) > m.capacity {
		m.RecentEvents = m.RecentEvents[len(m.RecentEvents)-m.capacity:]
	}
}

// SpeakerUpdate carries the self-reported fields of the acting character's
// decision. The memory store applies them verbatim; it never infers.
type SpeakerUpdate struct {
	Emotion     string
	Perceptions map[string]string
}

// MemoryStore propagates finalized events into per-character memory while
// enforcing information asymmetry.
type MemoryStore struct {
	exitKind ActionKind
}

// NewMemoryStore builds a store. exitKind is the catalog kind whose
// execution removes the actor from the scene.
func NewMemoryStore(exitKind ActionKind) *MemoryStore {
	return &MemoryStore{exitKind: exitKind}
}

// Propagate distributes one finalized event to every present character.
// The actor additionally gains a first-person knowledge entry, and its
// emotion/perceptions are updated from its own decision. If the event is
// the exit action, the actor is marked absent after receiving this final
// update.
func (ms *MemoryStore) Propagate(ev Event, st *State, upd SpeakerUpdate) {
	line := describeEvent(ev)

	for _, name := range st.CharacterNames() {
		mem := st.Memories[name]
		if mem == nil || !mem.Present {
			continue
		}
		mem.remember(line)
	}

	if ev.Speaker != "" {
		if mem := st.Memories[ev.Speaker]; mem != nil && mem.Present {
			if ev.Kind == EventAction {
				mem.Knowledge = append(mem.Knowledge,
					fmt.Sprintf("I performed %s at turn %d", ev.ActionKind, ev.Turn))
			}
			if upd.Emotion != "" {
				mem.EmotionalState = upd.Emotion
			}
			for name, view := range upd.Perceptions {
				if name == ev.Speaker {
					continue
				}
				mem.Perceptions[name] = view
			}
		}
	}

	// Observable facts about state-changing actions reach everyone still
	// on the scene.
	if ev.Kind == EventAction {
		fact := ms.worldFact(ev, st)
		for _, name := range st.CharacterNames() {
			mem := st.Memories[name]
			if mem == nil || !mem.Present {
				continue
			}
			mem.Knowledge = append(mem.Knowledge, fact)
		}
	}

	if ev.Kind == EventAction && ev.ActionKind == ms.exitKind && ev.Speaker != "" {
		if mem := st.Memories[ev.Speaker]; mem != nil {
			mem.Present = false
		}
	}
}

func (ms *MemoryStore) worldFact(ev Event, st *State) string {
	parts := []string{fmt.Sprintf("%s by %s", ev.ActionKind, ev.Speaker)}

	keys := make([]string, 0, len(st.World))
	for k := range st.World {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if b, ok := st.World[k].(bool); ok && b {
			parts = append(parts, strings.ReplaceAll(k, "_", " "))
		}
	}
	return "[FACT] " + strings.Join(parts, " | ")
}

func describeEvent(ev Event) string {
	switch ev.Kind {
	case EventDialogue:
		return fmt.Sprintf("T%d: %s said: %q", ev.Turn, ev.Speaker, preview(ev.Content, 80))
	case EventAction:
		return fmt.Sprintf("T%d: %s performed %s", ev.Turn, ev.Speaker, ev.ActionKind)
	default:
		return fmt.Sprintf("T%d: %s", ev.Turn, preview(ev.Content, 80))
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
