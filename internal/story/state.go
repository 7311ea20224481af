package story

// EventKind distinguishes the three things that can land on the event log.
type EventKind string

const (
	EventDialogue  EventKind = "dialogue"
	EventAction    EventKind = "action"
	EventNarration EventKind = "narration"
)

// ActionKind names one entry in the action catalog.
type ActionKind string

// Event is one append-only entry in the story's event log.
type Event struct {
	Turn       int        `json:"turn"`
	Kind       EventKind  `json:"kind"`
	Speaker    string     `json:"speaker,omitempty"`
	Content    string     `json:"content"`
	ActionKind ActionKind `json:"action_kind,omitempty"`
	Conclusion bool       `json:"conclusion,omitempty"`
}

// Mode is a character's choice for its turn.
type Mode string

const (
	ModeTalk Mode = "TALK"
	ModeAct  Mode = "ACT"
)

// ActionChoice is the action half of an ACT decision.
type ActionChoice struct {
	Kind      ActionKind `json:"kind"`
	Narration string     `json:"narration"`
}

// Decision is a character's normalized observe-reason-decide record for one
// turn. It carries no authority over state; the orchestrator applies it.
type Decision struct {
	Observation string        `json:"observation"`
	Reasoning   string        `json:"reasoning"`
	Emotion     string        `json:"emotion"`
	Mode        Mode          `json:"mode"`
	Speech      string        `json:"speech,omitempty"`
	Action      *ActionChoice `json:"action,omitempty"`
}

// PlannedBeat is one advisory entry of the upfront arc plan. It never
// overrides a deterministic rule.
type PlannedBeat struct {
	Turn                 int          `json:"turn"`
	Phase                string       `json:"phase"`
	Beat                 string       `json:"beat,omitempty"`
	SuggestedSpeaker     string       `json:"suggested_speaker,omitempty"`
	SuggestedActionKinds []ActionKind `json:"suggested_action_kinds,omitempty"`
}

// EmotionEntry records a speaker's reported emotion at a turn.
type EmotionEntry struct {
	Turn      int    `json:"turn"`
	Character string `json:"character"`
	Emotion   string `json:"emotion"`
}

// CharacterProfile is the static description a character starts from.
type CharacterProfile struct {
	Name           string            `json:"name" yaml:"name"`
	Description    string            `json:"description" yaml:"description"`
	Goals          []string          `json:"goals,omitempty" yaml:"goals"`
	Inventory      []string          `json:"inventory,omitempty" yaml:"inventory"`
	InitialEmotion string            `json:"initial_emotion,omitempty" yaml:"initial_emotion"`
	Perceptions    map[string]string `json:"initial_perceptions,omitempty" yaml:"initial_perceptions"`
}

// State is the single mutable aggregate of one story instance. Exactly one
// orchestrator owns it; everything else gets read access or the narrow
// mutation methods below.
type State struct {
	StoryID     string `json:"story_id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	Turn       int `json:"turn"`
	MaxTurns   int `json:"max_turns"`
	MinTurns   int `json:"min_turns"`
	MinActions int `json:"min_actions"`

	Profiles []CharacterProfile `json:"profiles"`

	Events []Event `json:"events"`

	// World holds deterministic flags and counters. Only the action
	// executor writes here; generated text never does.
	World map[string]any `json:"world"`

	ActionUses      map[ActionKind]int      `json:"action_uses"`
	DistinctActions map[ActionKind]struct{} `json:"-"`

	Memories map[string]*CharacterMemory `json:"memories"`

	ConsecutiveTurns map[string]int `json:"consecutive_turns"`
	LastSpeaker      string         `json:"last_speaker,omitempty"`

	// TalkStreak counts consecutive turns with no successful action.
	TalkStreak int `json:"talk_streak"`

	ArcPlan        []PlannedBeat  `json:"arc_plan,omitempty"`
	DirectorNotes  []string       `json:"director_notes,omitempty"`
	EmotionHistory []EmotionEntry `json:"emotion_history,omitempty"`

	Concluded        bool   `json:"concluded"`
	ConclusionReason string `json:"conclusion_reason,omitempty"`
}

// NewState builds the initial state for a validated scenario.
func NewState(storyID string, sc *Scenario) *State {
	st := &State{
		StoryID:          storyID,
		Title:            sc.Title,
		Description:      sc.Description,
		MaxTurns:         sc.MaxTurns,
		MinTurns:         sc.MinTurns,
		MinActions:       sc.MinActions,
		Profiles:         append([]CharacterProfile(nil), sc.Characters...),
		World:            map[string]any{},
		ActionUses:       map[ActionKind]int{},
		DistinctActions:  map[ActionKind]struct{}{},
		Memories:         map[string]*CharacterMemory{},
		ConsecutiveTurns: map[string]int{},
	}
	for _, p := range sc.Characters {
		st.Memories[p.Name] = NewCharacterMemory(p, sc.MemoryBufferSize)
	}
	return st
}

// CharacterNames returns character names in scenario order. Deterministic
// ordering matters for round-robin fallbacks.
func (s *State) CharacterNames() []string {
	names := make([]string, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		names = append(names, p.Name)
	}
	return names
}

// Profile looks up a character profile by name.
func (s *State) Profile(name string) (CharacterProfile, bool) {
	for _, p := range s.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return CharacterProfile{}, false
}

// AppendEvent appends to the event log. The log is append-only; nothing
// ever rewrites past entries.
func (s *State) AppendEvent(ev Event) {
	s.Events = append(s.Events, ev)
}

// LastEvent returns the newest event, if any.
func (s *State) LastEvent() (Event, bool) {
	if len(s.Events) == 0 {
		return Event{}, false
	}
	return s.Events[len(s.Events)-1], true
}

// RecordSpeaker updates the anti-monopolization counters.
func (s *State) RecordSpeaker(name string) {
	if name == s.LastSpeaker {
		s.ConsecutiveTurns[name]++
	} else {
		s.ConsecutiveTurns = map[string]int{name: 1}
	}
	s.LastSpeaker = name
}

// DistinctActionCount reports how many different action kinds have run.
func (s *State) DistinctActionCount() int {
	return len(s.DistinctActions)
}

// ActionTaken reports whether kind has been executed at least once.
func (s *State) ActionTaken(kind ActionKind) bool {
	_, ok := s.DistinctActions[kind]
	return ok
}

// WorldFlag reads a boolean world flag; absent keys read as false.
func (s *State) WorldFlag(key string) bool {
	v, ok := s.World[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// TurnFraction is the progress through the turn budget in [0,1].
func (s *State) TurnFraction() float64 {
	if s.MaxTurns <= 0 {
		return 1
	}
	return float64(s.Turn) / float64(s.MaxTurns)
}

// Phase derives the dramatic phase from turn progress. Advisory, used in
// prompts only.
func Phase(turn, maxTurns int) string {
	if maxTurns <= 0 {
		return "setup"
	}
	progress := float64(turn) / float64(maxTurns)
	switch {
	case progress < 0.15:
		return "setup"
	case progress < 0.55:
		return "conflict"
	case progress < 0.80:
		return "climax"
	default:
		return "resolution"
	}
}

// DialogueEvents returns the dialogue and action events, newest last.
func (s *State) DialogueEvents() []Event {
	out := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Kind == EventDialogue || ev.Kind == EventAction {
			out = append(out, ev)
		}
	}
	return out
}
