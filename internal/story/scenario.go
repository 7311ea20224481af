package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionSpec is the data form of one catalog entry, as a scenario file may
// override it. The catalog is data, not logic.
type ActionSpec struct {
	Kind        ActionKind      `json:"kind" yaml:"kind"`
	Description string          `json:"description" yaml:"description"`
	MaxUses     int             `json:"max_uses" yaml:"max_uses"`
	Requires    map[string]bool `json:"requires,omitempty" yaml:"requires"`
	// WorldKey is the world-state flag the action sets. Ignored when
	// PerActor is set; then the key is derived from the actor.
	WorldKey string `json:"world_key,omitempty" yaml:"world_key"`
	// PerActor marks the exit-style action whose world key is
	// "<actor>_departed".
	PerActor bool `json:"per_actor,omitempty" yaml:"per_actor"`
	// Resolution marks the kind's world key as a resolution signal.
	Resolution bool `json:"resolution,omitempty" yaml:"resolution"`
	// NarrationHint seeds fallback narration ("<actor> <hint>.").
	NarrationHint string `json:"narration_hint,omitempty" yaml:"narration_hint"`
}

// Scenario is the external definition a story starts from.
type Scenario struct {
	Title            string             `json:"title" yaml:"title"`
	Description      string             `json:"description" yaml:"description"`
	Characters       []CharacterProfile `json:"characters" yaml:"characters"`
	MaxTurns         int                `json:"max_turns" yaml:"max_turns"`
	MinTurns         int                `json:"min_turns" yaml:"min_turns"`
	MinActions       int                `json:"min_actions" yaml:"min_actions"`
	MemoryBufferSize int                `json:"memory_buffer_size,omitempty" yaml:"memory_buffer_size"`

	// Actions replaces the default catalog when non-empty.
	Actions []ActionSpec `json:"actions,omitempty" yaml:"actions"`
}

// LoadScenario reads a scenario file. The format follows the extension:
// .yaml/.yml or .json.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("parse scenario %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("parse scenario %s: %w", path, err)
		}
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate enforces the startup contract. A malformed scenario is a hard
// error before any turn runs, never a runtime-recoverable one.
func (sc *Scenario) Validate() error {
	if strings.TrimSpace(sc.Title) == "" {
		return fmt.Errorf("scenario: title is required")
	}
	if len(sc.Characters) < 2 {
		return fmt.Errorf("scenario: need at least 2 characters, got %d", len(sc.Characters))
	}
	seen := map[string]bool{}
	for i, c := range sc.Characters {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("scenario: character %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("scenario: duplicate character %q", c.Name)
		}
		seen[c.Name] = true
	}
	if sc.MaxTurns <= 0 {
		return fmt.Errorf("scenario: max_turns must be positive, got %d", sc.MaxTurns)
	}
	if sc.MinTurns <= 0 {
		return fmt.Errorf("scenario: min_turns must be positive, got %d", sc.MinTurns)
	}
	if sc.MinTurns > sc.MaxTurns {
		return fmt.Errorf("scenario: min_turns %d exceeds max_turns %d", sc.MinTurns, sc.MaxTurns)
	}
	if sc.MinActions < 0 {
		return fmt.Errorf("scenario: min_actions must not be negative, got %d", sc.MinActions)
	}
	if sc.MemoryBufferSize < 0 {
		return fmt.Errorf("scenario: memory_buffer_size must not be negative, got %d", sc.MemoryBufferSize)
	}
	for i, a := range sc.Actions {
		if a.Kind == "" {
			return fmt.Errorf("scenario: action %d has no kind", i)
		}
		if a.MaxUses <= 0 {
			return fmt.Errorf("scenario: action %q max_uses must be positive", a.Kind)
		}
		if a.WorldKey == "" && !a.PerActor {
			return fmt.Errorf("scenario: action %q has no world_key", a.Kind)
		}
	}
	return nil
}
