package actions

import (
	"errors"
	"fmt"
	"strings"

	"storyloop/internal/story"
)

// Executor failure classes. Callers are expected to have remapped or
// filtered the kind already; the executor never guesses.
var (
	ErrUnknownKind        = errors.New("unknown action kind")
	ErrPreconditionFailed = errors.New("action precondition not met")
	ErrLimitExceeded      = errors.New("action use limit exceeded")
)

// Outcome describes a successfully executed action.
type Outcome struct {
	Kind      story.ActionKind
	WorldKey  string
	Narration string
	Event     story.Event
}

// Executor applies catalog actions to story state. It is the only writer
// of world_state.
type Executor struct {
	catalog *Catalog
}

func NewExecutor(catalog *Catalog) *Executor {
	return &Executor{catalog: catalog}
}

// Execute validates and applies one action. On success it increments the
// use count, records the distinct kind, writes the world flag, and appends
// an action event carrying the supplied narration verbatim. Narration is
// cosmetic; it never drives state. A rejected call mutates nothing.
func (e *Executor) Execute(kind story.ActionKind, actor, narration string, st *story.State) (*Outcome, error) {
	spec, ok := e.catalog.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if st.ActionUses[kind] >= spec.MaxUses {
		return nil, fmt.Errorf("%w: %s used %d of %d times", ErrLimitExceeded, kind, st.ActionUses[kind], spec.MaxUses)
	}

	for key, want := range spec.Requires {
		if st.WorldFlag(key) != want {
			return nil, fmt.Errorf("%w: %s requires %s=%t", ErrPreconditionFailed, kind, key, want)
		}
	}

	if strings.TrimSpace(narration) == "" {
		narration = FallbackNarration(spec, actor)
	}

	st.ActionUses[kind]++
	st.DistinctActions[kind] = struct{}{}

	worldKey := worldKeyFor(spec, actor)
	st.World[worldKey] = true

	ev := story.Event{
		Turn:       st.Turn,
		Kind:       story.EventAction,
		Speaker:    actor,
		Content:    narration,
		ActionKind: kind,
	}
	st.AppendEvent(ev)

	return &Outcome{Kind: kind, WorldKey: worldKey, Narration: narration, Event: ev}, nil
}

// FallbackNarration renders a deterministic action line from the spec's
// hint.
func FallbackNarration(spec story.ActionSpec, actor string) string {
	hint := spec.NarrationHint
	if hint == "" {
		hint = "takes action"
	}
	return fmt.Sprintf("%s %s.", actor, hint)
}
