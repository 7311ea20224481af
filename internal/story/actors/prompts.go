package actors

import (
	"fmt"
	"strings"

	"storyloop/internal/story"
	"storyloop/internal/story/actions"
)

type decisionPrompt struct {
	system string
	user   string
}

// buildDecisionPrompt assembles the character's context pack. Everything
// here comes from the character's own memory; the global event log is never
// exposed, so a character only knows what it witnessed.
func buildDecisionPrompt(p story.CharacterProfile, st *story.State, allowed []story.ActionKind, catalog *actions.Catalog, forceAct bool) decisionPrompt {
	mem := st.Memories[p.Name]

	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s in the unfolding scene %q.\n", p.Name, st.Title)
	fmt.Fprintf(&sb, "Scene: %s\n\n", st.Description)
	fmt.Fprintf(&sb, "Who you are: %s\n", p.Description)
	if len(p.Goals) > 0 {
		fmt.Fprintf(&sb, "Your goals: %s\n", strings.Join(p.Goals, "; "))
	}

	if mem != nil {
		fmt.Fprintf(&sb, "Your current emotion: %s\n", mem.EmotionalState)
		if len(mem.Inventory) > 0 {
			fmt.Fprintf(&sb, "You carry: %s\n", strings.Join(mem.Inventory, ", "))
		}
		if len(mem.Perceptions) > 0 {
			sb.WriteString("What you think of the others:\n")
			for _, name := range st.CharacterNames() {
				if view, ok := mem.Perceptions[name]; ok && name != p.Name {
					fmt.Fprintf(&sb, "  - %s: %s\n", name, view)
				}
			}
		}

		sb.WriteString("\nWhat you have witnessed recently:\n")
		if len(mem.RecentEvents) == 0 {
			sb.WriteString("  - Nothing yet.\n")
		}
		for _, line := range mem.RecentEvents {
			fmt.Fprintf(&sb, "  - %s\n", line)
		}
	}

	phase := story.Phase(st.Turn, st.MaxTurns)
	fmt.Fprintf(&sb, "\nTurn %d of %d. Phase: %s.\n", st.Turn+1, st.MaxTurns, phase)
	sb.WriteString(phaseHint(phase, p.Name) + "\n")

	if warning := repetitionWarning(p.Name, mem); warning != "" {
		sb.WriteString(warning + "\n")
	}

	sb.WriteString("\nActions available to you right now (any other action will be rejected):\n")
	sb.WriteString(catalog.Describe(allowed))

	if forceAct {
		sb.WriteString("\nThe scene has stalled. You MUST choose mode ACT this turn, picking one of the available actions.\n")
	}

	sb.WriteString(`
Decide your turn. Return ONLY valid JSON:
{
  "observation": "what you notice, 1 sentence",
  "reasoning": "your private thought, 1 sentence",
  "emotion": "one word",
  "mode": "TALK or ACT",
  "speech": "your dialogue, 2-3 sentences (null if pure action)",
  "action": {"kind": "one of the available actions", "narration": "third-person description of what you do"} or null
}`)

	system := "You roleplay a single character in a turn-based dramatic scene. Stay strictly in character, react only to what your character has witnessed, and respond with exactly one JSON object."

	return decisionPrompt{system: system, user: sb.String()}
}

func phaseHint(phase, name string) string {
	switch phase {
	case "setup":
		return name + ", discover the situation. React with first impressions."
	case "conflict":
		return name + ", tensions are high. Confront, accuse, defend, bargain — make your move."
	case "climax":
		return name + ", breaking point. Take decisive action or say the words that change everything."
	case "resolution":
		return name + ", the story is resolving. Deliver final words. Accept, resist, or walk away."
	default:
		return name + ", continue naturally."
	}
}

// repetitionWarning checks the character's own recent lines for heavy word
// overlap and, if found, tells the model to change course.
func repetitionWarning(name string, mem *story.CharacterMemory) string {
	if mem == nil {
		return ""
	}

	prefix := fmt.Sprintf("%s said:", name)
	var ownLines []string
	for _, line := range mem.RecentEvents {
		if idx := strings.Index(line, prefix); idx >= 0 {
			ownLines = append(ownLines, line[idx+len(prefix):])
		}
	}
	if len(ownLines) < 2 {
		return ""
	}

	last := wordSet(ownLines[len(ownLines)-1])
	prev := wordSet(ownLines[len(ownLines)-2])
	if len(last) == 0 || len(prev) == 0 {
		return ""
	}

	inter := 0
	union := len(prev)
	for w := range last {
		if prev[w] {
			inter++
		} else {
			union++
		}
	}
	if float64(inter)/float64(union) > 0.5 {
		return "!! Your last lines were repetitive. Say something COMPLETELY DIFFERENT. !!"
	}
	return ""
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}
