package director

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"storyloop/internal/story"
	"storyloop/internal/story/actions"
)

func buildSelectPrompt(st *story.State, eligible []string, catalog *actions.Catalog, pacing Pacing) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "SCENE: %q — %s\n\n", st.Title, st.Description)

	sb.WriteString("CAST:\n")
	for _, p := range st.Profiles {
		status := ""
		if mem := st.Memories[p.Name]; mem != nil && !mem.Present {
			status = " (has left the scene)"
		}
		fmt.Fprintf(&sb, "  - %s: %s%s\n", p.Name, p.Description, status)
	}

	recent := st.DialogueEvents()
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	sb.WriteString("\nRECENT TURNS:\n")
	if len(recent) == 0 {
		sb.WriteString("  (The scene has not started yet.)\n")
	}
	for _, ev := range recent {
		if ev.Kind == story.EventAction {
			fmt.Fprintf(&sb, "  [%d] %s does: %s\n", ev.Turn, ev.Speaker, preview(ev.Content))
		} else {
			fmt.Fprintf(&sb, "  [%d] %s: %s\n", ev.Turn, ev.Speaker, preview(ev.Content))
		}
	}

	fmt.Fprintf(&sb, "\nTurn %d of %d. Distinct actions so far: %d (minimum %d).\n",
		st.Turn+1, st.MaxTurns, st.DistinctActionCount(), st.MinActions)

	if beat := plannedBeat(st); beat != nil {
		fmt.Fprintf(&sb, "Planned beat: %s", beat.Phase)
		if beat.Beat != "" {
			fmt.Fprintf(&sb, " — %s", beat.Beat)
		}
		if beat.SuggestedSpeaker != "" {
			fmt.Fprintf(&sb, " (suggested speaker: %s)", beat.SuggestedSpeaker)
		}
		sb.WriteString("\n")
	}

	if pacing.ForceAct {
		sb.WriteString("This turn MUST contain a physical action, not just dialogue.\n")
		if pacing.Suggested != "" {
			fmt.Fprintf(&sb, "Suggested action: %s\n", pacing.Suggested)
		}
	}
	if pacing.Endgame {
		sb.WriteString("The story is in its final stretch; steer toward resolution.\n")
	}

	fmt.Fprintf(&sb, "\nEligible speakers (you MUST pick from this list): %s\n", strings.Join(eligible, ", "))

	sb.WriteString(`
Pick who acts next and optionally add 1-2 sentences of cinematic narration.
Return ONLY valid JSON:
{"next_speaker": "name", "narration": "scene narration or empty string"}`)

	return sb.String()
}

func buildConclusionPrompt(st *story.State) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "SCENE: %q — %s\n", st.Title, st.Description)
	fmt.Fprintf(&sb, "Turn %d of %d. Distinct actions: %d.\n\n", st.Turn, st.MaxTurns, st.DistinctActionCount())

	sb.WriteString("WORLD STATE:\n")
	for k, v := range st.World {
		fmt.Fprintf(&sb, "  - %s: %v\n", k, v)
	}

	recent := st.DialogueEvents()
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}
	sb.WriteString("\nRECENT TURNS:\n")
	for _, ev := range recent {
		fmt.Fprintf(&sb, "  [%d] %s: %s\n", ev.Turn, ev.Speaker, preview(ev.Content))
	}

	sb.WriteString(`
Does this narrative feel genuinely concluded — conflict resolved or
definitively abandoned, nothing essential left hanging?
Return ONLY valid JSON:
{"should_end": true or false, "conclusion_narration": "1-2 sentences if ending, else empty"}`)

	return sb.String()
}

func buildArcPrompt(st *story.State, catalog *actions.Catalog) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FILM BRIEF:\nTITLE: %q\nSCENARIO: %s\n\nCAST:\n", st.Title, st.Description)
	for _, p := range st.Profiles {
		fmt.Fprintf(&sb, "  - %s: %s\n", p.Name, p.Description)
	}

	fmt.Fprintf(&sb, "\nTOTAL TURNS: %d\nMINIMUM DISTINCT ACTIONS: %d\n", st.MaxTurns, st.MinActions)
	sb.WriteString("\nAVAILABLE ACTIONS:\n")
	sb.WriteString(catalog.Describe(catalog.Kinds()))

	fmt.Fprintf(&sb, `
Plan the complete dramatic arc for this %d-turn scene: setup, escalating
conflict, climax, resolution. The story must conclude within the turn
budget, every character should get turns, and at least %d different
actions should occur.
Return ONLY valid JSON:
{"arc_plan": [{"turn": 0, "phase": "setup", "beat": "what happens", "suggested_speaker": "name or empty", "suggested_action_kinds": []}]}`,
		st.MaxTurns, st.MinActions)

	return sb.String()
}

func buildConcludePrompt(st *story.State) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "SCENE: %q — %s\n\n", st.Title, st.Description)

	recent := st.DialogueEvents()
	if len(recent) > 8 {
		recent = recent[len(recent)-8:]
	}
	sb.WriteString("FINAL TURNS:\n")
	for _, ev := range recent {
		fmt.Fprintf(&sb, "  [%d] %s: %s\n", ev.Turn, ev.Speaker, preview(ev.Content))
	}

	sb.WriteString("\nWORLD STATE:\n")
	for k, v := range st.World {
		fmt.Fprintf(&sb, "  - %s: %v\n", k, v)
	}

	sb.WriteString("\nWrite the closing narration for this scene: 2-3 cinematic sentences that bring it to rest. Return only the narration text.")

	return sb.String()
}

func plannedBeat(st *story.State) *story.PlannedBeat {
	for i := range st.ArcPlan {
		if st.ArcPlan[i].Turn == st.Turn {
			return &st.ArcPlan[i]
		}
	}
	return nil
}

func preview(s string) string {
	const n = 130
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
