package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"storyloop/internal/story"
)

func (m Model) View() string {
	statusHeight := 3
	sceneHeight := m.height - statusHeight
	sceneWidth := m.width

	narrationStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Italic(true)

	speakerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	actionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	conclusionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	statusStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(0, 1).
		Width(m.width - 4)

	scenePanel := lipgloss.NewStyle().
		Width(sceneWidth).
		Height(sceneHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1)

	var sceneContent strings.Builder

	visibleLines := m.lines
	maxLines := sceneHeight - 2
	if maxLines < 1 {
		maxLines = 1
	}
	if len(visibleLines) > maxLines {
		visibleLines = visibleLines[len(visibleLines)-maxLines:]
	}

	contentWidth := sceneWidth - 4

	for i, ln := range visibleLines {
		switch ln.kind {
		case story.EventNarration:
			wrapped := wrapAndIndent(ln.text, contentWidth, " ")
			if m.finished && i == len(visibleLines)-1 {
				sceneContent.WriteString(conclusionStyle.Render(wrapped) + "\n")
			} else {
				sceneContent.WriteString(narrationStyle.Render(wrapped) + "\n")
			}
		case story.EventAction:
			wrapped := wrapAndIndent(ln.speaker+" "+ln.text, contentWidth, " ")
			sceneContent.WriteString(actionStyle.Render(wrapped) + "\n")
		default:
			sceneContent.WriteString(speakerStyle.Render(" "+ln.speaker+":") + "\n")
			sceneContent.WriteString(wrapAndIndent(ln.text, contentWidth, "   ") + "\n")
		}
	}

	status := m.title
	if m.finished {
		status += " — finished. Press 'q' to exit."
	} else {
		status += "  " + getWaitingAnimation(m.animationFrame)
	}

	return scenePanel.Render(sceneContent.String()) + "\n" + statusStyle.Render(status)
}

func wrapAndIndent(text string, width int, indent string) string {
	if len(text) <= width {
		return indent + text
	}

	var result strings.Builder
	words := strings.Fields(text)
	if len(words) == 0 {
		return indent + text
	}

	currentLine := indent + words[0]

	for _, word := range words[1:] {
		if len(currentLine)+1+len(word) <= width {
			currentLine += " " + word
		} else {
			result.WriteString(currentLine + "\n")
			currentLine = indent + word
		}
	}

	result.WriteString(currentLine)
	return result.String()
}

func getWaitingAnimation(frame int) string {
	arc := []string{"◜", "◠", "◝", "◞", "◡", "◟"}
	return arc[frame%len(arc)]
}
