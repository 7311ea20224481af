package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"storyloop/internal/story"
)

type eventMsg struct {
	ev story.Event
}

type storyFinishedMsg struct{}

type animationTickMsg struct{}

func waitForEvent(events <-chan story.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return storyFinishedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func animationTimer() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return animationTickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case animationTickMsg:
		if m.waiting && !m.finished {
			m.animationFrame++
			return m, animationTimer()
		}
		return m, nil

	case eventMsg:
		m.lines = append(m.lines, line{
			kind:    msg.ev.Kind,
			speaker: msg.ev.Speaker,
			text:    msg.ev.Content,
		})
		return m, waitForEvent(m.events)

	case storyFinishedMsg:
		m.finished = true
		m.waiting = false
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil
	}

	return m, nil
}
