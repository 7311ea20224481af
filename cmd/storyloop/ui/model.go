// Package ui is the terminal viewer for a running story. It renders
// events as they finalize; it never drives the story.
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"storyloop/internal/story"
)

type Model struct {
	title          string
	events         <-chan story.Event
	lines          []line
	width          int
	height         int
	waiting        bool
	finished       bool
	animationFrame int
}

type line struct {
	kind    story.EventKind
	speaker string
	text    string
}

// NewModel builds a viewer reading from events until the channel closes.
func NewModel(title string, events <-chan story.Event) Model {
	return Model{
		title:   title,
		events:  events,
		waiting: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), animationTimer())
}
