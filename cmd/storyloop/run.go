package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"storyloop/cmd/storyloop/ui"
	"storyloop/internal/observability"
	"storyloop/internal/story"
	"storyloop/internal/story/engine"
)

func newRunCmd() *cobra.Command {
	var (
		watch    bool
		traceDir string
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml> [scenario.yaml...]",
		Short: "Run one or more story scenarios",
		Long:  "Runs each scenario file to completion. Multiple scenarios run as\nindependent parallel story instances; nothing is shared between them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, cleanup, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if watch {
				if len(args) > 1 {
					return fmt.Errorf("--watch supports a single scenario")
				}
				return runWatched(ctx, a, args[0], traceDir)
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, path := range args {
				g.Go(func() error {
					return runHeadless(gctx, a, path, traceDir)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "watch the story unfold in a terminal viewer")
	cmd.Flags().StringVar(&traceDir, "trace-dir", "", "directory to write story trace JSON files into")
	return cmd
}

func runHeadless(ctx context.Context, a *app, scenarioPath, traceDir string) error {
	sc, err := story.LoadScenario(scenarioPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", scenarioPath, err)
	}

	storyID := uuid.NewString()
	ctx = observability.WithStoryID(ctx, storyID)
	a.debug.Printf("starting story %s (%s)", storyID, sc.Title)

	orch, err := engine.New(engine.Options{
		StoryID:         storyID,
		Scenario:        sc,
		Completer:       a.completer,
		Rules:           a.pacingRules(),
		Sink:            a.sink,
		Observer:        printEvent,
		Debug:           a.debug,
		DecisionTimeout: a.cfg.DecisionTimeout,
	})
	if err != nil {
		return err
	}

	trace, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("story %s: %w", storyID, err)
	}

	fmt.Printf("\n%s\n", summaryStyle.Render(fmt.Sprintf(
		"%q finished after %d turns: %s", trace.Title, trace.Turns, trace.ConclusionReason)))

	return writeTrace(trace, traceDir)
}

func runWatched(ctx context.Context, a *app, scenarioPath, traceDir string) error {
	sc, err := story.LoadScenario(scenarioPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", scenarioPath, err)
	}

	storyID := uuid.NewString()
	ctx, cancel := context.WithCancel(observability.WithStoryID(ctx, storyID))
	defer cancel()

	events := make(chan story.Event, 64)
	orch, err := engine.New(engine.Options{
		StoryID:         storyID,
		Scenario:        sc,
		Completer:       a.completer,
		Rules:           a.pacingRules(),
		Sink:            a.sink,
		DecisionTimeout: a.cfg.DecisionTimeout,
		// Non-blocking: a closed or lagging viewer must never stall the
		// story loop.
		Observer: func(ev story.Event) {
			select {
			case events <- ev:
			default:
			}
		},
		Debug: a.debug,
	})
	if err != nil {
		return err
	}

	runDone := make(chan runResult, 1)
	go func() {
		trace, err := orch.Run(ctx)
		close(events)
		runDone <- runResult{trace: trace, err: err}
	}()

	p := tea.NewProgram(ui.NewModel(sc.Title, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	cancel()

	res := <-runDone
	if res.err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("story %s: %w", storyID, res.err)
	}
	return writeTrace(res.trace, traceDir)
}

type runResult struct {
	trace *story.Trace
	err   error
}

var (
	narrationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	speakerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	actionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

func printEvent(ev story.Event) {
	switch ev.Kind {
	case story.EventNarration:
		fmt.Println(narrationStyle.Render(ev.Content))
	case story.EventAction:
		fmt.Printf("%s %s\n", speakerStyle.Render(ev.Speaker+":"), actionStyle.Render("["+string(ev.ActionKind)+"] "+ev.Content))
	default:
		fmt.Printf("%s %s\n", speakerStyle.Render(ev.Speaker+":"), ev.Content)
	}
}

func writeTrace(trace *story.Trace, traceDir string) error {
	if traceDir == "" {
		return nil
	}
	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return fmt.Errorf("creating trace dir: %w", err)
	}
	name := strings.ReplaceAll(strings.ToLower(trace.Title), " ", "_")
	path := filepath.Join(traceDir, fmt.Sprintf("%s_%s.json", name, trace.StoryID[:8]))
	return trace.WriteFile(path)
}
