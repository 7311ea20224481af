package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyloop/internal/telemetry"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [story-id]",
		Short: "Replay a recorded story from the telemetry database",
		Long:  "Without arguments, lists recorded story IDs. With a story ID, prints\nits events in order, with the world state as it stood after each turn.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer cleanup()

			sink, ok := a.sink.(*telemetry.SQLiteSink)
			if !ok {
				return fmt.Errorf("telemetry database %s is not available", a.cfg.TelemetryDB)
			}

			if len(args) == 0 {
				return listStories(sink)
			}
			return replayStory(sink, args[0])
		},
	}
	return cmd
}

func listStories(sink *telemetry.SQLiteSink) error {
	ids, err := sink.ListStories()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No recorded stories yet.")
		return nil
	}
	for _, id := range ids {
		if rating, notes, ok, err := sink.StoryRating(id); err == nil && ok {
			if notes != "" {
				fmt.Printf("%s  %d/5  %s\n", id, rating, notes)
			} else {
				fmt.Printf("%s  %d/5\n", id, rating)
			}
			continue
		}
		fmt.Println(id)
	}
	return nil
}

func replayStory(sink *telemetry.SQLiteSink, storyID string) error {
	snaps, err := sink.ReadStory(storyID)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return fmt.Errorf("no events recorded for story %s", storyID)
	}

	for _, snap := range snaps {
		printEvent(snap.Event)
	}

	last := snaps[len(snaps)-1]
	fmt.Println()
	fmt.Println(summaryStyle.Render(fmt.Sprintf("Final world state after turn %d:", last.Turn)))
	for k, v := range last.World {
		fmt.Printf("  %s = %v\n", k, v)
	}
	return nil
}
