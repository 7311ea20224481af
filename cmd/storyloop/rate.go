package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storyloop/internal/telemetry"
)

func newRateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate <story-id> <rating> [notes...]",
		Short: "Rate a recorded story from 1 to 5",
		Args:  cobra.MinimumNArgs(2),
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

			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid rating %q: %w", args[1], err)
			}
			notes := strings.Join(args[2:], " ")

			if err := sink.RateStory(args[0], rating, notes); err != nil {
				return err
			}
			fmt.Printf("Rated story %s as %d/5\n", args[0], rating)
			return nil
		},
	}
	return cmd
}
