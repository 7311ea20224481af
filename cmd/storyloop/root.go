package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "storyloop",
		Short:        "Turn-based narrative simulation engine",
		Long:         "storyloop improvises multi-character scenes: a director paces the drama,\ncharacters decide from their own partial memories, and a deterministic\naction system keeps the world state honest.",
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newRateCmd())
	return root
}
