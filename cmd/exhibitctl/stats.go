package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/exhibitid"
)

func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the index and print engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(_ context.Context, eng *exhibitid.Engine) error {
				s := eng.Stats()
				if wantJSON(cmd) {
					return printJSON(cmd, s)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Generation:  %d\n", s.Generation)
				fmt.Fprintf(out, "Exhibits:    %d\n", s.Exhibits)
				fmt.Fprintf(out, "Descriptors: %d\n", s.Rows)
				fmt.Fprintf(out, "Pool size:   %d\n", s.PoolSize)
				fmt.Fprintf(out, "Memory:      %d bytes\n", s.MemoryUsage)
				fmt.Fprintf(out, "Connection:  %s (%d attempts)\n", s.Connection, s.ConnectAttempts)
				return nil
			})
		},
	}
}
