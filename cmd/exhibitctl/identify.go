package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/exhibitid"
)

type identifyResult struct {
	Found      bool   `json:"found"`
	ID         string `json:"id,omitempty"`
	Title      string `json:"title,omitempty"`
	Votes      int    `json:"votes"`
	Candidates int    `json:"candidates"`
	Generation uint64 `json:"generation"`
}

func NewIdentifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identify <descriptor-file>",
		Short: "Identify the exhibit shown in a photo",
		Long:  `Identify the exhibit whose descriptors best match the raw 32-byte descriptors of a query photo.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := readDescriptors(args[0])
			if err != nil {
				return err
			}

			return withEngine(cmd, func(ctx context.Context, eng *exhibitid.Engine) error {
				rec, m, err := eng.IdentifyRecord(ctx, descs)
				if err != nil {
					return fmt.Errorf("identify: %w", err)
				}

				res := identifyResult{
					Found:      m.Found,
					Votes:      m.Votes,
					Candidates: m.Candidates,
					Generation: m.Generation,
				}
				if m.Found {
					res.ID = m.ID.String()
					res.Title = rec.Title
				}

				if wantJSON(cmd) {
					return printJSON(cmd, res)
				}
				if !res.Found {
					fmt.Fprintln(cmd.OutOrStdout(), "Not found")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  (%d votes)\n", res.ID, res.Title, res.Votes)
				return nil
			})
		},
	}
}
