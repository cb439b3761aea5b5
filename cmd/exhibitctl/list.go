package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/exhibitid"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

type listEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Descriptors int    `json:"descriptors"`
}

func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored exhibits",
		Args:    cobra.NoArgs,
		RunE:    runList,
	}

	cmd.Flags().Int("page-size", store.DefaultPageSize, "Records fetched per page")
	cmd.Flags().Int("limit", 0, "Stop after this many exhibits (0 = all)")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	pageSize, _ := cmd.Flags().GetInt("page-size")
	limit, _ := cmd.Flags().GetInt("limit")

	return withEngine(cmd, func(ctx context.Context, eng *exhibitid.Engine) error {
		var (
			entries []listEntry
			cursor  model.Cursor
		)
		for {
			chunk, err := eng.ListChunk(ctx, cursor, store.WithPageSize(pageSize), store.WithoutImages())
			if err != nil {
				return err
			}
			for _, rec := range chunk.Records {
				entries = append(entries, listEntry{
					ID:          rec.ID.String(),
					Title:       rec.Title,
					Description: rec.Description,
					Descriptors: len(rec.Descriptors),
				})
			}
			if chunk.Last || (limit > 0 && len(entries) >= limit) {
				break
			}
			cursor = chunk.Next
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		if wantJSON(cmd) {
			return printJSON(cmd, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No exhibits")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s  %d descriptors\n", e.ID, e.Title, e.Descriptors)
		}
		return nil
	})
}
