package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/exhibitid"
	"github.com/hupe1980/exhibitid/model"
)

func NewDelCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "del <id>",
		Aliases: []string{"delete", "rm"},
		Short:   "Delete an exhibit",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *exhibitid.Engine) error {
				if err := eng.DeleteExhibit(ctx, id); err != nil {
					return fmt.Errorf("delete exhibit: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				return nil
			})
		},
	}
}
