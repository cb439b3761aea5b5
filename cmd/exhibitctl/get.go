package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/exhibitid"
	"github.com/hupe1980/exhibitid/model"
)

func NewGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one exhibit",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	cmd.Flags().String("image-out", "", "Write the exhibit image to this file")
	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := model.ParseID(args[0])
	if err != nil {
		return err
	}
	imageOut, _ := cmd.Flags().GetString("image-out")

	return withEngine(cmd, func(ctx context.Context, eng *exhibitid.Engine) error {
		rec, err := eng.GetExhibit(ctx, id)
		if err != nil {
			return err
		}

		if imageOut != "" {
			if err := os.WriteFile(imageOut, rec.Image, 0644); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
		}

		entry := listEntry{
			ID:          rec.ID.String(),
			Title:       rec.Title,
			Description: rec.Description,
			Descriptors: len(rec.Descriptors),
		}
		if wantJSON(cmd) {
			return printJSON(cmd, entry)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:          %s\n", entry.ID)
		fmt.Fprintf(out, "Title:       %s\n", entry.Title)
		fmt.Fprintf(out, "Description: %s\n", entry.Description)
		fmt.Fprintf(out, "Descriptors: %d\n", entry.Descriptors)
		fmt.Fprintf(out, "Image:       %d bytes\n", len(rec.Image))
		return nil
	})
}
