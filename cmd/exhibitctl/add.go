package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/exhibitid"
	"github.com/hupe1980/exhibitid/model"
)

func NewAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an exhibit",
		Long: `Add an exhibit from one or more descriptor files. Each file holds the
raw 32-byte descriptors of one training photo.`,
		Args: cobra.ExactArgs(1),
		RunE: runAdd,
	}

	cmd.Flags().StringP("description", "d", "", "Exhibit description")
	cmd.Flags().String("image", "", "Image file stored with the exhibit")
	cmd.Flags().StringArray("descriptors", nil, "Descriptor file of a training photo (repeatable)")
	_ = cmd.MarkFlagRequired("descriptors")
	return cmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	description, _ := cmd.Flags().GetString("description")
	imagePath, _ := cmd.Flags().GetString("image")
	files, _ := cmd.Flags().GetStringArray("descriptors")

	req := exhibitid.AddRequest{
		Title:       args[0],
		Description: description,
	}

	if imagePath != "" {
		img, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		req.Image = img
	}

	for _, f := range files {
		descs, err := readDescriptors(f)
		if err != nil {
			return err
		}
		req.Descriptors = append(req.Descriptors, descs...)
	}

	return withEngine(cmd, func(ctx context.Context, eng *exhibitid.Engine) error {
		id, err := eng.AddExhibit(ctx, req)
		if err != nil {
			return fmt.Errorf("add exhibit: %w", err)
		}
		if wantJSON(cmd) {
			return printJSON(cmd, map[string]string{"id": id.String()})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", id)
		return nil
	})
}

func readDescriptors(path string) ([]model.Descriptor, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}
	descs, err := model.DecodeDescriptors(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return descs, nil
}
