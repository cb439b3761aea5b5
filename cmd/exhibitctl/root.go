package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/exhibitid"
)

const defaultConfigPath = "exhibitctl.yaml"

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "exhibitctl",
		Short:         "Identify museum exhibits from photographs",
		Long:          `Manage an exhibit store and identify exhibits from binary feature descriptors.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)

	rootCmd.AddCommand(
		NewConfigCmd(),
		NewStatsCmd(),
		NewListCmd(),
		NewGetCmd(),
		NewAddCmd(),
		NewDelCmd(),
		NewIdentifyCmd(),
	)

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to the YAML config file")
	cmd.PersistentFlags().String("backend", "", "Override the store backend")
	cmd.PersistentFlags().String("dsn", "", "Override the store DSN")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

// configFromFlags loads the config file and applies flag overrides.
func configFromFlags(cmd *cobra.Command) (*Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Store.Backend = backend
	}
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		cfg.Store.DSN = dsn
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *Config) (*exhibitid.Logger, error) {
	var level slog.Level
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	return exhibitid.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}

// withEngine opens the configured engine, runs fn and closes the engine.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *exhibitid.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	opts := append(cfg.EngineOptions(), exhibitid.WithLogger(logger))
	eng, err := exhibitid.Open(ctx, st, opts...)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer eng.Close()

	return fn(ctx, eng)
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
