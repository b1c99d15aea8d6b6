package main

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/c360/semflow/config"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPaths []string
	EnvFile     string
	LogLevel    string
	LogFormat   string
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "text"}
)

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Flow runtime with editor and automation bridge endpoints",
		Long: `semflow deploys flow documents, routes messages between their nodes and
serves editors over a JSON-RPC websocket. Configuration comes from the
optional --config layers (JSON or YAML, later layers win) and SEMFLOW_*
environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.LogLevel != "" && !slices.Contains(validLevels, opts.LogLevel) {
				return fmt.Errorf("invalid log level %q: must be one of %v", opts.LogLevel, validLevels)
			}
			if opts.LogFormat != "" && !slices.Contains(validFormats, opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, validFormats)
			}
			return loadEnvFile(opts.EnvFile)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringSliceVarP(&opts.ConfigPaths, "config", "c", nil, "configuration file, repeatable (JSON or YAML)")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before configuration, ignored when missing")
	flags.StringVar(&opts.LogLevel, "log-level", "", "override log.level: debug, info, warn, error")
	flags.StringVar(&opts.LogFormat, "log-format", "", "override log.format: json, text")

	serve := newServeCommand(opts)
	cmd.AddCommand(serve, newValidateCommand(opts), newVersionCommand())
	// Running without a subcommand serves.
	cmd.RunE = serve.RunE
	cmd.Flags().AddFlagSet(serve.Flags())

	return cmd
}

// loadEnvFile applies a dotenv file without overriding variables already
// set in the environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig merges the configured layers and applies flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range opts.ConfigPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build %s)\n", appName, Version, BuildTime)
		},
	}
}
