// Package cmd assembles the command-line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweepies/imgur-sans-bullshit/cmd/resolve"
	"github.com/sweepies/imgur-sans-bullshit/cmd/serve"
	"github.com/sweepies/imgur-sans-bullshit/cmd/sweep"
	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imgur-sans-bullshit",
		Short: "Self-hosted mirror for third-party image hosts",
	}

	// Defer initialization until a subcommand actually runs, so that
	// help and completion work without a valid configuration.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		return initialize(settings)
	}

	rootCmd.AddCommand(serve.Command(settings))
	rootCmd.AddCommand(sweep.Command(settings))
	rootCmd.AddCommand(resolve.Command(settings))

	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", false, "enable debug logging")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		logging.Error("error binding flags", "error", err)
	}

	return rootCmd
}

// initialize applies the configured log level before any subcommand runs.
func initialize(settings *conf.Settings) error {
	level := parseLogLevel(settings.Main.LogLevel)
	if settings.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	logging.SetLevel(level)
	return nil
}

func parseLogLevel(name string) slog.Level {
	switch name {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
