package main

import (
	"fmt"
	"os"

	"github.com/RMahshie/powersweep/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Configure zerolog for structured logging until flags are parsed
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "powersweep",
		Short:        "Step a radio through transmit power levels and measure each one",
		SilenceUsage: true,
	}
	config.AddLogFlags(root.PersistentFlags())

	root.AddCommand(
		newSweepCmd(),
		newScopeCmd(),
		newServeCmd(),
		newPortsCmd(),
	)
	return root
}

// loadConfig reads configuration for cmd, applies the logging settings and
// validates what mode needs
func loadConfig(cmd *cobra.Command, mode config.Mode) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch cfg.Format {
	case "json":
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	case "console", "":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return nil
}
