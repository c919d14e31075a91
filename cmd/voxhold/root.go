package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/voxhold/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "voxhold",
	Short: "Hold-to-talk dictation with per-hotkey whisper models",
	Long: `voxhold records while a hotkey is held, transcribes the recording with the
model bound to that hotkey, applies alias substitutions and types the result
into the focused application.

Several profiles can be active at once, each with its own hotkey and model.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultConfigPath()+")")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(devicesCmd)
}

// loadConfig loads the config from --config, or falls back to the default
// config path, or uses built-in defaults. The result is validated.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
		if _, err := os.Stat(path); err != nil {
			cfg := config.Default()
			return cfg, "", cfg.Validate()
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	}))
}
