package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/voxhold/internal/config"
	"github.com/chaz8081/voxhold/internal/models"
)

var modelsDir string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage whisper model files",
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull <name>...",
	Short: "Download ggml whisper models",
	Long: `Download ggml whisper models from HuggingFace into the models directory.

Names follow the ggml file names without the prefix and extension.

Examples:
  voxhold models pull base.en
  voxhold models pull tiny.en large-v3-turbo`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		d := &models.Downloader{Dir: modelsDir, Progress: out}
		for _, name := range args {
			path, fetched, err := d.Pull(ctx, name)
			if err != nil {
				return err
			}
			if fetched {
				fmt.Fprintf(out, "Downloaded %s\n", path)
			} else {
				fmt.Fprintf(out, "Already present: %s\n", path)
			}
		}
		return nil
	},
}

func init() {
	modelsPullCmd.Flags().StringVarP(&modelsDir, "dir", "d", config.DefaultModelsDir(), "models directory")
	modelsCmd.AddCommand(modelsPullCmd)
	rootCmd.AddCommand(modelsCmd)
}
