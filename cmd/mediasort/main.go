package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediasort/mediasort/internal/config"
	"github.com/mediasort/mediasort/internal/logger"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mediasort",
	Short: "Organize media files into a structured destination tree",
	Long: `mediasort scans a source directory, classifies photos, videos, music and
documents, deduplicates them by content hash and copies them into a
date- and metadata-based folder layout. Runs are resumable and undoable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetLevel(logLevel)

		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		} else {
			cfg = config.Default()
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		runCmd,
		resumeCmd,
		statusCmd,
		undoCmd,
		sessionsCmd,
		duplicatesCmd,
		watchCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
