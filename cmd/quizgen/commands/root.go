// Package commands implements the quizgen command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/quizgen/cmd/quizgen/ui"
	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "quizgen",
	Short: "Generate question sets from study documents",
	Long: `quizgen sends study documents to an AI model with one prompt per question
kind, validates the structured reply and renders it into a Word document.
Every task leaves an artifact: malformed replies are dumped for inspection
instead of being lost.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		// Logs always go to stderr; the worker's stdout carries the protocol.
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      cfg.Observability.LogFormat,
			ServiceName: "quizgen",
		})

		ui.Init(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
