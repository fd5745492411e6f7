// Package cli implements the labeler command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/comment-labeler/internal/config"
	"github.com/kirillkom/comment-labeler/internal/observability/logging"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "0.0.0-dev"

// NewRootCommand builds the command tree. Flag defaults come from the
// environment, so it must be called after the environment is final.
func NewRootCommand() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:           "labeler",
		Short:         "Label social-media comments with a local LLM",
		Long:          "labeler reads a table of comments, asks an Ollama model for one label per comment from a closed set, and writes the table back with a label column.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger := logging.NewLogger(cmd.ErrOrStderr(), "labeler", cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(logger)
		},
	}
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")

	root.AddCommand(
		newClassifyCommand(&cfg),
		newTasksCommand(),
		newSummaryCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
