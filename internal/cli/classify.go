package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kirillkom/comment-labeler/internal/bootstrap"
	"github.com/kirillkom/comment-labeler/internal/config"
	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/tasks"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type classifyFlags struct {
	task     string
	taskFile string
	sleepMS  int
}

func newClassifyCommand(cfg *config.Config) *cobra.Command {
	flags := classifyFlags{sleepMS: int(cfg.SleepBetween / time.Millisecond)}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Label every row of a table with one task",
		Example: `  labeler classify --task apoyo-daniel --input Comentarios.csv --output Analitica.csv
  labeler classify --task topics --input Analitica.csv --output Topics.csv --cache topics_cache.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.SleepBetween = time.Duration(flags.sleepMS) * time.Millisecond
			return runClassify(cmd, *cfg, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.task, "task", "", "built-in task name (see `labeler tasks`)")
	f.StringVar(&flags.taskFile, "task-file", "", "YAML task definition, overrides --task")
	f.StringVar(&cfg.InputPath, "input", cfg.InputPath, "input CSV or XLSX")
	f.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "output file (default <input>_<task><ext>)")
	f.StringVar(&cfg.IDColumn, "id-column", cfg.IDColumn, "row identifier column, row position when absent")
	f.StringVar(&cfg.CommentColumn, "text-column", cfg.CommentColumn, "comment column, detected when absent")
	f.StringVar(&cfg.LabelColumn, "label-column", cfg.LabelColumn, "output label column (default from task)")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "rows per chat request in batch mode")
	f.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "batches (or rows in single mode) between checkpoints, 0 for the mode default")
	f.IntVar(&flags.sleepMS, "sleep-ms", flags.sleepMS, "minimum pause between remote calls in milliseconds")
	f.StringVar(&cfg.OllamaModel, "model", cfg.OllamaModel, "Ollama model")
	f.StringVar(&cfg.OllamaHost, "host", cfg.OllamaHost, "Ollama base URL")
	f.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "label cache file for the file backend")
	f.StringVar(&cfg.CacheBackend, "cache-backend", cfg.CacheBackend, "label cache backend: file, sqlite, postgres, redis")
	f.BoolVar(&cfg.RetryFallbacks, "retry-fallbacks", cfg.RetryFallbacks, "treat cached fallback labels as misses")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address during the run")
	return cmd
}

func runClassify(cmd *cobra.Command, cfg config.Config, flags classifyFlags) error {
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	cfg.OllamaHost = strings.TrimRight(cfg.OllamaHost, "/")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.task == "" && flags.taskFile == "" {
		return domain.WrapError(domain.ErrConfig, "classify", fmt.Errorf("--task or --task-file is required"))
	}
	task, err := tasks.Resolve(flags.task, flags.taskFile)
	if err != nil {
		return err
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = defaultOutputPath(cfg.InputPath, task.Name)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, task)
	if err != nil {
		return err
	}
	defer app.Close()

	report, runErr := app.ClassifyUC.Run(ctx, domain.RunRequest{
		Task:            task,
		InputPath:       cfg.InputPath,
		OutputPath:      cfg.OutputPath,
		IDColumn:        cfg.IDColumn,
		TextColumn:      cfg.CommentColumn,
		LabelColumn:     cfg.LabelColumn,
		BatchSize:       cfg.BatchSize,
		CheckpointEvery: cfg.CheckpointEvery,
		RetryFallbacks:  cfg.RetryFallbacks,
	})
	if report != nil {
		if err := printReport(cmd.OutOrStdout(), report, cfg.OutputPath); err != nil {
			return err
		}
	}
	return runErr
}

func defaultOutputPath(input, task string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_" + task + ext
}

func printReport(w io.Writer, report *domain.RunReport, output string) error {
	labels := make([]domain.Label, 0, len(report.Counts))
	for label := range report.Counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		ci, cj := report.Counts[labels[i]], report.Counts[labels[j]]
		if ci != cj {
			return ci > cj
		}
		return labels[i] < labels[j]
	})

	data := pterm.TableData{{"Label", "Rows"}}
	for _, label := range labels {
		data = append(data, []string{string(label), strconv.Itoa(report.Counts[label])})
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	fmt.Fprintf(w, "run %s task %s: %d/%d rows labeled in %s\n",
		report.RunID, report.Task, report.Labeled, report.Rows, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "model %d  cache %d  heuristic %d  fallback %d\n",
		report.ModelLabels, report.CacheHits, report.Heuristics, report.Fallbacks)
	fmt.Fprintln(w, rendered)
	fmt.Fprintf(w, "output: %s\n", output)
	return nil
}

