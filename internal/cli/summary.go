package cli

import (
	"fmt"
	"strconv"

	"github.com/kirillkom/comment-labeler/internal/bootstrap"
	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSummaryCommand() *cobra.Command {
	var (
		input   string
		columns []string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count labels per column of a labeled table",
		Example: `  labeler summary --input Analitica.csv --column "Apoyo Daniel" --column "Apoyo Carol"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summaries, err := bootstrap.NewSummarizer().Summarize(cmd.Context(), input, columns)
			if err != nil {
				return err
			}
			for _, summary := range summaries {
				rendered, err := renderColumnSummary(summary)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rendered)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "labeled CSV or XLSX file")
	cmd.Flags().StringArrayVar(&columns, "column", nil, "label column to summarize (repeatable)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func renderColumnSummary(summary domain.ColumnSummary) (string, error) {
	data := pterm.TableData{{summary.Column, "Count", "%"}}
	for _, c := range summary.Counts {
		data = append(data, []string{c.Label, strconv.Itoa(c.Count), strconv.FormatFloat(c.Percent, 'f', 1, 64)})
	}
	total := "0.0"
	if summary.Total > 0 {
		total = "100.0"
	}
	data = append(data, []string{"Total", strconv.Itoa(summary.Total), total})
	rendered, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render summary for %s: %w", summary.Column, err)
	}
	return rendered, nil
}
