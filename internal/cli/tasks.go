package cli

import (
	"fmt"
	"strings"

	"github.com/kirillkom/comment-labeler/internal/tasks"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newTasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List built-in classification tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := tasks.Builtin()
			if err != nil {
				return err
			}
			data := pterm.TableData{{"Task", "Mode", "Column", "Labels", "Fallback"}}
			for _, task := range all {
				data = append(data, []string{
					task.Name,
					string(task.Mode),
					task.Column,
					strings.Join(task.Labels, " | "),
					task.Fallback,
				})
			}
			rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return fmt.Errorf("render tasks: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
}
