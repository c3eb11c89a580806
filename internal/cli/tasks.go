package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetweaver/internal/pipeline"
)

func tasksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the named tasks and the chains they run",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			tasks := pipeline.Tasks(a.cfg)
			names := pipeline.TaskNames(tasks)

			width := 0
			for _, n := range names {
				if len(n) > width {
					width = len(n)
				}
			}
			for _, n := range names {
				t := tasks[n]
				fmt.Fprintf(out, "%s  %s\n", labelStyle.Render(fmt.Sprintf("%-*s", width, n)), t.Description)
				fmt.Fprintf(out, "%*s  %s\n", width, "", dimStyle.Render(t.Step.String()))
			}
			return nil
		},
	}
}
