package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/linksync/internal/jobs"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one job now",
		Long:      "Run one job synchronously. Jobs: " + strings.Join(jobs.Names, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.Names,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			state, err := app.Services.Dispatcher.RunNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err = renderJobState(cmd.OutOrStdout(), state); err != nil {
				return err
			}
			if state.Outcome != jobs.OutcomeSuccess {
				return fmt.Errorf("job %s %s", state.Name, state.Outcome)
			}
			return nil
		},
	}
}
