package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

type statsReport struct {
	Content map[string]int
	Links   map[domain.LinkStatus]int
	Health  domain.HealthStats
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show content, link and link-health counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			repos := app.Services.Repos

			var report statsReport
			if report.Content, err = repos.Content.CountByOrigin(ctx); err != nil {
				return err
			}
			if report.Links, err = repos.Links.CountByStatus(ctx); err != nil {
				return err
			}
			if report.Health, err = repos.Health.Stats(ctx); err != nil {
				return err
			}

			renderStats(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
