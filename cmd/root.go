// Package cmd implements the linksync command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/linksync/internal/bootstrap"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:           "linksync",
		Short:         "Cross-site content index and internal link lifecycle",
		Long:          `linksync exchanges content inventories between a shop and a blog, imports link suggestions and injects approved links into page bodies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCommand(),
		newRunCommand(),
		newImportCommand(),
		newStatsCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "linksync version %s\n", Version)
			},
		},
	)
}

// openApp boots an App for the running command. The caller closes it.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	if Debug {
		// Environment overrides win over the YAML file.
		_ = os.Setenv("APP_DEBUG", "true")
		_ = os.Setenv("LOG_LEVEL", "debug")
	}
	app, err := bootstrap.New(ctx, cfgFile)
	if err != nil {
		return nil, err
	}
	if app.Config.Version == "" || app.Config.Version == "dev" {
		app.Config.Version = Version
	}
	return app, nil
}
