package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a suggestion batch",
		Long:  "Import a JSON suggestion batch from a file, or from stdin when the argument is \"-\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Services.Importer.Import(cmd.Context(), payload)
			if err != nil {
				return err
			}
			renderImportResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func readPayload(stdin io.Reader, arg string) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", arg, err)
	}
	return data, nil
}
