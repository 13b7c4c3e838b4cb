package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/windmill-io/windmill/internal/cli/ui"
	"github.com/windmill-io/windmill/internal/metadata"
)

func newDumpCommand(opts *options) *cobra.Command {
	var (
		output       string
		compress     bool
		allowPartial bool
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Marshal the operator catalog to JSON",
		Long: `Marshal every operator in the catalog and write the list as JSON.

Without --output the list goes to stdout. With --gzip the file is
compressed; the validate command reads both forms. The command fails when
an operator cannot be introspected unless --allow-partial is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if compress && output == "" {
				return fmt.Errorf("--gzip requires --output")
			}

			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.operators(allowPartial)
			if err != nil {
				return err
			}

			if output == "" {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if err := metadata.WriteToFile(list, output, compress); err != nil {
				return err
			}
			ui.WriteSuccess(cmd.ErrOrStderr(),
				fmt.Sprintf("Wrote %d operators to %s", len(list), output), opts.noColor)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVarP(&compress, "gzip", "z", false, "gzip the output file")
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "write the healthy operators when some cannot be introspected")
	return cmd
}
