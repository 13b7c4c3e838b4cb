package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/windmill-io/windmill/internal/cli/ui"
	"github.com/windmill-io/windmill/internal/docstring"
)

func newDocstringCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docstring",
		Short: "Work with parameter documentation blocks",
	}
	cmd.AddCommand(newDocstringNormalizeCommand(opts))
	return cmd
}

func newDocstringNormalizeCommand(opts *options) *cobra.Command {
	var (
		check bool
		write bool
	)

	cmd := &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Insert missing :type lines into a documentation block",
		Long: `Normalize a documentation block so every documented parameter carries a
type line. Parameters without one get ":type name: str". Existing text is
never changed.

With --check nothing is printed and the command fails when the block is
not already normalized.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if write && args[0] == "-" {
				return fmt.Errorf("--write needs a file")
			}
			raw, err := readDoc(cmd, args[0])
			if err != nil {
				return err
			}
			doc := string(raw)

			block := docstring.Parse(doc)
			if len(block.Diagnostics) > 0 {
				details := make([]string, 0, len(block.Diagnostics))
				for _, d := range block.Diagnostics {
					details = append(details, d.Error())
				}
				fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("Skipped malformed fields", details, opts.noColor))
			}

			normalized := docstring.Normalize(doc)
			switch {
			case check:
				if normalized != doc {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s is not normalized\n", args[0])
					return errReported
				}
				return nil
			case write:
				if normalized == doc {
					return nil
				}
				return os.WriteFile(args[0], []byte(normalized), 0o644)
			default:
				_, err := fmt.Fprint(cmd.OutOrStdout(), normalized)
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "fail when the block is not normalized")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite the file in place")
	cmd.MarkFlagsMutuallyExclusive("check", "write")
	return cmd
}

func readDoc(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
