package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/windmill-io/windmill/internal/cli/ui"
	"github.com/windmill-io/windmill/internal/index"
	"github.com/windmill-io/windmill/internal/metadata"
	"github.com/windmill-io/windmill/internal/search"
)

func newOperatorsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operators",
		Aliases: []string{"ops"},
		Short:   "Inspect the operator catalog",
	}
	cmd.AddCommand(newOperatorsListCommand(opts))
	cmd.AddCommand(newOperatorsDescribeCommand(opts))
	cmd.AddCommand(newOperatorsSearchCommand(opts))
	return cmd
}

func loadRegistry(opts *options) (*index.Registry, *app, error) {
	a, err := opts.load()
	if err != nil {
		return nil, nil, err
	}
	list, err := a.operators(true)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	reg, err := index.NewRegistry(list)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return reg, a, nil
}

func newOperatorsListCommand(opts *options) *cobra.Command {
	var (
		asJSON bool
		module string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every operator with its module and parameter count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, a, err := loadRegistry(opts)
			if err != nil {
				return err
			}
			defer a.close()

			var list []map[string]any
			for _, dict := range reg.List() {
				if module != "" && moduleOf(dict) != module {
					continue
				}
				list = append(list, dict)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if list == nil {
					list = []map[string]any{}
				}
				return writeJSON(out, list)
			}

			table := ui.NewTable(out, opts.noColor, "TYPE", "MODULE", "PARAMETERS")
			for _, dict := range list {
				d, err := metadata.FromDict(dict)
				if err != nil {
					return err
				}
				table.AddRow(d.Type, d.ModuleName(), strconv.Itoa(len(d.Parameters)))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the marshalled list as JSON")
	cmd.Flags().StringVarP(&module, "module", "m", "", "only list operators from this module")
	return cmd
}

func newOperatorsDescribeCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "describe <type>",
		Short: "Show the descriptor of one operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, a, err := loadRegistry(opts)
			if err != nil {
				return err
			}
			defer a.close()

			dict, err := reg.Get(args[0])
			if errors.Is(err, index.ErrOperatorNotFound) {
				fmt.Fprint(cmd.ErrOrStderr(),
					ui.OperatorNotFoundError(args[0], ui.FindSimilar(args[0], reg.Types()), opts.noColor))
				return errReported
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, dict)
			}
			d, err := metadata.FromDict(dict)
			if err != nil {
				return err
			}
			describe(out, d, opts.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the descriptor as JSON")
	return cmd
}

func describe(w io.Writer, d *metadata.OperatorDescriptor, noColor bool) {
	header := ui.NewKeyValueTable(w, noColor)
	header.AddRow("Type", d.Type)
	header.AddRow("Module", d.ModuleName())
	header.Render()
	fmt.Fprintln(w)

	table := ui.NewTable(w, noColor, "PARAMETER", "TYPE", "REQUIRED", "DEFAULT", "DESCRIPTION")
	for _, p := range d.Parameters {
		def := ""
		if p.HasDefault {
			def = formatDefault(p.Default)
		}
		table.AddRow(p.ID, p.Type, strconv.FormatBool(p.Required), def, firstLine(p.DescriptionText()))
	}
	table.Render()
}

func newOperatorsSearchCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <words...>",
		Short: "Full-text search over operator names and parameter docs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			reg, a, err := loadRegistry(opts)
			if err != nil {
				return err
			}
			defer a.close()

			idx := search.New()
			defer idx.Close()
			if err := idx.Load(reg.List()); err != nil {
				return err
			}
			results, err := idx.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), opts.noColor, "TYPE", "MODULE", "SCORE")
			for _, r := range results {
				table.AddRow(r.Type, r.Module, strconv.FormatFloat(r.Score, 'f', 3, 64))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", search.DefaultLimit, "maximum number of results")
	return cmd
}
