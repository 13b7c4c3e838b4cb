package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/windmill-io/windmill/internal/cli/ui"
	"github.com/windmill-io/windmill/internal/metadata"
	"github.com/windmill-io/windmill/internal/store"
)

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.Database.Driver, a.cfg.DatabaseDSN(), store.WithLogger(a.logger))
}

func newExportCommand(opts *options) *cobra.Command {
	var allowPartial bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Store the marshalled catalog as a snapshot",
		Long: `Marshal the catalog and save it to the snapshot database configured
under database (or DATABASE_URL). Nothing is written when the latest
snapshot already holds the same list. The command fails when an operator
cannot be introspected unless --allow-partial is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.operators(allowPartial)
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			snap, created, err := st.Save(cmd.Context(), list)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "Catalog unchanged since snapshot %s\n", snap.ID)
				return nil
			}
			ui.WriteSuccess(cmd.OutOrStdout(),
				fmt.Sprintf("Saved snapshot %s (%d operators)", snap.ID, snap.OperatorCount), opts.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "store the healthy operators when some cannot be introspected")
	return cmd
}

func newSnapshotsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect stored catalog snapshots",
	}
	cmd.AddCommand(newSnapshotsListCommand(opts))
	cmd.AddCommand(newSnapshotsShowCommand(opts))
	cmd.AddCommand(newSnapshotsDeleteCommand(opts))
	return cmd
}

// withStore loads config, opens the store and runs fn.
func withStore(cmd *cobra.Command, opts *options, fn func(*store.Store) error) error {
	a, err := opts.load()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newSnapshotsListCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st *store.Store) error {
				snaps, err := st.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				table := ui.NewTable(cmd.OutOrStdout(), opts.noColor, "ID", "CREATED", "OPERATORS", "CHECKSUM")
				for _, s := range snaps {
					table.AddRow(s.ID, s.CreatedAt.Format(time.RFC3339), strconv.Itoa(s.OperatorCount), s.Checksum[:12])
				}
				table.Render()
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of snapshots (0 for all)")
	return cmd
}

func newSnapshotsShowCommand(opts *options) *cobra.Command {
	var operatorType string

	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a snapshot's operator list as JSON",
		Long: `Print a stored operator list. Without an id the latest snapshot is shown.
With --type only that operator's descriptor is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st *store.Store) error {
				ctx := cmd.Context()

				var (
					snap *store.Snapshot
					err  error
				)
				if len(args) == 1 {
					snap, err = st.Get(ctx, args[0])
				} else {
					snap, err = st.Latest(ctx)
				}
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no such snapshot")
				}
				if err != nil {
					return err
				}

				if operatorType == "" {
					return writeJSON(cmd.OutOrStdout(), snap.Operators)
				}
				dict, err := st.Descriptor(ctx, snap.ID, operatorType)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("operator %q is not in snapshot %s", operatorType, snap.ID)
				}
				if err != nil {
					return err
				}
				if _, err := metadata.FromDict(dict); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), dict)
			})
		},
	}

	cmd.Flags().StringVarP(&operatorType, "type", "t", "", "print only this operator")
	return cmd
}

func newSnapshotsDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st *store.Store) error {
				if err := st.Delete(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("no such snapshot: %s", args[0])
					}
					return err
				}
				ui.WriteSuccess(cmd.OutOrStdout(), "Deleted snapshot "+args[0], opts.noColor)
				return nil
			})
		},
	}
}
