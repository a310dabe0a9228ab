package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"estatecore/internal/core"
	"estatecore/pkg/domain"
)

// run opens a runtime for the duration of fn and joins close errors into
// the result.
func (a *cliApp) run(cmd *cobra.Command, fn func(*runtime) error) (err error) {
	rt, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()
	return fn(rt)
}

func newDispatchCommand(app *cliApp) *cobra.Command {
	var txnID string
	cmd := &cobra.Command{
		Use:   "dispatch <service-code> <payload-file|->",
		Short: "Run a business transaction through the listeners of a service code",
		Long: `Reads a JSON or YAML payload and dispatches it. The transaction either
commits as a whole or is recorded as failed with nothing applied. Reusing the
id of a failed transaction retries it; reusing a completed one is a no-op.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			code := core.ServiceCode(args[0])
			return app.run(cmd, func(rt *runtime) error {
				res, err := rt.svc.Dispatch(cmd.Context(), code, core.BusinessTransaction{ID: txnID, Payload: payload})
				if err != nil {
					if res.TxnID != "" {
						return fmt.Errorf("dispatch %s (txn %s): %w", code, res.TxnID, err)
					}
					return fmt.Errorf("dispatch %s: %w", code, err)
				}
				return printDispatch(cmd.OutOrStdout(), rt.cfg.Output, res)
			})
		},
	}
	cmd.Flags().StringVar(&txnID, "txn-id", "", "transaction id (generated when empty)")
	return cmd
}

func newRecoverCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <txn-id>",
		Short: "Reverse a committed transaction using its staged records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(rt *runtime) error {
				res, err := rt.svc.Recover(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("recover %s: %w", args[0], err)
				}
				if rt.cfg.Output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"txn_id": res.TxnID, "status": res.Status})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "txn %s %s\n", res.TxnID, res.Status)
				return err
			})
		},
	}
}

func newShowCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "show <txn-id>",
		Short: "Show a transaction with its listener ledger and staged records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(rt *runtime) error {
				txn, ok := rt.svc.Transaction(args[0])
				if !ok {
					return domain.NotFoundError{Kind: domain.KindTransaction, ID: args[0]}
				}
				return printTransaction(cmd.OutOrStdout(), rt.cfg.Output, txn, rt.svc.Staged(txn.ID))
			})
		},
	}
}

func newLiveCommand(app *cliApp) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "live [entity] [id]",
		Short: "List live rows, optionally of one entity or one row",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(rt *runtime) error {
				var entity core.EntityType
				if len(args) > 0 {
					entity = core.EntityType(args[0])
				}
				if len(args) == 2 {
					row, ok := rt.svc.Live(entity, args[1])
					if !ok {
						return domain.NotFoundError{Kind: domain.KindLive, ID: domain.LiveKey(entity, args[1])}
					}
					return printLive(cmd.OutOrStdout(), rt.cfg.Output, []core.LiveEntity{row})
				}
				rows := rt.svc.LiveRows(entity)
				if !all {
					kept := rows[:0]
					for _, row := range rows {
						if row.Status == core.StatusValid {
							kept = append(kept, row)
						}
					}
					rows = kept
				}
				return printLive(cmd.OutOrStdout(), rt.cfg.Output, rows)
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include invalidated rows")
	return cmd
}

func newArchiveCommand(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse the audit archive of completed transactions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list [service-code]",
		Short: "List archived transaction events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(rt *runtime) error {
				if rt.archive == nil {
					return errArchiveDisabled
				}
				var code core.ServiceCode
				if len(args) == 1 {
					code = core.ServiceCode(args[0])
				}
				keys, err := rt.archive.Keys(cmd.Context(), code)
				if err != nil {
					return err
				}
				sort.Strings(keys)
				if rt.cfg.Output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), keys)
				}
				for _, key := range keys {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), key); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <service-code> <txn-id> [status]",
		Short: "Print one archived transaction event (status defaults to committed)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := core.TxnCommitted
			if len(args) == 3 {
				status = core.TxnStatus(args[2])
			}
			return app.run(cmd, func(rt *runtime) error {
				if rt.archive == nil {
					return errArchiveDisabled
				}
				doc, err := rt.archive.Load(cmd.Context(), core.ServiceCode(args[0]), args[1], status)
				if err != nil {
					return err
				}
				if rt.cfg.Output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), doc)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s recorded %s\n", doc.Operation, ago(doc.RecordedAt)); err != nil {
					return err
				}
				return printTransaction(cmd.OutOrStdout(), outputText, doc.Transaction, doc.Staged)
			})
		},
	})
	return cmd
}

var errArchiveDisabled = errors.New("archive is disabled (blob-driver=none)")

func newModulesCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List installed domain modules and their service codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(rt *runtime) error {
				mods := rt.svc.RegisteredModules()
				if rt.cfg.Output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), mods)
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "MODULE\tVERSION\tSERVICE CODE\tORDERS")
				for _, meta := range mods {
					for _, code := range meta.ServiceCodes {
						regs, err := rt.svc.Registry().Resolve(code)
						if err != nil {
							return err
						}
						orders := make([]string, 0, len(regs))
						for _, reg := range regs {
							orders = append(orders, fmt.Sprintf("%d:%s", reg.Order, reg.Listener.Name()))
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", meta.Name, meta.Version, code, joinOrDash(orders))
					}
				}
				return tw.Flush()
			})
		},
	}
}
