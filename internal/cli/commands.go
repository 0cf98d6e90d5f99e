package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/circulation/reminders"
	"github.com/AntonStoeckl/library-circulation-go/internal/loadgen"
)

// runWithApp opens the app, runs fn, reports metrics, and closes the app.
func runWithApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app, out *formatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	a, err := openApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	err = fn(ctx, a, out)
	a.reportMetrics(ctx, out)

	return err
}

func parseItemID(arg string) (int64, error) {
	itemID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "invalid item id "+strconv.Quote(arg), err)
	}

	return itemID, nil
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the items and borrows tables if they don't exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				if err := a.store.Migrate(ctx); err != nil {
					return WrapExitError(ExitCommandError, "migration failed", err)
				}

				return out.message("schema is up to date")
			})
		},
	}
}

// NewBorrowCommand creates the borrow command.
func NewBorrowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow <patron> <item-id>",
		Short: "Lend an item to a patron",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseItemID(args[1])
			if err != nil {
				return err
			}

			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				loan, err := a.workflow.BorrowItem(ctx, args[0], itemID)
				if err != nil {
					return operationFailed("borrow", err)
				}

				return out.loan(loan)
			})
		},
	}
}

// NewReturnCommand creates the return command.
func NewReturnCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "return <patron> <item-id>",
		Short: "Take an item back and assess the fine for a late return",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseItemID(args[1])
			if err != nil {
				return err
			}

			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				result, err := a.workflow.ReturnItem(ctx, args[0], itemID)
				if err != nil {
					return operationFailed("return", err)
				}

				return out.returned(result)
			})
		},
	}
}

// NewPayCommand creates the pay command.
func NewPayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <patron> <amount>",
		Short: "Pay towards a patron's fines, oldest fine first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid amount "+strconv.Quote(args[1]), err)
			}

			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				payment, err := a.workflow.PayFine(ctx, args[0], amount)
				if err != nil {
					return operationFailed("payment", err)
				}

				return out.payment(payment)
			})
		},
	}
}

// NewFineCommand creates the fine command.
func NewFineCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fine <patron>",
		Short: "Show a patron's outstanding fines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				total, err := a.workflow.TotalFine(ctx, args[0])
				if err != nil {
					return operationFailed("fine lookup", err)
				}

				return out.fine(args[0], total)
			})
		},
	}
}

// NewOverdueCommand creates the overdue command.
func NewOverdueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List unreturned loans past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				records, err := a.workflow.OverdueRecords(ctx)
				if err != nil {
					return operationFailed("overdue listing", err)
				}

				return out.overdue(records)
			})
		},
	}
}

// NewRemindersCommand creates the reminders command.
func NewRemindersCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Compose fine reminder notices for all patrons with unpaid fines",
		Long:  "Compose fine reminder notices for all patrons with unpaid fines. The notices are printed, not sent.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				notices, err := reminders.Compose(ctx, a.workflow,
					reminders.WithLibraryName(a.cfg.Reminders.LibraryName),
					reminders.WithSignature(a.cfg.Reminders.Signature),
				)
				if err != nil {
					return operationFailed("reminders", err)
				}

				return out.notices(notices)
			})
		},
	}
}

// LoadOptions holds the flags of the load command.
type LoadOptions struct {
	ItemIDs  []int64
	Patrons  int
	Workers  int
	Rate     int
	Requests int
	Duration time.Duration
	Seed     uint64
}

// NewLoadCommand creates the load command.
func NewLoadCommand(opts *RootOptions) *cobra.Command {
	loadOpts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Generate a random mix of borrows, returns and payments against existing items",
		Long: `Generate a random mix of borrows, returns and payments against existing items.

The run ends after --requests requests or after --duration, whichever comes first.
Without both, it runs until interrupted. Rejections by business rules are expected and counted separately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app, out *formatter) error {
				generator, err := loadgen.New(a.workflow, loadgen.Config{
					ItemIDs:  loadOpts.ItemIDs,
					Patrons:  loadOpts.Patrons,
					Workers:  loadOpts.Workers,
					Rate:     loadOpts.Rate,
					Requests: loadOpts.Requests,
					Seed:     loadOpts.Seed,
				}, loadgen.WithContextualLogger(a.logger))
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid load options", err)
				}

				if loadOpts.Duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, loadOpts.Duration)
					defer cancel()
				}

				stats, err := generator.Run(ctx)
				if err != nil && (loadOpts.Duration == 0 || ctx.Err() == nil) {
					return WrapExitError(ExitCommandError, "load run aborted", err)
				}

				return out.loadStats(stats)
			})
		},
	}

	cmd.Flags().Int64SliceVar(&loadOpts.ItemIDs, "items", nil, "item ids to borrow and return (required)")
	cmd.Flags().IntVar(&loadOpts.Patrons, "patrons", 0, "number of generated patrons (default 20)")
	cmd.Flags().IntVar(&loadOpts.Workers, "workers", 0, "concurrent requests (default 4)")
	cmd.Flags().IntVar(&loadOpts.Rate, "rate", 0, "requests per second, 0 for unthrottled")
	cmd.Flags().IntVar(&loadOpts.Requests, "requests", 0, "stop after this many requests")
	cmd.Flags().DurationVar(&loadOpts.Duration, "duration", 0, "stop after this time")
	cmd.Flags().Uint64Var(&loadOpts.Seed, "seed", 1, "seed of the request sequence")
	_ = cmd.MarkFlagRequired("items")

	return cmd
}
