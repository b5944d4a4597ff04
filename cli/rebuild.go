package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/billbatista/clubledger/ledger"
	"github.com/spf13/cobra"
)

func NewRebuildCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild ledger transactions and balances",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "event <id>",
		Short: "Rebuild the transactions of one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				result, err := a.service.RebuildEvent(ctx, eventID)
				if err != nil {
					return err
				}
				printResult(cmd, result)
				return nil
			})(cmd, args)
		},
	})

	var from string
	balances := &cobra.Command{
		Use:   "balances",
		Short: "Recalculate running balances from a date on",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseFrom(from)
			if err != nil {
				return err
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				updated, err := a.service.RebuildBalances(ctx, start)
				if err != nil {
					return err
				}
				printf(cmd, "updated %d balances\n", updated)
				return nil
			})(cmd, args)
		},
	}
	balances.Flags().StringVar(&from, "from", "", "first date to recalculate (YYYY-MM-DD, default: all)")
	cmd.AddCommand(balances)

	cmd.AddCommand(&cobra.Command{
		Use:   "users",
		Short: "Refresh user balances from the ledger",
		RunE: withApp(opts, func(ctx context.Context, a *app) error {
			return a.service.RebuildUsers(ctx)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Rebuild every event, then all balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				result, err := a.service.RebuildAll(ctx)
				if err != nil {
					return err
				}
				printResult(cmd, result)
				return nil
			})(cmd, args)
		},
	})

	return cmd
}

// parseFrom parses a --from flag. Empty means the beginning of time.
func parseFrom(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func printResult(cmd *cobra.Command, r ledger.RebuildResult) {
	printf(cmd, "inserted %d, updated %d, deleted %d transactions\n", r.Inserted, r.Updated, r.Deleted)
	if r.EarliestDate != nil {
		printf(cmd, "balances recalculated from %s\n", r.EarliestDate.Format(time.DateOnly))
	}
}

func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that every currency ledger sums to zero",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				sums, err := a.service.CheckZeroSum(ctx)
				for _, c := range ledger.Currencies {
					printf(cmd, "%s\t%g\n", c, sums[c])
				}
				return err
			})(cmd, args)
		},
	}
}
