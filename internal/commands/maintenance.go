package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/cmd/api"
	"github.com/FACorreiaa/statement-ledger/internal/domain/balance"
	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// dateRange holds --from/--to flags as YYYY-MM-DD strings.
type dateRange struct {
	from, to string
}

func (d *dateRange) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.from, "from", "", "Start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.to, "to", "", "End date, exclusive (YYYY-MM-DD)")
}

func (d *dateRange) parse() (from, to *time.Time, err error) {
	if from, err = parseDate("from", d.from); err != nil {
		return nil, nil, err
	}
	if to, err = parseDate("to", d.to); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseDate(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", name, v)
	}
	return &t, nil
}

func newReclassifyCommand(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reclassify",
		Short: "Send uncategorized withdrawals to the classifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				res, err := deps.CategorizationService.Reclassify(ctx, deps.LedgerRepo, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "reclassify: %d processed, %d categorized\n", res.Processed, res.Categorized)
				for _, r := range res.Results {
					fmt.Fprintf(out, "  %s -> %s (%s)\n", r.ID, r.Category, r.Confidence)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", categorization.DefaultReclassifyLimit, "Maximum transactions to look at")
	return cmd
}

func newExportCommand(flags *globalFlags) *cobra.Command {
	var (
		dates  dateRange
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write ledger rows as CSV, one line per split allocation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := dates.parse()
			if err != nil {
				return err
			}
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				names, err := deps.CategorizationService.CategoryNames(ctx)
				if err != nil {
					return err
				}

				var w io.Writer = cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}

				n, err := deps.LedgerService.Export(ctx, w, ledger.ListFilter{From: from, To: to},
					func(id uuid.UUID) string { return names[id] })
				if err != nil {
					return err
				}
				deps.Logger.Info("export finished", "rows", n, "output", output)
				return nil
			})
		},
	}

	dates.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file; defaults to stdout")
	return cmd
}

func newCorrectionsCommand(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Show the most recent reviewer corrections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				recent, err := deps.Corrections.Recent(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "WHEN\tNOTE\tSUGGESTED\tCHOSEN")
				for _, c := range recent {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.CreatedAt.Format(time.DateTime), c.Note, c.AICategory, c.UserCategory)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", corrections.DefaultRecentLimit, "Maximum corrections to show")
	return cmd
}

func newBalanceCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Balance history and reconciliation",
	}

	var (
		dates   dateRange
		account string
	)
	query := func() (balance.Query, error) {
		from, to, err := dates.parse()
		if err != nil {
			return balance.Query{}, err
		}
		q := balance.Query{From: from, To: to}
		if account != "" {
			q.Account = &account
		}
		return q, nil
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Report consecutive rows whose balances do not follow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := query()
			if err != nil {
				return err
			}
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				res, err := deps.BalanceService.Check(ctx, q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.Reconciled() {
					fmt.Fprintf(out, "%d rows checked, balances reconcile\n", res.Checked)
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tEXPECTED\tACTUAL\tDIFFERENCE\tID")
				for _, b := range res.Breaks {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.Date.Format("2006-01-02 15:04"),
						money.Fixed(b.Expected), money.Fixed(b.Actual), money.Fixed(b.Difference()), b.ID)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				return fmt.Errorf("%d of %d rows do not reconcile", len(res.Breaks), res.Checked)
			})
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Print the closing balance of every day with activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := query()
			if err != nil {
				return err
			}
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				res, err := deps.BalanceService.History(ctx, q)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tCLOSING\tWITHDRAWALS\tDEPOSITS\tROWS")
				for _, d := range res.History {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", d.Date.Format(time.DateOnly),
						money.Fixed(d.Closing), money.Fixed(d.Withdrawals), money.Fixed(d.Deposits), d.Count)
				}
				return w.Flush()
			})
		},
	}

	for _, c := range []*cobra.Command{check, history} {
		dates.register(c)
		c.Flags().StringVar(&account, "account", "", "Only rows of this account number")
	}
	cmd.AddCommand(check, history)
	return cmd
}
