package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/cmd/api"
	importservice "github.com/FACorreiaa/statement-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

func newImportCommand(flags *globalFlags) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import statement files into the ledger",
		Long: `Import one or more CSV or XLSX statement exports. Rows already in the ledger are
updated in place, so overlapping statements can be imported in any order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}
					name := filepath.Base(path)
					if preview {
						res, err := deps.ImportService.Preview(ctx, name, data)
						if err != nil {
							return fmt.Errorf("%s: %w", path, err)
						}
						printPreview(cmd.OutOrStdout(), res)
						continue
					}
					summary, err := deps.ImportService.Import(ctx, name, data)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					printSummary(cmd.OutOrStdout(), name, summary)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&preview, "preview", false, "Show how each row would be categorized without saving")
	return cmd
}

func printSummary(out io.Writer, name string, s *importservice.Summary) {
	fmt.Fprintf(out, "%s: %d rows, %d valid, %d inserted, %d updated, %d failed\n",
		name, s.TotalRows, s.ValidRows, s.Inserted, s.Updated, s.Failed)
	for _, msg := range s.Errors {
		fmt.Fprintf(out, "  %s\n", msg)
	}
}

func printPreview(out io.Writer, res *importservice.PreviewResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tDATE\tAMOUNT\tDESCRIPTION\tCATEGORY\tCONFIDENCE\tSOURCE")
	for _, p := range res.Previews {
		line := p.Transaction
		tx := line.Transaction()
		amount := money.Display(tx.Amount())
		if tx.IsWithdrawal() {
			amount = "-" + amount
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			line.Line, line.Date.Format("2006-01-02 15:04"), amount, line.Description,
			p.AICategory, p.AIConfidence, p.Source)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "%d rows, %d valid, %d withdrawals, %d deposits\n",
		res.Stats.TotalRows, res.Stats.ValidRows, res.Stats.WithdrawalRows, res.Stats.DepositRows)
}
