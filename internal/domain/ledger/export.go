package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// ExportRow is one CSV line of a ledger export. Split transactions produce one line per
// allocation so category totals of the file add up.
type ExportRow struct {
	Date          string `csv:"Date"`
	AccountNumber string `csv:"Account Number"`
	Description   string `csv:"Tr Description"`
	Note          string `csv:"Note"`
	Withdrawal    string `csv:"Withdrawal"`
	Deposit       string `csv:"Deposit"`
	Balance       string `csv:"Outstanding Balance"`
	Category      string `csv:"Category"`
	SplitAmount   string `csv:"Split Amount"`
}

// CategoryNamer resolves a category id to its display name.
type CategoryNamer func(id uuid.UUID) string

// Export writes transactions matching filter as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer, filter ListFilter, names CategoryNamer) (int, error) {
	txs, err := s.repo.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	rows := make([]ExportRow, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		base := ExportRow{
			Date:          tx.Date.Format("02/01/2006 15:04"),
			AccountNumber: deref(tx.AccountNumber),
			Description:   tx.CombinedDescription(),
			Note:          tx.NoteText(),
			Withdrawal:    fixedOrEmpty(tx.Withdrawal),
			Deposit:       fixedOrEmpty(tx.Deposit),
			Balance:       money.Fixed(tx.Balance),
			Category:      s.sentinel,
		}

		if !tx.IsSplit {
			if tx.CategoryID != nil {
				base.Category = names(*tx.CategoryID)
			}
			rows = append(rows, base)
			continue
		}

		splits, err := s.repo.GetSplits(ctx, tx.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to load splits for export: %w", err)
		}
		for _, sp := range splits {
			row := base
			row.Category = names(sp.CategoryID)
			row.SplitAmount = money.Fixed(sp.Amount)
			rows = append(rows, row)
		}
	}

	csvWriter := csv.NewWriter(w)
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}
	return len(rows), nil
}

func fixedOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return money.Fixed(*d)
}
