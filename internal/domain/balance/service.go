// Package balance derives account balance history from imported statement rows and
// checks that consecutive rows reconcile.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// TransactionLister is the part of the ledger repository the balance views read.
type TransactionLister interface {
	List(ctx context.Context, filter ledger.ListFilter) ([]ledger.Transaction, error)
}

// Query selects the rows a view looks at. A nil or blank Account selects every row.
type Query struct {
	Account *string
	From    *time.Time
	To      *time.Time
}

// DailyBalance is one day of an account's history. Closing is the balance after the
// day's last row.
type DailyBalance struct {
	Date        time.Time       `json:"date"`
	Closing     decimal.Decimal `json:"closing"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
	Deposits    decimal.Decimal `json:"deposits"`
	Count       int             `json:"count"`
}

// HistoryResult holds balance history response
type HistoryResult struct {
	History []DailyBalance  `json:"history"`
	Highest decimal.Decimal `json:"highest"`
	Lowest  decimal.Decimal `json:"lowest"`
	Average decimal.Decimal `json:"average"`
}

// Break is a pair of consecutive rows whose balances do not reconcile, usually a
// statement line that was never imported.
type Break struct {
	PreviousID uuid.UUID       `json:"previousId"`
	ID         uuid.UUID       `json:"id"`
	Date       time.Time       `json:"date"`
	Expected   decimal.Decimal `json:"expected"`
	Actual     decimal.Decimal `json:"actual"`
}

// Difference is Actual minus Expected.
func (b Break) Difference() decimal.Decimal {
	return b.Actual.Sub(b.Expected)
}

// CheckResult reports a reconciliation pass.
type CheckResult struct {
	Checked int     `json:"checked"`
	Breaks  []Break `json:"breaks"`
}

// Reconciled reports whether every row followed from its predecessor.
func (r *CheckResult) Reconciled() bool {
	return len(r.Breaks) == 0
}

// Service handles balance business logic
type Service struct {
	txs    TransactionLister
	loc    *time.Location
	logger *slog.Logger
}

// NewService creates a new balance service. Days are cut in loc; nil means UTC.
func NewService(txs TransactionLister, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{txs: txs, loc: loc, logger: logger}
}

// History returns the closing balance of every day with activity, oldest first.
func (s *Service) History(ctx context.Context, q Query) (*HistoryResult, error) {
	rows, err := s.rows(ctx, q)
	if err != nil {
		return nil, err
	}

	result := &HistoryResult{History: []DailyBalance{}}
	for i := range rows {
		tx := &rows[i]
		y, m, d := tx.Date.In(s.loc).Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)

		n := len(result.History)
		if n == 0 || !result.History[n-1].Date.Equal(day) {
			result.History = append(result.History, DailyBalance{Date: day})
			n++
		}
		cur := &result.History[n-1]
		cur.Closing = tx.Balance
		cur.Count++
		if tx.Withdrawal != nil {
			cur.Withdrawals = cur.Withdrawals.Add(*tx.Withdrawal)
		}
		if tx.Deposit != nil {
			cur.Deposits = cur.Deposits.Add(*tx.Deposit)
		}
	}

	if len(result.History) == 0 {
		return result, nil
	}
	total := decimal.Zero
	result.Highest, result.Lowest = result.History[0].Closing, result.History[0].Closing
	for _, day := range result.History {
		total = total.Add(day.Closing)
		result.Highest = decimal.Max(result.Highest, day.Closing)
		result.Lowest = decimal.Min(result.Lowest, day.Closing)
	}
	result.Average = total.Div(decimal.NewFromInt(int64(len(result.History)))).Round(2)
	return result, nil
}

// Check walks rows oldest first and flags every row whose balance is not the previous
// balance minus its withdrawal plus its deposit.
func (s *Service) Check(ctx context.Context, q Query) (*CheckResult, error) {
	rows, err := s.rows(ctx, q)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Checked: len(rows), Breaks: []Break{}}
	for i := 1; i < len(rows); i++ {
		prev, cur := &rows[i-1], &rows[i]
		expected := prev.Balance
		if cur.Withdrawal != nil {
			expected = expected.Sub(*cur.Withdrawal)
		}
		if cur.Deposit != nil {
			expected = expected.Add(*cur.Deposit)
		}
		if money.Normalize(expected).Equal(money.Normalize(cur.Balance)) {
			continue
		}
		result.Breaks = append(result.Breaks, Break{
			PreviousID: prev.ID,
			ID:         cur.ID,
			Date:       cur.Date,
			Expected:   expected,
			Actual:     cur.Balance,
		})
	}

	if !result.Reconciled() {
		s.logger.Info("balance check found breaks", "checked", result.Checked, "breaks", len(result.Breaks))
	}
	return result, nil
}

// pageSize is the largest page the repositories return.
const pageSize = 1000

// rows lists the matching transactions in statement order: by date, then by import time.
func (s *Service) rows(ctx context.Context, q Query) ([]ledger.Transaction, error) {
	var all []ledger.Transaction
	for offset := 0; ; offset += pageSize {
		page, err := s.txs.List(ctx, ledger.ListFilter{From: q.From, To: q.To, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	var want string
	if q.Account != nil {
		want = strings.TrimSpace(*q.Account)
	}
	rows := make([]ledger.Transaction, 0, len(all))
	for _, tx := range all {
		if want != "" && (tx.AccountNumber == nil || strings.TrimSpace(*tx.AccountNumber) != want) {
			continue
		}
		rows = append(rows, tx)
	}

	slices.SortStableFunc(rows, func(a, b ledger.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return rows, nil
}
