// Package ledger holds the canonical transaction record, its identity policy and split allocations.
package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

var (
	// ErrNotFound is returned when a transaction id does not exist.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateIdentity is returned when an insert collides with an existing identity key
	// outside the lookup window. It is recoverable: the caller may retry or skip the row.
	ErrDuplicateIdentity = errors.New("transaction with the same identity already exists")
)

// Transaction is one bank-statement line after normalization.
// Everything except the category, note and split state is fixed once imported.
type Transaction struct {
	ID              uuid.UUID
	Date            time.Time
	AccountNumber   *string
	AccountName     *string
	AccountType     *string
	Description     string
	RawDescription  string
	Note            *string
	Withdrawal      *decimal.Decimal
	Deposit         *decimal.Decimal
	Balance         decimal.Decimal
	Channel         *string
	TransactionCode *string
	ChequeNumber    *string
	// Chart is the category named by the source file itself. It is an input to
	// categorization and is not persisted.
	Chart      *string
	CategoryID *uuid.UUID
	IsSplit    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsWithdrawal reports whether money left the account.
func (t *Transaction) IsWithdrawal() bool {
	return money.IsPositive(t.Withdrawal)
}

// IsDeposit reports whether this is an incoming-money line.
func (t *Transaction) IsDeposit() bool {
	return money.IsPositive(t.Deposit) && !t.IsWithdrawal()
}

// Amount is the withdrawal when positive, otherwise the deposit, otherwise zero.
func (t *Transaction) Amount() decimal.Decimal {
	if money.IsPositive(t.Withdrawal) {
		return *t.Withdrawal
	}
	if t.Deposit != nil {
		return *t.Deposit
	}
	return decimal.Zero
}

// NoteText returns the note or "".
func (t *Transaction) NoteText() string {
	return deref(t.Note)
}

// CombinedDescription joins the processed and raw descriptions.
func (t *Transaction) CombinedDescription() string {
	return strings.TrimSpace(t.Description + " " + t.RawDescription)
}

// ChartText returns the trimmed source category or "".
func (t *Transaction) ChartText() string {
	return strings.TrimSpace(deref(t.Chart))
}

// Key returns the identity key of t.
func (t *Transaction) Key() IdentityKey {
	return KeyOf(t)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
