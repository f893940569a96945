package ledger

import (
	"strings"
	"time"

	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// nullKeyPart stands in for a missing withdrawal in the string form of a key.
const nullKeyPart = "null"

// IdentityKey decides whether two records describe the same real-world transaction.
// Withdrawal is part of the key and a nil withdrawal is its own value, so a deposit
// line never collides with a withdrawal line that shares date, account and balance.
// Amounts are held as two-digit fixed strings: a one cent difference is a new key.
type IdentityKey struct {
	Date          time.Time
	AccountNumber string
	Balance       string
	Withdrawal    *string
}

// KeyOf computes the identity key of tx.
func KeyOf(tx *Transaction) IdentityKey {
	return IdentityKey{
		Date:          tx.Date,
		AccountNumber: deref(tx.AccountNumber),
		Balance:       money.Fixed(tx.Balance),
		Withdrawal:    money.NullableFixed(tx.Withdrawal),
	}
}

// String renders the key as date|account|balance|withdrawal, e.g.
// "2025-01-15T10:30:00Z|123-4-56789-0|50000.00|1500.00" or "...|null".
func (k IdentityKey) String() string {
	withdrawal := nullKeyPart
	if k.Withdrawal != nil {
		withdrawal = *k.Withdrawal
	}
	return strings.Join([]string{
		k.Date.UTC().Format(time.RFC3339),
		k.AccountNumber,
		k.Balance,
		withdrawal,
	}, "|")
}

// Equal reports whether both keys identify the same transaction.
func (k IdentityKey) Equal(other IdentityKey) bool {
	return k.String() == other.String()
}
