package service

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

var (
	ErrLineNoDate   = errors.New("line has no date")
	ErrLineNoAmount = errors.New("line has no positive withdrawal or deposit")
)

// StatementLine is a normalized row as it travels between preview and save.
type StatementLine struct {
	Line            int              `json:"line"`
	Date            time.Time        `json:"date"`
	AccountNumber   *string          `json:"accountNumber,omitempty"`
	AccountName     *string          `json:"accountName,omitempty"`
	AccountType     *string          `json:"accountType,omitempty"`
	Description     string           `json:"description"`
	RawDescription  string           `json:"rawDescription"`
	Note            *string          `json:"note,omitempty"`
	Withdrawal      *decimal.Decimal `json:"withdrawal"`
	Deposit         *decimal.Decimal `json:"deposit"`
	Balance         decimal.Decimal  `json:"balance"`
	Channel         *string          `json:"channel,omitempty"`
	TransactionCode *string          `json:"transactionCode,omitempty"`
	ChequeNumber    *string          `json:"chequeNumber,omitempty"`
	Chart           *string          `json:"chart,omitempty"`
}

func lineFrom(tx *ledger.Transaction, line int) StatementLine {
	return StatementLine{
		Line:            line,
		Date:            tx.Date,
		AccountNumber:   tx.AccountNumber,
		AccountName:     tx.AccountName,
		AccountType:     tx.AccountType,
		Description:     tx.Description,
		RawDescription:  tx.RawDescription,
		Note:            tx.Note,
		Withdrawal:      tx.Withdrawal,
		Deposit:         tx.Deposit,
		Balance:         tx.Balance,
		Channel:         tx.Channel,
		TransactionCode: tx.TransactionCode,
		ChequeNumber:    tx.ChequeNumber,
		Chart:           tx.Chart,
	}
}

// Validate applies the row rules of the normalizer to a line posted back for saving.
func (l StatementLine) Validate() error {
	if l.Date.IsZero() {
		return ErrLineNoDate
	}
	if !money.IsPositive(l.Withdrawal) && !money.IsPositive(l.Deposit) {
		return ErrLineNoAmount
	}
	return nil
}

// Transaction converts the line back into a ledger record without an id.
func (l StatementLine) Transaction() *ledger.Transaction {
	return &ledger.Transaction{
		Date:            l.Date,
		AccountNumber:   blankToNil(l.AccountNumber),
		AccountName:     blankToNil(l.AccountName),
		AccountType:     blankToNil(l.AccountType),
		Description:     l.Description,
		RawDescription:  l.RawDescription,
		Note:            blankToNil(l.Note),
		Withdrawal:      l.Withdrawal,
		Deposit:         l.Deposit,
		Balance:         l.Balance,
		Channel:         blankToNil(l.Channel),
		TransactionCode: blankToNil(l.TransactionCode),
		ChequeNumber:    blankToNil(l.ChequeNumber),
		Chart:           blankToNil(l.Chart),
	}
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
