package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// DefaultTimezone is where statement dates are interpreted when no zone is configured.
const DefaultTimezone = "Asia/Bangkok"

// Normalizer converts raw rows into transactions. It is safe for concurrent use.
type Normalizer struct {
	resolver *Resolver
	loc      *time.Location
}

// New creates a normalizer with the default alias table. A nil loc means UTC.
func New(loc *time.Location) *Normalizer {
	return NewWithResolver(NewResolver(nil), loc)
}

// NewWithResolver creates a normalizer with a custom resolver.
func NewWithResolver(r *Resolver, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{resolver: r, loc: loc}
}

// LoadLocation resolves an IANA zone name, defaulting to DefaultTimezone when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// NormalizeRow converts row or reports false when the row is not a transaction.
// A row is rejected when its date or balance cannot be parsed, when both amounts are
// missing, or when neither amount is positive. It never panics.
func (n *Normalizer) NormalizeRow(row map[string]string) (*ledger.Transaction, bool) {
	r := n.resolver

	date, ok := ParseDate(r.Text(row, FieldDate), r.Text(row, FieldTime), n.loc)
	if !ok {
		return nil, false
	}

	balanceRaw, _ := r.Resolve(row, FieldBalance)
	balance := money.ParseAmount(balanceRaw)
	if balance == nil {
		return nil, false
	}

	withdrawalRaw, _ := r.Resolve(row, FieldWithdrawal)
	depositRaw, _ := r.Resolve(row, FieldDeposit)
	withdrawal := money.ParseAmount(withdrawalRaw)
	deposit := money.ParseAmount(depositRaw)
	if withdrawal == nil && deposit == nil {
		return nil, false
	}
	if !money.IsPositive(withdrawal) && !money.IsPositive(deposit) {
		return nil, false
	}

	return &ledger.Transaction{
		Date:            date,
		AccountNumber:   r.Optional(row, FieldAccountNumber),
		AccountName:     r.Optional(row, FieldAccountName),
		AccountType:     r.Optional(row, FieldAccountType),
		Description:     r.Text(row, FieldDescription),
		RawDescription:  r.Text(row, FieldRawDescription),
		Note:            r.Optional(row, FieldNote),
		Withdrawal:      withdrawal,
		Deposit:         deposit,
		Balance:         *balance,
		Channel:         r.Optional(row, FieldChannel),
		TransactionCode: r.Optional(row, FieldTransactionCode),
		ChequeNumber:    r.Optional(row, FieldChequeNumber),
		Chart:           r.Optional(row, FieldChart),
	}, true
}

// ParseDate reads a day/month/year date with an optional HH:MM time in loc.
// The date must have exactly three numeric parts and name a real calendar day; the
// time is lenient and unreadable parts count as zero.
func ParseDate(dateStr, timeStr string, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(dateStr), "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	var dmy [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, false
		}
		dmy[i] = v
	}
	day, month, year := dmy[0], dmy[1], dmy[2]
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1 {
		return time.Time{}, false
	}

	hour, minute := parseClock(timeStr)
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	// time.Date normalizes 31/02 into March; such dates are rejected instead.
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

func parseClock(s string) (int, int) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, 0
	}
	hour := leadingInt(parts[0])
	minute := leadingInt(parts[1])
	if hour < 0 || hour > 23 {
		hour = 0
	}
	if minute < 0 || minute > 59 {
		minute = 0
	}
	return hour, minute
}

// leadingInt parses the leading decimal digits of s, 0 when there are none.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}

// Stats counts rows seen by a normalization pass.
type Stats struct {
	TotalRows      int `json:"totalRows"`
	ValidRows      int `json:"validRows"`
	WithdrawalRows int `json:"withdrawalRows"`
	DepositRows    int `json:"depositRows"`
}

// Observe records one row and its normalization result.
func (s *Stats) Observe(tx *ledger.Transaction, ok bool) {
	s.TotalRows++
	if !ok || tx == nil {
		return
	}
	s.ValidRows++
	if money.IsPositive(tx.Withdrawal) {
		s.WithdrawalRows++
	}
	if money.IsPositive(tx.Deposit) {
		s.DepositRows++
	}
}

// Rejected is the number of rows that did not normalize.
func (s Stats) Rejected() int {
	return s.TotalRows - s.ValidRows
}
