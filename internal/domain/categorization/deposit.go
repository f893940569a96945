package categorization

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

var interCompanyKeywords = []string{"เติมบุญ", "ไอริส", "termboon", "iris"}

var depositAmounts = []decimal.Decimal{
	decimal.NewFromInt(3000),
	decimal.NewFromInt(5000),
	decimal.NewFromInt(7000),
}

// categorizeDeposit applies the incoming-money heuristics. Inter-company transfers
// are checked before deposit amounts, so a 5,000 transfer from a sister company is
// still an inter-company transfer.
func categorizeDeposit(tx *ledger.Transaction) (Result, bool) {
	haystack := strings.ToLower(strings.Join([]string{
		tx.NoteText(),
		tx.Description,
		tx.RawDescription,
		derefString(tx.AccountName),
	}, " "))

	for _, kw := range interCompanyKeywords {
		if strings.Contains(haystack, kw) {
			return Result{
				Category:   InterCompanyCategory,
				Confidence: ConfidenceHigh,
				Source:     SourceDeposit,
				Reasoning:  "โอนระหว่างบริษัท (เติมบุญ/ไอริส)",
			}, true
		}
	}

	amount := money.Normalize(*tx.Deposit)
	for _, d := range depositAmounts {
		if amount.Equal(d) {
			return Result{
				Category:   DepositCategory,
				Confidence: ConfidenceHigh,
				Source:     SourceDeposit,
				Reasoning:  fmt.Sprintf("ยอดเงิน %s ตรงกับยอดมัดจำ (3,000 / 5,000 / 7,000)", money.Display(amount)),
			}, true
		}
	}
	return Result{}, false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
