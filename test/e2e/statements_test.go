package e2etest

import (
	"bytes"
	"encoding/csv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

var bangkok = time.FixedZone("ICT", 7*3600)

// statementRow is one generated statement line.
type statementRow struct {
	At          time.Time
	Description string
	Note        string
	Withdrawal  *decimal.Decimal
	Deposit     *decimal.Decimal
	Balance     decimal.Decimal
}

// statementGenerator produces statements whose running balance always reconciles.
type statementGenerator struct {
	faker   *gofakeit.Faker
	balance decimal.Decimal
	at      time.Time
}

func newStatementGenerator(seed int64) *statementGenerator {
	return &statementGenerator{
		faker:   gofakeit.New(seed),
		balance: decimal.NewFromInt(50000),
		at:      time.Date(2024, 3, 1, 8, 0, 0, 0, bangkok),
	}
}

func (g *statementGenerator) amount() decimal.Decimal {
	return decimal.New(int64(g.faker.Number(100, 500000)), -money.Scale)
}

// Rows generates n consecutive lines. Roughly one in four is a deposit.
func (g *statementGenerator) Rows(n int) []statementRow {
	rows := make([]statementRow, 0, n)
	for range n {
		g.at = g.at.Add(time.Duration(g.faker.Number(5, 600)) * time.Minute)
		row := statementRow{
			At:          g.at,
			Description: g.faker.RandomString([]string{"ATM", "POS", "TRANSFER", "BILL PAYMENT", "QR PAYMENT"}),
			Note:        "zq " + g.faker.Company(),
		}
		amt := g.amount()
		if g.faker.Number(1, 4) == 1 {
			row.Deposit = &amt
			g.balance = g.balance.Add(amt)
		} else {
			row.Withdrawal = &amt
			g.balance = g.balance.Sub(amt)
		}
		row.Balance = g.balance
		rows = append(rows, row)
	}
	return rows
}

const dateLayout = "02/01/2006"

// renderCSV writes rows the way the bank export does: thousands separators, blank cells
// for the absent amount.
func renderCSV(rows []statementRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Date", "Time", "Description", "Withdrawal", "Deposit", "Outstanding Balance", "Note"})
	for _, r := range rows {
		_ = w.Write([]string{
			r.At.Format(dateLayout),
			r.At.Format("15:04"),
			r.Description,
			bankAmount(r.Withdrawal),
			bankAmount(r.Deposit),
			bankAmount(&r.Balance),
			r.Note,
		})
	}
	w.Flush()
	return buf.Bytes()
}

func bankAmount(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	fixed := money.Fixed(*d)
	intPart, frac := fixed[:len(fixed)-3], fixed[len(fixed)-3:]
	sign := ""
	if intPart != "" && intPart[0] == '-' {
		sign, intPart = "-", intPart[1:]
	}
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return sign + string(out) + frac
}
