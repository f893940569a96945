package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ict = time.FixedZone("ICT", 7*60*60)

func statementRow() map[string]string {
	return map[string]string{
		"Account Number":      "123-4-56789",
		"Account Name":        " บริษัท ตัวอย่าง จำกัด ",
		"Account Type":        "",
		"Date":                "05/01/2024",
		"Time":                "14:07",
		"Tr Code":             "X1",
		"Tr Description":      " Transfer ",
		"Channel":             "ATM",
		"Cheque No.":          "",
		"Withdrawal":          "1,250.50",
		"Deposit":             "",
		"Outstanding Balance": "98,000.00",
		"Description":         "KERRY EXPRESS",
		"Note":                " ค่าส่งของ ",
	}
}

func TestNormalizeRow(t *testing.T) {
	n := New(ict)

	tx, ok := n.NormalizeRow(statementRow())
	require.True(t, ok)

	assert.Equal(t, time.Date(2024, time.January, 5, 14, 7, 0, 0, ict), tx.Date)
	assert.Equal(t, "1250.5", tx.Withdrawal.String())
	assert.Nil(t, tx.Deposit)
	assert.Equal(t, "98000", tx.Balance.String())
	assert.Equal(t, "Transfer", tx.Description)
	assert.Equal(t, "KERRY EXPRESS", tx.RawDescription)
	require.NotNil(t, tx.Note)
	assert.Equal(t, "ค่าส่งของ", *tx.Note)
	require.NotNil(t, tx.AccountName)
	assert.Equal(t, "บริษัท ตัวอย่าง จำกัด", *tx.AccountName)
	assert.Nil(t, tx.AccountType)
	assert.Nil(t, tx.ChequeNumber)
	assert.Nil(t, tx.Chart)
	require.NotNil(t, tx.Channel)
	assert.Equal(t, "ATM", *tx.Channel)
}

func TestNormalizeRow_ThaiHeaders(t *testing.T) {
	n := New(ict)

	tx, ok := n.NormalizeRow(map[string]string{
		"วันที่":      "29/02/2024",
		"ฝาก":        "5,000",
		"ยอดคงเหลือ": "12000",
		"หมายเหตุ":   "มัดจำ",
		"หมวดหมู่":   " ยอดมัดจำ ",
	})
	require.True(t, ok)
	assert.Equal(t, 29, tx.Date.Day())
	assert.Nil(t, tx.Withdrawal)
	assert.Equal(t, "5000", tx.Deposit.String())
	require.NotNil(t, tx.Chart)
	assert.Equal(t, "ยอดมัดจำ", *tx.Chart)
	assert.Equal(t, "", tx.Description)
	assert.Equal(t, "", tx.RawDescription)
	assert.Nil(t, tx.AccountNumber)
}

func TestNormalizeRow_Rejections(t *testing.T) {
	n := New(ict)

	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing date", func(r map[string]string) { delete(r, "Date") }},
		{"dash separated date", func(r map[string]string) { r["Date"] = "05-01-2024" }},
		{"date with time suffix", func(r map[string]string) { r["Date"] = "05/01/2024 10:00" }},
		{"impossible day", func(r map[string]string) { r["Date"] = "31/02/2024" }},
		{"month out of range", func(r map[string]string) { r["Date"] = "01/13/2024" }},
		{"non numeric part", func(r map[string]string) { r["Date"] = "aa/01/2024" }},
		{"missing balance", func(r map[string]string) { r["Outstanding Balance"] = "" }},
		{"balance is NaN", func(r map[string]string) { r["Outstanding Balance"] = "NaN" }},
		{"both amounts missing", func(r map[string]string) { r["Withdrawal"] = " " }},
		{"neither amount positive", func(r map[string]string) {
			r["Withdrawal"] = "0"
			r["Deposit"] = "0.00"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := statementRow()
			tt.mutate(row)
			tx, ok := n.NormalizeRow(row)
			assert.False(t, ok)
			assert.Nil(t, tx)
		})
	}
}

func TestNormalizeRow_ZeroIsNotMissing(t *testing.T) {
	n := New(ict)
	row := statementRow()
	row["Withdrawal"] = "0"
	row["Deposit"] = "300"

	tx, ok := n.NormalizeRow(row)
	require.True(t, ok)
	require.NotNil(t, tx.Withdrawal)
	assert.True(t, tx.Withdrawal.IsZero())
	assert.True(t, tx.IsDeposit())
}

func TestNormalizeRow_NeverPanics(t *testing.T) {
	n := New(nil)
	rows := []map[string]string{
		nil,
		{},
		{"Date": "/", "Time": ":::"},
		{"Date": "1/1/1", "Time": "99:99", "Balance": "1e400", "Deposit": "--1"},
	}
	for _, row := range rows {
		assert.NotPanics(t, func() { n.NormalizeRow(row) })
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name      string
		date      string
		clock     string
		want      time.Time
		wantValid bool
	}{
		{"date only", "01/12/2023", "", time.Date(2023, 12, 1, 0, 0, 0, 0, ict), true},
		{"with time", "1/2/2024", "9:05", time.Date(2024, 2, 1, 9, 5, 0, 0, ict), true},
		{"seconds ignored", "1/2/2024", "09:05:59", time.Date(2024, 2, 1, 9, 5, 0, 0, ict), true},
		{"bad time parts are zero", "1/2/2024", "xx:30", time.Date(2024, 2, 1, 0, 30, 0, 0, ict), true},
		{"out of range hour is zero", "1/2/2024", "25:10", time.Date(2024, 2, 1, 0, 10, 0, 0, ict), true},
		{"time without minutes", "1/2/2024", "10", time.Date(2024, 2, 1, 0, 0, 0, 0, ict), true},
		{"leap day", "29/02/2024", "", time.Date(2024, 2, 29, 0, 0, 0, 0, ict), true},
		{"not a leap year", "29/02/2023", "", time.Time{}, false},
		{"two parts", "01/2024", "", time.Time{}, false},
		{"empty", "", "", time.Time{}, false},
		{"zero day", "00/01/2024", "", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.date, tt.clock, ict)
			assert.Equal(t, tt.wantValid, ok)
			if tt.wantValid {
				assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
			}
		})
	}
}

func TestStats(t *testing.T) {
	n := New(ict)
	var s Stats

	withdrawal := statementRow()
	deposit := statementRow()
	deposit["Withdrawal"] = ""
	deposit["Deposit"] = "100"
	bad := statementRow()
	bad["Date"] = "nope"

	for _, row := range []map[string]string{withdrawal, deposit, bad} {
		tx, ok := n.NormalizeRow(row)
		s.Observe(tx, ok)
	}

	assert.Equal(t, Stats{TotalRows: 3, ValidRows: 2, WithdrawalRows: 1, DepositRows: 1}, s)
	assert.Equal(t, 1, s.Rejected())
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}
