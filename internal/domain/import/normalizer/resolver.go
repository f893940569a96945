// Package normalizer turns raw statement rows into canonical ledger transactions.
// resolver.go maps the header names different banks use onto canonical fields.
package normalizer

import "strings"

// Field is a canonical statement column.
type Field string

const (
	FieldDate            Field = "date"
	FieldTime            Field = "time"
	FieldBalance         Field = "balance"
	FieldWithdrawal      Field = "withdrawal"
	FieldDeposit         Field = "deposit"
	FieldDescription     Field = "description"
	FieldRawDescription  Field = "rawDescription"
	FieldNote            Field = "note"
	FieldAccountNumber   Field = "accountNumber"
	FieldAccountName     Field = "accountName"
	FieldAccountType     Field = "accountType"
	FieldChannel         Field = "channel"
	FieldTransactionCode Field = "transactionCode"
	FieldChequeNumber    Field = "chequeNumber"
	FieldChart           Field = "chart"
)

// AliasTable lists, per field, the header names that may carry it in preference order.
type AliasTable map[Field][]string

// DefaultAliases returns the header names known from Thai bank exports.
func DefaultAliases() AliasTable {
	return AliasTable{
		FieldDate:            {"Date", "วันที่"},
		FieldTime:            {"Time", "เวลา"},
		FieldBalance:         {"Outstanding Balance", "Balance", "ยอดคงเหลือ"},
		FieldWithdrawal:      {"Withdrawal", "ถอน", "เงินออก"},
		FieldDeposit:         {"Deposit", "ฝาก", "เงินเข้า"},
		FieldDescription:     {"Tr Description", "Transaction Description"},
		FieldRawDescription:  {"Description", "รายละเอียด"},
		FieldNote:            {"Note", "หมายเหตุ", "Memo"},
		FieldAccountNumber:   {"Account Number", "เลขบัญชี"},
		FieldAccountName:     {"Account Name", "ชื่อบัญชี"},
		FieldAccountType:     {"Account Type", "ประเภทบัญชี"},
		FieldChannel:         {"Channel", "ช่องทาง"},
		FieldTransactionCode: {"Tr Code", "รหัสรายการ"},
		FieldChequeNumber:    {"Cheque No.", "เช็ค"},
		FieldChart:           {"chart", "หมวดหมู่", "Category"},
	}
}

// Resolver looks canonical fields up in raw rows. It has no state besides its table.
type Resolver struct {
	aliases AliasTable
}

// NewResolver creates a resolver. A nil table means DefaultAliases.
func NewResolver(aliases AliasTable) *Resolver {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Resolver{aliases: aliases}
}

// Resolve returns the value of field in row. Exact header names are tried first in
// alias order, then names compared case-insensitively with surrounding space trimmed.
// A present header with an empty value is found.
func (r *Resolver) Resolve(row map[string]string, field Field) (string, bool) {
	names := r.aliases[field]
	for _, name := range names {
		if v, ok := row[name]; ok {
			return v, true
		}
	}

	for _, name := range names {
		want := foldHeader(name)
		best, found := "", false
		for key := range row {
			// Smallest key wins so duplicate spellings resolve the same way every run.
			if foldHeader(key) == want && (!found || key < best) {
				best, found = key, true
			}
		}
		if found {
			return row[best], true
		}
	}
	return "", false
}

// Text returns the trimmed value of field, or "".
func (r *Resolver) Text(row map[string]string, field Field) string {
	v, _ := r.Resolve(row, field)
	return strings.TrimSpace(v)
}

// Optional returns the trimmed value of field, or nil when it is absent or blank.
func (r *Resolver) Optional(row map[string]string, field Field) *string {
	v := r.Text(row, field)
	if v == "" {
		return nil
	}
	return &v
}

func foldHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
