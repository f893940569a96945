package parser

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
)

// ParseXLSX reads the first sheet of a workbook. Cells are read as displayed text.
// Title rows above the header are skipped.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open Excel file: %w", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %s: %w", ErrUnreadableFile, sheets[0], err)
	}

	headerIdx := sniffer.FindHeaderRecord(records)
	if headerIdx < 0 {
		return nil, ErrEmptyFile
	}

	table := &Table{Type: FileTypeXLSX, Headers: trimHeaders(records[headerIdx])}
	table.Fingerprint = sniffer.Fingerprint(table.Headers)

	for i := headerIdx + 1; i < len(records); i++ {
		if row, ok := buildRow(table.Headers, records[i], i+1); ok {
			table.Rows = append(table.Rows, row)
		}
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}
