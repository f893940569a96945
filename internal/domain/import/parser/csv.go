package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
)

// ParseCSV reads a delimited statement. The encoding, delimiter and header line are
// detected; lines above the header are skipped.
func ParseCSV(data []byte) (*Table, error) {
	data = sniffer.Decode(data)

	cfg, err := sniffer.DetectConfig(data)
	if err != nil {
		if errors.Is(err, sniffer.ErrEmptyFile) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("%w: failed to detect CSV layout: %w", ErrUnreadableFile, err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = cfg.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	headerLine := cfg.SkipLines + 1
	table := &Table{Type: FileTypeCSV, Headers: trimHeaders(cfg.Headers), Fingerprint: cfg.Fingerprint}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read CSV: %w", ErrUnreadableFile, err)
		}

		line, _ := reader.FieldPos(0)
		if line <= headerLine {
			continue
		}
		if row, ok := buildRow(table.Headers, record, line); ok {
			table.Rows = append(table.Rows, row)
		}
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}
