// Package parser reads uploaded bank statements into header-keyed rows.
// Only delimited text and spreadsheet workbooks are accepted.
package parser

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFileType is returned for uploads that are neither CSV nor XLSX.
	ErrUnsupportedFileType = errors.New("only CSV and XLSX files are supported")
	// ErrEmptyFile is returned when a file has no data rows below its header.
	ErrEmptyFile = errors.New("file contains no data rows")
	// ErrUnreadableFile wraps layout and decoding failures of a supported file type.
	ErrUnreadableFile = errors.New("file could not be read")
)

// FileType is the detected upload format.
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
)

// ContentType is the MIME type archived uploads are stored with.
func (t FileType) ContentType() string {
	switch t {
	case FileTypeCSV:
		return "text/csv"
	case FileTypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// DetectFileType classifies an upload by its extension.
func DetectFileType(filename string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(filename))) {
	case ".csv":
		return FileTypeCSV, nil
	case ".xlsx", ".xls":
		return FileTypeXLSX, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// Row is one data record keyed by header name.
type Row struct {
	// Line is the 1-based line (CSV) or row (XLSX) number in the source file.
	Line   int
	Values map[string]string
}

// Table is a parsed statement.
type Table struct {
	Type        FileType
	Headers     []string
	Rows        []Row
	Fingerprint string
}

// Parse dispatches on the file extension. Unsupported types are rejected before any
// byte is read.
func Parse(filename string, data []byte) (*Table, error) {
	ft, err := DetectFileType(filename)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	switch ft {
	case FileTypeXLSX:
		return ParseXLSX(bytes.NewReader(data))
	default:
		return ParseCSV(data)
	}
}

// buildRow keys values by header. Cells past the header and blank headers are dropped;
// missing trailing cells read as "". The first of duplicate headers wins.
func buildRow(headers, record []string, line int) (Row, bool) {
	values := make(map[string]string, len(headers))
	blank := true
	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, dup := values[h]; dup {
			continue
		}
		v := ""
		if i < len(record) {
			v = record[i]
		}
		if strings.TrimSpace(v) != "" {
			blank = false
		}
		values[h] = v
	}
	if blank {
		return Row{}, false
	}
	return Row{Line: line, Values: values}, true
}

func trimHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}
	return out
}
