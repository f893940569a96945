// Package sniffer detects the layout of delimited bank statement exports.
// It finds the delimiter and the header row, skipping metadata lines banks put above it.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Header keywords seen in Thai bank exports, in both languages.
var headerKeywords = []string{
	// Thai
	"วันที่", "เวลา", "รายละเอียด", "ถอน", "ฝาก", "เงินออก", "เงินเข้า", "ยอดคงเหลือ", "หมายเหตุ",
	"เลขบัญชี", "ช่องทาง", "หมวดหมู่",
	// English
	"date", "time", "description", "withdrawal", "deposit", "balance", "note", "memo",
	"account number", "channel", "tr code", "cheque",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// maxHeaderSearch bounds how far down the file the header may be.
const maxHeaderSearch = 20

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// FileConfig holds the detected layout of a delimited file.
type FileConfig struct {
	Delimiter   rune
	SkipLines   int      // metadata lines before the header
	Headers     []string // trimmed header names
	Fingerprint string   // SHA256 of the normalized headers, identifies a bank layout
	SampleRows  [][]string
}

// DetectOptions overrides detection.
type DetectOptions struct {
	// HeaderRowIndex is a 0-based header line. -1 auto-detects.
	HeaderRowIndex int
	// Delimiter overrides the detected delimiter when non-zero.
	Delimiter rune
}

// Decode returns data as UTF-8: a UTF-8 BOM is dropped and bytes that are not valid
// UTF-8 are read as Latin-1.
func Decode(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

// DetectConfig analyzes a delimited file.
func DetectConfig(data []byte) (*FileConfig, error) {
	return DetectConfigWithOptions(data, nil)
}

// DetectConfigWithOptions analyzes a delimited file with optional overrides.
// data must already be UTF-8 (see Decode).
func DetectConfigWithOptions(data []byte, opts *DetectOptions) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	var (
		delimiter rune
		skipLines int
		err       error
	)
	if opts != nil && opts.HeaderRowIndex >= 0 {
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		skipLines = opts.HeaderRowIndex
		delimiter = opts.Delimiter
		if delimiter == 0 {
			delimiter, _ = detectDelimiter(cleanLine(lines[skipLines], skipLines == 0))
			if delimiter == 0 {
				return nil, ErrInvalidDelimiter
			}
		}
	} else {
		delimiter, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
		if opts != nil && opts.Delimiter != 0 {
			delimiter = opts.Delimiter
		}
	}

	reader := csv.NewReader(strings.NewReader(cleanLine(lines[skipLines], skipLines == 0)))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
		SampleRows:  sampleRows(data, delimiter, skipLines, 5),
	}, nil
}

// candidate tracks the best scoring header row seen so far.
type candidate struct {
	index int
	width int
	score int
	delim rune
}

func noCandidate() candidate { return candidate{index: -1} }

func (c *candidate) offer(index, width, score int, delim rune) {
	if c.index < 0 || score > c.score {
		*c = candidate{index: index, width: width, score: score, delim: delim}
	}
}

func (c candidate) found() bool { return c.index >= 0 }

// keywordHits counts the header keywords contained in s, which must be lowercase.
func keywordHits(s string) int {
	n := 0
	for _, kw := range headerKeywords {
		if strings.Contains(s, kw) {
			n++
		}
	}
	return n
}

// headerScore ranks keyword rows by width first. Metadata lines above a header
// mention keywords too but rarely span many columns.
func headerScore(width, hits int) int { return width*10 + hits }

// findHeaderRow returns the delimiter and index of the header line. Keyword lines
// win over plain wide lines, but only once they split into at least three columns.
func findHeaderRow(lines []string) (rune, int, error) {
	keyword, widest := noCandidate(), noCandidate()

	for i := 0; i < len(lines) && i <= maxHeaderSearch; i++ {
		line := cleanLine(lines[i], i == 0)
		if line == "" {
			continue
		}
		delim, seps := detectDelimiter(line)
		if seps == 0 {
			continue
		}
		if hits := keywordHits(strings.ToLower(line)); hits > 0 {
			keyword.offer(i, seps, headerScore(seps, hits), delim)
		} else {
			widest.offer(i, seps, seps, delim)
		}
	}

	for _, c := range []candidate{keyword, widest} {
		if c.found() && c.width >= 2 {
			return c.delim, c.index, nil
		}
	}
	if keyword.found() {
		return keyword.delim, keyword.index, nil
	}
	return 0, 0, ErrNoHeadersFound
}

// FindHeaderRecord returns the index of the header among already split records, as
// spreadsheets yield them, or -1 when no row has two non-empty cells.
func FindHeaderRecord(records [][]string) int {
	keyword, widest := noCandidate(), noCandidate()

	for i := 0; i < len(records) && i <= maxHeaderSearch; i++ {
		cells, hits := 0, 0
		for _, c := range records[i] {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			cells++
			if keywordHits(c) > 0 {
				hits++
			}
		}
		switch {
		case cells < 2:
		case hits > 0:
			keyword.offer(i, cells, headerScore(cells, hits), 0)
		default:
			widest.offer(i, cells, cells, 0)
		}
	}

	if keyword.found() {
		return keyword.index
	}
	return widest.index
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

var candidateDelimiters = [...]rune{',', ';', '\t', '|'}

// detectDelimiter picks the candidate that occurs most often outside quotes and
// returns it with its separator count.
func detectDelimiter(line string) (rune, int) {
	var best rune
	bestCount := 0
	for _, d := range candidateDelimiters {
		if n := countUnquoted(line, d); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best, bestCount
}

func countUnquoted(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// Fingerprint hashes header names case- and punctuation-insensitively. Files exported by
// the same bank layout share a fingerprint.
func Fingerprint(headers []string) string {
	keep := func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Thai, r) {
			return unicode.ToLower(r)
		}
		return -1
	}
	h := sha256.New()
	sep := ""
	for _, header := range headers {
		if clean := strings.Map(keep, header); clean != "" {
			io.WriteString(h, sep+clean)
			sep = "|"
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sampleRows returns up to limit records that start after the header line.
func sampleRows(data []byte, delimiter rune, header, limit int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for len(rows) < limit {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if line, _ := reader.FieldPos(0); line-1 > header {
			rows = append(rows, record)
		}
	}
	return rows
}
