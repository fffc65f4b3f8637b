package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/tabimport/internal/extract"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither delimited
	// text nor a workbook.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("file contains no data")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	delimiters = []rune{',', '\t', ';', '|'}
)

// ParsedRow is one data row keyed by header.
type ParsedRow struct {
	// Line is the 1-based line (or sheet row) the values came from.
	Line   int
	Values extract.Row
	// ColumnMismatch is set when the row had more or fewer cells than the
	// header and was padded or truncated.
	ColumnMismatch bool
}

// Table is a parsed file.
type Table struct {
	Headers   []string
	Rows      []ParsedRow
	Delimiter string
	Sheet     string
}

// Records returns the row values in order.
func (t *Table) Records() []extract.Row {
	out := make([]extract.Row, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values
	}
	return out
}

// Maps returns the row values as plain maps.
func (t *Table) Maps() []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values
	}
	return out
}

// Mismatched counts rows that were padded or truncated.
func (t *Table) Mismatched() int {
	n := 0
	for _, r := range t.Rows {
		if r.ColumnMismatch {
			n++
		}
	}
	return n
}

type rawRow struct {
	line  int
	cells []string
}

// ParseTable reads a delimited or workbook file, choosing the parser by
// extension.
func ParseTable(fileName string, r io.Reader) (*Table, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".tsv", ".txt":
		return parseDelimited(payload)
	case ".xlsx", ".xlsm":
		return parseExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseDelimited(payload []byte) (*Table, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	delim := detectDelimiter(payload)

	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(payload)))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records []rawRow
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, rawRow{line: line, cells: cells})
	}
	t, err := normalizeTable(records)
	if err != nil {
		return nil, err
	}
	t.Delimiter = string(delim)
	return t, nil
}

// detectDelimiter picks the candidate that occurs most often in the first
// line. Ties go to the earlier candidate, so plain text defaults to a comma.
func detectDelimiter(payload []byte) rune {
	first := payload
	if i := bytes.IndexByte(payload, '\n'); i >= 0 {
		first = payload[:i]
	}
	best, bestCount := delimiters[0], 0
	for _, d := range delimiters {
		if n := bytes.Count(first, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func parseExcel(payload []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptyFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	records := make([]rawRow, len(rows))
	for i, cells := range rows {
		records[i] = rawRow{line: i + 1, cells: cells}
	}
	t, err := normalizeTable(records)
	if err != nil {
		return nil, err
	}
	t.Sheet = sheets[0]
	return t, nil
}

// normalizeTable takes the first non-blank row as the header and keys every
// following non-blank row by it.
func normalizeTable(records []rawRow) (*Table, error) {
	var headers []string
	t := &Table{}
	for _, rec := range records {
		if blank(rec.cells) {
			continue
		}
		if headers == nil {
			headers = sanitizeHeaders(rec.cells)
			continue
		}
		values := make(extract.Row, len(headers))
		for i, h := range headers {
			if i < len(rec.cells) {
				values[h] = strings.TrimSpace(rec.cells[i])
			} else {
				values[h] = ""
			}
		}
		t.Rows = append(t.Rows, ParsedRow{
			Line:           rec.line,
			Values:         values,
			ColumnMismatch: len(rec.cells) != len(headers),
		})
	}
	if headers == nil {
		return nil, ErrEmptyFile
	}
	t.Headers = headers
	return t, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)
	for idx, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}
		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1
		headers[idx] = name
	}
	return headers
}
