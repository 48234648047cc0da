package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var (
	ErrEmptyFile = errors.New("empty csv file")
	ErrRaggedRow = errors.New("row has more fields than header")
)

// nullTokens are field values read as missing. "NA" is deliberately absent:
// it is a valid geography code.
var nullTokens = map[string]struct{}{
	"":     {},
	"NaN":  {},
	"nan":  {},
	"NULL": {},
	"null": {},
	"<NA>": {},
	"N/A":  {},
	"#N/A": {},
}

// Dialect describes how a source file is encoded on disk.
type Dialect struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// Encoding is a WHATWG encoding label (e.g. "windows-1252"). Empty means UTF-8.
	Encoding string
}

func (d Dialect) comma() rune {
	if d.Comma == 0 {
		return ','
	}
	return d.Comma
}

// ReadCSV parses a CSV stream with a header row into a Table.
func ReadCSV(r io.Reader, d Dialect) (*Table, error) {
	if d.Encoding != "" && !strings.EqualFold(d.Encoding, "utf-8") {
		enc, err := htmlindex.Get(d.Encoding)
		if err != nil {
			return nil, fmt.Errorf("unknown encoding %q: %w", d.Encoding, err)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	reader := csv.NewReader(bufio.NewReader(r))
	reader.Comma = d.comma()
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	columns := make([]string, len(header))
	copy(columns, header)
	columns[0] = strings.TrimPrefix(columns[0], "\ufeff")

	t := New(columns...)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		cells := make([]Cell, len(record))
		for i, v := range record {
			cells[i] = parseField(v)
		}
		if err := t.Append(cells...); err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return t, nil
}

func parseField(v string) Cell {
	if _, ok := nullTokens[v]; ok {
		return Null()
	}
	return String(v)
}

// WriteCSV writes t as comma-separated UTF-8 with a header row. Null cells are written empty.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i, r := range t.Rows {
		for j, c := range r {
			record[j] = c.Value
			if !c.Valid {
				record[j] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
