package phenotype

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"abide2nidm/internal/services"
)

// Encodings lists the decoders tried, in order, when reading a table.
var Encodings = []string{"utf-8", "latin1", "iso-8859-1", "cp1252"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a decoded participant table. Header cells are trimmed; every row
// has exactly len(Columns) cells.
type Table struct {
	Columns  []string
	Rows     [][]string
	Encoding string
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ReadTable loads a tab-separated table from path.
func ReadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "phenotype", "read", fmt.Sprintf("%s not found", path), err)
		}
		return nil, services.Wrap(services.ErrNotFound, "phenotype", "read", fmt.Sprintf("read %s", path), err)
	}
	return ParseTable(data)
}

// ParseTable decodes data using the first encoding in Encodings that yields a
// parseable table.
func ParseTable(data []byte) (*Table, error) {
	var lastErr error
	for _, enc := range Encodings {
		text, err := decode(data, enc)
		if err != nil {
			lastErr = err
			continue
		}
		table, err := parseTSV(text)
		if err != nil {
			lastErr = err
			continue
		}
		table.Encoding = enc
		return table, nil
	}
	return nil, services.Wrap(services.ErrDecode, "phenotype", "parse", "no encoding produced a readable table", lastErr)
}

func decode(data []byte, enc string) (string, error) {
	switch enc {
	case "utf-8":
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", errors.New("invalid utf-8 byte sequence")
		}
		return string(data), nil
	case "latin1", "iso-8859-1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		return string(out), err
	case "cp1252":
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		return string(out), err
	default:
		return "", fmt.Errorf("unsupported encoding %q", enc)
	}
}

func parseTSV(text string) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty table")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, cell := range header {
		columns[i] = strings.TrimSpace(cell)
	}

	table := &Table{Columns: columns}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(record) > len(columns) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("row at line %d has %d fields, header has %d", line, len(record), len(columns))
		}
		row := make([]string, len(columns))
		copy(row, record)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
