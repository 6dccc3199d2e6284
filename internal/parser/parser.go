package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/record"
)

// Parser reads one spreadsheet format into a Table.
type Parser interface {
	CanParse(filename string) bool
	Parse(r io.Reader, opt Options) (*Table, error)
}

// Options bound how much of a file is read.
type Options struct {
	MaxRows int    // data rows kept; 0 keeps all
	Sheet   string // xlsx sheet; empty selects the first
}

// Table is a header row plus string cells, as read from disk.
type Table struct {
	Name      string
	Sheet     string
	Headers   []string
	Rows      [][]string
	Truncated bool
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

func init() {
	Register(csvParser{})
	Register(xlsxParser{})
}

// ErrUnsupported indicates a format is not supported yet.
var ErrUnsupported = errors.New("unsupported spreadsheet format")

// ParseFile selects a parser based on filename and reads the file.
func ParseFile(path string, opt Options) (*Table, error) {
	for _, p := range registry {
		if !p.CanParse(path) {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		t, err := p.Parse(f, opt)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		t.Name = filepath.Base(path)
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

// Records converts rows into records keyed by header. Cells that parse as
// numbers become numbers and empty cells become null, the way the backend
// types the uploaded columns.
func (t *Table) Records() []record.Record {
	out := make([]record.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		var r record.Record
		for i, h := range t.Headers {
			cell := ""
			if i < len(row) {
				cell = strings.TrimSpace(row[i])
			}
			r.Set(h, cellValue(cell))
		}
		out = append(out, r)
	}
	return out
}

func cellValue(s string) record.Value {
	if s == "" {
		return record.NullValue()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return record.NumberValue(f)
	}
	return record.StringValue(s)
}

// headersFrom trims header cells and names blank ones Column_N. Duplicate
// names get a numeric suffix so records keep one key per column.
func headersFrom(row []string) []string {
	seen := make(map[string]int, len(row))
	headers := make([]string, len(row))
	for i, h := range row {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 1
		}
		headers[i] = h
	}
	return headers
}

func keep(rows [][]string, opt Options) ([][]string, bool) {
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		return rows[:opt.MaxRows], true
	}
	return rows, false
}
