package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrMissingColumn = errors.New("missing column")

// Table is the first sheet of a workbook with its header row split off.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

func ReadTable(path string) (*Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ReadTableFrom(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ReadTableFrom(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	t := &Table{Sheet: sheets[0]}
	if len(rows) == 0 {
		return t, nil
	}
	t.Headers = normalizeCells(rows[0])
	for _, row := range rows[1:] {
		cells := normalizeCells(row)
		if isBlank(cells) {
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

// Index returns the position of the first header equal (ignoring case) to
// one of names, or -1.
func (t *Table) Index(names ...string) int {
	for _, name := range names {
		for i, h := range t.Headers {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

// MustIndex is Index that reports a missing column as ErrMissingColumn.
func (t *Table) MustIndex(names ...string) (int, error) {
	if idx := t.Index(names...); idx >= 0 {
		return idx, nil
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(names, " / "))
}

func pickCell(cells []string, idx int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, strings.TrimSpace(c))
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
