// Package sheet reads fee sheets into records and writes annotated records
// back to xlsx.
package sheet

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/feerecon/internal/model"
)

// ReadOptions configures ReadRecords.
type ReadOptions struct {
	SheetName string // required
	HeaderRow int    // zero-based row holding column names
}

// Table is the parsed content of one sheet.
type Table struct {
	Header  []string
	Records []*model.Record
}

// ReadRecords parses an xlsx workbook held in memory and returns the rows
// below the header of the named sheet as records, in sheet order. Rows with
// no values at all are not records.
func ReadRecords(contents []byte, opts ReadOptions) (*Table, error) {
	f, err := xlsx.OpenBinary(contents)
	if err != nil {
		return nil, eris.Wrapf(model.ErrInputValidation, "sheet: open workbook: %v", err)
	}

	sheet, err := getSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	if opts.HeaderRow < 0 || opts.HeaderRow >= len(sheet.Rows) {
		return &Table{}, nil
	}

	header, cols := headerColumns(sheet.Rows[opts.HeaderRow])
	t := &Table{Header: header}

	for _, row := range sheet.Rows[opts.HeaderRow+1:] {
		if row == nil {
			continue
		}
		rec := model.NewRecord()
		empty := true
		for j, name := range cols {
			if name == "" {
				continue
			}
			var v any
			if j < len(row.Cells) {
				v = cellValue(row.Cells[j])
			}
			if v != nil {
				empty = false
			}
			rec.Set(name, v)
		}
		if empty {
			continue
		}
		t.Records = append(t.Records, rec)
	}

	return t, nil
}

// SheetNames lists the sheets of an in-memory workbook in file order.
func SheetNames(contents []byte) ([]string, error) {
	f, err := xlsx.OpenBinary(contents)
	if err != nil {
		return nil, eris.Wrapf(model.ErrInputValidation, "sheet: open workbook: %v", err)
	}
	names := make([]string, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		names = append(names, s.Name)
	}
	return names, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		return nil, eris.Wrap(model.ErrInputValidation, "sheet: sheet name is required")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Wrapf(model.ErrInputValidation, "sheet: sheet %q not found", name)
	}
	return sheet, nil
}

// headerColumns returns the distinct, non-blank header names and a
// per-column name slice ("" for skipped columns). Repeated names get a
// ".N" suffix.
func headerColumns(row *xlsx.Row) ([]string, []string) {
	if row == nil {
		return nil, nil
	}
	seen := make(map[string]int)
	var header []string
	cols := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		name := strings.TrimSpace(cell.String())
		if name == "" {
			continue
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		cols[j] = name
		header = append(header, name)
	}
	return header, cols
}

func cellValue(c *xlsx.Cell) any {
	if c == nil {
		return nil
	}
	switch c.Type() {
	case xlsx.CellTypeNumeric:
		if f, err := c.Float(); err == nil {
			return f
		}
	case xlsx.CellTypeBool:
		return c.Bool()
	}
	s := c.String()
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
