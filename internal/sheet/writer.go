package sheet

import (
	"bytes"
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/sells-group/feerecon/internal/model"
)

// Highlight colors (ARGB).
const (
	DuplicateColor = "FFFF0000"
	UnmatchedColor = "FFFFFF00"
)

const minColumnPadding = 14

// Highlight is the row annotation class.
type Highlight int

const (
	HighlightNone Highlight = iota
	HighlightDuplicate
	HighlightUnmatched
)

// Annotations carries the highlight positions produced by reconciliation.
type Annotations struct {
	Duplicates [][]model.Position
	Unmatched  []model.Position
}

// RowForPosition maps an output position to the zero-based sheet row. Row 0
// holds the header, so position p lands on row p+1.
func RowForPosition(p model.Position) int {
	return int(p) + 1
}

// Highlights resolves the class of every position in [0, n). A position in
// both lists is treated as a duplicate; positions outside the range are
// ignored.
func Highlights(n int, ann Annotations) []Highlight {
	out := make([]Highlight, n)
	mark := func(p model.Position, h Highlight) {
		if int(p) < 0 || int(p) >= n {
			zap.L().Warn("sheet: highlight position out of range",
				zap.Int("position", int(p)),
				zap.Int("records", n),
			)
			return
		}
		out[p] = h
	}
	for _, p := range ann.Unmatched {
		mark(p, HighlightUnmatched)
	}
	for _, group := range ann.Duplicates {
		for _, p := range group {
			mark(p, HighlightDuplicate)
		}
	}
	return out
}

// ProjectColumns returns the output columns: the known columns present in
// the records, in first-seen order. When none of the known columns is
// present, every column is kept.
func ProjectColumns(records []*model.Record) []string {
	var all []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				all = append(all, k)
			}
		}
	}

	known := make(map[string]bool, len(model.KnownColumns))
	for _, c := range model.KnownColumns {
		known[c] = true
	}
	var cols []string
	for _, c := range all {
		if known[c] {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return all
	}
	return cols
}

// WriteRecords serializes records into a single-sheet xlsx workbook and
// applies the highlight fills by position.
func WriteRecords(sheetName string, records []*model.Record, ann Annotations) ([]byte, error) {
	f, err := BuildWorkbook(sheetName, records, ann)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "sheet: write workbook")
	}
	return buf.Bytes(), nil
}

// BuildWorkbook assembles the output workbook in memory.
func BuildWorkbook(sheetName string, records []*model.Record, ann Annotations) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheetName)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: add sheet %q", sheetName)
	}

	cols := ProjectColumns(records)
	widths := make([]int, len(cols))

	headerStyle := xlsx.NewStyle()
	headerStyle.Alignment = xlsx.Alignment{Horizontal: "center", Vertical: "center"}
	headerStyle.ApplyAlignment = true

	header := sh.AddRow()
	for j, c := range cols {
		cell := header.AddCell()
		cell.SetString(c)
		cell.SetStyle(headerStyle)
		widths[j] = displayWidth(c)
	}

	for _, r := range records {
		row := sh.AddRow()
		for j, c := range cols {
			cell := row.AddCell()
			v, _ := r.Get(c)
			setCell(cell, c, v)
			if w := displayWidth(model.FormatValue(v)); w > widths[j] {
				widths[j] = w
			}
		}
	}

	fills := map[Highlight]*xlsx.Style{
		HighlightDuplicate: fillStyle(DuplicateColor),
		HighlightUnmatched: fillStyle(UnmatchedColor),
	}
	for p, h := range Highlights(len(records), ann) {
		if h == HighlightNone {
			continue
		}
		row := sh.Rows[RowForPosition(model.Position(p))]
		for _, cell := range row.Cells {
			cell.SetStyle(fills[h])
		}
	}

	// Column numbers in the col store are 1-based.
	for j, w := range widths {
		sh.SetColWidth(j+1, j+1, float64(w+minColumnPadding))
	}

	return f, nil
}

func setCell(cell *xlsx.Cell, column string, v any) {
	switch t := v.(type) {
	case nil:
	case string:
		cell.SetString(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return
		}
		if column == model.FieldAmount {
			cell.SetFloatWithFormat(t, "0.00")
			return
		}
		cell.SetFloat(t)
	case bool:
		cell.SetBool(t)
	default:
		cell.SetString(model.FormatValue(t))
	}
}

func fillStyle(color string) *xlsx.Style {
	s := xlsx.NewStyle()
	s.Fill = *xlsx.NewFill("solid", color, color)
	s.ApplyFill = true
	return s
}

// displayWidth counts East Asian wide and fullwidth runes as two columns.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}
