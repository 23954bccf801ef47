package sheet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// buildXLSX creates an in-memory workbook. Cell values may be string,
// float64 or nil.
func buildXLSX(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sh, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sh.AddRow()
			for _, v := range rowData {
				cell := row.AddCell()
				switch tv := v.(type) {
				case string:
					cell.SetString(tv)
				case float64:
					cell.SetFloat(tv)
				}
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}
