package pipeline

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/feerecon/internal/model"
)

func buildXLSX(t *testing.T, sheetName string, rows [][]any) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheetName)
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
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

type mapLookup struct {
	mu    sync.Mutex
	dir   map[string][]model.Profile
	err   error
	calls int
}

func (m *mapLookup) FindByNames(_ context.Context, names []string) (map[string][]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string][]model.Profile)
	for _, n := range names {
		if ps, ok := m.dir[n]; ok {
			out[n] = ps
		}
	}
	return out, nil
}

type tableOracle struct {
	mu      sync.Mutex
	answers map[model.CalcRequest]float64
	failAll bool
	batches int
}

func (o *tableOracle) Compute(_ context.Context, reqs []model.CalcRequest) ([]model.Amount, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches++
	if o.failAll {
		return []model.Amount{model.AmountOf(1)}, nil // wrong length
	}
	out := make([]model.Amount, len(reqs))
	for i, r := range reqs {
		if v, ok := o.answers[r]; ok {
			out[i] = model.AmountOf(v)
		}
	}
	return out, nil
}
