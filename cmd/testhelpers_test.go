package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/feerecon/internal/config"
	"github.com/sells-group/feerecon/internal/directory"
	"github.com/sells-group/feerecon/internal/model"
)

// writeXLSX builds a workbook with the given sheets and writes it under dir.
func writeXLSX(t *testing.T, dir, name string, sheets map[string][][]any) string {
	t.Helper()
	f := xlsx.NewFile()
	for sheetName, rows := range sheets {
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
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func newTestStore(t *testing.T) directory.Store {
	t.Helper()
	st, err := directory.NewSQLite(filepath.Join(t.TempDir(), "dir.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// productOracle multiplies hours by rate.
type productOracle struct{ calls int }

func (o *productOracle) Compute(_ context.Context, reqs []model.CalcRequest) ([]model.Amount, error) {
	o.calls++
	out := make([]model.Amount, len(reqs))
	for i, r := range reqs {
		h, err1 := strconv.ParseFloat(r.Hours, 64)
		s, err2 := strconv.ParseFloat(r.Rate, 64)
		if err1 != nil || err2 != nil {
			out[i] = model.AmountFailed()
			continue
		}
		out[i] = model.AmountOf(h * s)
	}
	return out, nil
}

// withConfig installs c as the global config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "feerecon.db")
	c.Oracle.Provider = "anthropic"
	c.Oracle.BatchSize = 30
	c.Oracle.Concurrency = 2
	c.Oracle.MaxAttempts = 1
	c.Oracle.TimeoutSecs = 5
	c.Oracle.MaxTokens = 512
	c.Anthropic.Key = "sk-ant-test"
	c.Anthropic.Model = "claude-haiku-4-5-20251001"
	c.OpenAI.Key = "sk-test"
	c.OpenAI.BaseURL = "https://api.deepseek.com/v1"
	c.OpenAI.Model = "deepseek-chat"
	c.Server.Port = 8080
	c.Server.MaxUploadMB = 32
	return c
}
