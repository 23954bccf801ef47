package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/pipeline"
	"github.com/sells-group/feerecon/internal/task"
)

type mockLookup struct{ mock.Mock }

func (m *mockLookup) FindByNames(ctx context.Context, names []string) (map[string][]model.Profile, error) {
	args := m.Called(ctx, names)
	found, _ := args.Get(0).(map[string][]model.Profile)
	return found, args.Error(1)
}

type runnerFunc func(ctx context.Context, in pipeline.Input, progress func(pipeline.Phase)) (*pipeline.Output, error)

func (f runnerFunc) Run(ctx context.Context, in pipeline.Input, progress func(pipeline.Phase)) (*pipeline.Output, error) {
	return f(ctx, in, progress)
}

// echoRunner returns the sheet name as the workbook body.
func echoRunner() runnerFunc {
	return func(_ context.Context, in pipeline.Input, progress func(pipeline.Phase)) (*pipeline.Output, error) {
		progress(pipeline.PhaseReading)
		progress(pipeline.PhaseProcessing)
		progress(pipeline.PhaseWriting)
		return &pipeline.Output{
			Contents: []byte("sheet=" + in.SheetName),
			Filename: pipeline.OutputFilename(in.Filename),
			Report:   pipeline.Report{OutputRecords: 2},
		}, nil
	}
}

func newTestServer(t *testing.T, runner task.Runner, lookup *mockLookup, maxUpload int64) (*httptest.Server, *task.Tracker) {
	t.Helper()
	tracker := task.NewTracker(context.Background(), task.NewMemoryRegistry(), runner, time.Hour)
	srv := NewServer(tracker, lookup, Options{MaxUploadBytes: maxUpload})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		tracker.Wait()
	})
	return ts, tracker
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, ts *httptest.Server, path, filename string, content []byte) *http.Response {
	t.Helper()
	body, ctype := multipartBody(t, "file", filename, content)
	resp, err := http.Post(ts.URL+path, ctype, body)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) Envelope {
	t.Helper()
	defer resp.Body.Close()
	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
}

func TestUploadSync(t *testing.T) {
	ts, tracker := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	resp := upload(t, ts, "/api/excel/upload/"+url.PathEscape("考务费"), "二月.xlsx", []byte("PK"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "filename*=UTF-8''processed_")
	assert.Equal(t, "sheet=考务费", string(readBody(t, resp)))

	id := resp.Header.Get("X-Task-ID")
	require.NotEmpty(t, id)
	state, err := tracker.Poll(id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, state.Status)
}

func TestUploadSync_SheetNameDecodedOnce(t *testing.T) {
	ts, _ := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	cases := map[string]string{
		"literal percent": "折扣%41",
		"escaped slash":   "一月/二月",
	}
	for name, sheet := range cases {
		t.Run(name, func(t *testing.T) {
			resp := upload(t, ts, "/api/excel/upload/"+url.PathEscape(sheet), "fees.xlsx", []byte("PK"))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "sheet="+sheet, string(readBody(t, resp)))
		})
	}
}

func TestUploadSync_RejectsXLS(t *testing.T) {
	ts, tracker := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	resp := upload(t, ts, "/api/excel/upload/Sheet1", "legacy.xls", []byte("\xd0\xcf"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Empty(t, tracker.List())
}

func TestUploadSync_MissingFile(t *testing.T) {
	ts, _ := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	body, ctype := multipartBody(t, "attachment", "fees.xlsx", []byte("PK"))
	resp, err := http.Post(ts.URL+"/api/excel/upload/Sheet1", ctype, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadSync_TooLarge(t *testing.T) {
	ts, _ := newTestServer(t, echoRunner(), &mockLookup{}, 1024)

	resp := upload(t, ts, "/api/excel/upload/Sheet1", "fees.xlsx", bytes.Repeat([]byte("x"), 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadSync_BadHeaderRow(t *testing.T) {
	ts, _ := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	resp := upload(t, ts, "/api/excel/upload/Sheet1?header_row=-2", "fees.xlsx", []byte("PK"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadSync_PipelineErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing sheet", errors.Join(model.ErrInputValidation, errors.New("sheet not found")), http.StatusBadRequest},
		{"directory down", model.ErrLookupFailure, http.StatusBadGateway},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := runnerFunc(func(context.Context, pipeline.Input, func(pipeline.Phase)) (*pipeline.Output, error) {
				return nil, tc.err
			})
			ts, _ := newTestServer(t, runner, &mockLookup{}, 0)

			resp := upload(t, ts, "/api/excel/upload/Sheet1", "fees.xlsx", []byte("PK"))
			assert.Equal(t, tc.want, resp.StatusCode)
			env := decodeEnvelope(t, resp)
			assert.False(t, env.Success)
		})
	}
}

func TestUploadAsync_PollAndDownload(t *testing.T) {
	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, in pipeline.Input, progress func(pipeline.Phase)) (*pipeline.Output, error) {
		progress(pipeline.PhaseReading)
		<-release
		return echoRunner()(ctx, in, progress)
	})
	ts, _ := newTestServer(t, runner, &mockLookup{}, 0)

	resp := upload(t, ts, "/api/excel/upload-async/Sheet1", "fees.xlsx", []byte("PK"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	id, _ := data["task_id"].(string)
	require.NotEmpty(t, id)

	// Not ready while the runner is blocked.
	resp, err := http.Get(ts.URL + "/api/excel/download/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	close(release)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/excel/task/" + id)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var env Envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return false
		}
		state, _ := env.Data.(map[string]any)
		return state["status"] == "completed" && state["progress"] == float64(100)
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get(ts.URL + "/api/excel/download/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "processed_fees.xlsx")
	assert.Equal(t, "sheet=Sheet1", string(readBody(t, resp)))
}

func TestTaskStatus_Unknown(t *testing.T) {
	ts, _ := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	resp, err := http.Get(ts.URL + "/api/excel/task/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/excel/download/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestEmployeesByName(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("FindByNames", mock.Anything, []string{"张三"}).Return(map[string][]model.Profile{
		"张三": {
			{ID: "p1", Name: "张三", IDCard: "110101199001011234"},
			{ID: "p2", Name: "张三", IDCard: "110101199202022345"},
		},
	}, nil)
	lookup.On("FindByNames", mock.Anything, []string{"李四"}).Return(map[string][]model.Profile{}, nil)
	lookup.On("FindByNames", mock.Anything, []string{"王五"}).Return(nil, errors.New("connection refused"))
	ts, _ := newTestServer(t, echoRunner(), lookup, 0)

	// Fullwidth space is folded before lookup.
	resp, err := http.Get(ts.URL + "/api/employees/name/" + url.PathEscape("张　三"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	list, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)

	resp, err = http.Get(ts.URL + "/api/employees/name/" + url.PathEscape("李四"))
	require.NoError(t, err)
	env = decodeEnvelope(t, resp)
	list, ok = env.Data.([]any)
	require.True(t, ok, "empty result is an empty list")
	assert.Empty(t, list)

	resp, err = http.Get(ts.URL + "/api/employees/name/" + url.PathEscape("王五"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	lookup.AssertExpectations(t)
}

func TestEmployeesByName_PercentInName(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("FindByNames", mock.Anything, []string{"100%完成"}).
		Return(map[string][]model.Profile{"100%完成": {{ID: "p1", Name: "100%完成"}}}, nil).Once()
	lookup.On("FindByNames", mock.Anything, []string{"张%41"}).
		Return(map[string][]model.Profile{}, nil).Once()
	ts, _ := newTestServer(t, echoRunner(), lookup, 0)

	for _, name := range []string{"100%完成", "张%41"} {
		resp, err := http.Get(ts.URL + "/api/employees/name/" + url.PathEscape(name))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, name)
		resp.Body.Close()
	}

	lookup.AssertExpectations(t)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, echoRunner(), &mockLookup{}, 0)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/excel/upload/Sheet1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestContentDisposition(t *testing.T) {
	got := contentDisposition("processed_二月.xlsx")
	assert.Contains(t, got, `filename="processed___.xlsx"`)
	assert.Contains(t, got, "filename*=UTF-8''processed_%E4%BA%8C%E6%9C%88.xlsx")
}
