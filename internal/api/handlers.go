package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/pipeline"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var errUploadTooLarge = eris.New("upload too large")

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

// handleUpload runs the pipeline inline and streams the annotated workbook.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	in, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, out, err := s.tracker.RunSync(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-Task-ID", id)
	writeWorkbook(w, out.Filename, out.Contents)
}

func (s *Server) handleUploadAsync(w http.ResponseWriter, r *http.Request) {
	in, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.tracker.Submit(in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, http.StatusAccepted, "task submitted", map[string]string{
		"task_id": id,
		"status":  "pending",
	})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.tracker.Poll(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, state.Message, state)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, name, err := s.tracker.Fetch(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Task-ID", id)
	writeWorkbook(w, name, data)
}

func (s *Server) handleEmployeesByName(w http.ResponseWriter, r *http.Request) {
	name := model.NormalizeName(pathParam(r, "name"))
	if name == "" {
		writeError(w, eris.Wrap(model.ErrInputValidation, "api: name is required"))
		return
	}

	found, err := s.lookup.FindByNames(r.Context(), []string{name})
	if err != nil {
		writeError(w, eris.Wrapf(model.ErrLookupFailure, "api: find %q: %v", name, err))
		return
	}

	profiles := found[name]
	if profiles == nil {
		profiles = []model.Profile{}
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d profiles", len(profiles)), profiles)
}

// readUpload pulls the "file" part and the sheet name out of the request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.Input, error) {
	if r.ContentLength > s.maxUpload {
		return pipeline.Input{}, eris.Wrapf(errUploadTooLarge, "api: %d bytes", r.ContentLength)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.Input{}, eris.Wrap(errUploadTooLarge, "api: read upload")
		}
		return pipeline.Input{}, eris.Wrapf(model.ErrInputValidation, "api: multipart field \"file\": %v", err)
	}
	defer file.Close() //nolint:errcheck

	contents, err := io.ReadAll(file)
	if err != nil {
		return pipeline.Input{}, eris.Wrap(err, "api: read upload")
	}

	in := pipeline.Input{
		Contents:  contents,
		SheetName: pathParam(r, "sheet"),
		Filename:  header.Filename,
	}
	if hr := r.URL.Query().Get("header_row"); hr != "" {
		n, err := strconv.Atoi(hr)
		if err != nil || n < 0 {
			return pipeline.Input{}, eris.Wrapf(model.ErrInputValidation, "api: invalid header_row %q", hr)
		}
		in.HeaderRow = n
	}
	return in, nil
}

// pathParam returns the decoded URL parameter. chi matches against
// RawPath when the request carried one and the param is still escaped;
// otherwise it matched the already decoded Path and must not be decoded
// twice.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func writeWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// contentDisposition carries an ASCII fallback plus the RFC 5987 UTF-8 name.
func contentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", fallback, url.PathEscape(filename))
}
