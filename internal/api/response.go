package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/task"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Success bool   `json:"success"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Code: status, Message: message, Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, Envelope{Code: status, Message: err.Error(), Success: false})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, model.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrTaskNotReady), errors.Is(err, task.ErrTaskFailed):
		return http.StatusConflict
	case errors.Is(err, model.ErrLookupFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
