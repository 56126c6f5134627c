// pkg/api/response.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/persistence"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/reconcile"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ResponseWriter writes consistent API responses.
type ResponseWriter struct {
	Writer http.ResponseWriter
	logger *zap.SugaredLogger
}

func newResponseWriter(w http.ResponseWriter, logger *zap.SugaredLogger) *ResponseWriter {
	return &ResponseWriter{Writer: w, logger: logger}
}

// SendJSON sends a JSON response with the given status code and data
func (rw *ResponseWriter) SendJSON(statusCode int, data interface{}) {
	rw.Writer.Header().Set("Content-Type", "application/json")
	rw.Writer.WriteHeader(statusCode)
	if err := json.NewEncoder(rw.Writer).Encode(data); err != nil {
		rw.logger.Errorf("Failed to encode response: %v", err)
	}
}

// SendSuccess sends a successful API response
func (rw *ResponseWriter) SendSuccess(statusCode int, message string, data interface{}) {
	rw.SendJSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendError sends an error API response
func (rw *ResponseWriter) SendError(statusCode int, message string) {
	rw.SendJSON(statusCode, Response{
		Success: false,
		Error:   message,
	})
}

// SendStoreError maps err onto a status code. Unexpected errors are logged
// and hidden behind a generic message.
func (rw *ResponseWriter) SendStoreError(err error, fallback string) {
	switch {
	case errors.Is(err, persistence.ErrValidation):
		rw.SendError(http.StatusBadRequest, err.Error())
	case errors.Is(err, persistence.ErrNotFound):
		rw.SendError(http.StatusNotFound, err.Error())
	case errors.Is(err, persistence.ErrConflict):
		rw.SendError(http.StatusConflict, err.Error())
	case errors.Is(err, reconcile.ErrReconciliationFailed):
		rw.logger.Errorf("%s: %v", fallback, err)
		rw.SendError(http.StatusBadGateway, fallback)
	default:
		rw.logger.Errorf("%s: %v", fallback, err)
		rw.SendError(http.StatusInternalServerError, fallback)
	}
}
