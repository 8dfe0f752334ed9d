package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
)

// statusForError maps engine sentinels to HTTP status codes. Anything
// unrecognised is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrGeocode):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRouting), errors.Is(err, core.ErrNoBids):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrRegistryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorDetail hides internal error text behind a generic message.
func errorDetail(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, auctionapi.ErrorResponse{Detail: detail})
}

// writeError logs err and writes the mapped {detail} response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", fields...)
	} else {
		s.logger.Info("Request rejected", fields...)
	}
	writeDetail(w, status, errorDetail(status, err))
}
