package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// APIError is the error part of an envelope.
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	// Failed lists the validators that rejected a transition.
	Failed []string `json:"failed,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Data: data, Timestamp: time.Now().Unix()})
}

func writeError(w http.ResponseWriter, status int, e APIError) {
	writeJSON(w, status, Envelope{Status: statusError, Error: &e, Timestamp: time.Now().Unix()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, APIError{Code: "BAD_REQUEST", Message: msg})
}

// handleError maps a service error onto the envelope. Unexpected errors are
// logged with the request id and reported without detail.
func handleError(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *domain.ValidationError
		te *domain.TransitionError
		pe *domain.PermissionError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, APIError{Code: "VALIDATION", Message: "validation failed", Fields: ve.Fields()})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, APIError{Code: "VALIDATION", Message: err.Error()})
	case errors.As(err, &te):
		writeError(w, http.StatusUnprocessableEntity, APIError{Code: "TRANSITION_REJECTED", Message: te.Error(), Failed: te.Failed})
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, APIError{Code: "UNAUTHENTICATED", Message: "authentication required"})
	case errors.As(err, &pe):
		writeError(w, http.StatusForbidden, APIError{Code: "FORBIDDEN", Message: pe.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, APIError{Code: "FORBIDDEN", Message: "permission denied"})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, APIError{Code: "ALREADY_EXISTS", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, APIError{Code: "CONFLICT", Message: err.Error()})
	default:
		reqID := ctxutil.RequestIDFromCtx(r.Context())
		log.ErrorContext(r.Context(), "unexpected error",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
			slog.String("path", r.URL.Path),
		)
		writeError(w, http.StatusInternalServerError, APIError{Code: "INTERNAL", Message: "internal error"})
	}
}

// decodeBody reads a JSON object from r. A missing body decodes to an empty
// object.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

const maxBodyBytes = 1 << 20
