// Package httpx holds the JSON envelope helpers shared by every HTTP handler.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/atelier-market/api/internal/platform/requestctx"
)

// DefaultBodyLimit bounds JSON request bodies when handlers do not set their own limit.
const DefaultBodyLimit int64 = 64 * 1024

var (
	// ErrEmptyBody reports a request without a JSON body.
	ErrEmptyBody = errors.New("request body is empty")
	// ErrBodyTooLarge reports a body exceeding the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// Error is the canonical JSON error envelope returned by the API.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError constructs an Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable fields merged into the envelope.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = maps.Clone(details)
	return e
}

// WriteError writes the structured error as JSON, tagging it with request and trace identifiers.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := make(map[string]any, len(err.Details)+5)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	if id := sanitize(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if traceID := sanitize(requestctx.TraceID(ctx), 64); traceID != "" {
		payload["trace_id"] = traceID
	}
	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload with the given status. A nil payload writes only the status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// DecodeJSON reads at most limit bytes and unmarshals them into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	if r.Body == nil {
		return ErrEmptyBody
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > limit {
		return ErrBodyTooLarge
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return ErrEmptyBody
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// BodyError converts a DecodeJSON failure into the envelope clients receive.
func BodyError(err error) Error {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrEmptyBody):
		return NewError("invalid_request", "request body is required", http.StatusBadRequest)
	default:
		return NewError("invalid_json", "request body must be valid JSON", http.StatusBadRequest)
	}
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
