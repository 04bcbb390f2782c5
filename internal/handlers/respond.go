package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/platform/httpx"
	"github.com/atelier-market/api/internal/platform/pagination"
	"github.com/atelier-market/api/internal/platform/requestctx"
	"github.com/atelier-market/api/internal/services"
)

const maxJSONBodySize = 32 * 1024

// writeServiceError maps the service error taxonomy onto the JSON envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var windowErr *services.ReturnWindowError
	switch {
	case errors.As(err, &windowErr):
		httpx.WriteError(ctx, w, httpx.NewError("return_window_expired", err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"window_days": windowErr.WindowDays()}))
	case errors.Is(err, services.ErrWindowExpired):
		httpx.WriteError(ctx, w, httpx.NewError("return_window_expired", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInsufficientStock):
		apiErr := httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict)
		if productID, available, ok := services.StockShortfall(err); ok {
			apiErr = apiErr.WithDetails(map[string]any{"product_id": productID, "available": available})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", err.Error(), http.StatusUnauthorized))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", err.Error(), http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unexpected service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError).
			WithDetails(map[string]any{"detail": err.Error()}))
	}
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// decodeBody reads a JSON body into dst and writes the envelope on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, maxJSONBodySize, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.BodyError(err))
		return false
	}
	return true
}

// principal returns the principal resolved by the auth middleware; handlers mounted without
// it answer 401.
func principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Principal{}, false
	}
	return p, true
}

func pathParam(w http.ResponseWriter, r *http.Request, value, name string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", name+" is required", http.StatusBadRequest))
		return "", false
	}
	return value, true
}

func writePaginationError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func listPagination(r *http.Request) (domain.Pagination, error) {
	params, err := pagination.Parse(r.URL.Query(), pagination.Options{})
	if err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, nil
}

// parseStatuses reads repeated or comma separated status filters.
func parseStatuses[S ~string](values []string, parse func(string) (S, bool)) ([]S, error) {
	var out []S
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := parse(part)
			if !ok {
				return nil, errors.New("unknown status " + strings.TrimSpace(part))
			}
			out = append(out, status)
		}
	}
	return out, nil
}

func invalidStatus(value string) error {
	return fmt.Errorf("%w: unknown status %q", services.ErrValidation, strings.TrimSpace(value))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
