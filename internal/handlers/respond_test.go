package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atelier-market/api/internal/repositories"
	"github.com/atelier-market/api/internal/services"
)

func TestWriteServiceErrorTaxonomy(t *testing.T) {
	stockErr := fmt.Errorf("%w: %w", services.ErrInsufficientStock, repositories.NewInsufficientStockError("prd_1", 4, 1))

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: quantity", services.ErrValidation), http.StatusBadRequest, "invalid_request"},
		{"unauthenticated", services.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", fmt.Errorf("%w: not yours", services.ErrForbidden), http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("%w: order", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", services.ErrConflict, http.StatusConflict, "conflict"},
		{"invalid state", services.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{"stock", stockErr, http.StatusConflict, "insufficient_stock"},
		{"window", &services.ReturnWindowError{Window: 14 * 24 * time.Hour}, http.StatusBadRequest, "return_window_expired"},
		{"unavailable", services.ErrUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(context.Background(), rr, tc.err)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := decodeErrorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestWriteServiceErrorDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(context.Background(), rr, &services.ReturnWindowError{Window: 14 * 24 * time.Hour})

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["window_days"] != float64(14) {
		t.Fatalf("expected window_days 14, got %v", body["window_days"])
	}
	if body["status"] != float64(http.StatusBadRequest) {
		t.Fatalf("expected status field 400, got %v", body["status"])
	}

	rr = httptest.NewRecorder()
	writeServiceError(context.Background(), rr, fmt.Errorf("%w: %w", services.ErrInsufficientStock, repositories.NewInsufficientStockError("prd_9", 3, 1)))
	body = map[string]any{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["product_id"] != "prd_9" || body["available"] != float64(1) {
		t.Fatalf("expected stock details, got %v", body)
	}
}

func TestParseStatuses(t *testing.T) {
	parse := func(raw string) (string, bool) {
		switch raw {
		case "pending", "shipped":
			return raw, true
		}
		return "", false
	}
	got, err := parseStatuses([]string{"pending,shipped", ""}, parse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "pending" || got[1] != "shipped" {
		t.Fatalf("unexpected statuses %v", got)
	}
	if _, err := parseStatuses([]string{"lost"}, parse); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
