package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/atelier-market/api/internal/repositories"
)

var (
	// ErrValidation reports malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated reports missing or rejected credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden reports an authenticated actor without authority over the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound reports a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock reports a stock shortfall; see StockShortfall for details.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState reports an operation not allowed in the resource's current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrWindowExpired reports a return requested after the return window.
	ErrWindowExpired = errors.New("return window expired")
	// ErrUnavailable reports a transient backend failure.
	ErrUnavailable = errors.New("service unavailable")
)

// StockShortfall extracts the product and available quantity from an ErrInsufficientStock error.
func StockShortfall(err error) (productID string, available int, ok bool) {
	stockErr, ok := repositories.AsInsufficientStock(err)
	if !ok {
		return "", 0, false
	}
	return stockErr.ProductID, stockErr.Available, true
}

// ReturnWindowError is returned when the return window elapsed.
type ReturnWindowError struct {
	Window time.Duration
}

func (e *ReturnWindowError) Error() string {
	return fmt.Sprintf("%s: returns are accepted within %d days of delivery", ErrWindowExpired, e.WindowDays())
}

func (e *ReturnWindowError) Unwrap() error { return ErrWindowExpired }

// WindowDays reports the window length in whole days.
func (e *ReturnWindowError) WindowDays() int {
	return int(math.Round(e.Window.Hours() / 24))
}

// mapRepoError translates repository failures into the service taxonomy.
func mapRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := repositories.AsInsufficientStock(err); ok {
		return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
