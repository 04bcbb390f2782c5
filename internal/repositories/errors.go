package repositories

import (
	"errors"
	"fmt"
)

// InsufficientStockError reports that a conditional stock decrement could not be applied.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// NewInsufficientStockError constructs a typed stock shortfall error.
func NewInsufficientStockError(productID string, requested, available int) *InsufficientStockError {
	if available < 0 {
		available = 0
	}
	return &InsufficientStockError{ProductID: productID, Requested: requested, Available: available}
}

// AsInsufficientStock extracts a stock shortfall from err when present.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) && stockErr != nil {
		return stockErr, true
	}
	return nil, false
}

// Kind classifies a storage failure independently of the backing store.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindUnavailable
)

// StoreError is a backend-neutral RepositoryError used by in-memory implementations.
type StoreError struct {
	Op   string
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Kind == KindNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Kind == KindConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Kind == KindUnavailable }

// NotFound constructs a not-found StoreError.
func NotFound(op string, format string, args ...any) error {
	return &StoreError{Op: op, Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

// Conflict constructs a conflict StoreError.
func Conflict(op string, format string, args ...any) error {
	return &StoreError{Op: op, Kind: KindConflict, Err: fmt.Errorf(format, args...)}
}

// IsNotFound reports whether err is a RepositoryError for a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError for a uniqueness or precondition failure.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
