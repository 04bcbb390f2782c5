package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error implements repositories.RepositoryError for Firestore backed repositories.
type Error struct {
	op   string
	err  error
	code codes.Code
}

func (e *Error) Error() string {
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.code == codes.NotFound }

// IsConflict reports whether the error represents an existing document or a failed precondition.
func (e *Error) IsConflict() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return true
	}
	return false
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError annotates gRPC status errors with repository semantics. Context cancellations and
// errors raised by application code inside transactions pass through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.OK, codes.Unknown:
		return err
	}
	return &Error{op: op, err: err, code: st.Code()}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
