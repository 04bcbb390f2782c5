package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapError(t *testing.T) {
	cases := []struct {
		code                            codes.Code
		notFound, conflict, unavailable bool
	}{
		{codes.NotFound, true, false, false},
		{codes.AlreadyExists, false, true, false},
		{codes.FailedPrecondition, false, true, false},
		{codes.Unavailable, false, false, true},
		{codes.PermissionDenied, false, false, false},
	}
	for _, tc := range cases {
		err := WrapError("op", status.Error(tc.code, "x"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification %+v", tc.code, repoErr)
		}
	}

	plain := errors.New("domain failure")
	if got := WrapError("op", plain); got != plain {
		t.Fatalf("expected application error to pass through, got %v", got)
	}
	if got := WrapError("op", status.Error(codes.Canceled, "x")); !errors.Is(got, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
}
