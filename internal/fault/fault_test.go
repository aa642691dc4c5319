package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCarriesCodeAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New(KindUpstream, "linking.resolve", "link_save_failed", cause)

	if err.Code() != "linking.resolve.link_save_failed" {
		t.Fatalf("unexpected code %q", err.Code())
	}
	if err.Kind() != KindUpstream {
		t.Fatalf("unexpected kind %v", err.Kind())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if err.Error() != "linking.resolve.link_save_failed: disk full" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(KindValidation, "syncing.reconcile", "missing_identity", nil)
	if err.Error() != "syncing.reconcile.missing_identity" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestKindOfWalksWrappedChain(t *testing.T) {
	inner := New(KindConflict, "linking.resolve", "account_linked_elsewhere", nil)
	wrapped := fmt.Errorf("handler: %w", inner)

	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected conflict kind, got %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected unknown kind for plain error")
	}
}

func TestKindNames(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindNotFound, "not_found"},
		{KindConflict, "conflict"},
		{KindValidation, "validation"},
		{KindUpstream, "upstream"},
		{KindUnauthorized, "unauthorized"},
		{KindUnknown, "unknown"},
	}
	for _, tc := range tests {
		if tc.kind.String() != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, tc.kind.String())
		}
	}
}
