package domain

import (
	"errors"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	err := NotFoundf("entry %d", 7)
	if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		t.Fatalf("expected only not found, got %v", err)
	}
	if err.Error() != "entry 7" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("unexpected kind %q", kind)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("plain errors have no kind")
	}
}

func TestReclassifiedErrorKeepsOneKind(t *testing.T) {
	cause := errors.New("no rows")
	notFound := NotFoundf("get snapshot: %w", cause)

	err := Conflictf("proposal p1: %w", notFound)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("expected the inner kind to be dropped, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the root cause to stay reachable")
	}
	if err.Error() != "proposal p1: get snapshot: no rows" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if kind, _ := KindOf(err); kind != KindConflict {
		t.Fatalf("unexpected kind %q", kind)
	}
}
