package combat

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	wrapped := fmt.Errorf("start encounter: %w", ErrAlreadyActive.WithMessage("encounter already active for %s", "p1"))

	if !errors.Is(wrapped, ErrAlreadyActive) {
		t.Fatalf("expected wrapped error to match ErrAlreadyActive")
	}
	if errors.Is(wrapped, ErrNotYourTurn) {
		t.Errorf("wrapped error should not match ErrNotYourTurn")
	}
	if got := KindOf(wrapped); got != KindStateConflict {
		t.Errorf("KindOf() = %q, want %q", got, KindStateConflict)
	}
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("disk full")
	err := PersistenceError("apply currency", cause)

	if !errors.Is(err, ErrPersistence) {
		t.Errorf("expected ErrPersistence match")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be unwrapped")
	}
	if KindOf(err) != KindPersistence {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindPersistence)
	}
	if err.Error() != "failed to apply currency: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
	if PersistenceError("noop", nil) != nil {
		t.Errorf("nil cause should produce nil error")
	}
}

func TestKindOf_NonCombatError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf() = %q, want empty", got)
	}
}
