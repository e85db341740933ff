package apperr

import (
	"errors"
	"testing"
)

func TestInvalidWraps(t *testing.T) {
	cause := errors.New("section: cannot be blank")
	err := Invalid(cause)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("errors.Is(%v, ErrInvalid) = false", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost in %v", err)
	}
	if Invalid(nil) != nil {
		t.Error("Invalid(nil) should be nil")
	}
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("project_id %q is too long", "x")
	if !errors.Is(err, ErrInvalid) {
		t.Fatal("expected ErrInvalid")
	}
	if err.Error() != `invalid input: project_id "x" is too long` {
		t.Errorf("message = %q", err.Error())
	}
}
