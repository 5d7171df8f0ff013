package dsv

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	err := NewError(InvalidSelection, "step must be positive, got %d", 0)
	if !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected error to match invalid selection sentinel\n")
	}
	if errors.Is(err, ErrShapeMismatch) {
		t.Errorf("error should not match shape mismatch sentinel\n")
	}
	wrapped := fmt.Errorf("reading dataset: %w", err)
	if KindOf(wrapped) != InvalidSelection {
		t.Errorf("expected kind %s through wrapping, got %s\n", InvalidSelection, KindOf(wrapped))
	}
	if KindOf(errors.New("disk on fire")) != StorageFault {
		t.Errorf("unstructured errors should be storage faults\n")
	}

	cause := errors.New("key missing")
	werr := WrapError(NotFound, cause, "dataset %s", "abc")
	if !errors.Is(werr, cause) {
		t.Errorf("wrapped error should unwrap to its cause\n")
	}
	if werr.Error() != "not found: dataset abc: key missing" {
		t.Errorf("bad error message: %s\n", werr.Error())
	}
	if !ShapeMismatch.IsClientFault() || NotImplemented.IsClientFault() {
		t.Errorf("bad client fault classification\n")
	}
}
