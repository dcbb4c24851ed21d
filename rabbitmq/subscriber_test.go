package rabbitmq

import (
	"errors"
	"fmt"
	"testing"
)

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should stay nil")
	}

	base := errors.New("bad payload")
	err := Permanent(base)
	if !isPermanent(err) {
		t.Error("Permanent(err) not recognized as permanent")
	}
	if !errors.Is(err, base) {
		t.Error("Permanent(err) should unwrap to the original error")
	}

	wrapped := fmt.Errorf("while handling event: %w", err)
	if !isPermanent(wrapped) {
		t.Error("permanence should survive further wrapping")
	}

	if isPermanent(errors.New("plain")) {
		t.Error("plain error misclassified as permanent")
	}
}
