package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/consentcrawl/surface"
)

// Messages of CDP errors raised when the node or its document went away
// between two calls. They are DOM timing, not session faults.
var detachedMessages = []string{
	"Execution context was destroyed",
	"Cannot find context with specified id",
	"Could not find node with given id",
	"Node is detached from document",
	"No node with given id found",
	"Frame with the given id was not found",
}

// classify maps a rod error onto the surface error kinds: deadlines become
// ErrTimeout, layout refusals ErrNotVisible, vanished nodes ErrDetached, and
// everything else is fatal for the session.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, surface.ErrTimeout)
	}

	var notInteractable *rod.NotInteractableError
	var invisible *rod.InvisibleShapeError
	var covered *rod.CoveredError
	if errors.As(err, &notInteractable) || errors.As(err, &invisible) || errors.As(err, &covered) {
		return fmt.Errorf("%s: %w: %v", op, surface.ErrNotVisible, err)
	}

	var objectGone *rod.ObjectNotFoundError
	if errors.As(err, &objectGone) {
		return fmt.Errorf("%s: %w: %v", op, surface.ErrDetached, err)
	}
	msg := err.Error()
	for _, m := range detachedMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%s: %w: %v", op, surface.ErrDetached, err)
		}
	}

	return surface.Fatal(op, err)
}
