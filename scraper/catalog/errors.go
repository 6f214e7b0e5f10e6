package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

var (
	// ErrSessionLost means the browser session became unusable. It is fatal
	// to the run; listings captured before the loss are still returned.
	ErrSessionLost = errors.New("browser session lost")

	// ErrElementNotFound means a strategy's target element is absent. It
	// only skips that strategy for the current iteration.
	ErrElementNotFound = errors.New("element not found")

	// ErrNoListingsFound means no listing element was ever observed, which
	// usually points at a selector/layout mismatch.
	ErrNoListingsFound = errors.New("no listings found")

	// ErrCaptureIncomplete means the page converged but the listing texts
	// could not be read back, so only an earlier snapshot is available.
	ErrCaptureIncomplete = errors.New("listing capture incomplete")
)

// lostMarkers are fragments of CDP/websocket errors emitted once the target
// or the browser process is gone.
var lostMarkers = []string{
	"target closed",
	"session closed",
	"websocket: close",
	"use of closed network connection",
	"broken pipe",
	"connection reset",
	"no such target",
	"cannot find context with specified id",
}

// classify wraps err as ErrSessionLost when it indicates the session is gone.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionLost) || errors.Is(err, ErrElementNotFound) {
		return err
	}
	if isSessionLoss(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrSessionLost, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isSessionLoss(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, chromedp.ErrInvalidContext),
		errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidTarget):
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range lostMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
