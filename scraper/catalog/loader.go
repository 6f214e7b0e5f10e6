package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"car-listing-scraper/utils"
)

// LoaderConfig holds the loader's dual-bound retry policy and pacing.
type LoaderConfig struct {
	ListingSelector string
	// MaxIterations is the absolute ceiling on iterations.
	MaxIterations int
	// StableThreshold is how many consecutive iterations without growth
	// count as convergence.
	StableThreshold int
	// Settle is the pause after each iteration for async rendering.
	Settle time.Duration
}

// LoaderState is the loader's convergence bookkeeping.
type LoaderState struct {
	RevealedCount    int
	StableIterations int
	Iteration        int
}

// Observe records one count reading and reports whether it grew.
func (st *LoaderState) Observe(count int) bool {
	st.Iteration++
	grew := count > st.RevealedCount
	if grew {
		st.StableIterations = 0
	} else {
		st.StableIterations++
	}
	st.RevealedCount = count
	return grew
}

// Done reports whether either cap has been reached.
func (st LoaderState) Done(cfg LoaderConfig) bool {
	return st.StableIterations >= cfg.StableThreshold || st.Iteration >= cfg.MaxIterations
}

// Observer is notified after every count reading. Returning ErrSessionLost
// aborts the loop; other errors are logged and ignored.
type Observer func(ctx context.Context, st LoaderState, grew bool) error

// Loader reveals every listing on a progressively loading page.
type Loader struct {
	cfg        LoaderConfig
	strategies []Strategy
	logger     *utils.Logger
	observer   Observer
	sleep      func(ctx context.Context, d time.Duration) error

	state LoaderState
}

// NewLoader builds a Loader that tries strategies in the given order on
// every iteration.
func NewLoader(cfg LoaderConfig, strategies []Strategy, logger *utils.Logger) *Loader {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.StableThreshold < 1 {
		cfg.StableThreshold = 1
	}
	return &Loader{
		cfg:        cfg,
		strategies: strategies,
		logger:     logger.With("loader"),
		sleep:      pause,
	}
}

// SetObserver installs fn as the per-iteration observer.
func (l *Loader) SetObserver(fn Observer) { l.observer = fn }

// State returns the bookkeeping of the most recent RevealAll call.
func (l *Loader) State() LoaderState { return l.state }

// RevealAll drives the page until the listing count stops growing or the
// iteration cap is hit, and returns the last observed count. On
// ErrSessionLost the count observed so far is returned with the error.
func (l *Loader) RevealAll(ctx context.Context, s Session) (int, error) {
	l.state = LoaderState{}
	seen := false

	for !l.state.Done(l.cfg) {
		for _, st := range l.strategies {
			changed, err := st.Attempt(ctx, s)
			if fatal := l.fatal(ctx, err); fatal != nil {
				l.logger.Error("%s aborted iteration %d: %v", st.Name(), l.state.Iteration+1, fatal)
				return l.state.RevealedCount, fatal
			}
			switch {
			case errors.Is(err, ErrElementNotFound):
				l.logger.Debug("%s skipped: %v", st.Name(), err)
			case err != nil:
				l.logger.Warn("%s failed: %v", st.Name(), err)
			default:
				l.logger.Debug("%s changed=%v", st.Name(), changed)
			}
		}

		count, err := s.Count(ctx, l.cfg.ListingSelector)
		if fatal := l.fatal(ctx, err); fatal != nil {
			l.logger.Error("count aborted iteration %d: %v", l.state.Iteration+1, fatal)
			return l.state.RevealedCount, fatal
		}
		if err != nil {
			l.logger.Warn("count failed, keeping %d: %v", l.state.RevealedCount, err)
			count = l.state.RevealedCount
		}

		grew := l.state.Observe(count)
		if count > 0 {
			seen = true
		}
		l.logger.Info("iteration %d: %d listings (stable %d/%d)",
			l.state.Iteration, count, l.state.StableIterations, l.cfg.StableThreshold)

		if l.observer != nil {
			err := l.observer(ctx, l.state, grew)
			if fatal := l.fatal(ctx, err); fatal != nil {
				return l.state.RevealedCount, fatal
			}
			if err != nil {
				l.logger.Warn("observer failed: %v", err)
			}
		}

		if l.state.Done(l.cfg) {
			break
		}
		if err := l.sleep(ctx, l.cfg.Settle); err != nil {
			return l.state.RevealedCount, fmt.Errorf("settle: %w: %v", ErrSessionLost, err)
		}
	}

	if l.state.StableIterations >= l.cfg.StableThreshold {
		l.logger.Info("converged after %d iterations with %d listings", l.state.Iteration, l.state.RevealedCount)
	} else {
		l.logger.Warn("hit iteration cap %d with %d listings still changing", l.cfg.MaxIterations, l.state.RevealedCount)
	}

	if !seen {
		return 0, fmt.Errorf("selector %q after %d iterations: %w", l.cfg.ListingSelector, l.state.Iteration, ErrNoListingsFound)
	}
	return l.state.RevealedCount, nil
}

// fatal returns a session-loss error if err or ctx says the run cannot go on.
func (l *Loader) fatal(ctx context.Context, err error) error {
	if errors.Is(err, ErrSessionLost) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrSessionLost, ctx.Err())
	}
	return nil
}
