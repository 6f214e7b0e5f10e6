package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"car-listing-scraper/config"
	"car-listing-scraper/models"
	"car-listing-scraper/utils"
)

// RunStats describes how far a scrape got.
type RunStats struct {
	Revealed   int
	Iterations int
	// Partial is set when the returned listings come from the last snapshot
	// (or nothing at all) rather than a converged page.
	Partial bool
}

// Scraper orchestrates one catalog scrape: open a session, reveal every
// listing, then capture each listing's text once.
type Scraper struct {
	cfg        *config.Config
	logger     *utils.Logger
	newSession SessionFactory
	loader     *Loader
	retry      *utils.RetryConfig
	now        func() time.Time
}

// New creates a Scraper backed by a real Chrome session.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return NewWithSession(cfg, logger, ChromeSessionFactory(BrowserOptions{
		Headless:     cfg.Headless,
		ChromeBin:    cfg.ChromeBin,
		UserAgent:    cfg.UserAgent,
		PageLoadWait: cfg.PageLoadWait,
		ClickTimeout: cfg.ClickTimeout,
		Lifetime:     cfg.SessionTimeout,
	}))
}

// NewWithSession creates a Scraper that obtains its session from factory.
func NewWithSession(cfg *config.Config, logger *utils.Logger, factory SessionFactory) *Scraper {
	loader := NewLoader(LoaderConfig{
		ListingSelector: cfg.ListingSelector,
		MaxIterations:   cfg.MaxIterations,
		StableThreshold: cfg.StableIterations,
		Settle:          cfg.Settle,
	}, DefaultStrategies(cfg.ListingSelector, cfg.ScrollSteps, cfg.ScrollPause), logger)

	return &Scraper{
		cfg:        cfg,
		logger:     logger.With("scraper"),
		newSession: factory,
		loader:     loader,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
			Retryable:   func(err error) bool { return !errors.Is(err, ErrSessionLost) },
		},
		now: time.Now,
	}
}

// Loader exposes the underlying loader, e.g. to swap strategies.
func (s *Scraper) Loader() *Loader { return s.loader }

// Scrape runs the full acquisition sequence. On ErrSessionLost it returns the
// listings captured before the loss together with the error; callers must
// treat that result as incomplete.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.RawListing, *RunStats, error) {
	stats := &RunStats{}

	s.logger.Info("Starting scrape of %s (selector %q, caps %d/%d)",
		s.cfg.TargetURL, s.cfg.ListingSelector, s.cfg.MaxIterations, s.cfg.StableIterations)

	session, err := s.newSession(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("closing session: %v", err)
		}
	}()

	err = s.retry.Do(ctx, "navigate", func() error {
		return session.Navigate(ctx, s.cfg.TargetURL)
	})
	if err != nil {
		stats.Partial = errors.Is(err, ErrSessionLost)
		return nil, stats, err
	}

	var snapshot []*models.RawListing
	s.loader.SetObserver(func(ctx context.Context, st LoaderState, grew bool) error {
		if !grew {
			return nil
		}
		texts, err := session.Texts(ctx, s.cfg.ListingSelector)
		if err != nil {
			return err
		}
		snapshot = s.capture(texts)
		s.logger.Debug("snapshot of %d listings at iteration %d", len(snapshot), st.Iteration)
		return nil
	})

	revealed, err := s.loader.RevealAll(ctx, session)
	state := s.loader.State()
	stats.Revealed = revealed
	stats.Iterations = state.Iteration

	switch {
	case errors.Is(err, ErrSessionLost):
		stats.Partial = true
		s.logger.Error("Session lost at iteration %d with %d revealed; keeping %d captured listings",
			state.Iteration, revealed, len(snapshot))
		return snapshot, stats, err
	case err != nil:
		return nil, stats, err
	}

	var texts []string
	err = s.retry.Do(ctx, "final capture", func() error {
		var err error
		texts, err = session.Texts(ctx, s.cfg.ListingSelector)
		return err
	})
	if err != nil {
		stats.Partial = true
		s.logger.Error("Final capture failed with %d revealed; keeping %d captured listings: %v",
			revealed, len(snapshot), err)
		if errors.Is(err, ErrSessionLost) {
			return snapshot, stats, err
		}
		return snapshot, stats, fmt.Errorf("%w: %w", ErrCaptureIncomplete, err)
	}

	listings := s.capture(texts)
	s.logger.Info("Scrape complete: %d listings captured after %d iterations", len(listings), stats.Iterations)
	return listings, stats, nil
}

func (s *Scraper) capture(texts []string) []*models.RawListing {
	at := s.now()
	out := make([]*models.RawListing, 0, len(texts))
	for i, t := range texts {
		out = append(out, &models.RawListing{Index: i, Text: t, CapturedAt: at})
	}
	return out
}
