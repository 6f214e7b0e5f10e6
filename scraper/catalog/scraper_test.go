package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-listing-scraper/config"
)

func testConfig() *config.Config {
	return &config.Config{
		TargetURL:        "https://catalog.test/used-cars",
		ListingSelector:  ".card",
		MaxIterations:    100,
		StableIterations: 8,
		ScrollSteps:      5,
		MaxRetries:       3,
	}
}

func newTestScraper(sess *fakeSession, strategies ...Strategy) *Scraper {
	s := NewWithSession(testConfig(), quietLogger(), func(context.Context) (Session, error) {
		return sess, nil
	})
	s.retry.BaseDelay = time.Millisecond
	if len(strategies) > 0 {
		s.loader.strategies = strategies
	}
	return s
}

func TestScrapeConverges(t *testing.T) {
	sess := &fakeSession{countFn: func(call int) int {
		if call > 3 {
			return 30
		}
		return call * 10
	}}
	s := newTestScraper(sess, &stubStrategy{name: "stub"})

	listings, stats, err := s.Scrape(context.Background())

	require.NoError(t, err)
	assert.Len(t, listings, 30)
	assert.False(t, stats.Partial)
	assert.Equal(t, 30, stats.Revealed)
	assert.Equal(t, 11, stats.Iterations)
	assert.Equal(t, 1, sess.closed)
	for i, l := range listings {
		assert.Equal(t, i, l.Index)
	}
}

func TestScrapeKeepsSnapshotOnSessionLoss(t *testing.T) {
	// Growth reaches 55 on iteration 39; the session dies during iteration 40.
	sess := &fakeSession{countFn: func(call int) int { return 16 + call }}
	lost := &stubStrategy{name: "scroll", failOn: 40, err: fmt.Errorf("evaluate: %w", ErrSessionLost)}
	s := newTestScraper(sess, lost)

	listings, stats, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, ErrSessionLost)
	assert.True(t, stats.Partial)
	assert.Equal(t, 55, stats.Revealed)
	assert.Len(t, listings, 55)
	assert.Equal(t, 1, sess.closed)
}

func TestScrapeNoListings(t *testing.T) {
	sess := &fakeSession{countFn: constant(0)}
	s := newTestScraper(sess, &stubStrategy{name: "stub"})

	listings, _, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, ErrNoListingsFound)
	assert.Empty(t, listings)
	assert.Equal(t, 1, sess.closed)
}

func TestScrapeRetriesNavigation(t *testing.T) {
	sess := &fakeSession{
		countFn: constant(4),
		navErrs: []error{errors.New("net::ERR_TIMED_OUT")},
	}
	s := newTestScraper(sess, &stubStrategy{name: "stub"})

	listings, _, err := s.Scrape(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sess.navCalls)
	assert.Len(t, listings, 4)
}

func TestScrapeDoesNotRetryLostNavigation(t *testing.T) {
	sess := &fakeSession{navErrs: []error{fmt.Errorf("navigate: %w", ErrSessionLost)}}
	s := newTestScraper(sess)

	listings, stats, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, ErrSessionLost)
	assert.True(t, stats.Partial)
	assert.Empty(t, listings)
	assert.Equal(t, 1, sess.navCalls)
	assert.Equal(t, 1, sess.closed)
}

func TestScrapeSessionOpenFailure(t *testing.T) {
	boom := errors.New("chrome not found")
	s := NewWithSession(testConfig(), quietLogger(), func(context.Context) (Session, error) {
		return nil, boom
	})

	_, _, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestScrapeFinalCaptureLost(t *testing.T) {
	// The snapshot taken when six listings first appear survives a session
	// that dies before the final capture.
	sess := &fakeSession{
		countFn:    constant(6),
		textsErr:   fmt.Errorf("evaluate: %w", ErrSessionLost),
		textsErrAt: 2,
	}
	s := newTestScraper(sess, &stubStrategy{name: "stub"})

	listings, stats, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, ErrSessionLost)
	assert.True(t, stats.Partial)
	assert.Len(t, listings, 6)
	assert.Equal(t, 2, sess.textsCalls)
}

func TestScrapeFinalCaptureFailsAfterGrowth(t *testing.T) {
	// Six listings are snapshotted, the page grows to twelve, then every
	// text read fails with a script error.
	sess := &fakeSession{
		countFn: func(call int) int {
			if call == 1 {
				return 6
			}
			return 12
		},
		textsErr:   errors.New("evaluate: exception: TypeError"),
		textsErrAt: 2,
	}
	s := newTestScraper(sess, &stubStrategy{name: "stub"})

	listings, stats, err := s.Scrape(context.Background())

	assert.ErrorIs(t, err, ErrCaptureIncomplete)
	assert.NotErrorIs(t, err, ErrSessionLost)
	assert.True(t, stats.Partial)
	assert.Equal(t, 12, stats.Revealed)
	assert.Len(t, listings, 6)
	// one snapshot, one failed snapshot, three final capture attempts
	assert.Equal(t, 5, sess.textsCalls)
	assert.Equal(t, 1, sess.closed)
}

func TestScrapeWithDefaultStrategies(t *testing.T) {
	sess := &fakeSession{
		countFn: constant(12),
		evalRules: []evalRule{
			{contains: "scrollBy", result: "0"},
			{contains: "overflowY", result: `{"found":0,"moved":0}`},
			{contains: "getBoundingClientRect", result: "false"},
			{contains: "scrollTo", result: "false"},
		},
	}
	s := newTestScraper(sess)

	listings, stats, err := s.Scrape(context.Background())

	require.NoError(t, err)
	assert.Len(t, listings, 12)
	assert.Equal(t, 9, stats.Iterations)
	assert.Empty(t, sess.clicks)
}
