package catalog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Session is the browser handle the loader and strategies drive. A Session
// is owned by exactly one scrape for its whole lifetime.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, script string, res any) error
	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, selector string) error
	Texts(ctx context.Context, selector string) ([]string, error)
	Close() error
}

// SessionFactory opens a fresh Session.
type SessionFactory func(ctx context.Context) (Session, error)

// BrowserOptions configures the Chrome process behind a ChromeSession.
type BrowserOptions struct {
	Headless     bool
	ChromeBin    string
	UserAgent    string
	PageLoadWait time.Duration
	ClickTimeout time.Duration
	Lifetime     time.Duration
}

// ChromeSession is a Session backed by a single chromedp tab.
type ChromeSession struct {
	ctx          context.Context
	cancels      []context.CancelFunc
	pageLoadWait time.Duration
	clickTimeout time.Duration
	closeOnce    sync.Once
}

// NewChromeSession launches Chrome and opens one tab. The caller must Close
// the session on every exit path.
func NewChromeSession(parent context.Context, opts BrowserOptions) (*ChromeSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if bin := findChromeBinary(opts.ChromeBin); bin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(bin))
	}

	s := &ChromeSession{
		pageLoadWait: opts.PageLoadWait,
		clickTimeout: opts.ClickTimeout,
	}

	ctx := parent
	if opts.Lifetime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Lifetime)
		s.cancels = append(s.cancels, cancel)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	s.cancels = append(s.cancels, cancelAlloc)

	// Suppress chromedp log noise
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	s.cancels = append(s.cancels, cancelTab)
	s.ctx = tabCtx

	// Run with no actions starts the browser so launch failures surface here.
	if err := chromedp.Run(s.ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// ChromeSessionFactory adapts NewChromeSession to a SessionFactory.
func ChromeSessionFactory(opts BrowserOptions) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		return NewChromeSession(ctx, opts)
	}
}

// bind ties the caller's cancellation to the tab context so that a run
// cancelled by the caller stops in-flight CDP calls.
func (s *ChromeSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	tab, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return tab, func() {
		stop()
		cancel()
	}
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	tab, done := s.bind(ctx)
	defer done()
	err := chromedp.Run(tab,
		chromedp.Navigate(url),
		chromedp.Sleep(s.pageLoadWait),
	)
	return classify("navigate", err)
}

func (s *ChromeSession) Evaluate(ctx context.Context, script string, res any) error {
	tab, done := s.bind(ctx)
	defer done()
	return classify("evaluate", chromedp.Run(tab, chromedp.Evaluate(script, res)))
}

// Count returns how many nodes currently match selector. It never waits for
// nodes to appear.
func (s *ChromeSession) Count(ctx context.Context, selector string) (int, error) {
	tab, done := s.bind(ctx)
	defer done()
	var nodes []*cdp.Node
	err := chromedp.Run(tab, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return 0, classify("count", err)
	}
	return len(nodes), nil
}

// Click performs a native (input-event) click on the first node matching
// selector. An absent node yields ErrElementNotFound immediately; a node that
// does not become clickable within the click timeout is reported as an
// interception error.
func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	n, err := s.Count(ctx, selector)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("click %q: %w", selector, ErrElementNotFound)
	}

	tab, done := s.bind(ctx)
	defer done()
	clickCtx, cancel := context.WithTimeout(tab, s.clickTimeout)
	defer cancel()

	err = chromedp.Run(clickCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
	if err == nil {
		return nil
	}
	// The click deadline expiring is not a session loss as long as the tab
	// itself is still alive.
	if clickCtx.Err() != nil && tab.Err() == nil {
		return fmt.Errorf("click %q intercepted: %v", selector, err)
	}
	return classify("click", err)
}

// Texts returns the innerText of every node matching selector, in document
// order.
func (s *ChromeSession) Texts(ctx context.Context, selector string) ([]string, error) {
	var texts []string
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(function(el) {
		return (el.innerText || el.textContent || '').trim();
	})`, jsString(selector))
	if err := s.Evaluate(ctx, script, &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

// Close shuts the tab, the browser and the allocator. Safe to call twice.
func (s *ChromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.ctx != nil {
			err = chromedp.Cancel(s.ctx)
		}
		for i := len(s.cancels) - 1; i >= 0; i-- {
			s.cancels[i]()
		}
	})
	if isSessionLoss(err) {
		// Already gone; nothing left to release.
		return nil
	}
	return err
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
