package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Strategy is one way of coaxing the page into rendering more listings.
// Attempt reports whether the interaction changed anything observable
// (scroll offset, clicked control). ErrElementNotFound means the strategy
// does not apply to the current page state.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, s Session) (bool, error)
}

// DefaultStrategies returns the standard order: small scroll steps, jump to
// bottom, inner panels, then pagination controls.
func DefaultStrategies(listingSelector string, scrollSteps int, pause time.Duration) []Strategy {
	return []Strategy{
		&IncrementalScroll{Steps: scrollSteps, Pause: pause},
		&BottomScroll{},
		&ContainerScroll{},
		&LoadMoreClick{
			Selectors:       DefaultPagerSelectors,
			Labels:          DefaultPagerLabels,
			ListingSelector: listingSelector,
			Pause:           pause,
		},
	}
}

// IncrementalScroll advances the viewport in small steps so intersection
// observers that need partial visibility fire.
type IncrementalScroll struct {
	Steps int
	Pause time.Duration
}

func (*IncrementalScroll) Name() string { return "incremental-scroll" }

func (st *IncrementalScroll) Attempt(ctx context.Context, s Session) (bool, error) {
	steps := st.Steps
	if steps < 1 {
		steps = 1
	}
	moved := false
	for i := 0; i < steps; i++ {
		var delta float64
		err := s.Evaluate(ctx, `(function() {
			var before = window.pageYOffset;
			window.scrollBy(0, Math.max(200, Math.floor(window.innerHeight * 0.8)));
			return window.pageYOffset - before;
		})()`, &delta)
		if err != nil {
			return moved, err
		}
		if delta > 0 {
			moved = true
		}
		if err := pause(ctx, st.Pause); err != nil {
			return moved, err
		}
	}
	return moved, nil
}

// BottomScroll jumps to the end of the document.
type BottomScroll struct{}

func (*BottomScroll) Name() string { return "bottom-scroll" }

func (*BottomScroll) Attempt(ctx context.Context, s Session) (bool, error) {
	var moved bool
	err := s.Evaluate(ctx, `(function() {
		var before = window.pageYOffset;
		var h = Math.max(document.body ? document.body.scrollHeight : 0,
			document.documentElement ? document.documentElement.scrollHeight : 0);
		window.scrollTo(0, h);
		return window.pageYOffset !== before;
	})()`, &moved)
	return moved, err
}

// ContainerScroll scrolls inner panels that virtualise their own list
// independently of the document.
type ContainerScroll struct{}

func (*ContainerScroll) Name() string { return "container-scroll" }

const containerScrollJS = `(function() {
	var seen = new Set();
	var candidates = Array.from(document.querySelectorAll(
		'[data-scrollable], [role="feed"], [role="list"], main *, div, section, ul'));
	var found = 0, moved = 0;
	for (var i = 0; i < candidates.length; i++) {
		var el = candidates[i];
		if (seen.has(el) || el === document.body || el === document.documentElement) continue;
		seen.add(el);
		if (el.scrollHeight <= el.clientHeight + 4) continue;
		var oy = window.getComputedStyle(el).overflowY;
		var tagged = el.hasAttribute('data-scrollable') || el.getAttribute('role') === 'feed';
		if (!tagged && oy !== 'auto' && oy !== 'scroll' && oy !== 'overlay') continue;
		found++;
		var before = el.scrollTop;
		el.scrollTop = el.scrollHeight;
		if (el.scrollTop !== before) moved++;
	}
	return {found: found, moved: moved};
})()`

func (*ContainerScroll) Attempt(ctx context.Context, s Session) (bool, error) {
	var res struct {
		Found int `json:"found"`
		Moved int `json:"moved"`
	}
	if err := s.Evaluate(ctx, containerScrollJS, &res); err != nil {
		return false, err
	}
	if res.Found == 0 {
		return false, fmt.Errorf("scrollable container: %w", ErrElementNotFound)
	}
	return res.Moved > 0, nil
}

// DefaultPagerSelectors are structural hints for pagination controls.
var DefaultPagerSelectors = []string{
	`[data-testid*="load-more"]`,
	`[data-testid="pagination-next-button"]`,
	`a[aria-label="Next"]`,
	`button[aria-label="Next"]`,
	`a[rel="next"]`,
	`.pagination .next a`,
}

// DefaultPagerLabels are matched case-insensitively against the trimmed
// visible text of buttons and links.
var DefaultPagerLabels = []string{"load more", "show more", "view more", "see more", "next", "›", ">"}

// markerAttr tags the control found by LoadMoreClick so the native click can
// address it by selector.
const markerAttr = "data-scraper-pager"

// LoadMoreClick presses a "load more" or "next" control. When the native
// click is intercepted or reveals nothing new it retries with a script-level
// click.
type LoadMoreClick struct {
	Selectors       []string
	Labels          []string
	ListingSelector string
	Pause           time.Duration
}

func (*LoadMoreClick) Name() string { return "load-more-click" }

func (st *LoadMoreClick) locateScript() string {
	sel, _ := json.Marshal(st.Selectors)
	labels, _ := json.Marshal(st.Labels)
	return fmt.Sprintf(`(function(selectors, labels, marker) {
		document.querySelectorAll('[' + marker + ']').forEach(function(el) { el.removeAttribute(marker); });
		function usable(el) {
			if (!el || el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
			var r = el.getBoundingClientRect();
			var cs = window.getComputedStyle(el);
			return r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none';
		}
		var target = null;
		for (var i = 0; i < selectors.length && !target; i++) {
			var els = document.querySelectorAll(selectors[i]);
			for (var j = 0; j < els.length; j++) {
				if (usable(els[j])) { target = els[j]; break; }
			}
		}
		if (!target) {
			var els = document.querySelectorAll('button, a, [role="button"]');
			for (var k = 0; k < els.length && !target; k++) {
				var text = (els[k].innerText || els[k].getAttribute('aria-label') || '').trim().toLowerCase();
				if (!text) continue;
				for (var l = 0; l < labels.length; l++) {
					if (text === labels[l] || (labels[l].length > 2 && text.indexOf(labels[l]) === 0)) {
						if (usable(els[k])) { target = els[k]; }
						break;
					}
				}
			}
		}
		if (!target) return false;
		target.setAttribute(marker, '1');
		target.scrollIntoView({block: 'center'});
		return true;
	})(%s, %s, %s)`, sel, labels, jsString(markerAttr))
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

const forcedClickJS = `(function(marker) {
	var el = document.querySelector('[' + marker + ']');
	if (!el) return false;
	el.click();
	el.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true, view: window}));
	return true;
})(%s)`

func (st *LoadMoreClick) Attempt(ctx context.Context, s Session) (bool, error) {
	var found bool
	if err := s.Evaluate(ctx, st.locateScript(), &found); err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("pager control: %w", ErrElementNotFound)
	}

	before, err := s.Count(ctx, st.ListingSelector)
	if err != nil {
		return false, err
	}

	target := "[" + markerAttr + "]"
	clickErr := s.Click(ctx, target)
	if errors.Is(clickErr, ErrSessionLost) {
		return false, clickErr
	}
	if clickErr == nil {
		if err := pause(ctx, st.Pause); err != nil {
			return true, err
		}
		after, err := s.Count(ctx, st.ListingSelector)
		if err != nil {
			return true, err
		}
		if after != before {
			return true, nil
		}
	}

	// Native click was intercepted or had no visible effect.
	var forced bool
	if err := s.Evaluate(ctx, fmt.Sprintf(forcedClickJS, jsString(markerAttr)), &forced); err != nil {
		return clickErr == nil, err
	}
	if !forced && clickErr != nil {
		return false, fmt.Errorf("pager control detached: %w", ErrElementNotFound)
	}
	return true, nil
}

// pause sleeps for d unless ctx ends first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
