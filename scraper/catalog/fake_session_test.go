package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"car-listing-scraper/utils"
)

// fakeSession scripts a browser for tests. Count results come from countFn
// (indexed by 1-based call number); Evaluate answers with the JSON returned
// by the first matching evalRule.
type fakeSession struct {
	countFn    func(call int) int
	countErrAt int
	countCalls int
	lastCount  int

	evalRules []evalRule
	evals     []string

	clickErr error
	clicks   []string

	textsErr   error
	textsErrAt int
	textsCalls int

	navErrs  []error
	navCalls int
	closed   int
}

type evalRule struct {
	contains string
	result   string
	err      error
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navCalls++
	if len(f.navErrs) >= f.navCalls {
		return f.navErrs[f.navCalls-1]
	}
	return nil
}

func (f *fakeSession) Evaluate(ctx context.Context, script string, res any) error {
	f.evals = append(f.evals, script)
	for _, r := range f.evalRules {
		if !strings.Contains(script, r.contains) {
			continue
		}
		if r.err != nil {
			return r.err
		}
		if res == nil {
			return nil
		}
		return json.Unmarshal([]byte(r.result), res)
	}
	return nil
}

func (f *fakeSession) Count(ctx context.Context, selector string) (int, error) {
	f.countCalls++
	if f.countErrAt > 0 && f.countCalls >= f.countErrAt {
		return 0, fmt.Errorf("count: %w", ErrSessionLost)
	}
	if f.countFn != nil {
		f.lastCount = f.countFn(f.countCalls)
	}
	return f.lastCount, nil
}

func (f *fakeSession) Click(ctx context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	return f.clickErr
}

func (f *fakeSession) Texts(ctx context.Context, selector string) ([]string, error) {
	f.textsCalls++
	if f.textsErr != nil && f.textsCalls >= f.textsErrAt {
		return nil, f.textsErr
	}
	out := make([]string, f.lastCount)
	for i := range out {
		out[i] = fmt.Sprintf("2018 Maruti Swift VXI %d 41.2k km Petrol Manual ₹4.%02d lakh", i, i%100)
	}
	return out, nil
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func (f *fakeSession) evalCount(fragment string) int {
	n := 0
	for _, s := range f.evals {
		if strings.Contains(s, fragment) {
			n++
		}
	}
	return n
}

// stubStrategy fails with err once it has been attempted failOn times.
type stubStrategy struct {
	name     string
	attempts int
	failOn   int
	err      error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, _ Session) (bool, error) {
	s.attempts++
	if s.failOn > 0 && s.attempts >= s.failOn {
		return false, s.err
	}
	return true, nil
}

func constant(n int) func(int) int { return func(int) int { return n } }

func quietLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard) }
