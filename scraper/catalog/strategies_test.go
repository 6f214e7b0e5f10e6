package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementalScrollSteps(t *testing.T) {
	sess := &fakeSession{evalRules: []evalRule{{contains: "scrollBy", result: "720"}}}
	st := &IncrementalScroll{Steps: 5}

	changed, err := st.Attempt(context.Background(), sess)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 5, sess.evalCount("scrollBy"))
}

func TestIncrementalScrollAtBottom(t *testing.T) {
	sess := &fakeSession{evalRules: []evalRule{{contains: "scrollBy", result: "0"}}}

	changed, err := (&IncrementalScroll{Steps: 3}).Attempt(context.Background(), sess)

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestIncrementalScrollStopsOnSessionLoss(t *testing.T) {
	sess := &fakeSession{evalRules: []evalRule{{contains: "scrollBy", err: fmt.Errorf("evaluate: %w", ErrSessionLost)}}}

	_, err := (&IncrementalScroll{Steps: 5}).Attempt(context.Background(), sess)

	assert.ErrorIs(t, err, ErrSessionLost)
	assert.Equal(t, 1, sess.evalCount("scrollBy"))
}

func TestBottomScroll(t *testing.T) {
	sess := &fakeSession{evalRules: []evalRule{{contains: "scrollTo", result: "true"}}}

	changed, err := (&BottomScroll{}).Attempt(context.Background(), sess)

	require.NoError(t, err)
	assert.True(t, changed)
}

func TestContainerScrollWithoutPanel(t *testing.T) {
	sess := &fakeSession{evalRules: []evalRule{{contains: "overflowY", result: `{"found":0,"moved":0}`}}}

	changed, err := (&ContainerScroll{}).Attempt(context.Background(), sess)

	assert.False(t, changed)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestContainerScrollMovesPanel(t *testing.T) {
	sess := &fakeSession{evalRules: []evalRule{{contains: "overflowY", result: `{"found":2,"moved":1}`}}}

	changed, err := (&ContainerScroll{}).Attempt(context.Background(), sess)

	require.NoError(t, err)
	assert.True(t, changed)
}

func newPager() *LoadMoreClick {
	return &LoadMoreClick{
		Selectors:       DefaultPagerSelectors,
		Labels:          DefaultPagerLabels,
		ListingSelector: ".card",
	}
}

func TestLoadMoreClickNoControl(t *testing.T) {
	sess := &fakeSession{evalRules: []evalRule{{contains: "getBoundingClientRect", result: "false"}}}

	_, err := newPager().Attempt(context.Background(), sess)

	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Empty(t, sess.clicks)
}

func TestLoadMoreClickNativeClickWorks(t *testing.T) {
	sess := &fakeSession{
		evalRules: []evalRule{
			{contains: "getBoundingClientRect", result: "true"},
			{contains: "dispatchEvent", result: "true"},
		},
		countFn: func(call int) int { return 10 * call },
	}

	changed, err := newPager().Attempt(context.Background(), sess)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"[" + markerAttr + "]"}, sess.clicks)
	assert.Zero(t, sess.evalCount("dispatchEvent"), "no forced click when the native click revealed listings")
}

func TestLoadMoreClickFallsBackWhenIntercepted(t *testing.T) {
	sess := &fakeSession{
		evalRules: []evalRule{
			{contains: "getBoundingClientRect", result: "true"},
			{contains: "dispatchEvent", result: "true"},
		},
		countFn:  constant(10),
		clickErr: errors.New("click intercepted"),
	}

	changed, err := newPager().Attempt(context.Background(), sess)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, sess.evalCount("dispatchEvent"))
}

func TestLoadMoreClickFallsBackWhenNoEffect(t *testing.T) {
	sess := &fakeSession{
		evalRules: []evalRule{
			{contains: "getBoundingClientRect", result: "true"},
			{contains: "dispatchEvent", result: "true"},
		},
		countFn: constant(10),
	}

	_, err := newPager().Attempt(context.Background(), sess)

	require.NoError(t, err)
	assert.Len(t, sess.clicks, 1)
	assert.Equal(t, 1, sess.evalCount("dispatchEvent"))
}

func TestLoadMoreClickSessionLossIsNotRetried(t *testing.T) {
	sess := &fakeSession{
		evalRules: []evalRule{{contains: "getBoundingClientRect", result: "true"}},
		countFn:   constant(10),
		clickErr:  fmt.Errorf("click: %w", ErrSessionLost),
	}

	_, err := newPager().Attempt(context.Background(), sess)

	assert.ErrorIs(t, err, ErrSessionLost)
	assert.Zero(t, sess.evalCount("dispatchEvent"))
}

func TestDefaultStrategiesOrder(t *testing.T) {
	names := []string{}
	for _, s := range DefaultStrategies(".card", 5, 0) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"incremental-scroll", "bottom-scroll", "container-scroll", "load-more-click"}, names)
}

func TestJSStringLiterals(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a[href*="/buy-used-"]`, `"a[href*=\"/buy-used-\"]"`},
		{"bell\a", `"bell\u0007"`},
		{"😀", "\"😀\""},
		{"sep\u2028", `"sep\u2028"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, jsString(tt.in))
	}
}

func TestLoadMoreClickScriptsQuoteMarker(t *testing.T) {
	st := &LoadMoreClick{Selectors: []string{"button.more"}, ListingSelector: ".card"}
	assert.Contains(t, st.locateScript(), `, "`+markerAttr+`")`)
	assert.Contains(t, fmt.Sprintf(forcedClickJS, jsString(markerAttr)), `("`+markerAttr+`")`)
}
