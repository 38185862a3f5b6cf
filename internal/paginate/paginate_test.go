package paginate_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/connect-clicker/internal/browser"
	"github.com/polzovatel/connect-clicker/internal/browser/browsertest"
	"github.com/polzovatel/connect-clicker/internal/paginate"
)

func TestCursor(t *testing.T) {
	tests := []struct {
		url    string
		want   int
		wantOK bool
	}{
		{"https://example.org/people?page=4", 4, true},
		{"https://example.org/people?q=pm&page=12#top", 12, true},
		{"https://example.org/people?page=abc", 0, false},
		{"https://example.org/people", 0, false},
		{"https://example.org/people?page=2&page=9", 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := paginate.Cursor(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 1, paginate.CursorOrFirst("https://example.org/people?page=x"))
}

func TestWithCursorPreservesURL(t *testing.T) {
	urls := []string{
		"https://example.org/community/people",
		"https://example.org/community/people?page=3",
		"http://host.test:8080/a/b?q=project%20manager&page=7&sort=asc#results",
		"https://example.org/p?page=1&page=2&x=",
		"https://example.org/p?x=1#frag",
	}
	for _, raw := range urls {
		for _, n := range []int{1, 2, 42} {
			got, err := paginate.WithCursor(raw, n)
			require.NoError(t, err)

			before, _ := url.Parse(raw)
			after, err := url.Parse(got)
			require.NoError(t, err)
			assert.Equal(t, before.Scheme, after.Scheme)
			assert.Equal(t, before.Host, after.Host)
			assert.Equal(t, before.Path, after.Path)
			assert.Equal(t, before.Fragment, after.Fragment)

			q := after.Query()
			assert.Equal(t, []string{strconv.Itoa(n)}, q["page"], got)

			bq := before.Query()
			for k, v := range bq {
				if k == "page" {
					continue
				}
				assert.Equal(t, v, q[k], got)
			}
		}
	}
}

func TestWithCursorKeepsParamOrder(t *testing.T) {
	got, err := paginate.WithCursor("https://example.org/p?z=1&page=3&a=2", 4)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/p?z=1&page=4&a=2", got)

	next, n, err := paginate.NextURL("https://example.org/p?z=1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "https://example.org/p?z=1&page=2", next)
}

func TestRetryPolicyGrowth(t *testing.T) {
	failing := func(int) error { return browser.ErrTimeout }

	page := browsertest.NewPage("https://example.org")
	p := paginate.DefaultRetryPolicy
	p.MaxAttempts = 4
	assert.ErrorIs(t, p.Do(context.Background(), page, failing), browser.ErrTimeout)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 1600 * time.Millisecond, 3200 * time.Millisecond}, page.Waits)

	page = browsertest.NewPage("https://example.org")
	flat := paginate.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 0}
	assert.ErrorIs(t, flat.Do(context.Background(), page, failing), browser.ErrTimeout)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, page.Waits)
}

func TestRetryPolicyStopsEarly(t *testing.T) {
	t.Run("single attempt", func(t *testing.T) {
		page := browsertest.NewPage("https://example.org")
		calls := 0
		err := paginate.RetryPolicy{BaseDelay: time.Second}.Do(context.Background(), page, func(int) error {
			calls++
			return browser.ErrTimeout
		})
		assert.ErrorIs(t, err, browser.ErrTimeout)
		assert.Equal(t, 1, calls)
		assert.Empty(t, page.Waits)
	})

	t.Run("closed page", func(t *testing.T) {
		page := browsertest.NewPage("https://example.org")
		calls := 0
		err := paginate.DefaultRetryPolicy.Do(context.Background(), page, func(int) error {
			calls++
			return fmt.Errorf("goto: %w", browser.ErrPageClosed)
		})
		assert.ErrorIs(t, err, browser.ErrPageClosed)
		assert.Equal(t, 1, calls)
		assert.Empty(t, page.Waits)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		page := browsertest.NewPage("https://example.org")
		calls := 0
		err := paginate.DefaultRetryPolicy.Do(ctx, page, func(int) error {
			calls++
			cancel()
			return browser.ErrTimeout
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryPolicyDo(t *testing.T) {
	page := browsertest.NewPage("https://example.org")
	calls := 0
	err := paginate.DefaultRetryPolicy.Do(context.Background(), page, func(int) error {
		calls++
		return browser.ErrTimeout
	})
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 1600 * time.Millisecond}, page.Waits)

	calls = 0
	err = paginate.DefaultRetryPolicy.Do(context.Background(), page, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func navigator() *paginate.Navigator {
	return &paginate.Navigator{
		Policy:          paginate.DefaultRetryPolicy,
		Timeout:         15 * time.Second,
		LandingAttempts: 3,
		Logger:          zerolog.Nop(),
	}
}

func TestNextMovesToExpectedCursor(t *testing.T) {
	page := browsertest.NewPage("https://example.org/people?page=4#list")
	res, err := navigator().Next(context.Background(), page, 0)
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.Equal(t, 5, res.Expected)
	assert.Equal(t, 5, res.Landed)
	assert.Equal(t, []string{"https://example.org/people?page=5#list"}, page.Gotos)
}

func TestNextRetriesWrongLanding(t *testing.T) {
	page := browsertest.NewPage("https://example.org/people?page=4")
	landings := 0
	page.GotoFunc = func(p *browsertest.Page, u string) error {
		landings++
		if landings == 1 {
			p.SetURL("https://example.org/people?page=1")
			return nil
		}
		p.SetURL(u)
		return nil
	}
	res, err := navigator().Next(context.Background(), page, 5)
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.Equal(t, 2, landings)
}

func TestNextAllTimeoutsReportLastLanded(t *testing.T) {
	page := browsertest.NewPage("https://example.org/people?page=6")
	page.GotoFunc = func(*browsertest.Page, string) error { return browser.ErrTimeout }

	nav := navigator()
	nav.LandingAttempts = 1
	res, err := nav.Next(context.Background(), page, 0)
	require.NoError(t, err)
	assert.False(t, res.Moved)
	assert.Equal(t, 7, res.Expected)
	assert.True(t, res.HasLanded)
	assert.Equal(t, 6, res.Landed)
	assert.Len(t, page.Gotos, 3)
	for _, g := range page.Gotos {
		assert.Equal(t, "https://example.org/people?page=7", g)
	}
}

func TestNextFallsBackToNextControl(t *testing.T) {
	page := browsertest.NewPage("https://example.org/feed")
	next := &browsertest.Node{Role: "link", CSS: []string{paginate.NextSelectors[2]}}
	next.OnClick = func(p *browsertest.Page) error {
		p.SetURL("https://example.org/feed/2")
		return nil
	}
	page.Add(next)

	res, err := navigator().Next(context.Background(), page, 0)
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.False(t, res.HasLanded)
	assert.Empty(t, page.Gotos)
}

func TestNextWithoutCursorOrControl(t *testing.T) {
	page := browsertest.NewPage("https://example.org/feed")
	res, err := navigator().Next(context.Background(), page, 0)
	require.NoError(t, err)
	assert.False(t, res.Moved)
}

func TestNextControlThatDoesNotMove(t *testing.T) {
	page := browsertest.NewPage("https://example.org/feed")
	page.Add(&browsertest.Node{CSS: []string{paginate.NextSelectors[0]}})
	res, err := navigator().Next(context.Background(), page, 0)
	require.NoError(t, err)
	assert.False(t, res.Moved)
}

func TestRecover(t *testing.T) {
	t.Run("reaches the page after the last confirmed", func(t *testing.T) {
		page := browsertest.NewPage("https://example.org/people?page=2")
		got, err := navigator().Recover(context.Background(), page, 5)
		require.NoError(t, err)
		assert.Equal(t, 6, got)
		assert.Equal(t, []string{"https://example.org/people?page=6"}, page.Gotos)
	})

	t.Run("navigation fails", func(t *testing.T) {
		page := browsertest.NewPage("https://example.org/people?page=2")
		page.GotoFunc = func(*browsertest.Page, string) error { return browser.ErrTimeout }
		_, err := navigator().Recover(context.Background(), page, 5)
		assert.ErrorIs(t, err, paginate.ErrRollbackUnrecovered)
		for _, g := range page.Gotos {
			assert.Equal(t, "https://example.org/people?page=6", g)
		}
	})

	t.Run("lands short", func(t *testing.T) {
		page := browsertest.NewPage("https://example.org/people?page=2")
		page.GotoFunc = func(p *browsertest.Page, _ string) error {
			p.SetURL("https://example.org/people?page=5")
			return nil
		}
		got, err := navigator().Recover(context.Background(), page, 5)
		assert.ErrorIs(t, err, paginate.ErrRollbackUnrecovered)
		assert.Equal(t, 5, got)
		assert.Len(t, page.Gotos, 1)
	})
}
