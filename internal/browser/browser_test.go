package browser_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/connect-clicker/internal/browser"
	"github.com/polzovatel/connect-clicker/internal/browser/browsertest"
)

func TestPickPage(t *testing.T) {
	blank := browsertest.NewPage("about:blank")
	feed := browsertest.NewPage("https://example.org/feed")
	people := browsertest.NewPage("https://Example.org/People?page=3")

	tests := []struct {
		name     string
		pages    []browser.Page
		contains string
		want     browser.Page
	}{
		{"no pages", nil, "", nil},
		{"substring match ignores case", []browser.Page{blank, feed, people}, "people", people},
		{"falls back to first non-blank", []browser.Page{blank, feed, people}, "missing", feed},
		{"only blank pages", []browser.Page{blank}, "people", blank},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := browser.PickPage(tt.pages, tt.contains)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenPagesSkipsClosed(t *testing.T) {
	a := browsertest.NewPage("https://a.test")
	b := browsertest.NewPage("https://b.test")
	b.Close()
	s := &browsertest.Session{Open: []*browsertest.Page{a, b}}

	open := browser.OpenPages(s)
	require.Len(t, open, 1)
	assert.Equal(t, "https://a.test", open[0].URL())
}

func TestSelectorString(t *testing.T) {
	dialog := browser.Role("dialog", "")
	assert.Equal(t, `role=button[name="Connect"]`, browser.Role("button", "Connect").String())
	assert.Equal(t, `role=dialog >> text="error"`, browser.Text("error").In(dialog).String())
	assert.Equal(t, `text=/(?i)captcha/`, browser.Matching(regexp.MustCompile(`(?i)captcha`)).String())
	assert.Equal(t, "a[rel='next']", browser.CSS("a[rel='next']").String())
}

func TestLaunchPlan(t *testing.T) {
	dir := filepath.Join("profiles", "user_data")
	fresh := filepath.Join("profiles", "user_data_fresh")

	plan := browser.LaunchPlan(browser.PersistentOptions{UserDataDir: dir, Channel: "chrome"})
	assert.Equal(t, []browser.LaunchAttempt{
		{Channel: "chrome", Profile: dir},
		{Channel: "chromium", Profile: dir},
		{Channel: "chrome", Profile: fresh},
		{Channel: "chromium", Profile: fresh},
	}, plan)

	plan = browser.LaunchPlan(browser.PersistentOptions{UserDataDir: dir, Channel: "chromium"})
	assert.Equal(t, []browser.LaunchAttempt{
		{Channel: "chromium", Profile: dir},
		{Channel: "chromium", Profile: fresh},
	}, plan)
}

func TestLaunchErrorListsAttempts(t *testing.T) {
	cause := errors.New("profile locked")
	err := &browser.LaunchError{
		Attempted: []browser.LaunchAttempt{
			{Channel: "msedge", Profile: "p"},
			{Channel: "chromium", Profile: "p_fresh"},
		},
		Err: cause,
	}
	assert.Contains(t, err.Error(), "channel=msedge, profile=p; channel=chromium, profile=p_fresh")
	assert.Contains(t, err.Error(), "different --user-data-dir")
	assert.ErrorIs(t, err, cause)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, browser.IsTimeout(fmt.Errorf("click: %w", browser.ErrTimeout)))
	assert.True(t, browser.IsTimeout(browsertest.ErrIntercepted))
	assert.False(t, browser.IsTimeout(browser.ErrPageClosed))
}
