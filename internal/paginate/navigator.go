package paginate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/polzovatel/connect-clicker/internal/browser"
)

// RetryPolicy bounds repeated navigation attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy waits 800ms, then 1.6s, then 3.2s between attempts.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 800 * time.Millisecond, Multiplier: 2}

const maxRetryDelay = time.Minute

// backOff grows BaseDelay by Multiplier (at least 1) without jitter, timed on clock.
func (p RetryPolicy) backOff(clock backoff.Clock) *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval: p.BaseDelay,
		Multiplier:      max(p.Multiplier, 1),
		MaxInterval:     maxRetryDelay,
		Stop:            backoff.Stop,
		Clock:           clock,
	}
}

// Do runs op until it succeeds or the attempts are used up, pausing on page
// between attempts. It returns the last error; a closed page or a cancelled
// ctx ends it at once.
func (p RetryPolicy) Do(ctx context.Context, page browser.Page, op func(attempt int) error) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxAttempts > 1 {
		b = backoff.WithMaxRetries(p.backOff(page), uint64(p.MaxAttempts-1))
	}
	attempt := 0
	operation := func() error {
		attempt++
		err := op(attempt)
		if errors.Is(err, browser.ErrPageClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotifyWithTimer(operation, backoff.WithContext(b, ctx), nil, &pageTimer{ctx: ctx, page: page})
}

// pageTimer runs retry pauses through the page so they follow its clock.
type pageTimer struct {
	ctx  context.Context
	page browser.Page
	c    chan time.Time
}

func (t *pageTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.page.Wait(t.ctx, d); err != nil && t.ctx.Err() != nil {
		return
	}
	t.c <- t.page.Now()
}

func (t *pageTimer) Stop() {}

func (t *pageTimer) C() <-chan time.Time { return t.c }

// NextSelectors locate a "next page" control when the URL carries no cursor.
var NextSelectors = []string{
	"a[aria-label*='next' i]",
	"button[aria-label*='next' i]",
	"a[rel='next']",
}

const (
	nextClickTimeout       = 10 * time.Second
	defaultLandingAttempts = 3
)

// ErrRollbackUnrecovered is returned when recovery could not get past the
// last confirmed page.
var ErrRollbackUnrecovered = errors.New("rollback recovery failed")

// Navigator moves between listing pages and verifies where it landed.
type Navigator struct {
	Policy  RetryPolicy
	Timeout time.Duration
	// LandingAttempts is how many times the target URL is retried when the
	// page lands on a cursor other than the expected one.
	LandingAttempts int
	Logger          zerolog.Logger
}

// Result describes a next-page move.
type Result struct {
	Moved       bool
	Expected    int
	HasExpected bool
	Landed      int
	HasLanded   bool
	URL         string
}

// Goto navigates to url, retrying per the policy.
func (n *Navigator) Goto(ctx context.Context, page browser.Page, url string) error {
	return n.Policy.Do(ctx, page, func(attempt int) error {
		err := page.Goto(ctx, url, n.Timeout)
		if err != nil {
			n.Logger.Warn().Err(err).Int("attempt", attempt).Str("url", url).Msg("navigation failed")
		}
		return err
	})
}

// Next navigates to the page after the current one. A non-positive expected
// means current cursor + 1. When the URL has no cursor a "next" control is
// clicked instead. The returned error is reserved for cancellation and a
// closed page; a failed move is reported through Result.Moved.
func (n *Navigator) Next(ctx context.Context, page browser.Page, expected int) (Result, error) {
	oldURL := page.URL()
	res := Result{}
	if expected > 0 {
		res.Expected, res.HasExpected = expected, true
	} else if cur, ok := Cursor(oldURL); ok {
		res.Expected, res.HasExpected = cur+1, true
	}
	if !res.HasExpected {
		return n.clickNext(ctx, page, oldURL)
	}

	target, err := WithCursor(oldURL, res.Expected)
	if err != nil {
		return res, err
	}
	attempts := n.LandingAttempts
	if attempts < 1 {
		attempts = defaultLandingAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := n.Goto(ctx, page, target); err != nil {
			if ctx.Err() != nil || errors.Is(err, browser.ErrPageClosed) {
				return n.landed(page, res), err
			}
			continue
		}
		if err := page.WaitForLoad(ctx, n.Timeout); err != nil {
			n.Logger.Debug().Err(err).Msg("wait for load after navigation")
		}
		res = n.landed(page, res)
		if res.HasLanded && res.Landed == res.Expected {
			res.Moved = true
			return res, nil
		}
		n.Logger.Warn().
			Int("expected", res.Expected).
			Int("landed", res.Landed).
			Bool("has_landed", res.HasLanded).
			Msg("landed on unexpected page")
	}
	return n.landed(page, res), nil
}

// Recover handles a rollback: one navigation to lastConfirmed+1, accepted only
// if the page lands on at least that cursor.
func (n *Navigator) Recover(ctx context.Context, page browser.Page, lastConfirmed int) (int, error) {
	want := lastConfirmed + 1
	target, err := WithCursor(page.URL(), want)
	if err != nil {
		return 0, err
	}
	if err := n.Goto(ctx, page, target); err != nil {
		return 0, fmt.Errorf("%w: navigation to %s: %w", ErrRollbackUnrecovered, target, err)
	}
	landed, ok := Cursor(page.URL())
	if !ok || landed < want {
		return landed, fmt.Errorf("%w: landed on %s, want page >= %d", ErrRollbackUnrecovered, page.URL(), want)
	}
	return landed, nil
}

func (n *Navigator) landed(page browser.Page, res Result) Result {
	res.URL = page.URL()
	res.Landed, res.HasLanded = Cursor(res.URL)
	return res
}

func (n *Navigator) clickNext(ctx context.Context, page browser.Page, oldURL string) (Result, error) {
	res := Result{}
	for _, css := range NextSelectors {
		sel := browser.CSS(css)
		count, err := page.Count(ctx, sel)
		if err != nil || count == 0 {
			continue
		}
		if err := page.Element(sel, 0).Click(ctx, nextClickTimeout); err != nil {
			n.Logger.Warn().Err(err).Str("selector", css).Msg("next control click failed")
			if ctx.Err() != nil || errors.Is(err, browser.ErrPageClosed) {
				return n.landed(page, res), err
			}
			return n.landed(page, res), nil
		}
		if err := page.WaitForLoad(ctx, n.Timeout); err != nil {
			n.Logger.Debug().Err(err).Msg("wait for load after next click")
		}
		res = n.landed(page, res)
		res.Moved = res.URL != oldURL
		return res, nil
	}
	return n.landed(page, res), nil
}
