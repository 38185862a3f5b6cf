// Package confirm clicks a control and polls the page until a state change is observed.
package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/polzovatel/connect-clicker/internal/browser"
)

const (
	DefaultScrollTimeout = 5 * time.Second
	DefaultClickTimeout  = 10 * time.Second
	DefaultInterval      = 500 * time.Millisecond

	// MinInterval is the floor for any polling loop.
	MinInterval = 300 * time.Millisecond
)

// Outcome is the result of a confirmed click.
type Outcome int

const (
	TimedOut Outcome = iota
	Changed
)

func (o Outcome) String() string {
	if o == Changed {
		return "changed"
	}
	return "timed_out"
}

// Predicate reports whether the expected change is visible on the page.
type Predicate func(ctx context.Context) bool

// Options bounds a click and its confirmation.
type Options struct {
	ScrollTimeout time.Duration
	ClickTimeout  time.Duration
	Interval      time.Duration
	Timeout       time.Duration
	// AfterClick runs once the click landed and before polling starts.
	AfterClick func(ctx context.Context) error
}

func (o Options) withDefaults() Options {
	if o.ScrollTimeout <= 0 {
		o.ScrollTimeout = DefaultScrollTimeout
	}
	if o.ClickTimeout <= 0 {
		o.ClickTimeout = DefaultClickTimeout
	}
	if o.Interval < MinInterval {
		o.Interval = DefaultInterval
	}
	return o
}

// Click scrolls el into view and clicks it. Errors are returned untouched
// apart from wrapping; the caller decides whether to retry, skip or abort.
func Click(ctx context.Context, el browser.Element, opts Options) error {
	opts = opts.withDefaults()
	if err := el.ScrollIntoView(ctx, opts.ScrollTimeout); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	if err := el.Click(ctx, opts.ClickTimeout); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

// Until polls pred every interval until it holds or timeout elapses on the
// page clock. It returns early with an error only if ctx ends or the page closes.
func Until(ctx context.Context, page browser.Page, interval, timeout time.Duration, pred Predicate) (bool, error) {
	if interval < MinInterval {
		interval = MinInterval
	}
	deadline := page.Now().Add(timeout)
	for page.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if page.IsClosed() {
			return false, browser.ErrPageClosed
		}
		if pred(ctx) {
			return true, nil
		}
		if err := page.Wait(ctx, interval); err != nil {
			return false, err
		}
	}
	return false, nil
}

// ClickAndConfirm clicks el, runs AfterClick, then waits for pred.
func ClickAndConfirm(ctx context.Context, page browser.Page, el browser.Element, pred Predicate, opts Options) (Outcome, error) {
	opts = opts.withDefaults()
	if err := Click(ctx, el, opts); err != nil {
		return TimedOut, err
	}
	if opts.AfterClick != nil {
		if err := opts.AfterClick(ctx); err != nil {
			return TimedOut, err
		}
	}
	ok, err := Until(ctx, page, opts.Interval, opts.Timeout, pred)
	if err != nil {
		return TimedOut, err
	}
	if ok {
		return Changed, nil
	}
	return TimedOut, nil
}

// CountBelow is satisfied once the number of sel matches drops below before.
func CountBelow(page browser.Page, sel browser.Selector, before int) Predicate {
	return func(ctx context.Context) bool {
		n, err := page.Count(ctx, sel)
		return err == nil && n < before
	}
}

// CountAbove is satisfied once the number of sel matches rises above before.
func CountAbove(page browser.Page, sel browser.Selector, before int) Predicate {
	return func(ctx context.Context) bool {
		n, err := page.Count(ctx, sel)
		return err == nil && n > before
	}
}

// Any is satisfied when any of preds is.
func Any(preds ...Predicate) Predicate {
	return func(ctx context.Context) bool {
		for _, p := range preds {
			if p(ctx) {
				return true
			}
		}
		return false
	}
}
