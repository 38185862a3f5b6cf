package driver

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/polzovatel/connect-clicker/internal/browser"
)

// Pacer spaces actions by a delay drawn uniformly from [Min, Max].
type Pacer struct {
	Min, Max time.Duration
	Rand     *rand.Rand
}

// Next draws the next delay.
func (p Pacer) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	span := int64(p.Max-p.Min) + 1
	var n int64
	if p.Rand != nil {
		n = p.Rand.Int64N(span)
	} else {
		n = rand.Int64N(span)
	}
	return p.Min + time.Duration(n)
}

// Pause waits for the next delay on page and returns it.
func (p Pacer) Pause(ctx context.Context, page browser.Page) (time.Duration, error) {
	d := p.Next()
	if d <= 0 {
		return 0, ctx.Err()
	}
	return d, page.Wait(ctx, d)
}
