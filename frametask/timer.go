package frametask

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is the frame timer. Every period it plays the interrupt handler and
// raises the token.
type Timer struct {
	clock  clock.Clock
	period time.Duration
	token  *Token
}

// NewTimer creates a frame timer.
func NewTimer(clk clock.Clock, period time.Duration, token *Token) *Timer {
	if period <= 0 {
		panic("frame period must be positive")
	}

	return &Timer{
		clock:  clk,
		period: period,
		token:  token,
	}
}

// Period returns the frame period.
func (t *Timer) Period() time.Duration {
	return t.period
}

// Run raises the token once per period until ctx is done, or until limit
// interrupts have fired when limit is positive.
func (t *Timer) Run(ctx context.Context, limit uint64) error {
	ticker := t.clock.Ticker(t.period)
	defer ticker.Stop()

	fired := uint64(0)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.token.Raise()
			fired++

			if limit > 0 && fired >= limit {
				return nil
			}
		}
	}
}
