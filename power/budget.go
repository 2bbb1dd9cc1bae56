// Package power decides, once per frame, how to spend the idle part of the
// frame period.
package power

import (
	"fmt"
	"log"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sarchlab/radarctl/fault"
)

// Budget splits a frame period into active and idle time.
type Budget struct {
	Period time.Duration `json:"period"`
	Active time.Duration `json:"active"`
	Idle   time.Duration `json:"idle"`
}

// ComputeBudget returns the idle time left in a frame period after active
// time. No idle time at all means the frame rate cannot be sustained, which
// is reported as fault.ErrTimingBudgetExceeded.
func ComputeBudget(period, active time.Duration) (Budget, error) {
	b := Budget{
		Period: period,
		Active: active,
		Idle:   period - active,
	}

	if b.Idle <= 0 {
		return b, fmt.Errorf("active %v in a %v frame: %w",
			active, period, fault.ErrTimingBudgetExceeded)
	}

	return b, nil
}

// BudgetCheck returns a frame observer that only checks the timing budget.
// It stands in for the Scheduler when frames are not followed by a sleep.
func BudgetCheck(
	clk clock.Clock,
	period time.Duration,
	logger *log.Logger,
) func(frameStart time.Time) error {
	return func(frameStart time.Time) error {
		_, err := ComputeBudget(period, clk.Since(frameStart))
		if err != nil {
			logger.Printf("FATAL: %v", err)
		}

		return err
	}
}
