package frametask

import (
	"sync/atomic"
)

// Token counts frame interrupts that the compute task has not drained yet.
//
// At most one frame is in flight. Interrupts that arrive while a frame is
// outstanding are counted in Overflow and merged into the next claim instead
// of being queued.
type Token struct {
	ready *Signal

	outstanding atomic.Int64
	raised      atomic.Uint64
	overflow    atomic.Uint64
	coalesced   atomic.Uint64
}

// TokenStats is a snapshot of the token counters.
type TokenStats struct {
	Outstanding int64  `json:"outstanding"`
	Raised      uint64 `json:"raised"`
	Overflow    uint64 `json:"overflow"`
	Coalesced   uint64 `json:"coalesced"`
}

// NewToken creates a token with no outstanding frame.
func NewToken() *Token {
	return &Token{ready: NewSignal()}
}

// Raise is called from the frame interrupt. It never blocks.
func (t *Token) Raise() {
	t.raised.Add(1)

	if t.outstanding.Add(1) > 1 {
		t.overflow.Add(1)
	}

	t.ready.Raise()
}

// Ready returns the frame_ready signal.
func (t *Token) Ready() *Signal {
	return t.ready
}

// Claim takes the outstanding frames for one run, leaving exactly one
// outstanding until Complete. It returns how many interrupts the run covers;
// zero means there is nothing to do.
func (t *Token) Claim() int64 {
	for {
		cur := t.outstanding.Load()
		if cur <= 1 {
			return max(cur, 0)
		}

		if t.outstanding.CompareAndSwap(cur, 1) {
			t.coalesced.Add(uint64(cur - 1))
			return cur
		}
	}
}

// Complete marks the claimed frame as drained.
func (t *Token) Complete() {
	if t.outstanding.Add(-1) < 0 {
		panic("frame token completed without a claim")
	}
}

// Outstanding returns the number of undrained interrupts.
func (t *Token) Outstanding() int64 {
	return t.outstanding.Load()
}

// Overflow returns how many interrupts arrived while a frame was
// outstanding. A growing value means the pipeline is falling behind.
func (t *Token) Overflow() uint64 {
	return t.overflow.Load()
}

// Coalesced returns how many interrupts were merged into a later claim.
func (t *Token) Coalesced() uint64 {
	return t.coalesced.Load()
}

// Stats returns a snapshot of the counters.
func (t *Token) Stats() TokenStats {
	return TokenStats{
		Outstanding: t.outstanding.Load(),
		Raised:      t.raised.Load(),
		Overflow:    t.overflow.Load(),
		Coalesced:   t.coalesced.Load(),
	}
}
