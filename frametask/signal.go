// Package frametask runs the pipeline once per frame interrupt and hands the
// results to an output task.
//
// The interrupt side only touches a lock-free counter and raises a binary
// signal. Everything else happens in the compute and output tasks after their
// waits return.
package frametask

import "context"

// Signal is a binary handoff. Raising an already raised signal has no
// effect, so several raises before a wait are seen as one.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a lowered signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Raise sets the signal. It never blocks.
func (s *Signal) Raise() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives once per raise.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// Wait blocks until the signal is raised and lowers it.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Raised reports whether the signal is set without lowering it.
func (s *Signal) Raised() bool {
	return len(s.ch) > 0
}
