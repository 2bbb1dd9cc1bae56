package hwport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/radarctl/pool"
)

// ErrInjected is the error returned by SimPort when a fault is injected.
var ErrInjected = errors.New("injected hardware fault")

// ChannelBinding is a channel bound through AcquireChannel.
type ChannelBinding struct {
	Class pool.ChannelClass
	Index int
}

// SimPort is an in-memory Port. It records every call so that tests and the
// command-line simulation can inspect what the controller asked for.
type SimPort struct {
	lock sync.Mutex

	bindings     []ChannelBinding
	suspended    map[PeripheralID]bool
	failSuspend  map[PeripheralID]bool
	failResume   map[PeripheralID]bool
	wakeSources  []WakeSource
	maxDepth     int
	sleeps       []Wake
	peripheralOp []string
}

// NewSimPort creates a SimPort that can enter every state.
func NewSimPort() *SimPort {
	return &SimPort{
		suspended:   make(map[PeripheralID]bool),
		failSuspend: make(map[PeripheralID]bool),
		failResume:  make(map[PeripheralID]bool),
		maxDepth:    -1,
	}
}

// LimitDepth makes the port refuse states deeper than depth and enter the
// port's own fallback (no sleep) instead. A negative depth removes the limit.
func (p *SimPort) LimitDepth(depth int) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.maxDepth = depth
}

// ScriptWake queues the wake sources reported by the next sleeps. When the
// queue is empty, sleeps end with WakeFrameTimer.
func (p *SimPort) ScriptWake(sources ...WakeSource) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.wakeSources = append(p.wakeSources, sources...)
}

// FailSuspend makes suspending a peripheral fail.
func (p *SimPort) FailSuspend(id PeripheralID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.failSuspend[id] = true
}

// FailResume makes resuming a peripheral fail.
func (p *SimPort) FailResume(id PeripheralID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.failResume[id] = true
}

// AcquireChannel records the binding.
func (p *SimPort) AcquireChannel(class pool.ChannelClass, index int) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, b := range p.bindings {
		if b.Class == class && b.Index == index {
			return fmt.Errorf("%s %d is already bound", class, index)
		}
	}

	p.bindings = append(p.bindings, ChannelBinding{Class: class, Index: index})

	return nil
}

// ReleaseAllChannels drops every binding.
func (p *SimPort) ReleaseAllChannels() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.bindings = nil

	return nil
}

// Bindings returns the current channel bindings.
func (p *SimPort) Bindings() []ChannelBinding {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]ChannelBinding(nil), p.bindings...)
}

// EnterLowPower records the sleep and returns immediately.
func (p *SimPort) EnterLowPower(
	state LowPowerState,
	budget time.Duration,
) (Wake, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	wake := Wake{Entered: state, Source: WakeFrameTimer}

	if p.maxDepth >= 0 && state.Depth > p.maxDepth {
		wake.Entered = NoSleep
	}

	if state.WakeLatency > budget {
		wake.Entered = NoSleep
	}

	if len(p.wakeSources) > 0 {
		wake.Source = p.wakeSources[0]
		p.wakeSources = p.wakeSources[1:]
	}

	p.sleeps = append(p.sleeps, wake)

	return wake, nil
}

// Sleeps returns every sleep request served so far.
func (p *SimPort) Sleeps() []Wake {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]Wake(nil), p.sleeps...)
}

// SuspendPeripheral gates a peripheral.
func (p *SimPort) SuspendPeripheral(id PeripheralID) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.failSuspend[id] {
		return fmt.Errorf("suspend %s: %w", id, ErrInjected)
	}

	if !p.suspended[id] {
		p.suspended[id] = true
		p.peripheralOp = append(p.peripheralOp, "suspend "+string(id))
	}

	return nil
}

// ResumePeripheral restores a peripheral.
func (p *SimPort) ResumePeripheral(id PeripheralID) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.failResume[id] {
		return fmt.Errorf("resume %s: %w", id, ErrInjected)
	}

	if p.suspended[id] {
		delete(p.suspended, id)
		p.peripheralOp = append(p.peripheralOp, "resume "+string(id))
	}

	return nil
}

// Suspended tells if a peripheral is currently gated.
func (p *SimPort) Suspended(id PeripheralID) bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.suspended[id]
}

// PeripheralLog returns the effective suspend and resume operations in call
// order.
func (p *SimPort) PeripheralLog() []string {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]string(nil), p.peripheralOp...)
}
