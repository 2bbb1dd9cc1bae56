// Package hwport declares the small set of hardware primitives that the
// pipeline stages and the power scheduler rely on. Register-level
// implementations live outside this module; SimPort is an in-memory stand-in.
package hwport

import (
	"fmt"
	"time"

	"github.com/sarchlab/radarctl/pool"
)

// PeripheralID names a peripheral that can be clock gated.
type PeripheralID string

// LowPowerState describes a sleep state of the platform. A deeper state saves
// more power and takes longer to wake up from.
type LowPowerState struct {
	Name        string        `json:"name"`
	Depth       int           `json:"depth"`
	WakeLatency time.Duration `json:"wake_latency"`
}

// NoSleep is the state reported when the platform stayed awake.
var NoSleep = LowPowerState{Name: "none"}

// IsSleep tells if the state is an actual sleep state.
func (s LowPowerState) IsSleep() bool {
	return s.Depth > 0
}

// WakeSource tells why the platform left a sleep state.
type WakeSource int

// The wake sources.
const (
	WakeNone WakeSource = iota
	WakeFrameTimer
	WakeHostCommand
)

func (w WakeSource) String() string {
	switch w {
	case WakeNone:
		return "none"
	case WakeFrameTimer:
		return "frame-timer"
	case WakeHostCommand:
		return "host-command"
	default:
		return fmt.Sprintf("wake-%d", int(w))
	}
}

// Wake reports the outcome of a sleep request.
type Wake struct {
	Entered LowPowerState
	Source  WakeSource
}

// Port is the hardware port used by stages and the power scheduler.
type Port interface {
	// AcquireChannel binds a channel index granted by a pool to the caller.
	AcquireChannel(class pool.ChannelClass, index int) error

	// ReleaseAllChannels drops every channel binding.
	ReleaseAllChannels() error

	// EnterLowPower asks for state, knowing that the platform must be awake
	// again within budget. It returns once the platform is awake, reporting
	// which state was actually entered (possibly NoSleep) and what woke it.
	EnterLowPower(state LowPowerState, budget time.Duration) (Wake, error)

	// SuspendPeripheral gates the clock of a peripheral. Suspending a
	// suspended peripheral is a no-op.
	SuspendPeripheral(id PeripheralID) error

	// ResumePeripheral restores a peripheral. Resuming an active peripheral
	// is a no-op.
	ResumePeripheral(id PeripheralID) error
}
