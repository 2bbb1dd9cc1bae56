package power

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/hwport"
)

// Peripheral is a device the scheduler may suspend around a sleep.
type Peripheral struct {
	ID hwport.PeripheralID `json:"id"`

	// GateClock tells that the peripheral's clock is gated in sleep.
	GateClock bool `json:"gate_clock"`

	// ActiveDuringSleep tells that the peripheral keeps working in sleep and
	// must not be suspended.
	ActiveDuringSleep bool `json:"active_during_sleep"`
}

func (p Peripheral) needsSuspend() bool {
	return p.GateClock && !p.ActiveDuringSleep
}

// Resetter is reset when the platform is woken by a host command.
type Resetter interface {
	ResetToConfigured() error
}

// ResetFunc adapts a function to the Resetter interface.
type ResetFunc func() error

// ResetToConfigured calls f.
func (f ResetFunc) ResetToConfigured() error {
	return f()
}

// Hook positions of the scheduler.
var (
	// HookPosSleep fires before entering a sleep state. The item is the
	// state and the detail the Budget.
	HookPosSleep = &hooking.HookPos{Name: "Power Sleep"}

	// HookPosWake fires after waking up. The item is the hwport.Wake.
	HookPosWake = &hooking.HookPos{Name: "Power Wake"}
)

// Stats are the counters of a scheduler.
type Stats struct {
	Frames      uint64 `json:"frames"`
	Sleeps      uint64 `json:"sleeps"`
	StayedAwake uint64 `json:"stayed_awake"`
	HostWakes   uint64 `json:"host_wakes"`
	LastBudget  Budget `json:"last_budget"`
	LastState   string `json:"last_state"`
}

// Scheduler runs after the active part of every frame.
type Scheduler struct {
	hooking.HookableBase

	name        string
	port        hwport.Port
	clock       clock.Clock
	logger      *log.Logger
	period      time.Duration
	states      []hwport.LowPowerState
	peripherals []Peripheral
	resetters   []Resetter

	mu    sync.Mutex
	stats Stats
}

// A Builder can build schedulers.
type Builder struct {
	port        hwport.Port
	clock       clock.Clock
	logger      *log.Logger
	period      time.Duration
	states      []hwport.LowPowerState
	peripherals []Peripheral
	resetters   []Resetter
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		clock:  clock.New(),
		logger: log.New(io.Discard, "", 0),
	}
}

// WithPort sets the hardware port.
func (b Builder) WithPort(port hwport.Port) Builder {
	b.port = port
	return b
}

// WithClock sets the time source that measures active time.
func (b Builder) WithClock(clk clock.Clock) Builder {
	b.clock = clk
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithFramePeriod sets the frame period.
func (b Builder) WithFramePeriod(d time.Duration) Builder {
	b.period = d
	return b
}

// WithStates sets the low-power states the platform offers.
func (b Builder) WithStates(states ...hwport.LowPowerState) Builder {
	b.states = append([]hwport.LowPowerState(nil), states...)
	return b
}

// WithPeripherals sets the peripherals, in suspend order.
func (b Builder) WithPeripherals(p ...Peripheral) Builder {
	b.peripherals = append([]Peripheral(nil), p...)
	return b
}

// WithResetters sets what is reset on a host-command wake, in order.
func (b Builder) WithResetters(r ...Resetter) Builder {
	b.resetters = append([]Resetter(nil), r...)
	return b
}

// Build creates a scheduler.
func (b Builder) Build(name string) *Scheduler {
	if b.port == nil {
		panic("power scheduler needs a hardware port")
	}

	if b.period <= 0 {
		panic("power scheduler needs a positive frame period")
	}

	states := append([]hwport.LowPowerState(nil), b.states...)
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Depth > states[j].Depth
	})

	return &Scheduler{
		name:        name,
		port:        b.port,
		clock:       b.clock,
		logger:      b.logger,
		period:      b.period,
		states:      states,
		peripherals: b.peripherals,
		resetters:   b.resetters,
	}
}

// Name returns the name of the scheduler.
func (s *Scheduler) Name() string {
	return s.name
}

// Stats returns the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// SelectState returns the deepest state that can be woken from within idle,
// or hwport.NoSleep if none can.
func (s *Scheduler) SelectState(idle time.Duration) hwport.LowPowerState {
	for _, st := range s.states {
		if st.IsSleep() && st.WakeLatency <= idle {
			return st
		}
	}

	return hwport.NoSleep
}

// OnFrameComplete measures the active time since frameStart and spends the
// rest of the frame period in the deepest state that fits. Peripherals are
// suspended in order before the sleep and resumed in reverse order after
// it. A host-command wake resets every resetter.
func (s *Scheduler) OnFrameComplete(frameStart time.Time) error {
	budget, err := ComputeBudget(s.period, s.clock.Since(frameStart))

	s.mu.Lock()
	s.stats.Frames++
	s.stats.LastBudget = budget
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("FATAL: %s: %v", s.name, err)
		return err
	}

	state := s.SelectState(budget.Idle)
	if !state.IsSleep() {
		s.stayedAwake()
		return nil
	}

	wake, err := s.sleep(state, budget)
	if err != nil {
		s.logger.Printf("FATAL: %s: %v", s.name, err)
		return err
	}

	s.mu.Lock()
	s.stats.LastState = wake.Entered.Name
	if wake.Entered.IsSleep() {
		s.stats.Sleeps++
	} else {
		s.stats.StayedAwake++
	}
	s.mu.Unlock()

	if wake.Source == hwport.WakeHostCommand {
		return s.hostWake()
	}

	return nil
}

func (s *Scheduler) stayedAwake() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.StayedAwake++
	s.stats.LastState = hwport.NoSleep.Name
}

func (s *Scheduler) sleep(
	state hwport.LowPowerState,
	budget Budget,
) (hwport.Wake, error) {
	var suspended []hwport.PeripheralID

	for _, p := range s.peripherals {
		if !p.needsSuspend() {
			continue
		}

		err := s.port.SuspendPeripheral(p.ID)
		if err != nil {
			s.resume(suspended)

			return hwport.Wake{}, fmt.Errorf("suspend %s: %v: %w",
				p.ID, err, fault.ErrPeripheralFault)
		}

		suspended = append(suspended, p.ID)
	}

	if s.NumHooks() > 0 {
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosSleep,
			Item:   state,
			Detail: budget,
		})
	}

	wake, err := s.port.EnterLowPower(state, budget.Idle)
	if err != nil {
		s.resume(suspended)

		return hwport.Wake{}, fmt.Errorf("enter %s: %v: %w",
			state.Name, err, fault.ErrPeripheralFault)
	}

	if s.NumHooks() > 0 {
		s.InvokeHook(hooking.HookCtx{Domain: s, Pos: HookPosWake, Item: wake})
	}

	err = s.resume(suspended)
	if err != nil {
		return hwport.Wake{}, err
	}

	return wake, nil
}

// resume restores peripherals in reverse order. It tries every peripheral
// and returns the first failure.
func (s *Scheduler) resume(ids []hwport.PeripheralID) error {
	var first error

	for i := len(ids) - 1; i >= 0; i-- {
		err := s.port.ResumePeripheral(ids[i])
		if err != nil && first == nil {
			first = fmt.Errorf("resume %s: %v: %w",
				ids[i], err, fault.ErrPeripheralFault)
		}
	}

	return first
}

func (s *Scheduler) hostWake() error {
	s.mu.Lock()
	s.stats.HostWakes++
	s.mu.Unlock()

	s.logger.Printf("%s: woken by host command, resetting", s.name)

	for _, r := range s.resetters {
		err := r.ResetToConfigured()
		if err != nil {
			return fmt.Errorf("%s: reset after host wake: %w", s.name, err)
		}
	}

	return nil
}
