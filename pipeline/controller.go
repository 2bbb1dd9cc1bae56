package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/id"
	"github.com/sarchlab/radarctl/pool"
	"github.com/sarchlab/radarctl/stage"
	"github.com/sarchlab/radarctl/tracing"
)

// Controller owns the stages of every mode and runs the active one.
// ConfigureAll and RunOneFrame are serialized; neither runs while the other
// is in progress.
type Controller struct {
	hooking.HookableBase

	name   string
	pools  *pool.Set
	port   hwport.Port
	clock  clock.Clock
	logger *log.Logger
	ids    id.Generator

	mu          sync.Mutex
	modes       map[string]*Mode
	initialized map[string]bool
	state       State
	active      *Mode
	params      stage.StaticParams
	nextFrame   uint64
	stats       Stats
}

// Name returns the name of the controller.
func (c *Controller) Name() string {
	return c.name
}

// AddMode registers a mode and initializes the stages that have not been
// initialized yet. Stages are identified by name and may be shared between
// modes.
func (c *Controller) AddMode(mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode.Name == "" {
		return errors.New("mode name must not be empty")
	}

	if _, ok := c.modes[mode.Name]; ok {
		return fmt.Errorf("mode %q already exists", mode.Name)
	}

	if len(mode.Stages) == 0 {
		return fmt.Errorf("mode %q has no stage", mode.Name)
	}

	for _, s := range mode.Stages {
		if c.initialized[s.Name()] {
			continue
		}

		err := s.Init(c.port)
		if err != nil {
			return fmt.Errorf("mode %q: init %s: %w", mode.Name, s.Name(), err)
		}

		c.initialized[s.Name()] = true
	}

	m := mode
	m.Stages = append([]stage.Stage(nil), mode.Stages...)
	c.modes[mode.Name] = &m

	return nil
}

// Modes returns the names of all registered modes.
func (c *Controller) Modes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.modes))
	for name := range c.modes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Stages returns the stages of the active mode.
func (c *Controller) Stages() []stage.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Configured {
		return nil
	}

	return append([]stage.Stage(nil), c.active.Stages...)
}

// ConfigureAll makes mode the active mode. It resets every pool and then
// configures the stages in order, so that each stage sees the resources the
// earlier stages took. A failure leaves the controller Unconfigured; a mode
// is never partially applied.
func (c *Controller) ConfigureAll(mode string, params stage.StaticParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Unconfigured

	err := drainMode(c.active)
	if err != nil {
		return c.configFailed(fmt.Errorf("drain mode %q: %w",
			c.active.Name, err))
	}

	c.active = nil

	m, ok := c.modes[mode]
	if !ok {
		return c.configFailed(fmt.Errorf("unknown mode %q: %w",
			mode, fault.ErrNotConfigured))
	}

	err = c.port.ReleaseAllChannels()
	if err != nil {
		return c.configFailed(fmt.Errorf("release channels: %w", err))
	}

	c.pools.ResetAll()

	for _, s := range m.Stages {
		err := s.Configure(params, c.pools)
		if err != nil {
			_ = drainMode(m)
			return c.configFailed(fmt.Errorf("configure mode %q: %w",
				mode, err))
		}
	}

	c.state = Configured
	c.active = m
	c.params = params
	c.stats.Configs++

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosConfigured,
			Item:   mode,
		})
	}

	return nil
}

// drainer is a stage whose outputs may still be read after the frame that
// produced them.
type drainer interface {
	Drain() error
}

// drainMode waits until no output of the stages of m is still held, so that
// the buffers can be handed out again.
func drainMode(m *Mode) error {
	if m == nil {
		return nil
	}

	for _, s := range m.Stages {
		d, ok := s.(drainer)
		if !ok {
			continue
		}

		err := d.Drain()
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) configFailed(err error) error {
	c.logger.Printf("FATAL: %s: %v", c.name, err)

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosConfigFailed,
			Item:   err,
		})
	}

	return err
}

// RunOneFrame runs every stage of the active mode once. Stage 1 receives no
// input and stage k+1 receives the output of stage k. If a stage fails, the
// frame is dropped: no result is produced, stage 1 is triggered again for
// the next frame, and the error, which wraps fault.ErrStageProcess, is
// returned. The context is only checked before the frame starts.
func (c *Controller) RunOneFrame(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Configured {
		return nil, fmt.Errorf("%s: %w", c.name, fault.ErrNotConfigured)
	}

	frame := c.nextFrame
	c.nextFrame++

	taskID := c.ids.Generate()
	tracing.StartTask(taskID, "", c, "frame", "frame", frame)
	defer tracing.EndTask(taskID, c)

	result := &Result{
		Frame:   frame,
		Mode:    c.active.Name,
		Start:   c.clock.Now(),
		Metrics: make(map[string]stage.Metrics),
	}

	var prev *stage.Output

	for _, s := range c.active.Stages {
		out, timing, err := c.runStage(taskID, frame, s, prev)
		prev.Release()

		if err != nil {
			return nil, c.dropFrame(frame, err)
		}

		tracing.AddMilestone(taskID, c, s.Name())

		result.Timing = append(result.Timing, timing)
		result.Metrics[s.Name()] = out.Metrics
		prev = out
	}

	result.Output = prev
	result.Duration = c.clock.Since(result.Start)
	c.stats.Frames++

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosFrameDone,
			Item:   result,
		})
	}

	return result, nil
}

func (c *Controller) runStage(
	parentID string,
	frame uint64,
	s stage.Stage,
	in *stage.Output,
) (*stage.Output, StageTiming, error) {
	taskID := c.ids.Generate()
	tracing.StartTask(taskID, parentID, c, "stage", s.Name(), frame)
	defer tracing.EndTask(taskID, c)

	start := c.clock.Now()
	out, err := s.Process(frame, in)
	timing := StageTiming{
		Stage:    s.Name(),
		Start:    start,
		Duration: c.clock.Since(start),
	}

	if err == nil && out == nil {
		err = fmt.Errorf("%s produced no output", s.Name())
	}

	return out, timing, err
}

func (c *Controller) dropFrame(frame uint64, err error) error {
	if !errors.Is(err, fault.ErrStageProcess) {
		err = fmt.Errorf("%w: %w", fault.ErrStageProcess, err)
	}

	c.stats.Dropped++
	c.logger.Printf("FATAL: %s: frame %d dropped: %v", c.name, frame, err)

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosFrameDrop,
			Item:   frame,
			Detail: err,
		})
	}

	source := c.active.Stages[0]

	trigErr := source.Control(stage.CmdTrigger, nil)
	if trigErr != nil {
		c.logger.Printf("%s: trigger %s: %v", c.name, source.Name(), trigErr)
	}

	return err
}

// ResetToConfigured brings the active mode back to its just-configured
// condition without touching its resources: stage 1 is re-armed and its
// dynamic parameters restored.
func (c *Controller) ResetToConfigured() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Configured {
		return fmt.Errorf("%s: %w", c.name, fault.ErrNotConfigured)
	}

	return c.active.Stages[0].Control(stage.CmdRearm, nil)
}

// Control sends a command to one stage of the active mode.
func (c *Controller) Control(
	stageName string,
	cmd stage.Command,
	payload any,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Configured {
		return fmt.Errorf("%s: %w", c.name, fault.ErrNotConfigured)
	}

	for _, s := range c.active.Stages {
		if s.Name() == stageName {
			return s.Control(cmd, payload)
		}
	}

	return fmt.Errorf("%s: no stage %q in mode %q",
		c.name, stageName, c.active.Name)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// ActiveMode returns the name of the active mode, or an empty string when
// unconfigured.
func (c *Controller) ActiveMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Configured {
		return ""
	}

	return c.active.Name
}

// Params returns the static parameters of the last successful configuration.
func (c *Controller) Params() stage.StaticParams {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.params
}

// Stats returns the frame counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

// Pools returns the pools the stages allocate from.
func (c *Controller) Pools() *pool.Set {
	return c.pools
}
