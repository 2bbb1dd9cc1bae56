// Package system builds a radarctl process from its configuration and runs
// it. A System owns every component; nothing is kept in globals.
package system

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/radarctl/config"
	"github.com/sarchlab/radarctl/frametask"
	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/pipeline"
	"github.com/sarchlab/radarctl/pool"
	"github.com/sarchlab/radarctl/power"
	"github.com/sarchlab/radarctl/protocol"
	"github.com/sarchlab/radarctl/stage"
	"github.com/sarchlab/radarctl/tracing"
)

const drainPoll = time.Millisecond

// System is the process root. It holds both cores of the platform: the
// control core driving the protocol, and the compute core running the frame
// tasks.
type System struct {
	name   string
	cfg    config.Config
	clock  clock.Clock
	logger *log.Logger

	port       hwport.Port
	pools      *pool.Set
	stages     map[string]*stage.Comp
	stageOrder []string
	controller *pipeline.Controller
	stageTime  *tracing.TotalTimeTracer

	token        *frametask.Token
	timer        *frametask.Timer
	pair         *frametask.Pair
	recorderSink *frametask.RecorderSink

	shared  *protocol.Shared
	host    *protocol.Host
	compute *protocol.Core

	scheduler *power.Scheduler
}

// RunOptions tells how a run is driven.
type RunOptions struct {
	// Frames stops the run after that many frame timer interrupts, once the
	// last frame has been emitted. Zero runs until the context is done.
	Frames uint64

	// Cubes, when positive, drives the compute core with that many
	// cube_ready requests from the control core instead of the frame timer.
	Cubes int

	// OnResult receives every result delivered to the control core in cube
	// mode.
	OnResult func(r *protocol.SlotResult) error
}

// Name returns the name of the system.
func (s *System) Name() string {
	return s.name
}

// Config returns the configuration the system was built from.
func (s *System) Config() config.Config {
	return s.cfg
}

// Controller returns the pipeline controller.
func (s *System) Controller() *pipeline.Controller {
	return s.controller
}

// Pools returns the resource pools.
func (s *System) Pools() *pool.Set {
	return s.pools
}

// Port returns the hardware port.
func (s *System) Port() hwport.Port {
	return s.port
}

// Stages returns every stage, in the order they are first used.
func (s *System) Stages() []*stage.Comp {
	stages := make([]*stage.Comp, 0, len(s.stageOrder))
	for _, name := range s.stageOrder {
		stages = append(stages, s.stages[name])
	}

	return stages
}

// Token returns the frame token.
func (s *System) Token() *frametask.Token {
	return s.token
}

// Frames returns the frame task pair.
func (s *System) Frames() *frametask.Pair {
	return s.pair
}

// Scheduler returns the power scheduler, or nil if power management is off.
func (s *System) Scheduler() *power.Scheduler {
	return s.scheduler
}

// Host returns the control core.
func (s *System) Host() *protocol.Host {
	return s.host
}

// Compute returns the state machine of the compute core.
func (s *System) Compute() *protocol.Core {
	return s.compute
}

// StageTime returns the tracer that accumulates the busy time of stages.
func (s *System) StageTime() *tracing.TotalTimeTracer {
	return s.stageTime
}

// Configure configures the active mode before any task is started, so that
// configuration failures are reported up front.
func (s *System) Configure() error {
	return s.controller.ConfigureAll(s.cfg.ActiveMode, s.cfg.Params)
}

// Run starts both cores, applies the active mode through the protocol, and
// drives frames until the options or ctx tell it to stop. A fatal error of
// any task ends the run and is returned.
func (s *System) Run(ctx context.Context, opts RunOptions) error {
	blob, err := config.EncodeMode(s.cfg.ActiveMode, s.cfg.Params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.host.Serve(gctx) })
	g.Go(func() error { return s.compute.Serve(gctx) })

	if opts.Cubes == 0 {
		g.Go(func() error { return s.pair.Run(gctx) })
	}

	g.Go(func() error {
		defer cancel()

		err := s.drive(gctx, blob, opts)
		if gctx.Err() != nil {
			return nil
		}

		return err
	})

	err = g.Wait()

	if s.recorderSink != nil {
		s.recorderSink.Flush()
	}

	return err
}

func (s *System) drive(
	ctx context.Context,
	blob []byte,
	opts RunOptions,
) error {
	err := s.host.ApplyConfig(ctx, blob)
	if err != nil {
		return err
	}

	if opts.Cubes > 0 {
		return s.executeCubes(ctx, opts)
	}

	err = s.timer.Run(ctx, opts.Frames)
	if err != nil || opts.Frames == 0 {
		return err
	}

	s.waitFor(ctx, s.pair.Idle)

	return s.stop(ctx)
}

func (s *System) executeCubes(ctx context.Context, opts RunOptions) error {
	for i := 0; i < opts.Cubes; i++ {
		r, err := s.host.Execute(ctx)
		if errors.Is(err, protocol.ErrDropped) {
			continue
		}

		if err != nil {
			return err
		}

		if opts.OnResult == nil {
			continue
		}

		err = opts.OnResult(r)
		if err != nil {
			return err
		}
	}

	return s.stop(ctx)
}

// stop returns both cores to Idle and waits until the compute core has
// handled the request.
func (s *System) stop(ctx context.Context) error {
	err := s.host.Stop(ctx)
	if err != nil {
		return err
	}

	s.waitFor(ctx, func() bool {
		return s.compute.State() == protocol.Idle
	})

	return nil
}

func (s *System) waitFor(ctx context.Context, cond func() bool) {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for !cond() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *System) resetProtocol() error {
	s.compute.ResetToIdle()
	s.host.ResetToIdle()

	return nil
}

// Snapshot is a point-in-time view of every counter of the system.
type Snapshot struct {
	Name      string                   `json:"name"`
	State     string                   `json:"state"`
	Mode      string                   `json:"mode"`
	Pipeline  pipeline.Stats           `json:"pipeline"`
	Token     frametask.TokenStats     `json:"token"`
	Frames    frametask.PairStats      `json:"frames"`
	Pools     []pool.Usage             `json:"pools"`
	Control   protocol.CoreStats       `json:"control"`
	Compute   protocol.CoreStats       `json:"compute"`
	Power     *power.Stats             `json:"power,omitempty"`
	StageTime map[string]time.Duration `json:"stage_time"`
}

// Snapshot collects the counters of every component.
func (s *System) Snapshot() Snapshot {
	snap := Snapshot{
		Name:      s.name,
		State:     s.controller.State().String(),
		Mode:      s.controller.ActiveMode(),
		Pipeline:  s.controller.Stats(),
		Token:     s.token.Stats(),
		Frames:    s.pair.Stats(),
		Pools:     s.pools.Usage(),
		Control:   s.host.Stats(),
		Compute:   s.compute.Stats(),
		StageTime: make(map[string]time.Duration),
	}

	if s.scheduler != nil {
		ps := s.scheduler.Stats()
		snap.Power = &ps
	}

	for _, name := range s.stageOrder {
		snap.StageTime[name] = s.stageTime.TotalTime(name)
	}

	return snap
}
