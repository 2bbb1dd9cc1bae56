package system

import (
	"fmt"
	"io"
	"log"

	"github.com/benbjohnson/clock"

	"github.com/sarchlab/radarctl/config"
	"github.com/sarchlab/radarctl/datarecording"
	"github.com/sarchlab/radarctl/frametask"
	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/pipeline"
	"github.com/sarchlab/radarctl/pool"
	"github.com/sarchlab/radarctl/power"
	"github.com/sarchlab/radarctl/protocol"
	"github.com/sarchlab/radarctl/stage"
	"github.com/sarchlab/radarctl/tracing"
)

// A Builder can build a System.
type Builder struct {
	cfg      config.Config
	clock    clock.Clock
	logger   *log.Logger
	port     hwport.Port
	sinks    []frametask.Sink
	recorder datarecording.DataRecorder
	kernels  map[stage.Kind]stage.Kernel
}

// MakeBuilder creates a Builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg:     config.Default(),
		clock:   clock.New(),
		logger:  log.New(io.Discard, "", 0),
		kernels: make(map[stage.Kind]stage.Kernel),
	}
}

// WithConfig sets the configuration.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithClock sets the clock used by the timer, the pipeline, and the power
// scheduler.
func (b Builder) WithClock(clk clock.Clock) Builder {
	b.clock = clk
	return b
}

// WithLogger sets the logger shared by every component.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithPort sets the hardware port. A SimPort is used if not set.
func (b Builder) WithPort(port hwport.Port) Builder {
	b.port = port
	return b
}

// WithSink adds an output collaborator.
func (b Builder) WithSink(s frametask.Sink) Builder {
	b.sinks = append(b.sinks, s)
	return b
}

// WithRecorder records frames, stage timing, and traces.
func (b Builder) WithRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithKernel sets the numeric collaborator of every stage of a kind.
func (b Builder) WithKernel(kind stage.Kind, k stage.Kernel) Builder {
	kernels := make(map[stage.Kind]stage.Kernel, len(b.kernels)+1)
	for kk, kv := range b.kernels {
		kernels[kk] = kv
	}

	kernels[kind] = k
	b.kernels = kernels

	return b
}

// Build creates the system. Nothing runs until Configure or Run is called.
func (b Builder) Build(name string) (*System, error) {
	err := b.cfg.Validate()
	if err != nil {
		return nil, err
	}

	s := &System{
		name:   name,
		cfg:    b.cfg,
		clock:  b.clock,
		logger: b.logger,
		port:   b.port,
		stages: make(map[string]*stage.Comp),
	}

	if s.port == nil {
		s.port = hwport.NewSimPort()
	}

	s.pools = b.buildPools()

	s.controller = pipeline.MakeBuilder().
		WithPools(s.pools).
		WithPort(s.port).
		WithClock(b.clock).
		WithLogger(b.logger).
		Build(name + ".Pipeline")

	err = b.buildModes(s)
	if err != nil {
		return nil, err
	}

	b.buildTracing(s)
	b.buildPower(s, b.buildFrameTasks(s))
	b.buildProtocol(s)

	return s, nil
}

func (b Builder) buildPools() *pool.Set {
	pc := b.cfg.Pools

	return pool.NewSet().
		AddArena(pool.FastScratch, pool.MakeArenaBuilder().
			WithBase(pool.Addr(pc.FastBase)).
			WithSize(pc.FastSize).
			Build("FastScratch")).
		AddArena(pool.LargeScratch, pool.MakeArenaBuilder().
			WithBase(pool.Addr(pc.LargeBase)).
			WithSize(pc.LargeSize).
			Build("LargeScratch")).
		AddIndexPool(pool.DMAChannel,
			pool.NewIndexPool("DMAChannels", pc.DMAChannels)).
		AddIndexPool(pool.ParamSet,
			pool.NewIndexPool("ParamSets", pc.ParamSets)).
		AddIndexPool(pool.TriggerSource,
			pool.NewIndexPool("TriggerSources", pc.TriggerSources)).
		SetWindowPool(
			pool.NewWindowPool("Window", pc.WindowElements, pc.PingPong))
}

func (b Builder) buildModes(s *System) error {
	for _, mc := range b.cfg.Modes {
		mode := pipeline.Mode{Name: mc.Name}

		for _, sc := range mc.Stages {
			comp, err := b.stageFor(s, sc)
			if err != nil {
				return fmt.Errorf("mode %q: %w", mc.Name, err)
			}

			mode.Stages = append(mode.Stages, comp)
		}

		err := s.controller.AddMode(mode)
		if err != nil {
			return err
		}
	}

	return nil
}

func (b Builder) stageFor(s *System, sc config.StageConfig) (*stage.Comp, error) {
	kind, err := stage.ParseKind(sc.Kind)
	if err != nil {
		return nil, err
	}

	if comp, ok := s.stages[sc.Name]; ok {
		if comp.Kind() != kind {
			return nil, fmt.Errorf("stage %q is both %s and %s",
				sc.Name, comp.Kind(), kind)
		}

		return comp, nil
	}

	sb := stage.MakeBuilder().WithKind(kind)

	if k, ok := b.kernels[kind]; ok {
		sb = sb.WithKernel(k)
	}

	if sc.StallTimeout > 0 {
		sb = sb.WithStallTimeout(sc.StallTimeout)
	}

	comp := sb.Build(sc.Name)
	s.stages[sc.Name] = comp
	s.stageOrder = append(s.stageOrder, sc.Name)

	return comp, nil
}

func (b Builder) buildTracing(s *System) {
	s.stageTime = tracing.NewTotalTimeTracer(
		b.clock, tracing.KindFilter("stage"))
	tracing.CollectTrace(s.controller, s.stageTime)

	if b.recorder != nil {
		tracing.CollectTrace(s.controller,
			tracing.NewDBTracer(b.clock, b.recorder))
	}

	if b.cfg.Verbose {
		s.controller.AcceptHook(hooking.NewLogHook(b.logger,
			pipeline.HookPosConfigured,
			pipeline.HookPosConfigFailed,
			pipeline.HookPosFrameDrop,
		))
		s.pools.AcceptHook(hooking.NewLogHook(b.logger,
			pool.HookPosExhausted))
	}
}

func (b Builder) buildFrameTasks(s *System) frametask.Builder {
	sinks := append(frametask.MultiSink(nil), b.sinks...)

	if b.recorder != nil {
		s.recorderSink = frametask.NewRecorderSink(b.recorder)
		sinks = append(sinks, s.recorderSink)
	}

	if b.cfg.Verbose {
		sinks = append(sinks, frametask.LogSink{Logger: b.logger})
	}

	s.token = frametask.NewToken()
	s.timer = frametask.NewTimer(b.clock, b.cfg.FramePeriod, s.token)

	return frametask.MakeBuilder().
		WithToken(s.token).
		WithRunner(s.controller).
		WithSink(sinks).
		WithClock(b.clock).
		WithLogger(b.logger)
}

func (b Builder) buildProtocol(s *System) {
	control, compute := protocol.NewLink(b.cfg.LinkDepth)

	s.shared = protocol.NewShared(b.cfg.ResultWindow)
	s.host = protocol.NewHost(s.name+".Control", control, s.shared, b.logger)

	s.compute = protocol.NewComputeCore(s.name+".Compute",
		protocol.ComputeConfig{
			Link:     compute,
			Shared:   s.shared,
			Pipeline: s.controller,
			Decode:   config.DecodeMode,
			Frames:   s.pair,
			Logger:   b.logger,
		})
}

func (b Builder) buildPower(s *System, pb frametask.Builder) {
	if b.cfg.Power.Enabled {
		states := make([]hwport.LowPowerState, 0, len(b.cfg.Power.States))
		for _, st := range b.cfg.Power.States {
			states = append(states, hwport.LowPowerState{
				Name:        st.Name,
				Depth:       st.Depth,
				WakeLatency: st.WakeLatency,
			})
		}

		peripherals := make([]power.Peripheral, 0,
			len(b.cfg.Power.Peripherals))
		for _, p := range b.cfg.Power.Peripherals {
			peripherals = append(peripherals, power.Peripheral{
				ID:                hwport.PeripheralID(p.ID),
				GateClock:         p.GateClock,
				ActiveDuringSleep: p.ActiveDuringSleep,
			})
		}

		s.scheduler = power.MakeBuilder().
			WithPort(s.port).
			WithClock(b.clock).
			WithLogger(b.logger).
			WithFramePeriod(b.cfg.FramePeriod).
			WithStates(states...).
			WithPeripherals(peripherals...).
			WithResetters(s.controller, power.ResetFunc(s.resetProtocol)).
			Build(s.name + ".Power")

		if b.cfg.Verbose {
			s.scheduler.AcceptHook(hooking.NewLogHook(b.logger,
				power.HookPosSleep, power.HookPosWake))
		}

		pb = pb.WithObserver(s.scheduler)
	} else {
		pb = pb.WithObserver(frametask.FrameObserverFunc(
			power.BudgetCheck(b.clock, b.cfg.FramePeriod, b.logger)))
	}

	s.pair = pb.Build(s.name + ".Frames")
}
