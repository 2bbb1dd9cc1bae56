package frametask

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/pipeline"
)

// Runner runs one frame of processing.
type Runner interface {
	RunOneFrame(ctx context.Context) (*pipeline.Result, error)
}

// FrameObserver is told about every frame the compute task handled, after
// its result, if any, has been handed to the output task. An error stops the
// compute task.
type FrameObserver interface {
	OnFrameComplete(frameStart time.Time) error
}

// FrameObserverFunc adapts a function to the FrameObserver interface.
type FrameObserverFunc func(frameStart time.Time) error

// OnFrameComplete calls f.
func (f FrameObserverFunc) OnFrameComplete(frameStart time.Time) error {
	return f(frameStart)
}

// Hook positions of the pair.
var (
	// HookPosFrameSkipped fires when a frame signal is consumed while
	// stopped.
	HookPosFrameSkipped = &hooking.HookPos{Name: "Frame Skipped"}

	// HookPosFrameEmitted fires after the sink took a result. The item is
	// the frame number.
	HookPosFrameEmitted = &hooking.HookPos{Name: "Frame Emitted"}
)

// PairStats are the counters of a Pair.
type PairStats struct {
	Processed  uint64 `json:"processed"`
	Dropped    uint64 `json:"dropped"`
	Skipped    uint64 `json:"skipped"`
	Emitted    uint64 `json:"emitted"`
	EmitErrors uint64 `json:"emit_errors"`
	LastFrame  uint64 `json:"last_frame"`
}

// Pair is the compute task and the output task. The compute task runs one
// frame per frame_ready signal and publishes the result with output_ready;
// the output task emits it and answers with output_done. A new result is
// only published after the previous one is done, so there are never two
// results in flight.
type Pair struct {
	hooking.HookableBase

	name     string
	token    *Token
	runner   Runner
	sink     Sink
	observer FrameObserver
	clock    clock.Clock
	logger   *log.Logger

	outputReady *Signal
	outputDone  *Signal
	stopped     atomic.Bool
	busy        atomic.Bool

	mu     sync.Mutex
	latest *pipeline.Result
	stats  PairStats
}

// A Builder can build Pairs.
type Builder struct {
	token    *Token
	runner   Runner
	sink     Sink
	observer FrameObserver
	clock    clock.Clock
	logger   *log.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		clock:  clock.New(),
		logger: log.New(io.Discard, "", 0),
	}
}

// WithToken sets the frame token shared with the frame interrupt.
func (b Builder) WithToken(t *Token) Builder {
	b.token = t
	return b
}

// WithRunner sets what runs a frame, normally a pipeline controller.
func (b Builder) WithRunner(r Runner) Builder {
	b.runner = r
	return b
}

// WithSink sets the output collaborator.
func (b Builder) WithSink(s Sink) Builder {
	b.sink = s
	return b
}

// WithObserver sets who is told about completed frames.
func (b Builder) WithObserver(o FrameObserver) Builder {
	b.observer = o
	return b
}

// WithClock sets the time source for frame start timestamps.
func (b Builder) WithClock(clk clock.Clock) Builder {
	b.clock = clk
	return b
}

// WithLogger sets the logger for dropped frames and sink errors.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a Pair.
func (b Builder) Build(name string) *Pair {
	if b.token == nil || b.runner == nil || b.sink == nil {
		panic("frame task pair needs a token, a runner, and a sink")
	}

	p := &Pair{
		name:        name,
		token:       b.token,
		runner:      b.runner,
		sink:        b.sink,
		observer:    b.observer,
		clock:       b.clock,
		logger:      b.logger,
		outputReady: NewSignal(),
		outputDone:  NewSignal(),
	}
	p.outputDone.Raise()

	return p
}

// Name returns the name of the pair.
func (p *Pair) Name() string {
	return p.name
}

// Stop makes the compute task consume frame signals without processing
// them. It takes effect at the top of the next loop iteration.
func (p *Pair) Stop() {
	p.stopped.Store(true)
}

// Resume undoes Stop.
func (p *Pair) Resume() {
	p.stopped.Store(false)
}

// Stopped reports whether the pair is stopped.
func (p *Pair) Stopped() bool {
	return p.stopped.Load()
}

// Stats returns a snapshot of the counters.
func (p *Pair) Stats() PairStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats
}

// Idle reports whether no frame is outstanding, being computed, or being
// emitted.
func (p *Pair) Idle() bool {
	return !p.busy.Load() &&
		p.token.Outstanding() == 0 &&
		p.outputDone.Raised()
}

// Run runs both tasks until ctx is done or one of them fails.
func (p *Pair) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.Compute(ctx) })
	g.Go(func() error { return p.Output(ctx) })

	return g.Wait()
}

// Compute is the compute task loop. It blocks only on frame_ready, and on
// output_done while the previous result is still being emitted. It returns
// nil when ctx is done and an error on a fatal condition.
func (p *Pair) Compute(ctx context.Context) error {
	for {
		if p.token.Ready().Wait(ctx) != nil {
			return nil
		}

		if p.stopped.Load() {
			p.skip()
			continue
		}

		if p.token.Claim() == 0 {
			continue
		}

		p.busy.Store(true)
		err := p.computeOne(ctx)
		p.busy.Store(false)

		if err != nil {
			return err
		}
	}
}

func (p *Pair) skip() {
	if p.token.Claim() > 0 {
		p.token.Complete()
	}

	p.mu.Lock()
	p.stats.Skipped++
	p.mu.Unlock()

	if p.NumHooks() > 0 {
		p.InvokeHook(hooking.HookCtx{Domain: p, Pos: HookPosFrameSkipped})
	}
}

func (p *Pair) computeOne(ctx context.Context) error {
	start := p.clock.Now()
	result, err := p.runner.RunOneFrame(ctx)
	p.token.Complete()

	switch {
	case err == nil:
		if !p.publish(ctx, result) {
			result.Release()
			return nil
		}
	case errors.Is(err, fault.ErrStageProcess):
		p.mu.Lock()
		p.stats.Dropped++
		p.mu.Unlock()
	case ctx.Err() != nil:
		return nil
	default:
		return err
	}

	if p.observer == nil {
		return nil
	}

	return p.observer.OnFrameComplete(start)
}

func (p *Pair) publish(ctx context.Context, result *pipeline.Result) bool {
	if p.outputDone.Wait(ctx) != nil {
		return false
	}

	p.mu.Lock()
	p.latest = result
	p.stats.Processed++
	p.stats.LastFrame = result.Frame
	p.mu.Unlock()

	p.outputReady.Raise()

	return true
}

// Output is the output task loop. It blocks only on output_ready. It
// returns nil when ctx is done.
func (p *Pair) Output(ctx context.Context) error {
	for {
		if p.outputReady.Wait(ctx) != nil {
			p.releaseLatest()
			return nil
		}

		p.mu.Lock()
		result := p.latest
		p.latest = nil
		p.mu.Unlock()

		if result != nil {
			p.emit(ctx, result)
		}

		p.outputDone.Raise()
	}
}

func (p *Pair) emit(ctx context.Context, result *pipeline.Result) {
	err := p.sink.Emit(ctx, result)
	result.Release()

	p.mu.Lock()
	if err != nil {
		p.stats.EmitErrors++
	} else {
		p.stats.Emitted++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Printf("%s: emit frame %d: %v", p.name, result.Frame, err)
		return
	}

	if p.NumHooks() > 0 {
		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosFrameEmitted,
			Item:   result.Frame,
		})
	}
}

func (p *Pair) releaseLatest() {
	p.mu.Lock()
	result := p.latest
	p.latest = nil
	p.mu.Unlock()

	result.Release()
}
