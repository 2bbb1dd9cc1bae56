package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/pipeline"
	"github.com/sarchlab/radarctl/pool"
	"github.com/sarchlab/radarctl/stage"
)

type fakePipeline struct {
	mu         sync.Mutex
	configured []string
	frame      uint64
	failNext   error
}

func (p *fakePipeline) ConfigureAll(mode string, _ stage.StaticParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.configured = append(p.configured, mode)

	return nil
}

func (p *fakePipeline) RunOneFrame(context.Context) (*pipeline.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame := p.frame
	p.frame++

	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil

		return nil, err
	}

	return &pipeline.Result{
		Frame: frame,
		Mode:  "tracking",
		Output: &stage.Output{
			Stage: "Detection",
			Data:  []byte{byte(frame)},
		},
	}, nil
}

type fakeFrames struct {
	stopped bool
}

func (f *fakeFrames) Stop()   { f.stopped = true }
func (f *fakeFrames) Resume() { f.stopped = false }

func decodeName(blob []byte) (string, stage.StaticParams, error) {
	if len(blob) == 0 {
		return "", stage.StaticParams{}, errors.New("empty blob")
	}

	return string(blob), params, nil
}

var params = stage.StaticParams{
	NumRangeBins:       256,
	NumDopplerBins:     32,
	NumVirtualAntennas: 8,
	MaxObjects:         64,
}

var _ = Describe("Compute core", func() {
	var (
		ctx              context.Context
		control, compute *Endpoint
		shared           *Shared
		pl               *fakePipeline
		frames           *fakeFrames
		core             *Core
	)

	BeforeEach(func() {
		ctx = context.Background()
		control, compute = NewLink(8)
		shared = NewShared(4)
		pl = &fakePipeline{}
		frames = &fakeFrames{}
		core = NewComputeCore("Compute", ComputeConfig{
			Link:     compute,
			Shared:   shared,
			Pipeline: pl,
			Decode:   decodeName,
			Frames:   frames,
		})

		done := make(chan error)
		go func() { done <- control.Barrier(ctx) }()
		Expect(compute.Barrier(ctx)).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))
	})

	applyConfig := func() {
		shared.PutConfig([]byte("tracking"))
		shared.inFlight.Add(1)
		Expect(core.Dispatch(ctx, Message{Event: ApplyConfig})).To(Succeed())

		msg, err := control.Recv(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Event).To(Equal(ConfigDone))
	}

	It("should reject a cube while idle", func() {
		err := core.Dispatch(ctx, Message{Event: CubeReady})

		Expect(errors.Is(err, fault.ErrProtocol)).To(BeTrue())
		Expect(core.State()).To(Equal(Idle))
		Expect(core.Stats().Rejected).To(Equal(uint64(1)))
	})

	It("should not touch the in-flight counter on a rejected event", func() {
		shared.inFlight.Add(1)

		Expect(core.Dispatch(ctx, Message{Event: ResultReady})).NotTo(Succeed())

		Expect(shared.InFlight()).To(Equal(int64(1)))
	})

	It("should treat an unknown event as a protocol error", func() {
		err := core.Dispatch(ctx, Message{Event: Event(42)})

		Expect(errors.Is(err, fault.ErrProtocol)).To(BeTrue())
		Expect(core.State()).To(Equal(Idle))
	})

	It("should apply a configuration", func() {
		frames.stopped = true

		applyConfig()

		Expect(core.State()).To(Equal(Ready))
		Expect(pl.configured).To(Equal([]string{"tracking"}))
		Expect(shared.InFlight()).To(BeZero())
		Expect(frames.stopped).To(BeFalse())
	})

	It("should stay idle when the blob cannot be decoded", func() {
		err := core.Dispatch(ctx, Message{Event: ApplyConfig})

		Expect(err).To(HaveOccurred())
		Expect(core.State()).To(Equal(Idle))
	})

	It("should store results in a sliding window", func() {
		applyConfig()

		for i := 0; i < 6; i++ {
			Expect(core.Dispatch(ctx, Message{Event: CubeReady})).To(Succeed())

			msg, err := control.Recv(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Event).To(Equal(ResultReady))
			Expect(msg.Payload).To(Equal(uint32(i % 4)))

			r, err := shared.Load(msg.Payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Frame).To(Equal(uint64(i)))
			Expect(r.Data).To(Equal([]byte{byte(i)}))
		}

		Expect(shared.Cursor()).To(Equal(2))
	})

	It("should reply with no result for a dropped frame", func() {
		applyConfig()
		pl.failNext = fmt.Errorf("range: %w", fault.ErrStageProcess)

		Expect(core.Dispatch(ctx, Message{Event: CubeReady})).To(Succeed())

		msg, err := control.Recv(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Payload).To(Equal(NoResult))
		Expect(shared.Cursor()).To(BeZero())
	})

	It("should stop the frame tasks and go idle", func() {
		applyConfig()

		Expect(core.Dispatch(ctx, Message{Event: Stop})).To(Succeed())

		Expect(core.State()).To(Equal(Idle))
		Expect(frames.stopped).To(BeTrue())
	})

	It("should go back to idle on reset", func() {
		applyConfig()

		core.ResetToIdle()

		Expect(core.State()).To(Equal(Idle))
	})
})

var _ = Describe("Host and compute core", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		shared  *Shared
		pools   *pool.Set
		ctrl    *pipeline.Controller
		host    *Host
		compute *Core
		errs    chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		controlEnd, computeEnd := NewLink(8)
		shared = NewShared(2)
		pools = pool.NewSet().
			AddArena(pool.FastScratch,
				pool.MakeArenaBuilder().WithBase(0x2000_0000).WithSize(16*1024).Build("L2")).
			AddArena(pool.LargeScratch,
				pool.MakeArenaBuilder().WithBase(0x5100_0000).WithSize(256*1024).Build("L3")).
			AddIndexPool(pool.DMAChannel, pool.NewIndexPool("EDMA", 8)).
			AddIndexPool(pool.ParamSet, pool.NewIndexPool("PaRAM", 16)).
			AddIndexPool(pool.TriggerSource, pool.NewIndexPool("Trigger", 2)).
			SetWindowPool(pool.NewWindowPool("Window", 1024, true))

		ctrl = pipeline.MakeBuilder().
			WithPools(pools).
			WithPort(hwport.NewSimPort()).
			Build("Pipeline")
		Expect(ctrl.AddMode(pipeline.Mode{
			Name: "tracking",
			Stages: []stage.Stage{
				stage.MakeBuilder().WithKind(stage.Range).Build("Range"),
				stage.MakeBuilder().WithKind(stage.Doppler).Build("Doppler"),
				stage.MakeBuilder().WithKind(stage.Detection).Build("Detection"),
			},
		})).To(Succeed())

		host = NewHost("Control", controlEnd, shared, nil)
		compute = NewComputeCore("Compute", ComputeConfig{
			Link:     computeEnd,
			Shared:   shared,
			Pipeline: ctrl,
			Decode:   decodeName,
		})

		errs = make(chan error, 2)
		go func() { errs <- host.Serve(ctx) }()
		go func() { errs <- compute.Serve(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(errs).Should(Receive())
		Eventually(errs).Should(Receive())
	})

	It("should reach the same high-water marks when applied twice", func() {
		Expect(host.ApplyConfig(ctx, []byte("tracking"))).To(Succeed())
		first := pools.HighWaters()

		Expect(host.ApplyConfig(ctx, []byte("tracking"))).To(Succeed())

		Expect(pools.HighWaters()).To(Equal(first))
		Expect(shared.InFlight()).To(BeZero())
		Expect(host.State()).To(Equal(Ready))
		Expect(compute.State()).To(Equal(Ready))
	})

	It("should execute frames and return their results", func() {
		Expect(host.ApplyConfig(ctx, []byte("tracking"))).To(Succeed())

		for i := 0; i < 3; i++ {
			r, err := host.Execute(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(r.Frame).To(Equal(uint64(i)))
			Expect(r.Stage).To(Equal("Detection"))
			Expect(r.Data).To(HaveLen(64 * 8))
		}
	})

	It("should bring both cores back to idle on stop", func() {
		Expect(host.ApplyConfig(ctx, []byte("tracking"))).To(Succeed())

		Expect(host.Stop(ctx)).To(Succeed())

		Expect(host.State()).To(Equal(Idle))
		Eventually(compute.State).Should(Equal(Idle))
	})

	It("should fail the session on an unknown mode", func() {
		applied := make(chan error, 1)
		go func() { applied <- host.ApplyConfig(ctx, []byte("parking")) }()

		var err error
		Eventually(errs).Should(Receive(&err))
		Expect(errors.Is(err, fault.ErrNotConfigured)).To(BeTrue())
		Expect(fault.IsFatal(err)).To(BeTrue())
		Expect(compute.State()).To(Equal(Idle))
		Expect(shared.InFlight()).To(Equal(int64(1)))

		cancel()
		Eventually(applied).Should(Receive(HaveOccurred()))
		errs <- nil
	})
})

var _ = Describe("Host before the cores are serving", func() {
	var (
		ctx                    context.Context
		cancel                 context.CancelFunc
		controlEnd, computeEnd *Endpoint
		shared                 *Shared
		pl                     *fakePipeline
		host                   *Host
		compute                *Core
		errs                   chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		controlEnd, computeEnd = NewLink(4)
		shared = NewShared(2)
		pl = &fakePipeline{}

		host = NewHost("Control", controlEnd, shared, nil)
		compute = NewComputeCore("Compute", ComputeConfig{
			Link:     computeEnd,
			Shared:   shared,
			Pipeline: pl,
			Decode:   decodeName,
		})
		errs = make(chan error, 2)
	})

	AfterEach(func() {
		cancel()
	})

	serve := func() {
		go func() { errs <- host.Serve(ctx) }()
		go func() { errs <- compute.Serve(ctx) }()
	}

	It("should hold a configuration until both cores are up", func() {
		applied := make(chan error, 1)
		go func() { applied <- host.ApplyConfig(ctx, []byte("tracking")) }()

		Consistently(applied, 20*time.Millisecond).ShouldNot(Receive())
		Expect(shared.InFlight()).To(BeZero())

		serve()

		Eventually(applied).Should(Receive(BeNil()))
		Expect(host.State()).To(Equal(Ready))
		Expect(compute.State()).To(Equal(Ready))
		Expect(shared.InFlight()).To(BeZero())

		pl.mu.Lock()
		Expect(pl.configured).To(Equal([]string{"tracking"}))
		pl.mu.Unlock()
	})

	It("should execute right after starting the cores", func() {
		serve()

		Expect(host.ApplyConfig(ctx, []byte("tracking"))).To(Succeed())

		r, err := host.Execute(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Frame).To(BeZero())
	})

	It("should give up waiting when the context is done", func() {
		cctx, ccancel := context.WithCancel(ctx)
		ccancel()

		Expect(host.ApplyConfig(cctx, []byte("tracking"))).
			To(MatchError(context.Canceled))
		Expect(shared.InFlight()).To(BeZero())
	})
})
