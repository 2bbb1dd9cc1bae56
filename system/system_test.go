package system

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/radarctl/config"
	"github.com/sarchlab/radarctl/datarecording"
	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/frametask"
	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/pipeline"
	"github.com/sarchlab/radarctl/protocol"
	"github.com/sarchlab/radarctl/stage"
)

type collectingSink struct {
	mu     sync.Mutex
	frames []uint64
	modes  []string
}

func (s *collectingSink) Emit(_ context.Context, r *pipeline.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, r.Frame)
	s.modes = append(s.modes, r.Mode)

	return nil
}

func (s *collectingSink) Frames() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]uint64(nil), s.frames...)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.FramePeriod = 20 * time.Millisecond

	return cfg
}

var failingKernel = stage.KernelFunc(func(
	_ stage.StaticParams,
	_ stage.DynamicParams,
	_, _ []byte,
) (int, stage.Metrics, error) {
	return 0, nil, errors.New("saturated")
})

var _ = Describe("Builder", func() {
	It("should build every mode and share stages by name", func() {
		s, err := MakeBuilder().WithConfig(testConfig()).Build("Radar")

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Controller().Modes()).To(Equal([]string{"presence", "tracking"}))
		Expect(s.Stages()).To(HaveLen(5))
		Expect(s.Stages()[0].Name()).To(Equal("Range"))
		Expect(s.Scheduler()).NotTo(BeNil())
	})

	It("should reject an invalid configuration", func() {
		cfg := testConfig()
		cfg.Modes = nil

		_, err := MakeBuilder().WithConfig(cfg).Build("Radar")

		Expect(err).To(HaveOccurred())
	})

	It("should reject a stage name used with two kinds", func() {
		cfg := testConfig()
		cfg.Modes[1].Stages[0].Kind = "doppler"

		_, err := MakeBuilder().WithConfig(cfg).Build("Radar")

		Expect(err).To(MatchError(ContainSubstring(`stage "Range"`)))
	})

	It("should skip the power scheduler when power is off", func() {
		cfg := testConfig()
		cfg.Power.Enabled = false

		s, err := MakeBuilder().WithConfig(cfg).Build("Radar")

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Scheduler()).To(BeNil())
		Expect(s.Snapshot().Power).To(BeNil())
	})
})

var _ = Describe("System", func() {
	var (
		sink *collectingSink
		port *hwport.SimPort
	)

	BeforeEach(func() {
		sink = &collectingSink{}
		port = hwport.NewSimPort()
	})

	build := func(b Builder) *System {
		s, err := b.
			WithConfig(testConfig()).
			WithPort(port).
			WithSink(sink).
			Build("Radar")
		Expect(err).NotTo(HaveOccurred())

		return s
	}

	It("should configure the active mode offline", func() {
		s := build(MakeBuilder())

		Expect(s.Configure()).To(Succeed())

		Expect(s.Controller().State()).To(Equal(pipeline.Configured))
		Expect(s.Controller().ActiveMode()).To(Equal("tracking"))
		Expect(port.Bindings()).NotTo(BeEmpty())
	})

	It("should report a configuration that does not fit", func() {
		cfg := testConfig()
		cfg.Params.NumRangeBins = 1 << 20

		s, err := MakeBuilder().WithConfig(cfg).Build("Radar")
		Expect(err).NotTo(HaveOccurred())

		err = s.Configure()

		Expect(err).To(MatchError(fault.ErrResourceExhausted))
		Expect(s.Controller().State()).To(Equal(pipeline.Unconfigured))
	})

	It("should run a bounded number of frames", func() {
		s := build(MakeBuilder())

		err := s.Run(context.Background(), RunOptions{Frames: 5})

		Expect(err).NotTo(HaveOccurred())

		token := s.Token().Stats()
		frames := s.Frames().Stats()
		Expect(token.Raised).To(Equal(uint64(5)))
		Expect(token.Outstanding).To(Equal(int64(0)))
		Expect(frames.Emitted + token.Coalesced).To(Equal(uint64(5)))
		Expect(sink.Frames()).To(HaveLen(int(frames.Emitted)))
		Expect(sink.modes).To(HaveEach("tracking"))
		Expect(s.Frames().Stopped()).To(BeTrue())
		Expect(s.Host().State()).To(Equal(protocol.Idle))
		Expect(s.Compute().State()).To(Equal(protocol.Idle))
	})

	It("should sleep between frames", func() {
		s := build(MakeBuilder())

		Expect(s.Run(context.Background(), RunOptions{Frames: 3})).To(Succeed())

		snap := s.Snapshot()
		Expect(snap.Power).NotTo(BeNil())
		Expect(snap.Power.Frames).To(Equal(snap.Frames.Emitted))
		Expect(port.Sleeps()).NotTo(BeEmpty())
		Expect(port.Sleeps()[0].Entered.Name).To(Equal("sleep"))
		Expect(port.Suspended("uart")).To(BeFalse())
	})

	It("should keep running after a dropped frame", func() {
		s := build(MakeBuilder().WithKernel(stage.Detection, failingKernel))

		err := s.Run(context.Background(), RunOptions{Frames: 3})

		Expect(err).NotTo(HaveOccurred())
		Expect(sink.Frames()).To(BeEmpty())
		Expect(s.Frames().Stats().Dropped).To(BeNumerically(">", 0))
		Expect(s.Controller().Stats().Dropped).
			To(Equal(s.Frames().Stats().Dropped))
	})

	It("should end the run when a frame overruns its period", func() {
		cfg := testConfig()
		cfg.Power.Enabled = false
		slow := stage.KernelFunc(func(
			s stage.StaticParams,
			d stage.DynamicParams,
			in, out []byte,
		) (int, stage.Metrics, error) {
			time.Sleep(2 * cfg.FramePeriod)
			return stage.PassthroughKernel{}.Compute(s, d, in, out)
		})

		s, err := MakeBuilder().
			WithConfig(cfg).
			WithKernel(stage.Range, slow).
			Build("Radar")
		Expect(err).NotTo(HaveOccurred())

		err = s.Run(context.Background(), RunOptions{Frames: 3})

		Expect(err).To(MatchError(fault.ErrTimingBudgetExceeded))
	})

	It("should run until the context is done", func() {
		s := build(MakeBuilder())

		ctx, cancel := context.WithTimeout(context.Background(),
			70*time.Millisecond)
		defer cancel()

		err := s.Run(ctx, RunOptions{})

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Token().Stats().Raised).To(BeNumerically(">", 0))
	})

	It("should execute cubes requested by the control core", func() {
		s := build(MakeBuilder())

		var results []*protocol.SlotResult
		err := s.Run(context.Background(), RunOptions{
			Cubes: 3,
			OnResult: func(r *protocol.SlotResult) error {
				results = append(results, r)
				return nil
			},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(3))
		Expect(results[0].Mode).To(Equal("tracking"))
		Expect(results[2].Frame).To(BeNumerically(">", results[0].Frame))
		Expect(s.Token().Stats().Raised).To(BeZero())
		Expect(s.Compute().State()).To(Equal(protocol.Idle))
	})

	It("should skip dropped cubes", func() {
		s := build(MakeBuilder().WithKernel(stage.Range, failingKernel))

		called := 0
		err := s.Run(context.Background(), RunOptions{
			Cubes: 2,
			OnResult: func(*protocol.SlotResult) error {
				called++
				return nil
			},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(called).To(BeZero())
		Expect(s.Controller().Stats().Dropped).To(Equal(uint64(2)))
	})

	It("should stop on a result handler error", func() {
		s := build(MakeBuilder())
		stop := errors.New("enough")

		err := s.Run(context.Background(), RunOptions{
			Cubes:    3,
			OnResult: func(*protocol.SlotResult) error { return stop },
		})

		Expect(err).To(MatchError(stop))
	})

	It("should record frames and traces", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run")
		recorder := datarecording.New(path)
		s := build(MakeBuilder().WithRecorder(recorder))

		Expect(s.Run(context.Background(), RunOptions{Frames: 2})).To(Succeed())

		reader, err := datarecording.NewReader(path)
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(frametask.FrameTable, frametask.FrameRecord{})
		reader.MapTable(frametask.StageTimingTable,
			frametask.StageTimingRecord{})

		emitted := int(s.Frames().Stats().Emitted)

		_, total, err := reader.Query(context.Background(),
			frametask.FrameTable, datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(emitted))

		_, total, err = reader.Query(context.Background(),
			frametask.StageTimingTable, datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(5 * emitted))
	})

	It("should take a snapshot", func() {
		s := build(MakeBuilder())
		Expect(s.Run(context.Background(), RunOptions{Frames: 2})).To(Succeed())

		snap := s.Snapshot()

		Expect(snap.Name).To(Equal("Radar"))
		Expect(snap.State).To(Equal("Configured"))
		Expect(snap.Mode).To(Equal("tracking"))
		Expect(snap.Pools).NotTo(BeEmpty())
		Expect(snap.StageTime).To(HaveKey("Range"))
		Expect(snap.StageTime["Range"]).To(BeNumerically(">", 0))
		Expect(snap.Control.Dispatched).To(BeNumerically(">", 0))
	})
})
