package power

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hwport"
)

var (
	light  = hwport.LowPowerState{Name: "light", Depth: 1, WakeLatency: 5 * time.Millisecond}
	medium = hwport.LowPowerState{Name: "medium", Depth: 2, WakeLatency: 50 * time.Millisecond}
	deep   = hwport.LowPowerState{Name: "deep", Depth: 3, WakeLatency: 80 * time.Millisecond}
)

var _ = Describe("Budget", func() {
	It("should leave the rest of the period idle", func() {
		b, err := ComputeBudget(100*time.Millisecond, 40*time.Millisecond)

		Expect(err).NotTo(HaveOccurred())
		Expect(b.Idle).To(Equal(60 * time.Millisecond))
	})

	It("should reject frames with no idle time", func() {
		for _, active := range []time.Duration{
			100 * time.Millisecond, 120 * time.Millisecond,
		} {
			_, err := ComputeBudget(100*time.Millisecond, active)

			Expect(errors.Is(err, fault.ErrTimingBudgetExceeded)).To(BeTrue())
			Expect(fault.IsFatal(err)).To(BeTrue())
		}
	})

	It("should check frames without sleeping", func() {
		clk := clock.NewMock()
		check := BudgetCheck(clk, 100*time.Millisecond,
			log.New(io.Discard, "", 0))

		start := clk.Now()
		clk.Add(30 * time.Millisecond)
		Expect(check(start)).To(Succeed())

		clk.Add(70 * time.Millisecond)
		Expect(check(start)).To(MatchError(fault.ErrTimingBudgetExceeded))
	})
})

var _ = Describe("Scheduler", func() {
	var (
		mockCtrl  *gomock.Controller
		port      *MockPort
		clk       *clock.Mock
		resets    []string
		scheduler *Scheduler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		port = NewMockPort(mockCtrl)
		clk = clock.NewMock()
		resets = nil

		scheduler = MakeBuilder().
			WithPort(port).
			WithClock(clk).
			WithFramePeriod(100*time.Millisecond).
			WithStates(light, deep, medium).
			WithPeripherals(
				Peripheral{ID: "uart", GateClock: true},
				Peripheral{ID: "adc"},
				Peripheral{ID: "gpio", GateClock: true, ActiveDuringSleep: true},
				Peripheral{ID: "spi", GateClock: true},
			).
			WithResetters(
				ResetFunc(func() error {
					resets = append(resets, "pipeline")
					return nil
				}),
				ResetFunc(func() error {
					resets = append(resets, "protocol")
					return nil
				}),
			).
			Build("Power")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should select the deepest state that wakes in time", func() {
		Expect(scheduler.SelectState(60 * time.Millisecond)).To(Equal(medium))
		Expect(scheduler.SelectState(90 * time.Millisecond)).To(Equal(deep))
		Expect(scheduler.SelectState(5 * time.Millisecond)).To(Equal(light))
		Expect(scheduler.SelectState(time.Millisecond)).To(Equal(hwport.NoSleep))
	})

	It("should suspend, sleep, and resume in reverse order", func() {
		start := clk.Now()
		clk.Add(40 * time.Millisecond)

		gomock.InOrder(
			port.EXPECT().SuspendPeripheral(hwport.PeripheralID("uart")),
			port.EXPECT().SuspendPeripheral(hwport.PeripheralID("spi")),
			port.EXPECT().EnterLowPower(medium, 60*time.Millisecond).
				Return(hwport.Wake{
					Entered: medium,
					Source:  hwport.WakeFrameTimer,
				}, nil),
			port.EXPECT().ResumePeripheral(hwport.PeripheralID("spi")),
			port.EXPECT().ResumePeripheral(hwport.PeripheralID("uart")),
		)

		Expect(scheduler.OnFrameComplete(start)).To(Succeed())

		stats := scheduler.Stats()
		Expect(stats.Sleeps).To(Equal(uint64(1)))
		Expect(stats.LastState).To(Equal("medium"))
		Expect(stats.LastBudget.Idle).To(Equal(60 * time.Millisecond))
		Expect(resets).To(BeEmpty())
	})

	It("should stay awake when no state fits", func() {
		start := clk.Now()
		clk.Add(99 * time.Millisecond)

		Expect(scheduler.OnFrameComplete(start)).To(Succeed())

		Expect(scheduler.Stats().StayedAwake).To(Equal(uint64(1)))
	})

	It("should fail when the frame is over budget", func() {
		start := clk.Now()
		clk.Add(100 * time.Millisecond)

		err := scheduler.OnFrameComplete(start)

		Expect(errors.Is(err, fault.ErrTimingBudgetExceeded)).To(BeTrue())
	})

	It("should undo suspends when a suspend fails", func() {
		start := clk.Now()
		clk.Add(40 * time.Millisecond)

		gomock.InOrder(
			port.EXPECT().SuspendPeripheral(hwport.PeripheralID("uart")),
			port.EXPECT().SuspendPeripheral(hwport.PeripheralID("spi")).
				Return(errors.New("bus error")),
			port.EXPECT().ResumePeripheral(hwport.PeripheralID("uart")),
		)

		err := scheduler.OnFrameComplete(start)

		Expect(errors.Is(err, fault.ErrPeripheralFault)).To(BeTrue())
	})

	It("should report a failed resume", func() {
		start := clk.Now()
		clk.Add(40 * time.Millisecond)

		port.EXPECT().SuspendPeripheral(gomock.Any()).Times(2)
		port.EXPECT().EnterLowPower(medium, 60*time.Millisecond).
			Return(hwport.Wake{Entered: medium}, nil)
		port.EXPECT().ResumePeripheral(hwport.PeripheralID("spi")).
			Return(errors.New("stuck"))
		port.EXPECT().ResumePeripheral(hwport.PeripheralID("uart"))

		err := scheduler.OnFrameComplete(start)

		Expect(errors.Is(err, fault.ErrPeripheralFault)).To(BeTrue())
	})

	It("should reset pipeline and protocol on a host-command wake", func() {
		start := clk.Now()
		clk.Add(10 * time.Millisecond)

		port.EXPECT().SuspendPeripheral(gomock.Any()).Times(2)
		port.EXPECT().EnterLowPower(deep, 90*time.Millisecond).
			Return(hwport.Wake{
				Entered: deep,
				Source:  hwport.WakeHostCommand,
			}, nil)
		port.EXPECT().ResumePeripheral(gomock.Any()).Times(2)

		Expect(scheduler.OnFrameComplete(start)).To(Succeed())

		Expect(resets).To(Equal([]string{"pipeline", "protocol"}))
		Expect(scheduler.Stats().HostWakes).To(Equal(uint64(1)))
	})
})

var _ = Describe("Scheduler with a simulated port", func() {
	It("should record peripheral transitions", func() {
		port := hwport.NewSimPort()
		clk := clock.NewMock()
		scheduler := MakeBuilder().
			WithPort(port).
			WithClock(clk).
			WithFramePeriod(100*time.Millisecond).
			WithStates(light, medium).
			WithPeripherals(
				Peripheral{ID: "uart", GateClock: true},
				Peripheral{ID: "spi", GateClock: true},
			).
			Build("Power")

		start := clk.Now()
		clk.Add(40 * time.Millisecond)

		Expect(scheduler.OnFrameComplete(start)).To(Succeed())

		Expect(port.Sleeps()).To(HaveLen(1))
		Expect(port.Sleeps()[0].Entered).To(Equal(medium))
		Expect(port.Suspended("uart")).To(BeFalse())
		Expect(port.PeripheralLog()).To(Equal([]string{
			"suspend uart", "suspend spi", "resume spi", "resume uart",
		}))
	})
})
