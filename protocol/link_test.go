package protocol

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Link", func() {
	var (
		ctx              context.Context
		control, compute *Endpoint
	)

	BeforeEach(func() {
		ctx = context.Background()
		control, compute = NewLink(4)
	})

	barrier := func() {
		done := make(chan error)
		go func() { done <- compute.Barrier(ctx) }()

		Expect(control.Barrier(ctx)).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))
	}

	It("should refuse to send before the barrier", func() {
		Expect(control.Send(ctx, Message{Event: ApplyConfig})).
			To(MatchError(ErrNoBarrier))
	})

	It("should wait for the other side at the barrier", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		Expect(control.Barrier(cctx)).To(MatchError(context.Canceled))
	})

	It("should deliver in order", func() {
		barrier()

		for i := uint32(0); i < 3; i++ {
			Expect(control.Send(ctx, Message{Event: CubeReady, Payload: i})).
				To(Succeed())
		}

		for i := uint32(0); i < 3; i++ {
			msg, err := compute.Recv(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Payload).To(Equal(i))
		}
	})

	It("should pass the barrier only once", func() {
		barrier()

		Expect(control.Barrier(ctx)).To(Succeed())
		Expect(compute.Send(ctx, Message{Event: ConfigDone})).To(Succeed())

		msg, err := control.Recv(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Event).To(Equal(ConfigDone))
	})
})
