package pool

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WindowPool", func() {
	It("should pack tables back to back", func() {
		p := NewWindowPool("Window", 100, false)

		a, err := p.AllocWindow(33)
		Expect(err).NotTo(HaveOccurred())
		b, err := p.AllocWindow(10)
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(Equal(uint32(0)))
		Expect(b).To(Equal(uint32(33)))
	})

	It("should start tables on even elements in ping/pong mode", func() {
		p := NewWindowPool("Window", 100, true)

		_, err := p.AllocWindow(33)
		Expect(err).NotTo(HaveOccurred())
		b, err := p.AllocWindow(10)
		Expect(err).NotTo(HaveOccurred())

		Expect(b).To(Equal(uint32(34)))
		Expect(p.Cursor()).To(Equal(uint32(44)))
	})

	It("should fail closed when the window is full", func() {
		p := NewWindowPool("Window", 64, true)

		_, err := p.AllocWindow(63)
		Expect(err).NotTo(HaveOccurred())

		_, err = p.AllocWindow(1)
		Expect(errors.Is(err, ErrExhausted)).To(BeTrue())
		Expect(p.Cursor()).To(Equal(uint32(63)))
	})

	It("should reset and keep the high-water mark", func() {
		p := NewWindowPool("Window", 64, false)
		_, _ = p.AllocWindow(40)

		p.Reset()

		Expect(p.Cursor()).To(Equal(uint32(0)))
		Expect(p.HighWater()).To(Equal(uint32(40)))
	})
})
