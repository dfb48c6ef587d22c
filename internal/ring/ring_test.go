package ring_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/esplink/internal/ring"
)

var _ = Describe("Ring", func() {
	It("raises a zero capacity to one", func() {
		r := ring.New[int](0)
		Expect(r.Cap()).To(Equal(1))
	})

	It("pops in insertion order", func() {
		r := ring.New[int](3)
		Expect(r.Push(1)).To(BeTrue())
		Expect(r.Push(2)).To(BeTrue())

		v, ok := r.Pop()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))

		v, ok = r.Pop()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(2))

		_, ok = r.Pop()
		Expect(ok).To(BeFalse())
	})

	It("evicts the oldest element when full", func() {
		r := ring.New[byte](3)
		for _, b := range []byte("abc") {
			Expect(r.Push(b)).To(BeTrue())
		}

		Expect(r.Full()).To(BeTrue())
		Expect(r.Push('d')).To(BeFalse())
		Expect(r.Len()).To(Equal(3))
		Expect(string(r.AppendTo(nil))).To(Equal("bcd"))
	})

	It("keeps a sliding window across many wraps", func() {
		r := ring.New[byte](4)
		for _, b := range []byte("the quick brown fox") {
			r.Push(b)
		}

		Expect(string(r.AppendTo(nil))).To(Equal(" fox"))

		p, ok := r.Peek()
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal(byte(' ')))
	})

	It("reuses the destination slice", func() {
		r := ring.New[byte](8)
		for _, b := range []byte("OK\r\n") {
			r.Push(b)
		}

		scratch := make([]byte, 0, 8)
		out := r.AppendTo(scratch[:0])
		Expect(string(out)).To(Equal("OK\r\n"))
		Expect(cap(out)).To(Equal(8))
	})

	It("clears everything", func() {
		r := ring.New[int](2)
		r.Push(1)
		r.Push(2)
		r.Clear()

		Expect(r.Len()).To(Equal(0))
		_, ok := r.Peek()
		Expect(ok).To(BeFalse())

		r.Push(3)
		Expect(r.AppendTo(nil)).To(Equal([]int{3}))
	})
})
