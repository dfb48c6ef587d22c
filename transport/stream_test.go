package transport_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/esplink/transport"
)

// stuckDevice accepts writes up to limit bytes and then stops.
type stuckDevice struct {
	limit int
	done  chan struct{}
}

func (d *stuckDevice) Read(p []byte) (int, error) {
	<-d.done
	return 0, io.EOF
}

func (d *stuckDevice) Write(p []byte) (int, error) {
	if len(p) > d.limit {
		n := d.limit
		d.limit = 0
		return n, nil
	}

	d.limit -= len(p)
	return len(p), nil
}

func (d *stuckDevice) Close() error {
	close(d.done)
	return nil
}

var _ = Describe("transport / Stream", func() {
	var (
		device net.Conn
		stream *transport.Stream
	)

	BeforeEach(func() {
		var local net.Conn
		local, device = net.Pipe()
		stream = transport.NewStream(local, "pipe", transport.Options{RxCapacity: 32})
	})

	AfterEach(func() {
		device.Close()
		Expect(stream.Close()).To(Succeed())
	})

	It("buffers bytes read from the device", func() {
		_, err := device.Write([]byte("ready\r\n"))
		Expect(err).To(Succeed())

		Eventually(stream.RxQueue().Len).Should(Equal(7))
		Expect(drain(stream)).To(Equal("ready\r\n"))
	})

	It("writes whole command lines", func() {
		lines := make(chan string, 1)
		go func() {
			defer GinkgoRecover()
			line, err := bufio.NewReader(device).ReadString('\n')
			Expect(err).To(Succeed())
			lines <- line
		}()

		n, err := stream.Write([]byte("AT+RST\r\n"))
		Expect(err).To(Succeed())
		Expect(n).To(Equal(8))
		Eventually(lines).Should(Receive(Equal("AT+RST\r\n")))
	})

	It("records why the receive loop stopped", func() {
		device.Close()

		Eventually(stream.Err).Should(HaveOccurred())
		_, err := stream.Write([]byte("AT\r\n"))
		Expect(errors.Is(err, transport.ErrClosed)).To(BeTrue())
	})

	It("refuses writes after Close", func() {
		Expect(stream.Close()).To(Succeed())
		Expect(stream.Close()).To(Succeed())

		_, err := stream.Write([]byte("AT\r\n"))
		Expect(errors.Is(err, transport.ErrClosed)).To(BeTrue())
	})

	It("reports a device that stops accepting bytes", func() {
		stuck := transport.NewStream(&stuckDevice{limit: 3, done: make(chan struct{})}, "stuck", transport.Options{})
		defer stuck.Close()

		n, err := stuck.Write([]byte("AT+RST\r\n"))
		Expect(n).To(Equal(3))
		Expect(errors.Is(err, transport.ErrShortWrite)).To(BeTrue())
	})
})

var _ = Describe("transport / DialTCP", func() {
	It("connects to a serial bridge", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(Succeed())
		defer listener.Close()

		go func() {
			defer GinkgoRecover()
			conn, err := listener.Accept()
			Expect(err).To(Succeed())
			defer conn.Close()

			_, err = conn.Write([]byte("OK\r\n"))
			Expect(err).To(Succeed())

			_, _ = io.Copy(io.Discard, conn)
		}()

		stream, err := transport.DialTCP(context.Background(), listener.Addr().String(), transport.Options{})
		Expect(err).To(Succeed())
		defer stream.Close()

		Eventually(stream.RxQueue().Len).Should(Equal(4))
		Expect(stream.Name()).To(Equal(listener.Addr().String()))
	})

	It("fails when nothing listens", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(Succeed())
		addr := listener.Addr().String()
		listener.Close()

		_, err = transport.DialTCP(context.Background(), addr, transport.Options{})
		Expect(err).To(HaveOccurred())
	})
})
