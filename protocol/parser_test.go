package protocol_test

import (
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/esplink/protocol"
)

var _ = Describe("Classifier", func() {
	var (
		feed       *byteFeed
		messages   *sink
		classifier *protocol.Classifier
	)

	BeforeEach(func() {
		feed = &byteFeed{}
		messages = newSink(0, 1)
		classifier = protocol.NewClassifier(feed, messages, protocol.ClassifierOptions{
			MessageCapacity: 8,
		})
	})

	DescribeTable("terminal markers",
		func(input string, expected protocol.ResponseType) {
			feed.add(input)
			Expect(classifier.Poll().Type).To(Equal(expected))
			Expect(classifier.Pending()).To(BeEmpty())
		},
		Entry("ready", "\r\nready\r\n", protocol.RespReady),
		Entry("ok", "AT+CIPMUX=1\r\r\nOK\r\n", protocol.RespOk),
		Entry("error", "\r\nERROR\r\n", protocol.RespError),
		Entry("fail", "\r\nFAIL\r\n", protocol.RespFail),
		Entry("send ok", "\r\nRecv 5 bytes\r\n\r\nSEND OK\r\n", protocol.RespSendOk),
		Entry("station connected", "WIFI CONNECTED\r\n", protocol.RespStationConnected),
		Entry("station disconnected", "WIFI DISCONNECT\r\n", protocol.RespStationDisconnected),
		Entry("station got ip", "WIFI GOT IP\r\n", protocol.RespStationGotIP),
	)

	It("returns nothing until a marker is complete", func() {
		feed.add("O")
		Expect(classifier.Poll().IsNone()).To(BeTrue())
		feed.add("K\r")
		Expect(classifier.Poll().IsNone()).To(BeTrue())
		feed.add("\n")
		Expect(classifier.Poll().Type).To(Equal(protocol.RespOk))
	})

	It("classifies one response per poll in receipt order", func() {
		feed.add("WIFI CONNECTED\r\nWIFI GOT IP\r\n\r\nOK\r\n")
		Expect(classifier.Poll().Type).To(Equal(protocol.RespStationConnected))
		Expect(classifier.Poll().Type).To(Equal(protocol.RespStationGotIP))
		Expect(classifier.Poll().Type).To(Equal(protocol.RespOk))
		Expect(classifier.Poll().IsNone()).To(BeTrue())
	})

	It("matches over a sliding window of the most recent bytes", func() {
		feed.add(strings.Repeat("x", 200) + "OK\r\n")
		Expect(classifier.Poll().Type).To(Equal(protocol.RespOk))
	})

	Describe("client connect / close", func() {
		It("extracts the client id", func() {
			feed.add("0,CONNECT\r\n")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientConnected, ClientID: 0}))

			feed.add("\r\n3,CLOSED\r\n")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientClosed, ClientID: 3}))
		})

		It("discards a non-numeric id", func() {
			feed.add("x,CONNECT\r\n")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
			Expect(classifier.Pending()).To(BeEmpty())
		})

		It("discards an id that does not fit a byte", func() {
			feed.add("256,CLOSED\r\n")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
		})

		It("keeps classifying after a discarded event", func() {
			feed.add("x,CONNECT\r\n1,CONNECT\r\n")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientConnected, ClientID: 1}))
		})
	})

	Describe("client messages", func() {
		It("accepts a frame whose payload matches the declared length", func() {
			feed.add("\r\n+IPD,0,5:hello")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientMessage, ClientID: 0}))
			Expect(messages.messages[0]).To(Equal([]string{"hello"}))
		})

		It("waits for the rest of a split payload", func() {
			feed.add("+IPD,1,5:he")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
			feed.add("llo")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientMessage, ClientID: 1}))
			Expect(messages.messages[1]).To(Equal([]string{"hello"}))
		})

		It("accepts a frame followed by the next line", func() {
			feed.add("+IPD,0,2:hi\r\n0,CLOSED\r\n")
			Expect(classifier.Poll().Type).To(Equal(protocol.RespClientMessage))
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientClosed, ClientID: 0}))
			Expect(messages.messages[0]).To(Equal([]string{"hi"}))
		})

		It("accepts a frame followed directly by a close", func() {
			feed.add("\r\n+IPD,0,3:abc0,CLOSED\r\n")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientMessage, ClientID: 0}))
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientClosed, ClientID: 0}))
			Expect(messages.messages[0]).To(Equal([]string{"abc"}))
		})

		It("accepts back to back frames", func() {
			feed.add("+IPD,0,2:hi+IPD,1,3:you")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientMessage, ClientID: 0}))
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientMessage, ClientID: 1}))
			Expect(messages.messages[0]).To(Equal([]string{"hi"}))
			Expect(messages.messages[1]).To(Equal([]string{"you"}))
		})

		It("accepts an empty frame", func() {
			feed.add("+IPD,0,0:")
			Expect(classifier.Poll()).To(Equal(protocol.Response{Type: protocol.RespClientMessage, ClientID: 0}))
			Expect(messages.messages[0]).To(Equal([]string{""}))
		})

		It("classifies the byte that broke a frame", func() {
			feed.add("+IPD,0,3:abcWIFI DISCONNECT\r\n")
			Expect(classifier.Poll().Type).To(Equal(protocol.RespStationDisconnected))
			Expect(messages.messages).To(BeEmpty())
		})

		It("treats marker text inside a payload as data", func() {
			feed.add("+IPD,0,4:OK\r\n")
			Expect(classifier.Poll().Type).To(Equal(protocol.RespClientMessage))
			Expect(messages.messages[0]).To(Equal([]string{"OK\r\n"}))
		})

		It("rejects a frame with more bytes than declared", func() {
			feed.add("+IPD,0,3:abcdef")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
			Expect(messages.messages).To(BeEmpty())
		})

		It("rejects a non-numeric length", func() {
			feed.add("+IPD,0,x:abc")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
			Expect(messages.messages).To(BeEmpty())
		})

		It("rejects a length that does not fit a byte", func() {
			feed.add("+IPD,0,300:abc")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
			Expect(messages.messages).To(BeEmpty())
		})

		It("rejects a header with extra fields", func() {
			feed.add("+IPD,0,3,1.2.3.4:abc")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
			Expect(messages.messages).To(BeEmpty())
		})

		It("truncates payloads beyond the message capacity", func() {
			feed.add("+IPD,0,12:0123456789ab")
			Expect(classifier.Poll().Type).To(Equal(protocol.RespClientMessage))
			Expect(messages.messages[0]).To(Equal([]string{"01234567"}))
		})

		It("reports nothing for an untracked client", func() {
			feed.add("+IPD,7,2:hi")
			Expect(classifier.Poll().IsNone()).To(BeTrue())
		})

		It("recovers after a malformed frame", func() {
			feed.add("+IPD,0,3:abcdef\r\nOK\r\n")
			Expect(classifier.Poll().Type).To(Equal(protocol.RespOk))
			Expect(messages.messages).To(BeEmpty())
		})
	})

	Describe("Clear()", func() {
		It("drops partial input", func() {
			feed.add("+IPD,0,5:he")
			Expect(classifier.Poll().IsNone()).To(BeTrue())

			classifier.Clear()
			feed.add("OK\r\n")
			Expect(classifier.Poll().Type).To(Equal(protocol.RespOk))
		})
	})
})
