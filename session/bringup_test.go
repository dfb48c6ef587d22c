package session_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luma/esplink/clock"
	"github.com/luma/esplink/internal/metrics"
	"github.com/luma/esplink/protocol"
	"github.com/luma/esplink/session"
)

var _ = Describe("session / bring-up", func() {
	var (
		dev   *device
		ticks *clock.Ticks
		log   *events
	)

	BeforeEach(func() {
		dev = newDevice()
		ticks = clock.NewTicks(0)
		log = &events{}
	})

	newSession := func(cfg protocol.Config) *session.Session {
		s, err := session.New(session.Options{
			Config:    cfg,
			Transport: dev,
			Clock:     ticks,
			Handler:   log.handle,
		})
		Expect(err).To(Succeed())
		return s
	}

	It("starts Idle", func() {
		s := newSession(stationDHCP)
		Expect(s.State()).To(Equal(session.StateIdle))
		Expect(dev.writes).To(BeEmpty())
	})

	It("refuses invalid configuration", func() {
		_, err := session.New(session.Options{Transport: dev})
		Expect(err).To(MatchError(session.ErrNoConfig))

		_, err = session.New(session.Options{Config: protocol.StationConfig{ListenPort: 333}, Transport: dev})
		Expect(err).To(MatchError(protocol.ErrInvalidSSID))

		_, err = session.New(session.Options{Config: stationDHCP})
		Expect(err).To(MatchError(session.ErrNoTransport))
	})

	It("joins the network when given a pointer configuration", func() {
		cfg := stationDHCP
		s := newSession(&cfg)

		updateUntil(s, session.StateReady, 100)
		Expect(s.State()).To(Equal(session.StateReady))
		Expect(dev.count("AT+CWJAP=\"net\",\"pass\"\r\n")).To(Equal(1))
		Expect(s.Config()).To(Equal(stationDHCP))
	})

	It("refuses a nil pointer configuration", func() {
		var cfg *protocol.StationConfig
		_, err := session.New(session.Options{Config: cfg, Transport: dev})
		Expect(err).To(MatchError(session.ErrNoConfig))
	})

	table.DescribeTable("reaches Ready in a fixed number of updates",
		func(cfg protocol.Config, updates int, lines []string) {
			s := newSession(cfg)

			n := 0
			for s.State() != session.StateReady && n < 100 {
				Expect(s.Update()).To(BeTrue(), "update %d in %s", n, s.State())
				n++
			}

			Expect(s.State()).To(Equal(session.StateReady))
			Expect(n).To(Equal(updates))
			Expect(dev.writes).To(Equal(lines))
			Expect(log.types()).To(Equal([]session.EventType{session.EventSessionReady}))

			// Nothing left to do.
			Expect(s.Update()).To(BeFalse())
		},
		table.Entry("station, DHCP", stationDHCP, 14, []string{
			"AT+RST\r\n",
			"AT+CWMODE=1\r\n",
			"AT+CWJAP=\"net\",\"pass\"\r\n",
			"AT+CIPMUX=1\r\n",
			"AT+CIPSERVER=1,333\r\n",
		}),
		table.Entry("station, static", stationStatic, 16, []string{
			"AT+RST\r\n",
			"AT+CWMODE=1\r\n",
			"AT+CWJAP=\"net\",\"pass\"\r\n",
			"AT+CIPSTA=\"192.168.1.50\",\"192.168.1.1\",\"255.255.255.0\"\r\n",
			"AT+CIPMUX=1\r\n",
			"AT+CIPSERVER=1,333\r\n",
		}),
		table.Entry("access point, DHCP", accessPointDHCP, 12, []string{
			"AT+RST\r\n",
			"AT+CWMODE=2\r\n",
			"AT+CWSAP=\"feeder\",\"password1\",5,3,2,0\r\n",
			"AT+CIPMUX=1\r\n",
			"AT+CIPSERVER=1,333\r\n",
		}),
		table.Entry("access point, static", accessPointStatic, 14, []string{
			"AT+RST\r\n",
			"AT+CWMODE=2\r\n",
			"AT+CWSAP=\"feeder\",\"password1\",5,3,2,0\r\n",
			"AT+CIPAP=\"192.168.4.1\",\"192.168.4.1\",\"255.255.255.0\"\r\n",
			"AT+CIPMUX=1\r\n",
			"AT+CIPSERVER=1,333\r\n",
		}),
		table.Entry("station + access point, DHCP", bothDHCP, 16, []string{
			"AT+RST\r\n",
			"AT+CWMODE=3\r\n",
			"AT+CWJAP=\"net\",\"pass\"\r\n",
			"AT+CWSAP=\"feeder\",\"password1\",5,3,2,0\r\n",
			"AT+CIPMUX=1\r\n",
			"AT+CIPSERVER=1,333\r\n",
		}),
		table.Entry("station + access point, static", bothStatic, 20, []string{
			"AT+RST\r\n",
			"AT+CWMODE=3\r\n",
			"AT+CWJAP=\"net\",\"pass\"\r\n",
			"AT+CWSAP=\"feeder\",\"password1\",5,3,2,0\r\n",
			"AT+CIPSTA=\"192.168.1.50\",\"192.168.1.1\",\"255.255.255.0\"\r\n",
			"AT+CIPAP=\"192.168.4.1\",\"192.168.4.1\",\"255.255.255.0\"\r\n",
			"AT+CIPMUX=1\r\n",
			"AT+CIPSERVER=1,333\r\n",
		}),
	)

	table.DescribeTable("resends a rejected command exactly once",
		func(prefix, line, rejection string) {
			s := newSession(bothStatic)
			dev.once[prefix] = rejection

			updateUntil(s, session.StateReady, 100)
			Expect(s.State()).To(Equal(session.StateReady))
			Expect(dev.count(line)).To(Equal(2))
		},
		table.Entry("reset, ERROR", "AT+RST", "AT+RST\r\n", "ERROR\r\n"),
		table.Entry("mode, ERROR", "AT+CWMODE", "AT+CWMODE=3\r\n", "ERROR\r\n"),
		table.Entry("join, FAIL", "AT+CWJAP", "AT+CWJAP=\"net\",\"pass\"\r\n", "+CWJAP:1\r\n\r\nFAIL\r\n"),
		table.Entry("host, ERROR", "AT+CWSAP", "AT+CWSAP=\"feeder\",\"password1\",5,3,2,0\r\n", "ERROR\r\n"),
		table.Entry("station IP, FAIL", "AT+CIPSTA", "AT+CIPSTA=\"192.168.1.50\",\"192.168.1.1\",\"255.255.255.0\"\r\n", "FAIL\r\n"),
		table.Entry("AP IP, ERROR", "AT+CIPAP", "AT+CIPAP=\"192.168.4.1\",\"192.168.4.1\",\"255.255.255.0\"\r\n", "ERROR\r\n"),
		table.Entry("multiplex, ERROR", "AT+CIPMUX", "AT+CIPMUX=1\r\n", "ERROR\r\n"),
		table.Entry("listener, FAIL", "AT+CIPSERVER", "AT+CIPSERVER=1,333\r\n", "FAIL\r\n"),
	)

	It("resends on the update right after the rejection", func() {
		s := newSession(stationDHCP)
		dev.once["AT+CWMODE"] = "ERROR\r\n"

		updateUntil(s, session.StateConfigureMode, 10)
		Expect(s.Update()).To(BeTrue()) // write
		Expect(dev.last()).To(Equal("AT+CWMODE=1\r\n"))

		Expect(s.Update()).To(BeTrue()) // ERROR
		Expect(s.State()).To(Equal(session.StateConfigureMode))
		writes := len(dev.writes)

		Expect(s.Update()).To(BeTrue()) // resend
		Expect(dev.writes).To(HaveLen(writes + 1))
		Expect(dev.last()).To(Equal("AT+CWMODE=1\r\n"))
	})

	It("takes ready before OK after a reset", func() {
		s := newSession(stationDHCP)
		dev.once["AT+RST"] = "ready\r\n"

		updateUntil(s, session.StateConfigureMode, 10)
		Expect(s.State()).To(Equal(session.StateConfigureMode))
	})

	Describe("timeouts", func() {
		It("resends an unanswered command once the timeout has passed", func() {
			s := newSession(stationDHCP)
			dev.once["AT+CWMODE"] = ""

			updateUntil(s, session.StateConfigureMode, 10)
			Expect(s.Update()).To(BeTrue())
			Expect(dev.count("AT+CWMODE=1\r\n")).To(Equal(1))

			ticks.Advance(session.DefaultCommandTimeout)
			Expect(s.Update()).To(BeFalse())
			Expect(s.Update()).To(BeFalse())
			Expect(dev.count("AT+CWMODE=1\r\n")).To(Equal(1))

			ticks.Advance(time.Microsecond)
			Expect(s.Update()).To(BeFalse())
			Expect(s.Update()).To(BeTrue())
			Expect(dev.count("AT+CWMODE=1\r\n")).To(Equal(2))

			updateUntil(s, session.StateReady, 100)
			Expect(s.State()).To(Equal(session.StateReady))
		})

		It("keeps retrying forever", func() {
			s := newSession(stationDHCP)
			dev.silent = true
			retries := metrics.CommandRetries.WithLabelValues("RST", "timeout")
			before := testutil.ToFloat64(retries)

			Expect(s.Update()).To(BeTrue())
			for i := 0; i < 50; i++ {
				Expect(s.Update()).To(BeTrue())
				Expect(s.State()).To(Equal(session.StateReset))

				ticks.Advance(session.DefaultCommandTimeout + time.Millisecond)
				Expect(s.Update()).To(BeFalse())
			}

			Expect(dev.count("AT+RST\r\n")).To(Equal(50))
			Expect(testutil.ToFloat64(retries) - before).To(Equal(50.0))
		})

		It("measures timeouts across a clock rollover", func() {
			ticks = clock.NewTicks(^uint64(0) - 5)
			s := newSession(stationDHCP)
			dev.silent = true

			s.Update()
			Expect(s.Update()).To(BeTrue())

			ticks.Advance(time.Second)
			Expect(s.Update()).To(BeFalse())
			Expect(s.Update()).To(BeFalse())
			Expect(dev.count("AT+RST\r\n")).To(Equal(1))

			ticks.Advance(session.DefaultCommandTimeout)
			s.Update()
			Expect(s.Update()).To(BeTrue())
			Expect(dev.count("AT+RST\r\n")).To(Equal(2))
		})

		It("honours a custom timeout", func() {
			s, err := session.New(session.Options{
				Config:         stationDHCP,
				Transport:      dev,
				Clock:          ticks,
				CommandTimeout: time.Second,
			})
			Expect(err).To(Succeed())
			dev.silent = true

			s.Update()
			s.Update()
			ticks.Advance(time.Second + time.Microsecond)
			s.Update()
			s.Update()

			Expect(dev.count("AT+RST\r\n")).To(Equal(2))
		})

		It("resets again when ready never arrives", func() {
			s := newSession(stationDHCP)
			dev.once["AT+RST"] = "\r\nOK\r\n"

			updateUntil(s, session.StateWaitReady, 10)
			Expect(s.Update()).To(BeFalse())

			ticks.Advance(session.DefaultCommandTimeout + time.Microsecond)
			Expect(s.Update()).To(BeTrue())
			Expect(s.State()).To(Equal(session.StateReset))

			Expect(s.Update()).To(BeTrue())
			Expect(dev.count("AT+RST\r\n")).To(Equal(2))
		})

		It("rejoins when the station never associates", func() {
			s := newSession(stationDHCP)
			dev.once["AT+CWJAP"] = "\r\nOK\r\n"

			updateUntil(s, session.StateWaitStationAssociated, 20)
			Expect(s.State()).To(Equal(session.StateWaitStationAssociated))

			ticks.Advance(session.DefaultCommandTimeout + time.Microsecond)
			Expect(s.Update()).To(BeTrue())
			Expect(s.State()).To(Equal(session.StateConfigureStation))

			updateUntil(s, session.StateReady, 100)
			Expect(dev.count("AT+CWJAP=\"net\",\"pass\"\r\n")).To(Equal(2))
		})
	})

	Describe("station events", func() {
		It("waits for an address after association", func() {
			s := newSession(stationDHCP)
			dev.once["AT+CWJAP"] = "WIFI CONNECTED\r\n\r\nOK\r\n"

			updateUntil(s, session.StateWaitStationGotIP, 20)
			Expect(s.State()).To(Equal(session.StateWaitStationGotIP))
			Expect(s.StationAssociated()).To(BeTrue())
			Expect(s.StationHasIP()).To(BeFalse())

			dev.feed("WIFI GOT IP\r\n")
			Expect(s.Update()).To(BeTrue())
			Expect(s.State()).To(Equal(session.StateEnableMultiplex))
			Expect(s.StationHasIP()).To(BeTrue())
		})

		It("uses an association that arrives after the acknowledgement", func() {
			s := newSession(stationStatic)
			dev.once["AT+CWJAP"] = "\r\nOK\r\n"

			updateUntil(s, session.StateWaitStationAssociated, 20)
			dev.feed("WIFI CONNECTED\r\n")

			Expect(s.Update()).To(BeTrue())
			Expect(s.State()).To(Equal(session.StateAssignStationIP))
		})

		It("rejoins when the station drops while waiting for an address", func() {
			s := newSession(stationDHCP)
			dev.once["AT+CWJAP"] = "WIFI CONNECTED\r\n\r\nOK\r\n"

			updateUntil(s, session.StateWaitStationGotIP, 20)
			dev.feed("WIFI DISCONNECT\r\n")

			Expect(s.Update()).To(BeTrue())
			Expect(s.State()).To(Equal(session.StateConfigureStation))
			Expect(s.StationAssociated()).To(BeFalse())

			updateUntil(s, session.StateReady, 100)
			Expect(s.State()).To(Equal(session.StateReady))
		})

		It("rejoins when joining fails after the acknowledgement", func() {
			s := newSession(stationDHCP)
			dev.once["AT+CWJAP"] = "\r\nOK\r\n"

			updateUntil(s, session.StateWaitStationAssociated, 20)
			dev.feed("FAIL\r\n")

			Expect(s.Update()).To(BeTrue())
			Expect(s.State()).To(Equal(session.StateConfigureStation))
		})
	})

	Describe("transport failures", func() {
		It("retries a write the transport rejected", func() {
			s := newSession(stationDHCP)
			dev.unplugged = true

			Expect(s.Update()).To(BeTrue()) // Idle -> Reset
			Expect(s.Update()).To(BeFalse())
			Expect(s.Update()).To(BeFalse())
			Expect(s.State()).To(Equal(session.StateReset))
			Expect(dev.writes).To(BeEmpty())

			dev.unplugged = false
			Expect(s.Update()).To(BeTrue())
			Expect(dev.writes).To(Equal([]string{"AT+RST\r\n"}))
		})
	})
})
