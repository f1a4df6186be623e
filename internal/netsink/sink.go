package netsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/logging"
)

// DefaultRTCPInterval is the period between sender reports (spec.md §4.H).
const DefaultRTCPInterval = 5 * time.Second

// ErrNotReady is returned (and logged, non-fatal) when a packet is
// submitted before the socket reaches StateReady.
var ErrNotReady = errors.New("netsink: socket not ready")

// Config configures a Sink.
type Config struct {
	RemoteHost   string
	RTPPort      int
	RTCPInterval time.Duration
	Log          *slog.Logger
}

// Sink is the RTP/RTCP network sink described in spec.md §4.H: it opens an
// RTP socket and a companion RTCP socket one port above it, sends RTP
// packets as they arrive, and emits periodic RTCP sender reports once at
// least one RTP packet has gone out.
type Sink struct {
	mu sync.Mutex

	cfg  Config
	log  *slog.Logger
	rtcpEvery time.Duration

	state State

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	packetsSent uint32
	octetsSent  uint32
	ssrc        uint32
	sawPacket   bool

	stopTicker context.CancelFunc
	tickerDone chan struct{}

	failures uint64
}

// New builds a Sink in StateInitial. Call Open to dial the sockets.
func New(cfg Config) *Sink {
	interval := cfg.RTCPInterval
	if interval <= 0 {
		interval = DefaultRTCPInterval
	}

	return &Sink{
		cfg:       cfg,
		log:       logging.Or(cfg.Log),
		rtcpEvery: interval,
		state:     StateInitial,
	}
}

// Open dials the RTP and RTCP (RTP port + 1) sockets, transitioning
// initial -> opening -> ready/failed, and starts the RTCP sender-report
// ticker.
func (s *Sink) Open(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateOpening
	s.mu.Unlock()

	rtpConn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(s.cfg.RemoteHost), Port: s.cfg.RTPPort})
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return fmt.Errorf("netsink: dial rtp socket: %w", err)
	}

	rtcpConn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(s.cfg.RemoteHost), Port: s.cfg.RTPPort + 1})
	if err != nil {
		rtpConn.Close()
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return fmt.Errorf("netsink: dial rtcp socket: %w", err)
	}

	tickerCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.rtpConn = rtpConn
	s.rtcpConn = rtcpConn
	s.state = StateReady
	s.stopTicker = cancel
	s.tickerDone = make(chan struct{})
	s.mu.Unlock()

	go s.runRTCPTicker(tickerCtx)

	return nil
}

// Send marshals and writes one RTP packet, updating the sent-packet and
// sent-octet counters. A packet submitted before StateReady is dropped and
// logged (spec.md §4.H).
func (s *Sink) Send(pkt *rtp.Packet) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		s.log.Warn("netsink: dropping RTP packet, socket not ready", "state", s.state.String())
		return ErrNotReady
	}
	conn := s.rtpConn
	s.mu.Unlock()

	buf, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("netsink: marshal rtp packet: %w", err)
	}

	if _, err := conn.Write(buf); err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		s.log.Warn("netsink: rtp send failed", "error", err)
		return fmt.Errorf("netsink: send rtp packet: %w", err)
	}

	s.mu.Lock()
	s.packetsSent++
	s.octetsSent += uint32(len(pkt.Payload))
	s.ssrc = pkt.SSRC
	s.sawPacket = true
	s.mu.Unlock()

	return nil
}

// Stop closes both sockets and stops the RTCP ticker. Infallible to the
// caller, matching the runtime's stop()/remove_child() contract.
func (s *Sink) Stop() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	stopTicker := s.stopTicker
	tickerDone := s.tickerDone
	rtpConn := s.rtpConn
	rtcpConn := s.rtcpConn
	s.mu.Unlock()

	if stopTicker != nil {
		stopTicker()
	}
	if tickerDone != nil {
		<-tickerDone
	}
	if rtpConn != nil {
		rtpConn.Close()
	}
	if rtcpConn != nil {
		rtcpConn.Close()
	}
}

// State reports the current socket lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the running packet/octet counters.
func (s *Sink) Stats() (packetsSent, octetsSent uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetsSent, s.octetsSent
}

func (s *Sink) runRTCPTicker(ctx context.Context) {
	defer close(s.tickerDone)

	ticker := time.NewTicker(s.rtcpEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sendSenderReport()
		}
	}
}

func (s *Sink) sendSenderReport() {
	s.mu.Lock()
	if !s.sawPacket {
		s.mu.Unlock()
		return
	}
	conn := s.rtcpConn
	ssrc := s.ssrc
	packetCount := s.packetsSent
	octetCount := s.octetsSent
	s.mu.Unlock()

	sr := buildSenderReport(ssrc, packetCount, octetCount, time.Now())

	buf, err := sr.Marshal()
	if err != nil {
		s.log.Warn("netsink: marshal sender report failed", "error", err)
		return
	}

	if _, err := conn.Write(buf); err != nil {
		s.log.Warn("netsink: rtcp send failed", "error", err)
	}
}

// buildSenderReport constructs an RFC 3550 §6.4.1 sender report (spec.md
// §4.H) via pion/rtcp rather than hand-rolled bytes.
func buildSenderReport(ssrc, packetCount, octetCount uint32, now time.Time) *rtcp.SenderReport {
	const ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and 1970-01-01

	ntpSeconds := uint64(now.Unix() + ntpEpochOffset)
	ntpTime := ntpSeconds << 32

	rtpTimestamp := uint32(now.Unix() * int64(rtp265ClockRateHz))

	return &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     ntpTime,
		RTPTime:     rtpTimestamp,
		PacketCount: packetCount,
		OctetCount:  octetCount,
	}
}

// rtp265ClockRateHz mirrors rtp265.ClockRateHz; duplicated as a constant
// here to avoid a dependency from the transport layer onto the codec
// layer for a single number.
const rtp265ClockRateHz = 90000
