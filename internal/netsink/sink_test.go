package netsink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T, port int) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// openSinkPair binds an RTP listener on an ephemeral port and an RTCP
// listener on the next port up, so Open's "rtp_port+1" contract is exercised
// deterministically rather than hoping the OS hands back contiguous ports.
func openSinkPair(t *testing.T) (rtpListener, rtcpListener *net.UDPConn, rtpPort int) {
	t.Helper()
	rtpListener = listenUDP(t, 0)
	rtpPort = rtpListener.LocalAddr().(*net.UDPAddr).Port
	rtcpListener = listenUDP(t, rtpPort+1)
	return rtpListener, rtcpListener, rtpPort
}

func TestSink_SendBeforeReadyIsDropped(t *testing.T) {
	s := New(Config{RemoteHost: "127.0.0.1", RTPPort: 1})

	err := s.Send(&rtp.Packet{Header: rtp.Header{Version: 2}, Payload: []byte{1}})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSink_OpenSendAndCounters(t *testing.T) {
	rtpListener, _, rtpPort := openSinkPair(t)

	s := New(Config{RemoteHost: "127.0.0.1", RTPPort: rtpPort, RTCPInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Open(ctx))
	defer s.Stop()

	assert.Equal(t, StateReady, s.State())

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: 1, Timestamp: 9000, SSRC: 42},
		Payload: []byte{0xAA, 0xBB, 0xCC},
	}
	require.NoError(t, s.Send(pkt))

	buf := make([]byte, 1500)
	rtpListener.SetReadDeadline(time.Now().Add(time.Second))
	n, err := rtpListener.Read(buf)
	require.NoError(t, err)

	var got rtp.Packet
	require.NoError(t, got.Unmarshal(buf[:n]))
	assert.Equal(t, pkt.Payload, got.Payload)
	assert.Equal(t, uint32(42), got.SSRC)

	packetsSent, octetsSent := s.Stats()
	assert.Equal(t, uint32(1), packetsSent)
	assert.Equal(t, uint32(3), octetsSent)
}

func TestBuildSenderReport_FieldsMatchRFC3550(t *testing.T) {
	sr := buildSenderReport(42, 10, 2000, time.Unix(1_700_000_000, 0))

	buf, err := sr.Marshal()
	require.NoError(t, err)

	// 28-byte form: V=2/P=0/RC=0, PT=200, length=6 words minus one.
	require.Len(t, buf, 28)
	assert.Equal(t, []byte{0x80, 200, 0x00, 0x06}, buf[:4])

	var decoded rtcp.SenderReport
	require.NoError(t, decoded.Unmarshal(buf))

	assert.Equal(t, uint32(42), decoded.SSRC)
	assert.Equal(t, uint32(10), decoded.PacketCount)
	assert.Equal(t, uint32(2000), decoded.OctetCount)
}

func TestSink_NoSenderReportBeforeFirstPacket(t *testing.T) {
	_, rtcpListener, rtpPort := openSinkPair(t)

	s := New(Config{RemoteHost: "127.0.0.1", RTPPort: rtpPort, RTCPInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Open(ctx))
	defer s.Stop()

	rtcpListener.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 1500)
	_, err := rtcpListener.Read(buf)
	assert.Error(t, err, "no sender report should be emitted before any RTP packet is sent")
}

func TestSink_SenderReportAfterFirstPacket(t *testing.T) {
	rtpListener, rtcpListener, rtpPort := openSinkPair(t)

	s := New(Config{RemoteHost: "127.0.0.1", RTPPort: rtpPort, RTCPInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Open(ctx))
	defer s.Stop()

	require.NoError(t, s.Send(&rtp.Packet{Header: rtp.Header{Version: 2, SSRC: 7}, Payload: []byte{1, 2}}))
	rtpListener.SetReadDeadline(time.Now().Add(time.Second))
	drain := make([]byte, 1500)
	_, _ = rtpListener.Read(drain)

	rtcpListener.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1500)
	n, err := rtcpListener.Read(buf)
	require.NoError(t, err)

	var sr rtcp.SenderReport
	require.NoError(t, sr.Unmarshal(buf[:n]))
	assert.Equal(t, uint32(7), sr.SSRC)
	assert.Equal(t, uint32(1), sr.PacketCount)
	assert.Equal(t, uint32(2), sr.OctetCount)
}
