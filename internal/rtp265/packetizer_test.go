package rtp265

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/h265"
)

func TestPacketizer_SingleNAL(t *testing.T) {
	p := NewPacketizer(PacketizerConfig{Sequencer: rtp.NewFixedSequencer(101)})

	frame := h265.EncodedH265Frame{
		Payload: h265.BuildAVCC([][]byte{{0x40, 0x01, 0xAA, 0xBB, 0xCC}}),
		PTS:     h265.RationalFromSeconds(0.1, ClockRateHz),
	}

	packets, err := p.Packetize(frame)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	pkt := packets[0]
	assert.Equal(t, []byte{0x40, 0x01, 0xAA, 0xBB, 0xCC}, pkt.Payload)
	assert.True(t, pkt.Marker)
	assert.Equal(t, uint16(101), pkt.SequenceNumber)
	assert.Equal(t, uint32(9000), pkt.Timestamp)
}

func TestPacketizer_FragmentedNAL(t *testing.T) {
	p := NewPacketizer(PacketizerConfig{Sequencer: rtp.NewFixedSequencer(1), MaxPayloadSize: 1400})

	nalType := byte(1) // trailing picture, arbitrary
	header := []byte{nalType << 1, 0x01}
	body := make([]byte, 3000-2)
	for i := range body {
		body[i] = byte(i)
	}
	nal := append(append([]byte{}, header...), body...)

	frame := h265.EncodedH265Frame{Payload: h265.BuildAVCC([][]byte{nal})}

	packets, err := p.Packetize(frame)
	require.NoError(t, err)
	require.Len(t, packets, 3)

	// packet 1: S=1, E=0
	assert.Equal(t, byte(49<<1), packets[0].Payload[0]&0xfe)
	assert.Equal(t, byte(0x80|nalType), packets[0].Payload[2])
	assert.Len(t, packets[0].Payload, 3+1397)
	assert.False(t, packets[0].Marker)

	// packet 2: S=0, E=0
	assert.Equal(t, nalType, packets[1].Payload[2])
	assert.Len(t, packets[1].Payload, 3+1397)
	assert.False(t, packets[1].Marker)

	// packet 3: S=0, E=1, remainder, marker set
	assert.Equal(t, byte(0x40|nalType), packets[2].Payload[2])
	assert.Len(t, packets[2].Payload, 3+(2998-2*1397))
	assert.True(t, packets[2].Marker)

	assert.Equal(t, uint16(1), packets[0].SequenceNumber)
	assert.Equal(t, uint16(2), packets[1].SequenceNumber)
	assert.Equal(t, uint16(3), packets[2].SequenceNumber)

	packetCount, octetCount := p.Stats()
	assert.Equal(t, uint32(3), packetCount)
	assert.True(t, octetCount > 0)
}

func TestPacketizer_SkipsZeroLengthAndEmptyFrame(t *testing.T) {
	p := NewPacketizer(PacketizerConfig{})

	packets, err := p.Packetize(h265.EncodedH265Frame{Payload: nil})
	require.NoError(t, err)
	assert.Empty(t, packets)

	packets, err = p.Packetize(h265.EncodedH265Frame{Payload: []byte{
		0x00, 0x00, 0x00, 0x00, // zero-length NAL, skipped
		0x00, 0x00, 0x00, 0x02, 0x26, 0x01,
	}})
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, []byte{0x26, 0x01}, packets[0].Payload)
	assert.True(t, packets[0].Marker)
}
