// Package rtp265 implements RFC 7798 packetization and depacketization of
// H.265 encoded frames into RTP packets.
package rtp265

import (
	"sync"

	"github.com/pion/rtp"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/h265"
)

// Wire constants (spec.md §4.F, §6).
const (
	PayloadTypeH265       = 98
	ClockRateHz           = 90000
	DefaultMaxPayloadSize = 1400

	fuHeaderStartBit  = 0x80
	fuHeaderEndBit    = 0x40
	fuNALType         = 49
	singleNALMaxType  = 48
)

// PacketizerConfig configures a Packetizer.
type PacketizerConfig struct {
	// MaxPayloadSize caps the RTP payload size before fragmentation kicks
	// in. Zero selects DefaultMaxPayloadSize.
	MaxPayloadSize int
	SSRC           uint32
	PayloadType    uint8
	Sequencer      rtp.Sequencer
	// LengthSize is the AVCC NAL length-field width. Zero selects
	// h265.DefaultLengthSize (spec.md §4.E: read from the hvcC record
	// when available, default 4 otherwise).
	LengthSize int
}

// Packetizer turns EncodedH265Frame buffers into RTP packets per RFC 7798
// §4.4 (spec.md §4.F). Its methods are serialized by an internal mutex,
// matching the single-threaded-actor element model.
type Packetizer struct {
	mu sync.Mutex

	maxPayload  int
	ssrc        uint32
	payloadType uint8
	seq         rtp.Sequencer
	lengthSize  int

	packetCount uint32
	octetCount  uint32
}

// NewPacketizer builds a Packetizer. A random SSRC and sequence start are
// chosen when the config leaves them zero/nil.
func NewPacketizer(cfg PacketizerConfig) *Packetizer {
	maxPayload := cfg.MaxPayloadSize
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadSize
	}

	payloadType := cfg.PayloadType
	if payloadType == 0 {
		payloadType = PayloadTypeH265
	}

	ssrc := cfg.SSRC
	if ssrc == 0 {
		ssrc = randomSSRC()
	}

	seq := cfg.Sequencer
	if seq == nil {
		seq = rtp.NewRandomSequencer()
	}

	lengthSize := cfg.LengthSize
	if lengthSize <= 0 {
		lengthSize = h265.DefaultLengthSize
	}

	return &Packetizer{
		maxPayload:  maxPayload,
		ssrc:        ssrc,
		payloadType: payloadType,
		seq:         seq,
		lengthSize:  lengthSize,
	}
}

// Packetize fragments one encoded frame into an ordered list of RTP
// packets per spec.md §4.F. Exactly one packet (the last) carries
// Marker=true.
func (p *Packetizer) Packetize(frame h265.EncodedH265Frame) ([]*rtp.Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	nalus := h265.ExtractNALs(frame.Payload, p.lengthSize)

	total := p.totalPackets(nalus)
	if total == 0 {
		return nil, nil
	}

	rtpTS := uint32(int64(frame.PTS.Seconds() * ClockRateHz)) // int64 -> uint32 wraps mod 2^32

	packets := make([]*rtp.Packet, 0, total)
	ordinal := 0

	for _, nal := range nalus {
		if len(nal) < 2 {
			continue
		}

		if len(nal) <= p.maxPayload {
			ordinal++
			packets = append(packets, p.buildPacket(nal, rtpTS, ordinal == total))
			continue
		}

		fragments := p.fragment(nal)
		for _, payload := range fragments {
			ordinal++
			packets = append(packets, p.buildPacket(payload, rtpTS, ordinal == total))
		}
	}

	for _, pkt := range packets {
		p.packetCount++
		p.octetCount += uint32(len(pkt.Payload))
	}

	return packets, nil
}

func (p *Packetizer) buildPacket(payload []byte, rtpTS uint32, marker bool) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    p.payloadType,
			SequenceNumber: p.seq.NextSequenceNumber(),
			Timestamp:      rtpTS,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}
}

// fragment slices a NAL body into FU payloads (PayloadHdr(2) + FUHeader(1)
// + fragment bytes) per RFC 7798 §4.4.3.
func (p *Packetizer) fragment(nal []byte) [][]byte {
	hi, lo := nal[0], nal[1]
	nalType := (hi >> 1) & 0x3f

	payloadHdrHi := (fuNALType << 1) | (hi & 0x01)
	payloadHdrLo := lo

	body := nal[2:]
	chunkSize := p.maxPayload - 3
	if chunkSize < 1 {
		chunkSize = 1
	}

	var out [][]byte
	for offset := 0; offset < len(body); offset += chunkSize {
		end := offset + chunkSize
		if end > len(body) {
			end = len(body)
		}

		fuHeader := nalType
		if offset == 0 {
			fuHeader |= fuHeaderStartBit
		}
		if end == len(body) {
			fuHeader |= fuHeaderEndBit
		}

		frag := make([]byte, 0, 3+end-offset)
		frag = append(frag, payloadHdrHi, payloadHdrLo, fuHeader)
		frag = append(frag, body[offset:end]...)
		out = append(out, frag)
	}

	return out
}

// totalPackets computes the packet count for a whole frame (spec.md §4.F
// step 3), used so the marker bit can be set on the correct ordinal. A NAL
// shorter than 2 bytes is skipped, not an error: it carries no header to
// packetize, and the emit loop in Packetize skips it the same way, so a
// malformed NAL is dropped in place rather than failing its siblings.
func (p *Packetizer) totalPackets(nalus [][]byte) int {
	total := 0
	for _, nal := range nalus {
		if len(nal) < 2 {
			continue
		}

		if len(nal) <= p.maxPayload {
			total++
			continue
		}

		body := len(nal) - 2
		chunk := p.maxPayload - 3
		if chunk < 1 {
			chunk = 1
		}
		total += (body + chunk - 1) / chunk
	}
	return total
}

// Stats returns the running packet/octet counters (spec.md §4.F, consumed
// by the RTCP sender-report layer).
func (p *Packetizer) Stats() (packetCount, octetCount uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.packetCount, p.octetCount
}

// SSRC returns the packetizer's synchronization source identifier.
func (p *Packetizer) SSRC() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ssrc
}

// PacketBurst groups all RTP packets produced for one encoded frame, so a
// downstream pipeline filter/sink can treat "one frame's packets" as a
// single buffer when that granularity is more convenient than per-packet
// edges.
type PacketBurst struct {
	Packets []*rtp.Packet
}
