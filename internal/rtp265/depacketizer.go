package rtp265

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pion/rtp"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/h265"
	"github.com/Azunyan1111/h265rtp-pipeline/internal/logging"
)

// ErrMalformedFU is logged (and the fragment discarded) when a fragmentation
// unit is missing its start marker (spec.md §7 MalformedFU); Push does not
// return it.
var ErrMalformedFU = errors.New("rtp265: FU fragment without a start marker")

// DefaultBacklog is the maximum number of concurrently open (incomplete)
// timestamps the depacketizer holds before it evicts the oldest (spec.md
// §4.G step 3).
const DefaultBacklog = 10

type pendingPacket struct {
	seq     uint16
	payload []byte
}

type pendingFrame struct {
	packets []pendingPacket
	lastSeq uint16
	hasSeq  bool
}

// DepacketizerConfig configures a Depacketizer.
type DepacketizerConfig struct {
	// Backlog bounds the number of open timestamps. Zero selects
	// DefaultBacklog.
	Backlog int
	Log     *slog.Logger
}

// Depacketizer reassembles RTP packets carrying RFC 7798 H.265 payloads
// back into EncodedH265Frame buffers (spec.md §4.G).
type Depacketizer struct {
	mu sync.Mutex

	backlog int
	log     *slog.Logger

	open        map[uint32]*pendingFrame
	order       []uint32 // insertion order, for bounded-backlog eviction
	format      *h265.ParameterSets
	formatKnown bool
}

// NewDepacketizer builds a Depacketizer.
func NewDepacketizer(cfg DepacketizerConfig) *Depacketizer {
	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	return &Depacketizer{
		backlog: backlog,
		log:     logging.Or(cfg.Log),
		open:    make(map[uint32]*pendingFrame),
	}
}

// Push records one RTP packet. When the packet's marker bit is set it
// triggers assembly of the frame at that packet's timestamp, returned as
// the first value with true as the second. A nil, false result means the
// packet was buffered but no frame completed yet.
func (d *Depacketizer) Push(ctx context.Context, pkt *rtp.Packet) (*h265.EncodedH265Frame, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := pkt.Timestamp
	pf, ok := d.open[ts]
	if !ok {
		pf = &pendingFrame{}
		d.open[ts] = pf
		d.order = append(d.order, ts)
		d.evictLocked()
	}

	if pf.hasSeq && pkt.SequenceNumber != pf.lastSeq+1 {
		d.log.WarnContext(ctx, "rtp265: sequence gap within timestamp",
			"timestamp", ts, "expected", pf.lastSeq+1, "got", pkt.SequenceNumber)
	}
	pf.lastSeq = pkt.SequenceNumber
	pf.hasSeq = true

	pf.packets = append(pf.packets, pendingPacket{seq: pkt.SequenceNumber, payload: pkt.Payload})

	d.captureFormatLocked(pkt.Payload)

	if !pkt.Marker {
		return nil, false, nil
	}

	frame, err := d.assembleLocked(ts)
	delete(d.open, ts)
	d.removeFromOrderLocked(ts)
	if err != nil {
		return nil, false, err
	}
	return frame, true, nil
}

// Finish drains every remaining open timestamp in ascending order (spec.md
// §4.G "on shutdown"), for frames whose marker packet never arrived.
func (d *Depacketizer) Finish() ([]*h265.EncodedH265Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	timestamps := make([]uint32, len(d.order))
	copy(timestamps, d.order)
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	var frames []*h265.EncodedH265Frame
	for _, ts := range timestamps {
		frame, err := d.assembleLocked(ts)
		delete(d.open, ts)
		if err != nil {
			d.log.Warn("rtp265: dropping undecodable frame on finish", "timestamp", ts, "error", err)
			continue
		}
		frames = append(frames, frame)
	}
	d.order = nil

	return frames, nil
}

func (d *Depacketizer) evictLocked() {
	for len(d.order) > d.backlog {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.open, oldest)
		d.log.Warn("rtp265: evicting stale incomplete frame", "timestamp", oldest, "backlog", d.backlog)
	}
}

func (d *Depacketizer) removeFromOrderLocked(ts uint32) {
	for i, v := range d.order {
		if v == ts {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// captureFormatLocked latches the first VPS/SPS/PPS it observes in a
// payload, so frames that arrive without in-band parameter sets can still
// report a format description (spec.md §4.E "relying on a prior keyframe").
func (d *Depacketizer) captureFormatLocked(payload []byte) {
	if len(payload) < 2 {
		return
	}

	nalType := (payload[0] >> 1) & 0x3f
	var body []byte
	switch {
	case nalType <= singleNALMaxType:
		body = payload
	case nalType == fuNALType && len(payload) >= 3:
		s := payload[2]&fuHeaderStartBit != 0
		if !s {
			return
		}
		fuType := payload[2] & 0x3f
		hi := (fuType << 1) | (payload[0] & 0x01)
		body = append([]byte{hi, payload[1]}, payload[3:]...)
		nalType = fuType
	default:
		return
	}

	switch nalType {
	case h265.NALTypeVPS, h265.NALTypeSPS, h265.NALTypePPS:
	default:
		return
	}

	if d.format == nil {
		d.format = &h265.ParameterSets{}
	}
	switch nalType {
	case h265.NALTypeVPS:
		if d.format.VPS == nil {
			d.format.VPS = body
		}
	case h265.NALTypeSPS:
		if d.format.SPS == nil {
			d.format.SPS = body
		}
	case h265.NALTypePPS:
		if d.format.PPS == nil {
			d.format.PPS = body
		}
	}
	if d.format.Complete() {
		d.formatKnown = true
	}
}

// assembleLocked walks the packets buffered for timestamp ts, stitches FU
// fragments, and serializes the result back to AVCC (spec.md §4.G steps
// 1-6).
func (d *Depacketizer) assembleLocked(ts uint32) (*h265.EncodedH265Frame, error) {
	pf, ok := d.open[ts]
	if !ok {
		return nil, fmt.Errorf("rtp265: no packets buffered for timestamp %d", ts)
	}

	sort.Slice(pf.packets, func(i, j int) bool { return pf.packets[i].seq < pf.packets[j].seq })

	var nalus [][]byte
	var fuAccum []byte
	var fuInProgress bool

	for _, p := range pf.packets {
		if len(p.payload) < 2 {
			continue
		}

		nalType := (p.payload[0] >> 1) & 0x3f

		if nalType <= singleNALMaxType {
			nalus = append(nalus, p.payload)
			continue
		}

		if nalType != fuNALType {
			continue // AP (48) / PACI (50): not required, spec.md §4.G step 2
		}

		if len(p.payload) < 3 {
			continue
		}
		fuHeader := p.payload[2]
		s := fuHeader&fuHeaderStartBit != 0
		e := fuHeader&fuHeaderEndBit != 0
		fuType := fuHeader & 0x3f

		if s {
			hi := (fuType << 1) | (p.payload[0] & 0x01)
			lo := p.payload[1]
			fuAccum = append([]byte{hi, lo}, p.payload[3:]...)
			fuInProgress = true
		} else {
			if !fuInProgress {
				d.log.Warn("rtp265: discarding FU accumulator", "timestamp", ts, "error", ErrMalformedFU)
				continue
			}
			fuAccum = append(fuAccum, p.payload[3:]...)
		}

		if e {
			if !fuInProgress {
				continue
			}
			nalus = append(nalus, fuAccum)
			fuAccum = nil
			fuInProgress = false
		}
	}

	isKeyframe := false
	for _, n := range nalus {
		if len(n) == 0 {
			continue
		}
		if h265.IsKeyframeNALType(h265.NALType(n[0])) {
			isKeyframe = true
			break
		}
	}

	frame := &h265.EncodedH265Frame{
		Payload:    h265.BuildAVCC(nalus),
		PTS:        h265.Rational{Value: int64(ts), Timescale: ClockRateHz},
		Duration:   h265.Rational{Value: 1, Timescale: 30},
		IsKeyframe: isKeyframe,
	}
	if d.formatKnown {
		frame.Format = d.format
	}

	return frame, nil
}
