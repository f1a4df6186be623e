// Package h265 implements the H.265 encoded-frame buffer type and the
// parameter-set (VPS/SPS/PPS) codec described in spec.md §4.E: extracting
// parameter sets from an hvcC configuration record and serializing an
// encoded frame (with its parameter sets) for inter-process transfer.
package h265

import "fmt"

// NAL unit types relevant to this package (spec.md GLOSSARY, §4.E-§4.G).
const (
	NALTypeIDRWRADL = 19
	NALTypeIDRNLP   = 20
	NALTypeCRA      = 21
	NALTypeVPS      = 32
	NALTypeSPS      = 33
	NALTypePPS      = 34
	NALTypeAUD      = 35
	NALTypePrefixSEI = 39
	NALTypeSuffixSEI = 40

	NALTypeAggregation   = 48
	NALTypeFragmentation = 49
	NALTypePACI          = 50
)

// NALType reads the 6-bit nal_unit_type out of a NAL unit's 2-byte header
// (the first byte), per spec.md GLOSSARY.
func NALType(firstHeaderByte byte) uint8 {
	return (firstHeaderByte >> 1) & 0x3f
}

// IsKeyframeNALType reports whether a NAL type marks a frame as a
// keyframe for depacketization purposes (spec.md §4.G step 4): the IDR
// types 19 and 20, and types 39, 40 (prefix/suffix SEI) and 41. The
// parameter-set types VPS/SPS/PPS (32-34) are not counted.
func IsKeyframeNALType(t uint8) bool {
	switch t {
	case NALTypeIDRWRADL, NALTypeIDRNLP, 39, 40, 41:
		return true
	default:
		return false
	}
}

// Rational is a value over a timescale, used for pts/duration (spec.md §3).
type Rational struct {
	Value     int64
	Timescale uint32
}

// Seconds converts the rational to a float64 number of seconds.
func (r Rational) Seconds() float64 {
	if r.Timescale == 0 {
		return 0
	}
	return float64(r.Value) / float64(r.Timescale)
}

// RationalFromSeconds builds a Rational for the given timescale by
// rounding seconds*timescale to the nearest integer value.
func RationalFromSeconds(seconds float64, timescale uint32) Rational {
	return Rational{Value: int64(seconds*float64(timescale) + 0.5), Timescale: timescale}
}

// ParameterSets holds the raw VPS/SPS/PPS NAL payloads (2-byte header +
// RBSP, no start code or length prefix), parsed from an hvcC configuration
// record (spec.md §4.E).
type ParameterSets struct {
	VPS []byte
	SPS []byte
	PPS []byte
}

// Complete reports whether all three parameter sets are present.
func (p *ParameterSets) Complete() bool {
	return p != nil && len(p.VPS) > 0 && len(p.SPS) > 0 && len(p.PPS) > 0
}

func (p *ParameterSets) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("ParameterSets{vps=%dB sps=%dB pps=%dB}", len(p.VPS), len(p.SPS), len(p.PPS))
}

// EncodedH265Frame is the buffer type carried between the H.265 encoder
// and the RTP packetizer, and between the depacketizer and decoder
// (spec.md §3).
type EncodedH265Frame struct {
	// Payload holds AVCC-form data: each NAL unit prefixed by a big-endian
	// length field (default 4 bytes; ParseHVCC derives the width from the
	// hvcC lengthSizeMinusOne field).
	Payload    []byte
	PTS        Rational
	Duration   Rational
	IsKeyframe bool
	Format     *ParameterSets
}
