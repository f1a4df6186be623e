package h265

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors raised by hvcC parsing (spec.md §7 — fatal to the call that
// introduced them, same as schema/config errors).
var (
	ErrHVCCTooShort        = errors.New("h265: hvcC record shorter than 23 bytes")
	ErrHVCCVersion         = errors.New("h265: hvcC configurationVersion must be 1")
	ErrHVCCArrayTruncated  = errors.New("h265: hvcC NAL array truncated")
)

// DefaultLengthSize is used whenever no hvcC is available to derive
// lengthSizeMinusOne from (spec.md §4.E).
const DefaultLengthSize = 4

// ParseHVCC parses an ISO/IEC 14496-15 §8.3.3.1 hvcC configuration record,
// returning the last-seen VPS/SPS/PPS NAL payloads and the AVCC length
// field size (lengthSizeMinusOne + 1, spec.md §4.E).
func ParseHVCC(data []byte) (*ParameterSets, int, error) {
	if len(data) < 23 {
		return nil, 0, ErrHVCCTooShort
	}
	if data[0] != 1 {
		return nil, 0, fmt.Errorf("%w: got %d", ErrHVCCVersion, data[0])
	}

	lengthSize := int(data[21]&0x03) + 1
	numArrays := int(data[22])

	ps := &ParameterSets{}
	offset := 23

	for i := 0; i < numArrays; i++ {
		if offset+3 > len(data) {
			return nil, 0, fmt.Errorf("%w: array header at array %d", ErrHVCCArrayTruncated, i)
		}
		nalUnitType := data[offset] & 0x3f
		numNalus := int(binary.BigEndian.Uint16(data[offset+1 : offset+3]))
		offset += 3

		for j := 0; j < numNalus; j++ {
			if offset+2 > len(data) {
				return nil, 0, fmt.Errorf("%w: nalu length at array %d nalu %d", ErrHVCCArrayTruncated, i, j)
			}
			nalLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
			if offset+nalLen > len(data) {
				return nil, 0, fmt.Errorf("%w: nalu payload at array %d nalu %d", ErrHVCCArrayTruncated, i, j)
			}
			payload := data[offset : offset+nalLen]
			offset += nalLen

			switch nalUnitType {
			case NALTypeVPS:
				ps.VPS = payload
			case NALTypeSPS:
				ps.SPS = payload
			case NALTypePPS:
				ps.PPS = payload
			}
		}
	}

	return ps, lengthSize, nil
}

// BuildHVCC is the inverse of ParseHVCC: it synthesizes a minimal hvcC
// record (one array per present parameter set, one NAL unit per array)
// good enough to round-trip through ParseHVCC. Profile/level/chroma
// fields beyond what decoders strictly require to locate the parameter
// sets are left zeroed; reconstructing a platform format description from
// these bytes is an external, platform-specific call (spec.md §4.E).
func BuildHVCC(ps *ParameterSets, lengthSize int) ([]byte, error) {
	if !ps.Complete() {
		return nil, errors.New("h265: cannot build hvcC without vps/sps/pps")
	}
	if lengthSize < 1 || lengthSize > 4 {
		lengthSize = DefaultLengthSize
	}

	buf := make([]byte, 22)
	buf[0] = 1 // configurationVersion
	buf[21] = byte(lengthSize - 1)

	arrays := []struct {
		nalType byte
		payload []byte
	}{
		{NALTypeVPS, ps.VPS},
		{NALTypeSPS, ps.SPS},
		{NALTypePPS, ps.PPS},
	}
	buf = append(buf, byte(len(arrays)))

	for _, a := range arrays {
		header := byte(0x80) | (a.nalType & 0x3f) // array_completeness=1
		buf = append(buf, header)
		buf = binary.BigEndian.AppendUint16(buf, 1)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(a.payload)))
		buf = append(buf, a.payload...)
	}

	return buf, nil
}
