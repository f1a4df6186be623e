package h265

import "encoding/binary"

// ExtractNALs walks AVCC-form payload (NAL units prefixed by a
// big-endian length field of lengthSize bytes) and returns the NAL
// payloads in order. A NAL unit whose declared length is zero or would
// overrun the frame is skipped, per spec.md §4.F step 1 / §9's note on
// degenerate zero-length entries.
func ExtractNALs(payload []byte, lengthSize int) [][]byte {
	if lengthSize < 1 || lengthSize > 4 {
		lengthSize = DefaultLengthSize
	}

	var nalus [][]byte
	offset := 0
	for offset+lengthSize <= len(payload) {
		length := readLength(payload[offset:offset+lengthSize], lengthSize)
		offset += lengthSize

		if length == 0 {
			continue
		}
		if offset+length > len(payload) {
			break
		}

		nalus = append(nalus, payload[offset:offset+length])
		offset += length
	}

	return nalus
}

func readLength(b []byte, size int) int {
	switch size {
	case 1:
		return int(b[0])
	case 2:
		return int(binary.BigEndian.Uint16(b))
	case 3:
		return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	default:
		return int(binary.BigEndian.Uint32(b))
	}
}

// BuildAVCC serializes a NAL unit list back to AVCC form using a 4-byte
// big-endian length prefix per NAL (spec.md §4.G step 3).
func BuildAVCC(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}

	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = binary.BigEndian.AppendUint32(out, uint32(len(n)))
		out = append(out, n...)
	}
	return out
}
