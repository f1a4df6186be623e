package h265

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractNALs_Basic(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x00, 0x05, 0x40, 0x01, 0xAA, 0xBB, 0xCC}

	nalus := ExtractNALs(payload, 4)

	assert.Len(t, nalus, 1)
	assert.Equal(t, []byte{0x40, 0x01, 0xAA, 0xBB, 0xCC}, nalus[0])
}

func TestExtractNALs_SkipsZeroLength(t *testing.T) {
	payload := []byte{
		0x00, 0x00, 0x00, 0x00, // zero-length NAL, skipped
		0x00, 0x00, 0x00, 0x02, 0x26, 0x01,
	}

	nalus := ExtractNALs(payload, 4)

	assert.Len(t, nalus, 1)
	assert.Equal(t, []byte{0x26, 0x01}, nalus[0])
}

func TestExtractNALs_StopsOnOverrun(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x00, 0xFF, 0x26, 0x01}

	nalus := ExtractNALs(payload, 4)

	assert.Empty(t, nalus)
}

func TestBuildAVCC_RoundTrip(t *testing.T) {
	nalus := [][]byte{{0x40, 0x01, 0xAA}, {0x26, 0x01, 0xBB, 0xCC}}

	avcc := BuildAVCC(nalus)
	reExtracted := ExtractNALs(avcc, 4)

	assert.Equal(t, nalus, reExtracted)
}
