package h265

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestHVCC(vps, sps, pps []byte) []byte {
	buf := make([]byte, 22)
	buf[0] = 1
	buf[21] = 3 // lengthSizeMinusOne = 3 -> lengthSize = 4

	arrays := []struct {
		nalType byte
		payload []byte
	}{
		{NALTypeVPS, vps},
		{NALTypeSPS, sps},
		{NALTypePPS, pps},
	}
	buf = append(buf, byte(len(arrays)))

	for _, a := range arrays {
		buf = append(buf, 0x80|a.nalType)
		buf = append(buf, 0x00, 0x01) // numNalus = 1
		buf = append(buf, byte(len(a.payload)>>8), byte(len(a.payload)))
		buf = append(buf, a.payload...)
	}

	return buf
}

func TestParseHVCC_ThreeArrays(t *testing.T) {
	vps := []byte{0x40, 0x01, 0x0c}
	sps := []byte{0x42, 0x01, 0x01, 0x02}
	pps := []byte{0x44, 0x01}

	data := buildTestHVCC(vps, sps, pps)

	ps, lengthSize, err := ParseHVCC(data)
	require.NoError(t, err)
	assert.Equal(t, 4, lengthSize)
	assert.Equal(t, vps, ps.VPS)
	assert.Equal(t, sps, ps.SPS)
	assert.Equal(t, pps, ps.PPS)
	assert.True(t, ps.Complete())
}

func TestParseHVCC_TooShort(t *testing.T) {
	_, _, err := ParseHVCC(make([]byte, 10))
	assert.ErrorIs(t, err, ErrHVCCTooShort)
}

func TestParseHVCC_WrongVersion(t *testing.T) {
	data := buildTestHVCC([]byte{1}, []byte{2}, []byte{3})
	data[0] = 0

	_, _, err := ParseHVCC(data)
	assert.ErrorIs(t, err, ErrHVCCVersion)
}

func TestBuildHVCC_RoundTrip(t *testing.T) {
	ps := &ParameterSets{
		VPS: []byte{0x40, 0x01, 0xAA},
		SPS: []byte{0x42, 0x01, 0xBB, 0xCC},
		PPS: []byte{0x44, 0x01},
	}

	data, err := BuildHVCC(ps, 4)
	require.NoError(t, err)

	roundTripped, lengthSize, err := ParseHVCC(data)
	require.NoError(t, err)
	assert.Equal(t, 4, lengthSize)
	assert.Equal(t, ps, roundTripped)
}

func TestBuildHVCC_RequiresCompleteSet(t *testing.T) {
	_, err := BuildHVCC(&ParameterSets{VPS: []byte{1}}, 4)
	assert.Error(t, err)
}
