package h265

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalFrame_RoundTripWithFormat(t *testing.T) {
	frame := EncodedH265Frame{
		Payload:    []byte{0x00, 0x00, 0x00, 0x02, 0x26, 0x01},
		PTS:        Rational{Value: 3, Timescale: 90000},
		Duration:   Rational{Value: 3000, Timescale: 90000},
		IsKeyframe: true,
		Format: &ParameterSets{
			VPS: []byte{0x40, 0x01},
			SPS: []byte{0x42, 0x01},
			PPS: []byte{0x44, 0x01},
		},
	}

	data, err := MarshalFrame(frame)
	require.NoError(t, err)

	decoded, err := UnmarshalFrame(data)
	require.NoError(t, err)

	assert.Equal(t, frame.Payload, decoded.Payload)
	assert.Equal(t, frame.PTS, decoded.PTS)
	assert.Equal(t, frame.Duration, decoded.Duration)
	assert.Equal(t, frame.IsKeyframe, decoded.IsKeyframe)
	require.NotNil(t, decoded.Format)
	assert.Equal(t, frame.Format, decoded.Format)
}

func TestMarshalFrame_WithoutFormatDecodesNil(t *testing.T) {
	frame := EncodedH265Frame{
		Payload: []byte{0x00, 0x00, 0x00, 0x01, 0x01},
		PTS:     Rational{Value: 1, Timescale: 90000},
	}

	data, err := MarshalFrame(frame)
	require.NoError(t, err)

	decoded, err := UnmarshalFrame(data)
	require.NoError(t, err)

	assert.Nil(t, decoded.Format)
}
