package h265

import "encoding/json"

// FrameWire is the encoded-frame wire form for inter-process transfer
// (spec.md §6): fields are authoritative, encoding is operator policy.
// This package picks JSON (via encoding/json) — there is no ecosystem
// serialization library in the retrieval corpus that this concern would
// otherwise reach for; see DESIGN.md.
type FrameWire struct {
	Data               []byte             `json:"data"`
	TimestampSeconds   int64              `json:"timestampSeconds"`
	TimestampTimescale uint32             `json:"timestampTimescale"`
	DurationSeconds    int64              `json:"durationSeconds"`
	DurationTimescale  uint32             `json:"durationTimescale"`
	IsKeyFrame         bool               `json:"isKeyFrame"`
	ParameterSets      *ParameterSetsWire `json:"parameterSets,omitempty"`
}

// ParameterSetsWire is the wire form of ParameterSets.
type ParameterSetsWire struct {
	VPS []byte `json:"vps"`
	SPS []byte `json:"sps"`
	PPS []byte `json:"pps"`
}

// MarshalFrame encodes a frame to its wire form.
func MarshalFrame(f EncodedH265Frame) ([]byte, error) {
	wire := FrameWire{
		Data:               f.Payload,
		TimestampSeconds:   f.PTS.Value,
		TimestampTimescale: f.PTS.Timescale,
		DurationSeconds:    f.Duration.Value,
		DurationTimescale:  f.Duration.Timescale,
		IsKeyFrame:         f.IsKeyframe,
	}
	if f.Format != nil {
		wire.ParameterSets = &ParameterSetsWire{VPS: f.Format.VPS, SPS: f.Format.SPS, PPS: f.Format.PPS}
	}
	return json.Marshal(wire)
}

// UnmarshalFrame decodes a frame from its wire form. A frame without
// parameter sets decodes with Format == nil, relying on a prior keyframe
// to have supplied it downstream (spec.md §4.E).
func UnmarshalFrame(data []byte) (EncodedH265Frame, error) {
	var wire FrameWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return EncodedH265Frame{}, err
	}

	f := EncodedH265Frame{
		Payload:    wire.Data,
		PTS:        Rational{Value: wire.TimestampSeconds, Timescale: wire.TimestampTimescale},
		Duration:   Rational{Value: wire.DurationSeconds, Timescale: wire.DurationTimescale},
		IsKeyframe: wire.IsKeyFrame,
	}
	if wire.ParameterSets != nil {
		f.Format = &ParameterSets{VPS: wire.ParameterSets.VPS, SPS: wire.ParameterSets.SPS, PPS: wire.ParameterSets.PPS}
	}
	return f, nil
}
