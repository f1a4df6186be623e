package elements

import (
	"context"
	"sync"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline"
)

// CollectorSink appends every buffer it receives to an internal slice.
// It is the reference sink used throughout spec.md §8's scenarios.
type CollectorSink[B any] struct {
	id string
	in pipeline.InputPad

	mu   sync.Mutex
	recv []B
}

// NewCollectorSink builds a CollectorSink.
func NewCollectorSink[B any](id string) *CollectorSink[B] {
	s := &CollectorSink[B]{id: id}
	s.in = pipeline.NewInputPad[B](pipeline.DefaultInput(), s.handle)
	return s
}

func (s *CollectorSink[B]) handle(_ context.Context, _ *pipeline.Handle, buf B) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv = append(s.recv, buf)
	return nil
}

// Collected returns a snapshot of everything received so far.
func (s *CollectorSink[B]) Collected() []B {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]B, len(s.recv))
	copy(out, s.recv)
	return out
}

func (s *CollectorSink[B]) ID() string                    { return s.id }
func (s *CollectorSink[B]) InputPads() []pipeline.InputPad { return []pipeline.InputPad{s.in} }
