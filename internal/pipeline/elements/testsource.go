// Package elements provides the reference element implementations used to
// exercise the pipeline runtime (spec.md §4.D): a ticking test source, an
// identity/transform filter, a bounded buffering filter, a collector sink,
// and a multi-output source for fan-out via references.
package elements

import (
	"context"
	"time"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline"
)

// TestDataSource emits values produced by Generate every Interval, for up
// to Duration, then exhausts its output sequence. It is the reference
// source used by spec.md §8 scenario 2.
type TestDataSource[B any] struct {
	id       string
	out      pipeline.OutputPad
	ch       chan B
	cancel   context.CancelFunc
	generate func(n int) B
}

// NewTestDataSource builds a TestDataSource. generate is called once per
// tick with the 0-based tick index.
func NewTestDataSource[B any](id string, interval, duration time.Duration, generate func(n int) B) *TestDataSource[B] {
	s := &TestDataSource[B]{
		id:       id,
		ch:       make(chan B),
		generate: generate,
	}
	s.out = pipeline.NewOutputPad[B](pipeline.DefaultOutput(), s.next)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx, interval, duration)

	return s
}

func (s *TestDataSource[B]) run(ctx context.Context, interval, duration time.Duration) {
	defer close(s.ch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			v := s.generate(n)
			n++
			select {
			case s.ch <- v:
			case <-ctx.Done():
				return
			case <-deadline.C:
				return
			}
		}
	}
}

func (s *TestDataSource[B]) next(ctx context.Context) (B, bool, error) {
	select {
	case v, ok := <-s.ch:
		return v, ok, nil
	case <-ctx.Done():
		var zero B
		return zero, false, nil
	}
}

func (s *TestDataSource[B]) ID() string                       { return s.id }
func (s *TestDataSource[B]) OutputPads() []pipeline.OutputPad { return []pipeline.OutputPad{s.out} }

// OnCancel stops the generator goroutine early, releasing its timers.
func (s *TestDataSource[B]) OnCancel(string) { s.cancel() }
