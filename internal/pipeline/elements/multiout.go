package elements

import (
	"context"
	"time"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline"
)

// MultiOutSource exposes two independently-ticking custom output pads, "a"
// and "b". It is the reference multi-out element (spec.md §4.D), useful
// for exercising PadRef resolution beyond the single default pad.
type MultiOutSource[B any] struct {
	id      string
	padA    pipeline.OutputPad
	padB    pipeline.OutputPad
	chA     chan B
	chB     chan B
	cancel  context.CancelFunc
}

// NewMultiOutSource builds a MultiOutSource ticking generateA/generateB
// on pads "a" and "b" respectively, each at its own interval, for up to
// duration.
func NewMultiOutSource[B any](
	id string,
	intervalA time.Duration, generateA func(n int) B,
	intervalB time.Duration, generateB func(n int) B,
	duration time.Duration,
) *MultiOutSource[B] {
	s := &MultiOutSource[B]{
		id:  id,
		chA: make(chan B),
		chB: make(chan B),
	}
	s.padA = pipeline.NewOutputPad[B](pipeline.CustomPad("a"), s.nextFrom(s.chA))
	s.padB = pipeline.NewOutputPad[B](pipeline.CustomPad("b"), s.nextFrom(s.chB))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go tick(ctx, s.chA, intervalA, duration, generateA)
	go tick(ctx, s.chB, intervalB, duration, generateB)

	return s
}

func (s *MultiOutSource[B]) nextFrom(ch chan B) func(context.Context) (B, bool, error) {
	return func(ctx context.Context) (B, bool, error) {
		select {
		case v, ok := <-ch:
			return v, ok, nil
		case <-ctx.Done():
			var zero B
			return zero, false, nil
		}
	}
}

func tick[B any](ctx context.Context, ch chan B, interval, duration time.Duration, generate func(n int) B) {
	defer close(ch)

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
			v := generate(n)
			n++
			select {
			case ch <- v:
			case <-ctx.Done():
				return
			case <-deadline.C:
				return
			}
		}
	}
}

func (s *MultiOutSource[B]) ID() string { return s.id }

func (s *MultiOutSource[B]) OutputPads() []pipeline.OutputPad {
	return []pipeline.OutputPad{s.padA, s.padB}
}

// OnCancel stops both generator goroutines.
func (s *MultiOutSource[B]) OnCancel(string) { s.cancel() }
