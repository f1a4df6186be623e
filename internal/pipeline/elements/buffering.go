package elements

import (
	"context"
	"sync"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline"
)

// BufferingFilter accumulates incoming buffers and flushes them downstream
// as a batch once Size buffers have arrived. It is the reference
// "buffering" element (spec.md §4.D component D).
type BufferingFilter[B any] struct {
	id        string
	in        pipeline.InputPad
	out       pipeline.OutputPad
	size      int
	ch        chan []B
	closeOnce sync.Once

	pending []B
}

// NewBufferingFilter builds a BufferingFilter flushing every size buffers.
func NewBufferingFilter[B any](id string, size int) *BufferingFilter[B] {
	if size < 1 {
		size = 1
	}
	f := &BufferingFilter[B]{id: id, size: size, ch: make(chan []B)}
	f.in = pipeline.NewInputPad[B](pipeline.DefaultInput(), f.handle)
	f.out = pipeline.NewOutputPad[[]B](pipeline.DefaultOutput(), f.next)
	return f
}

func (f *BufferingFilter[B]) handle(ctx context.Context, _ *pipeline.Handle, buf B) error {
	f.pending = append(f.pending, buf)
	if len(f.pending) < f.size {
		return nil
	}

	batch := f.pending
	f.pending = nil

	select {
	case f.ch <- batch:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (f *BufferingFilter[B]) next(ctx context.Context) ([]B, bool, error) {
	select {
	case v, ok := <-f.ch:
		return v, ok, nil
	case <-ctx.Done():
		return nil, false, nil
	}
}

// CloseInput closes the filter's output channel once its upstream source
// has exhausted. Any batch smaller than size that has not yet been flushed
// is dropped rather than forced out, matching the "flush at size" contract.
func (f *BufferingFilter[B]) CloseInput(pipeline.PadRef) {
	f.closeOnce.Do(func() { close(f.ch) })
}

func (f *BufferingFilter[B]) ID() string                    { return f.id }
func (f *BufferingFilter[B]) InputPads() []pipeline.InputPad { return []pipeline.InputPad{f.in} }
func (f *BufferingFilter[B]) OutputPads() []pipeline.OutputPad {
	return []pipeline.OutputPad{f.out}
}
