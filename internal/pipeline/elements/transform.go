package elements

import (
	"context"
	"sync"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline"
)

// TransformFilter maps each incoming buffer of type I to zero-or-one
// outgoing buffers of type O through Fn. It is the reference filter used
// to exercise a three-stage pipeline (spec.md §8 scenario 3).
type TransformFilter[I, O any] struct {
	id        string
	in        pipeline.InputPad
	out       pipeline.OutputPad
	fn        func(I) (O, bool)
	ch        chan O
	closeOnce sync.Once
}

// NewTransformFilter builds a TransformFilter. fn returns (value, true) to
// forward a buffer downstream, or (_, false) to drop it.
func NewTransformFilter[I, O any](id string, fn func(I) (O, bool)) *TransformFilter[I, O] {
	f := &TransformFilter[I, O]{
		id: id,
		fn: fn,
		ch: make(chan O),
	}
	f.in = pipeline.NewInputPad[I](pipeline.DefaultInput(), f.handle)
	f.out = pipeline.NewOutputPad[O](pipeline.DefaultOutput(), f.next)
	return f
}

func (f *TransformFilter[I, O]) handle(ctx context.Context, _ *pipeline.Handle, buf I) error {
	out, ok := f.fn(buf)
	if !ok {
		return nil
	}
	select {
	case f.ch <- out:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (f *TransformFilter[I, O]) next(ctx context.Context) (O, bool, error) {
	select {
	case v, ok := <-f.ch:
		return v, ok, nil
	case <-ctx.Done():
		var zero O
		return zero, false, nil
	}
}

// CloseInput closes the filter's output channel once its upstream source
// has exhausted, so the filter's own output sequence terminates in turn
// instead of blocking downstream workers forever.
func (f *TransformFilter[I, O]) CloseInput(pipeline.PadRef) {
	f.closeOnce.Do(func() { close(f.ch) })
}

func (f *TransformFilter[I, O]) ID() string                    { return f.id }
func (f *TransformFilter[I, O]) InputPads() []pipeline.InputPad { return []pipeline.InputPad{f.in} }
func (f *TransformFilter[I, O]) OutputPads() []pipeline.OutputPad {
	return []pipeline.OutputPad{f.out}
}

// NewPassthroughFilter returns a TransformFilter specialized to the identity
// function: it forwards every buffer unchanged. Useful as a neutral stage
// to grow a pipeline from source->sink to source->filter->sink.
func NewPassthroughFilter[B any](id string) *TransformFilter[B, B] {
	return NewTransformFilter[B, B](id, func(b B) (B, bool) { return b, true })
}
