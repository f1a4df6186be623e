package pipeline

import (
	"context"
	"reflect"
)

// PadDirection distinguishes the two halves of an edge. A pad tagged
// PadOutput may only appear as the source side of an edge; PadInput only
// as the sink side (spec.md §4.B invariant).
type PadDirection int

const (
	PadOutput PadDirection = iota
	PadInput
)

func (d PadDirection) String() string {
	if d == PadOutput {
		return "output"
	}
	return "input"
}

// PadRef identifies one pad on an element. It is unique per element per
// direction: an element may expose at most one "default" pad per direction,
// plus any number of uniquely-named custom pads.
type PadRef struct {
	Default bool
	Name    string
}

// DefaultOutput is the PadRef used by an element with a single, unnamed
// output pad.
func DefaultOutput() PadRef { return PadRef{Default: true, Name: "output-default"} }

// DefaultInput is the PadRef used by an element with a single, unnamed
// input pad.
func DefaultInput() PadRef { return PadRef{Default: true, Name: "input-default"} }

// CustomPad names an additional pad beyond an element's default, e.g. for
// multi-output elements (component D's multi-out source).
func CustomPad(id string) PadRef { return PadRef{Name: id} }

func (r PadRef) String() string { return r.Name }

// OutputPad is the type-erased view of an element's output: a lazy,
// single-consumer sequence of buffers of one concrete type. Construct one
// with NewOutputPad so the concrete element code never has to juggle `any`.
type OutputPad interface {
	Ref() PadRef
	// BufferType is the concrete Go type flowing through this pad, checked
	// against the sink's InputPad.BufferType at edge-construction time.
	BufferType() reflect.Type
	// Next blocks until a buffer is available, the sequence is exhausted
	// (ok=false, err=nil), the sequence failed (err!=nil), or ctx is done.
	Next(ctx context.Context) (buf any, ok bool, err error)
}

// InputPad is the type-erased view of an element's input: a handler invoked
// once per buffer. Construct one with NewInputPad.
type InputPad interface {
	Ref() PadRef
	BufferType() reflect.Type
	// Handle delivers one buffer. It returns once the buffer has been
	// accepted — backpressure is implicit, the worker does not pull the
	// next buffer from the source until this returns.
	Handle(ctx context.Context, h *Handle, buf any) error
}

type typedOutputPad[B any] struct {
	ref  PadRef
	next func(context.Context) (B, bool, error)
}

// NewOutputPad builds a type-erased OutputPad out of a typed generator
// function. B is fixed at the call site, so the element author gets
// compile-time checking of what it produces; the pipeline runtime still
// sees an erased OutputPad so heterogeneous buffer types can share one
// schema/edge representation.
func NewOutputPad[B any](ref PadRef, next func(context.Context) (B, bool, error)) OutputPad {
	return &typedOutputPad[B]{ref: ref, next: next}
}

func (p *typedOutputPad[B]) Ref() PadRef { return p.ref }

func (p *typedOutputPad[B]) BufferType() reflect.Type {
	return reflect.TypeOf((*B)(nil)).Elem()
}

func (p *typedOutputPad[B]) Next(ctx context.Context) (any, bool, error) {
	buf, ok, err := p.next(ctx)
	return buf, ok, err
}

type typedInputPad[B any] struct {
	ref     PadRef
	handler func(context.Context, *Handle, B) error
}

// NewInputPad builds a type-erased InputPad out of a typed handler.
func NewInputPad[B any](ref PadRef, handler func(context.Context, *Handle, B) error) InputPad {
	return &typedInputPad[B]{ref: ref, handler: handler}
}

func (p *typedInputPad[B]) Ref() PadRef { return p.ref }

func (p *typedInputPad[B]) BufferType() reflect.Type {
	return reflect.TypeOf((*B)(nil)).Elem()
}

func (p *typedInputPad[B]) Handle(ctx context.Context, h *Handle, buf any) error {
	typed, ok := buf.(B)
	if !ok {
		return ErrPadTypeMismatch
	}
	return p.handler(ctx, h, typed)
}
