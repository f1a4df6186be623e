package pipeline

import (
	"context"
	"reflect"
)

// hubOutputPad is the OutputPad seen by every edge's worker: each source pad
// is read through a multicastHub, even when only one edge uses it, so that
// fan-out via schema references needs no special case.
type hubOutputPad struct {
	underlying OutputPad
	hub        *multicastHub
	subID      int
	ch         <-chan multicastItem
}

func (p *hubOutputPad) Ref() PadRef                { return p.underlying.Ref() }
func (p *hubOutputPad) BufferType() reflect.Type   { return p.underlying.BufferType() }

func (p *hubOutputPad) Next(ctx context.Context) (any, bool, error) {
	select {
	case item, chanOK := <-p.ch:
		if !chanOK {
			return nil, false, nil
		}
		return item.buf, item.ok, item.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
