// Package pipeline implements the graph-structured media pipeline runtime:
// schema resolution (component B) and the per-edge worker runtime
// (component C) described in spec.md §4.B-§4.C.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/logging"
)

// Handle is passed to every input pad's handler so an element can, in
// principle, introspect or mutate the pipeline it is wired into (spec.md
// §4.A: the handler signature is (pipeline_handle, buffer)).
type Handle struct {
	p *Pipeline
}

// Status returns the pipeline's current status.
func (h *Handle) Status() Status { return h.p.Status() }

// RemoveChild removes a child from the owning pipeline.
func (h *Handle) RemoveChild(id string) { h.p.RemoveChild(id) }

// Status is the externally-visible snapshot described in spec.md §4.C.
type Status struct {
	ChildCount        int
	ActiveConnections int
	Groups            []string
}

type padKey struct {
	elementID string
	pad       PadRef
}

type edgeWorker struct {
	identity      edgeIdentity
	cancel        context.CancelFunc
	done          chan struct{}
	sourceElement OutputProvider
}

// Pipeline is the runtime described in spec.md §4.C. It owns the schema
// (children + groups) and the live edges; it is itself a serialized actor
// guarding that state behind a mutex, matching §5's "pipeline is a
// serialized actor" model as a Mutex<State> rather than a dedicated
// goroutine mailbox.
type Pipeline struct {
	mu     sync.Mutex
	log    *slog.Logger
	handle *Handle

	items  []GroupItem
	owners map[string]ownedChild
	edges  map[edgeIdentity]*edgeWorker
	hubs   map[padKey]*multicastHub

	wg sync.WaitGroup
}

// New creates an empty pipeline. A nil logger falls back to logging.Default().
func New(log *slog.Logger) *Pipeline {
	p := &Pipeline{
		log:    logging.Or(log),
		owners: make(map[string]ownedChild),
		edges:  make(map[edgeIdentity]*edgeWorker),
		hubs:   make(map[padKey]*multicastHub),
	}
	p.handle = &Handle{p: p}
	return p
}

// Spec appends schema items, resolves any new edges they imply, and spawns
// one worker per new edge. It is idempotent with respect to edges already
// active in the same group with identical source/sink ids (spec.md §4.C).
func (p *Pipeline) Spec(items ...GroupItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tempOwners := make(map[string]ownedChild, len(p.owners))
	for id, o := range p.owners {
		tempOwners[id] = o
	}
	for _, item := range items {
		if err := registerOwners(tempOwners, item); err != nil {
			return err
		}
	}

	var pending []pendingEdge
	for _, item := range items {
		edges, err := resolveGroup(tempOwners, item)
		if err != nil {
			return err
		}
		pending = append(pending, edges...)
	}

	p.owners = tempOwners
	p.items = append(p.items, items...)

	for _, pe := range pending {
		if _, exists := p.edges[pe.Identity]; exists {
			continue
		}
		p.spawnEdgeLocked(pe)
	}

	return nil
}

// BuildLinear is a convenience over Spec: it wraps children in a single
// group named groupID (spec.md §6 API surface).
func (p *Pipeline) BuildLinear(groupID string, children []Child) error {
	return p.Spec(GroupItem{ID: groupID, Children: children})
}

// BuildGroups is a convenience over Spec for several named groups at once.
func (p *Pipeline) BuildGroups(groups map[string][]Child) error {
	items := make([]GroupItem, 0, len(groups))
	for id, children := range groups {
		items = append(items, GroupItem{ID: id, Children: children})
	}
	return p.Spec(items...)
}

// Start is a no-op beyond ensuring workers are running: they start at
// Spec time (spec.md §4.C).
func (p *Pipeline) Start() {}

func (p *Pipeline) spawnEdgeLocked(pe pendingEdge) {
	ctx, cancel := context.WithCancel(context.Background())

	key := padKey{elementID: pe.SourceElement.ID(), pad: pe.SourcePad.Ref()}
	hub, ok := p.hubs[key]
	if !ok {
		hub = newMulticastHub(pe.SourcePad, p.log)
		p.hubs[key] = hub
	}
	_, ch := hub.subscribe(ctx)
	srcPad := &hubOutputPad{underlying: pe.SourcePad, hub: hub, ch: ch}

	w := &edgeWorker{
		identity:      pe.Identity,
		cancel:        cancel,
		done:          make(chan struct{}),
		sourceElement: pe.SourceElement,
	}
	p.edges[pe.Identity] = w

	p.wg.Add(1)
	go p.runEdge(ctx, w, srcPad, pe.SinkPad, pe.SinkElement)
}

// runEdge is the worker body described in spec.md §4.C: pull, deliver,
// repeat until the source is exhausted or the edge is cancelled. A failing
// handler or a producer error closes this edge only; siblings continue
// (spec.md §4.A, §7 WorkerPanic/PadTypeMismatch policy). When the source
// sequence ends on its own (exhaustion or a non-cancellation error), the
// sink is notified via InputCloser so a filter can close its own output in
// turn and let downstream workers observe the same end-of-stream.
func (p *Pipeline) runEdge(ctx context.Context, w *edgeWorker, out OutputPad, in InputPad, sinkElement InputProvider) {
	defer p.wg.Done()
	defer close(w.done)
	defer p.finishEdge(w)

	for {
		buf, ok, err := out.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("pipeline: edge source failed, closing edge", "edge", w.identity, "error", err)
			p.notifyInputClosed(sinkElement, in.Ref())
			return
		}
		if !ok {
			p.notifyInputClosed(sinkElement, in.Ref())
			return
		}

		if err := p.deliver(ctx, in, buf); err != nil {
			p.log.Error("pipeline: edge sink failed, closing edge", "edge", w.identity, "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// notifyInputClosed tells sink, if it implements InputCloser, that pad will
// receive no further buffers.
func (p *Pipeline) notifyInputClosed(sink InputProvider, pad PadRef) {
	if c, ok := sink.(InputCloser); ok {
		c.CloseInput(pad)
	}
}

// deliver invokes the sink handler, converting a panic into a logged,
// edge-local error per spec.md §7 WorkerPanic.
func (p *Pipeline) deliver(ctx context.Context, in InputPad, buf any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: handler panic: %v", r)
		}
	}()
	return in.Handle(ctx, p.handle, buf)
}

func (p *Pipeline) finishEdge(w *edgeWorker) {
	p.mu.Lock()
	current, ok := p.edges[w.identity]
	if ok && current == w {
		delete(p.edges, w.identity)
	}
	p.mu.Unlock()
}

// Stop cancels every worker task and notifies every cancelled edge's source
// element, then drains the edge list (spec.md §4.C).
func (p *Pipeline) Stop() {
	p.mu.Lock()
	edges := make([]*edgeWorker, 0, len(p.edges))
	for _, w := range p.edges {
		edges = append(edges, w)
	}
	for _, h := range p.hubs {
		h.stop()
	}
	p.mu.Unlock()

	for _, w := range edges {
		w.cancel()
		if c, ok := w.sourceElement.(Canceller); ok {
			c.OnCancel(w.identity.String())
		}
	}
	for _, w := range edges {
		<-w.done
	}

	p.mu.Lock()
	p.edges = make(map[edgeIdentity]*edgeWorker)
	p.mu.Unlock()
}

// RemoveChild cancels and drops every edge where id is source or sink,
// drops any schema item that only contained that child, and notifies
// affected source elements (spec.md §4.C).
func (p *Pipeline) RemoveChild(id string) {
	p.mu.Lock()

	var toCancel []*edgeWorker
	for identity, w := range p.edges {
		if identity.SourceID == id || identity.SinkID == id {
			toCancel = append(toCancel, w)
			delete(p.edges, identity)
		}
	}

	delete(p.owners, id)

	kept := p.items[:0:0]
	for _, item := range p.items {
		if itemSolelyContains(item, id) {
			continue
		}
		kept = append(kept, item)
	}
	p.items = kept

	p.mu.Unlock()

	for _, w := range toCancel {
		w.cancel()
		if c, ok := w.sourceElement.(Canceller); ok {
			c.OnCancel(w.identity.String())
		}
		<-w.done
	}
}

func itemSolelyContains(item GroupItem, id string) bool {
	owning := 0
	for _, c := range item.Children {
		if !c.isReference() {
			owning++
			if c.Element.ID() != id {
				return false
			}
		}
	}
	return owning > 0
}

// Status returns child_count (distinct owning ids), active_connections
// (live edges), and the group ids known to the pipeline (spec.md §4.C).
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	groups := make([]string, 0, len(p.items))
	for _, item := range p.items {
		groups = append(groups, item.ID)
	}

	return Status{
		ChildCount:        len(p.owners),
		ActiveConnections: len(p.edges),
		Groups:            groups,
	}
}

// WaitForCompletion blocks until every worker task has finished, i.e.
// every source's sequence has been exhausted (spec.md §4.C).
func (p *Pipeline) WaitForCompletion() {
	p.wg.Wait()
}
