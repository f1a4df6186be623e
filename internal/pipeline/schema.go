package pipeline

import "fmt"

// ChildKind is the declared role of a schema child, checked against the
// kind of whatever element a reference resolves to (spec.md §3 invariant 2).
type ChildKind int

const (
	ChildSource ChildKind = iota
	ChildFilter
	ChildSink
)

func (k ChildKind) String() string {
	switch k {
	case ChildSource:
		return "source"
	case ChildFilter:
		return "filter"
	case ChildSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Child is one entry in a GroupItem: either an owning element (Element is
// non-nil) or a reference to an element owned elsewhere (RefID is set).
type Child struct {
	Element Element
	Kind    ChildKind
	Pad     PadRef
	RefID   string
}

// Owned declares a child that owns element e, connected through pad.
func Owned(e Element, kind ChildKind, pad PadRef) Child {
	return Child{Element: e, Kind: kind, Pad: pad}
}

// Ref declares a child that references an element owned by another group,
// by id, through pad.
func Ref(id string, kind ChildKind, pad PadRef) Child {
	return Child{RefID: id, Kind: kind, Pad: pad}
}

func (c Child) isReference() bool { return c.Element == nil }

func (c Child) id() string {
	if c.isReference() {
		return c.RefID
	}
	return c.Element.ID()
}

// GroupItem is a schema item: a named, linear chain of children. Adjacent
// children are connected child[i].Pad (output) -> child[i+1].Pad (input);
// cross-group connections only happen through references (spec.md §3).
type GroupItem struct {
	ID       string
	Children []Child
}

type ownedChild struct {
	element Element
	kind    ChildKind
}

type resolvedEndpoint struct {
	element Element
	kind    ChildKind
	pad     PadRef
}

// edgeIdentity is the synthetic identity of a resolved edge (spec.md §4.B
// item 3): (group id, source element id, sink element id).
type edgeIdentity struct {
	GroupID  string
	SourceID string
	SinkID   string
}

func (e edgeIdentity) String() string {
	return fmt.Sprintf("%s/%s->%s", e.GroupID, e.SourceID, e.SinkID)
}

type pendingEdge struct {
	Identity      edgeIdentity
	SourceElement OutputProvider
	SourcePad     OutputPad
	SinkElement   InputProvider
	SinkPad       InputPad
}

// registerOwners adds item's owning children to owners, rejecting duplicate
// ids (spec.md §3 invariant 1: at most one owning occurrence per id).
func registerOwners(owners map[string]ownedChild, item GroupItem) error {
	for _, c := range item.Children {
		if c.isReference() {
			continue
		}
		id := c.Element.ID()
		if _, exists := owners[id]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		owners[id] = ownedChild{element: c.Element, kind: c.Kind}
	}
	return nil
}

func resolveEndpoint(owners map[string]ownedChild, c Child) (resolvedEndpoint, error) {
	if !c.isReference() {
		return resolvedEndpoint{element: c.Element, kind: c.Kind, pad: c.Pad}, nil
	}

	owned, ok := owners[c.RefID]
	if !ok {
		return resolvedEndpoint{}, fmt.Errorf("%w: %q", ErrUnknownRef, c.RefID)
	}
	if owned.kind != c.Kind {
		return resolvedEndpoint{}, fmt.Errorf("%w: %q declared as %s, resolves to %s",
			ErrKindMismatch, c.RefID, c.Kind, owned.kind)
	}
	return resolvedEndpoint{element: owned.element, kind: owned.kind, pad: c.Pad}, nil
}

// resolveGroup walks a group's linear chain and produces the edges it
// implies, per spec.md §4.B.
func resolveGroup(owners map[string]ownedChild, item GroupItem) ([]pendingEdge, error) {
	var edges []pendingEdge

	for i := 0; i+1 < len(item.Children); i++ {
		srcChild := item.Children[i]
		sinkChild := item.Children[i+1]

		if srcChild.Kind == ChildSink {
			return nil, fmt.Errorf("%w: %q (kind sink) cannot be a source", ErrPadDirection, srcChild.id())
		}
		if sinkChild.Kind == ChildSource {
			return nil, fmt.Errorf("%w: %q (kind source) cannot be a sink", ErrPadDirection, sinkChild.id())
		}

		src, err := resolveEndpoint(owners, srcChild)
		if err != nil {
			return nil, err
		}
		sink, err := resolveEndpoint(owners, sinkChild)
		if err != nil {
			return nil, err
		}

		outProvider, ok := src.element.(OutputProvider)
		if !ok {
			return nil, fmt.Errorf("%w: %q has no output pads", ErrPadNotFound, src.element.ID())
		}
		outPad, ok := outputPad(outProvider, src.pad)
		if !ok {
			return nil, fmt.Errorf("%w: %q pad %q", ErrPadNotFound, src.element.ID(), src.pad)
		}

		inProvider, ok := sink.element.(InputProvider)
		if !ok {
			return nil, fmt.Errorf("%w: %q has no input pads", ErrPadNotFound, sink.element.ID())
		}
		inPad, ok := inputPad(inProvider, sink.pad)
		if !ok {
			return nil, fmt.Errorf("%w: %q pad %q", ErrPadNotFound, sink.element.ID(), sink.pad)
		}

		if outPad.BufferType() != inPad.BufferType() {
			return nil, fmt.Errorf("%w: %q(%s) -> %q(%s)", ErrPadTypeMismatch,
				src.element.ID(), outPad.BufferType(), sink.element.ID(), inPad.BufferType())
		}

		edges = append(edges, pendingEdge{
			Identity: edgeIdentity{
				GroupID:  item.ID,
				SourceID: src.element.ID(),
				SinkID:   sink.element.ID(),
			},
			SourceElement: outProvider,
			SourcePad:     outPad,
			SinkElement:   inProvider,
			SinkPad:       inPad,
		})
	}

	return edges, nil
}
