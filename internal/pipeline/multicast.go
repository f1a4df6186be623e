package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// multicastBuffer bounds how many buffers a lagging fan-out subscriber may
// queue before new buffers are dropped for it. Design note (spec.md §9):
// an asynchronous sequence is single-consumer, so fan-out via references
// needs a multicast adapter at the source pad; per §5, edges sharing a
// source pad see the same emissions "independently" with "no cross-edge
// synchronization" — so one slow consumer must not stall its siblings.
// This implementation pulls from the upstream pad once and fans out
// non-blockingly, dropping for (and only for) a subscriber whose queue is
// full, rather than letting it throttle the upstream pull.
const multicastBuffer = 32

type multicastItem struct {
	buf any
	ok  bool
	err error
}

// multicastHub adapts one OutputPad, pulled at most once concurrently, into
// any number of independent subscriber streams.
type multicastHub struct {
	mu       sync.Mutex
	pad      OutputPad
	log      *slog.Logger
	subs     map[int]chan multicastItem
	nextID   int
	started  bool
	cancel   context.CancelFunc
	doneOnce sync.Once
	done     chan struct{}
}

func newMulticastHub(pad OutputPad, log *slog.Logger) *multicastHub {
	return &multicastHub{
		pad:  pad,
		log:  log,
		subs: make(map[int]chan multicastItem),
		done: make(chan struct{}),
	}
}

// subscribe registers a new independent consumer and, on first subscriber,
// starts the single upstream-pulling goroutine.
func (h *multicastHub) subscribe(ctx context.Context) (id int, ch <-chan multicastItem) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id = h.nextID
	h.nextID++
	c := make(chan multicastItem, multicastBuffer)
	h.subs[id] = c

	if !h.started {
		h.started = true
		pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		h.cancel = cancel
		go h.pump(pumpCtx)
	}

	return id, c
}

// unsubscribe drops one consumer; it never affects the others.
func (h *multicastHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(c)
	}
}

func (h *multicastHub) pump(ctx context.Context) {
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		buf, ok, err := h.pad.Next(ctx)
		item := multicastItem{buf: buf, ok: ok, err: err}
		terminal := !ok || err != nil

		h.mu.Lock()
		for id, c := range h.subs {
			if terminal {
				// The exhaustion/error sentinel must reach every subscriber so
				// its edge worker can observe completion, even one whose
				// queue is currently full; data buffers may drop, this may
				// not.
				select {
				case c <- item:
				case <-ctx.Done():
				}
				continue
			}
			select {
			case c <- item:
			default:
				h.log.Warn("pipeline: multicast subscriber queue full, dropping buffer",
					"pad", h.pad.Ref(), "subscriber", id)
			}
		}
		h.mu.Unlock()

		if terminal {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (h *multicastHub) stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
