package socket

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks the event names bound on the live transport handle. Calls
// made while the handle is missing or disconnected are deferred into the
// Buffer instead, leaving the registry untouched.
type Registry struct {
	mu     sync.Mutex
	events map[Event]struct{}

	buffer  *Buffer
	logger  zerolog.Logger
	metrics *metrics
}

func NewRegistry(buffer *Buffer) *Registry {
	if buffer == nil {
		buffer = NewBuffer()
	}
	return &Registry{
		events: make(map[Event]struct{}),
		buffer: buffer,
		logger: zerolog.Nop(),
	}
}

func connected(h Handle) bool {
	return h != nil && h.IsConnected()
}

func (r *Registry) Bind(h Handle, event Event, handler Handler, priority ...int) {
	if connected(h) {
		r.logger.Debug().Str("id", h.ID()).Str("event", string(event)).Msg("bind")
		h.On(event, handler)
		r.add(event)
		return
	}

	r.enqueue(Operation{Kind: OpBind, Event: event, Handler: handler, Priority: priorityOf(priority)})
}

// BindOnce attaches a single-fire handler. When it fires, the name leaves the
// registry before handler runs.
func (r *Registry) BindOnce(h Handle, event Event, handler Handler, priority ...int) {
	if connected(h) {
		r.logger.Debug().Str("id", h.ID()).Str("event", string(event)).Msg("once")
		r.add(event)
		h.Once(event, func(data interface{}) {
			r.remove(event)
			handler(data)
		})
		return
	}

	r.enqueue(Operation{Kind: OpBindOnce, Event: event, Handler: handler, Priority: priorityOf(priority)})
}

func (r *Registry) Unbind(h Handle, event Event, priority ...int) {
	if connected(h) {
		r.logger.Debug().Str("id", h.ID()).Str("event", string(event)).Msg("unbind")
		h.Off(event)
		r.remove(event)
		return
	}

	r.enqueue(Operation{Kind: OpUnbind, Event: event, Priority: priorityOf(priority)})
}

// ClearAll detaches every registered name when connected. A ClearAll
// operation is queued either way.
func (r *Registry) ClearAll(h Handle, priority ...int) {
	if connected(h) {
		r.logger.Debug().Str("id", h.ID()).Msg("clear")
		r.detachAll(h)
	}

	r.enqueue(Operation{Kind: OpClearAll, Priority: priorityOf(priority)})
}

// Reset detaches every registered name from h, if any, and empties the
// registry without queueing anything.
func (r *Registry) Reset(h Handle) {
	r.detachAll(h)
}

// Replay applies one drained operation against h. Emit failures are returned
// to the caller; the operation is not requeued.
func (r *Registry) Replay(h Handle, op Operation) error {
	switch op.Kind {
	case OpBind:
		r.Bind(h, op.Event, op.Handler, op.Priority)
	case OpBindOnce:
		r.BindOnce(h, op.Event, op.Handler, op.Priority)
	case OpUnbind:
		r.Unbind(h, op.Event, op.Priority)
	case OpClearAll:
		// A replayed clear must not queue itself again, or every later
		// drain would wipe the bindings it just restored.
		if connected(h) {
			r.detachAll(h)
		} else {
			r.enqueue(op)
		}
	case OpEmit:
		if !connected(h) {
			r.enqueue(op)
			return nil
		}
		return h.Emit(op.Event, op.Data)
	default:
		return fmt.Errorf("socket: unknown operation kind %v", op.Kind)
	}
	return nil
}

// List returns the registered names, sorted.
func (r *Registry) List() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0, len(r.events))
	for event := range r.events {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Has(event Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.events[event]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *Registry) add(event Event) {
	r.mu.Lock()
	r.events[event] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) remove(event Event) {
	r.mu.Lock()
	delete(r.events, event)
	r.mu.Unlock()
}

func (r *Registry) detachAll(h Handle) {
	r.mu.Lock()
	names := make([]Event, 0, len(r.events))
	for event := range r.events {
		names = append(names, event)
	}
	r.events = make(map[Event]struct{})
	r.mu.Unlock()

	if h == nil {
		return
	}
	for _, event := range names {
		h.Off(event)
	}
}

func (r *Registry) enqueue(op Operation) {
	r.logger.Debug().Str("op", op.Kind.String()).Str("event", string(op.Event)).Int("priority", op.Priority).Msg("queued")
	r.buffer.Enqueue(op)
	r.metrics.enqueued(op.Kind)
}
