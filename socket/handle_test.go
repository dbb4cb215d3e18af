package socket

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeHandle is a synchronous Handle: fire delivers on the calling goroutine.
type fakeHandle struct {
	mu          sync.Mutex
	id          string
	connected   bool
	handlers    map[Event][]Handler
	once        map[Event][]Handler
	emitted     []Message
	ons         []Event
	offs        []Event
	emitErr     error
	disconnects int
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{
		id:       id,
		handlers: make(map[Event][]Handler),
		once:     make(map[Event][]Handler),
	}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeHandle) On(event Event, handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
	f.ons = append(f.ons, event)
}

func (f *fakeHandle) Once(event Event, handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once[event] = append(f.once[event], handler)
	f.ons = append(f.ons, event)
}

func (f *fakeHandle) Off(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
	delete(f.once, event)
	f.offs = append(f.offs, event)
}

func (f *fakeHandle) Emit(event Event, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, Message{Event: event, Data: data})
	return nil
}

func (f *fakeHandle) Disconnect() error {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	f.disconnects++
	f.mu.Unlock()

	if was {
		f.fire(EventDisconnect, ReasonClientDisconnect)
	}
	return nil
}

func (f *fakeHandle) fire(event Event, data interface{}) {
	f.mu.Lock()
	handlers := append([]Handler(nil), f.handlers[event]...)
	once := f.once[event]
	delete(f.once, event)
	f.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
	for _, h := range once {
		h(data)
	}
}

func (f *fakeHandle) connect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.fire(EventConnect, nil)
}

// drop simulates the transport losing the connection.
func (f *fakeHandle) drop(reason string) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.fire(EventDisconnect, reason)
}

func (f *fakeHandle) bound(event Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event]) + len(f.once[event])
}

func (f *fakeHandle) emits() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.emitted...)
}

// onCalls lists bound names in attach order, lifecycle names excluded.
func (f *fakeHandle) onCalls() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Event
	for _, e := range f.ons {
		switch e {
		case EventConnect, EventReconnect, EventPing, EventDisconnect:
			continue
		}
		out = append(out, e)
	}
	return out
}

func (f *fakeHandle) offCalls() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.offs...)
}

type fakeDialer struct {
	mu      sync.Mutex
	uris    []string
	handles []*fakeHandle
	err     error
	setup   func(*fakeHandle)
}

func (d *fakeDialer) dial(uri string, _ ...ClientOption) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	h := newFakeHandle("fake-" + string(rune('a'+len(d.handles))))
	if d.setup != nil {
		d.setup(h)
	}
	d.uris = append(d.uris, uri)
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

var errFakeEmit = errors.New("fake emit failure")

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
