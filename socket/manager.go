package socket

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/kleeedolinux/socketq/debug"
)

// DisconnectPolicy decides what happens to deferred operations when the
// transport reports a disconnect.
type DisconnectPolicy int

const (
	// DiscardPending drops every deferred operation on disconnect.
	DiscardPending DisconnectPolicy = iota
	// RetainPending keeps deferred operations for the next connect.
	RetainPending
)

func (p DisconnectPolicy) String() string {
	switch p {
	case DiscardPending:
		return "discard"
	case RetainPending:
		return "retain"
	default:
		return "unknown"
	}
}

// Manager owns a single transport handle and lets callers bind listeners and
// emit without regard to connection state. Calls made while disconnected are
// deferred and replayed in priority order on the next connect, reconnect or
// liveness signal.
//
// All methods are safe for concurrent use. Handlers are never invoked while
// the Manager's lock is held.
type Manager struct {
	mu     sync.Mutex
	handle Handle
	// live is set once the current handle has drained and cleared when its
	// session is released.
	live bool

	buffer   *Buffer
	registry *Registry

	dialer        Dialer
	policy        DisconnectPolicy
	liveness      Event
	logger        zerolog.Logger
	meterProvider metric.MeterProvider
	metrics       *metrics
}

type ManagerOption func(*Manager)

// WithDialer replaces the transport factory used by Connect.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		m.dialer = d
	}
}

func WithDisconnectPolicy(p DisconnectPolicy) ManagerOption {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLivenessEvent sets the periodic signal that, like reconnect, triggers a
// drain. An empty name disables it.
func WithLivenessEvent(event Event) ManagerOption {
	return func(m *Manager) {
		m.liveness = event
	}
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithMeterProvider(mp metric.MeterProvider) ManagerOption {
	return func(m *Manager) {
		m.meterProvider = mp
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		buffer:   NewBuffer(),
		dialer:   NewDialer(DialConfig{}),
		policy:   DiscardPending,
		liveness: EventPing,
		logger:   debug.Logger().With().Str("component", "socket").Logger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.metrics = newMetrics(m.meterProvider)
	m.registry = NewRegistry(m.buffer)
	m.registry.logger = m.logger
	m.registry.metrics = m.metrics

	return m
}

// Connect creates a transport handle for uri and wires its lifecycle signals.
// If the current handle is connected it is returned unchanged. A current
// handle that is not connected is replaced and disconnected.
func (m *Manager) Connect(uri string, opts ...ClientOption) (Handle, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, &ConfigurationError{Field: "uri", Reason: "must not be empty"}
	}

	m.mu.Lock()
	if m.handle != nil && m.handle.IsConnected() {
		h := m.handle
		m.mu.Unlock()
		return h, nil
	}

	stale := m.handle
	h, err := m.dialer(uri, opts...)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if stale != nil {
		m.retire(stale, ReasonClientDisconnect)
	}
	m.handle = h

	observe(h, EventConnect, func(interface{}) {
		m.logger.Info().Str("id", h.ID()).Msg("connected")
		m.drain(h)
	})
	observe(h, EventReconnect, func(interface{}) {
		m.drain(h)
	})
	if m.liveness != "" && m.liveness != EventConnect && m.liveness != EventReconnect {
		observe(h, m.liveness, func(interface{}) {
			m.drain(h)
		})
	}
	observe(h, EventDisconnect, func(data interface{}) {
		m.handleDisconnect(h, data)
	})
	m.mu.Unlock()

	if stale != nil {
		if err := stale.Disconnect(); err != nil {
			m.logger.Warn().Err(err).Str("id", stale.ID()).Msg("closing replaced handle")
		}
	}

	if o, ok := h.(Opener); ok {
		o.Open()
	} else if h.IsConnected() {
		m.drain(h)
	}

	return h, nil
}

// Disconnect closes the current handle, if any, and forgets it. The registry
// and buffer are settled before it returns; the handle's own disconnect
// signal arriving later is ignored. With no handle it does nothing and
// returns nil.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	h := m.handle
	if h != nil {
		m.retire(h, ReasonClientDisconnect)
	}
	m.handle = nil
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.Disconnect()
}

func (m *Manager) On(event Event, handler Handler, priority ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.Bind(m.handle, event, handler, priority...)
}

func (m *Manager) Once(event Event, handler Handler, priority ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.BindOnce(m.handle, event, handler, priority...)
}

func (m *Manager) Off(event Event, priority ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.Unbind(m.handle, event, priority...)
}

func (m *Manager) ClearAll(priority ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.ClearAll(m.handle, priority...)
}

// Emit sends immediately when connected and defers otherwise. Transport
// errors are returned as is.
func (m *Manager) Emit(event Event, data interface{}, priority ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.handle
	if connected(h) {
		m.logger.Debug().Str("id", h.ID()).Str("event", string(event)).Msg("emit")
		return h.Emit(event, data)
	}

	m.registry.enqueue(Operation{Kind: OpEmit, Event: event, Data: data, Priority: priorityOf(priority)})
	return nil
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return connected(m.handle)
}

// Client returns the current transport handle, or nil.
func (m *Manager) Client() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// List returns the event names currently bound on the transport.
func (m *Manager) List() []Event {
	return m.registry.List()
}

// Pending returns the number of deferred operations.
func (m *Manager) Pending() int {
	return m.buffer.Len()
}

// observe attaches a lifecycle hook, out of reach of Off when h allows it.
func observe(h Handle, event Event, handler Handler) {
	if o, ok := h.(Observer); ok {
		o.Observe(event, handler)
		return
	}
	h.On(event, handler)
}

func (m *Manager) drain(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != h || !h.IsConnected() {
		return
	}
	m.live = true

	m.buffer.Drain(func(op Operation) {
		if err := m.registry.Replay(h, op); err != nil {
			m.logger.Warn().Err(err).Str("id", h.ID()).Str("op", op.String()).Msg("replay failed, operation dropped")
			m.metrics.replayFailed(op.Kind)
			return
		}
		m.metrics.replayed(op.Kind)
	})
}

func (m *Manager) handleDisconnect(h Handle, data interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != h {
		return
	}

	reason, _ := data.(string)
	m.release(h, reason)
}

// retire ends the session of a handle that is about to be dropped. Its
// disconnect signal may still be queued behind handlers, so the session is
// released here unless it never went live or was already released.
// Caller holds m.mu.
func (m *Manager) retire(h Handle, reason string) {
	if !m.live && !h.IsConnected() {
		m.registry.Reset(h)
		return
	}
	m.release(h, reason)
}

// release empties the registry and applies the disconnect policy to the
// buffer. Caller holds m.mu.
func (m *Manager) release(h Handle, reason string) {
	m.live = false
	m.registry.Reset(h)

	dropped := 0
	if m.policy == DiscardPending {
		dropped = m.buffer.Flush()
		m.metrics.flushed(dropped)
	}

	m.logger.Info().Str("id", h.ID()).Str("reason", reason).Int("dropped", dropped).Msg("disconnected")
}
