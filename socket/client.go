package socket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketq/debug"
)

var ErrSendBufferFull = errors.New("send buffer full")

// Client is a transport handle over a byte Transport. Inbound events, including
// lifecycle signals, are delivered one at a time in arrival order.
type Client struct {
	mu           sync.RWMutex
	dialMu       sync.Mutex
	id           string
	conn         Transport
	codec        Codec
	handlers     map[Event][]Handler
	onceHandlers map[Event][]Handler
	observers    map[Event][]Handler

	connected     bool
	everConnected bool
	closed        bool
	connCancel    context.CancelFunc
	sendCh        chan []byte

	batchSize       int
	batchInterval   time.Duration
	messageBufferCh chan []byte

	compressionEnabled bool

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	reconnectAttempts int
	pingInterval      time.Duration

	dispatchMu  sync.Mutex
	queue       []Message
	dispatching bool

	ctx        context.Context
	cancelFunc context.CancelFunc
	log        zerolog.Logger
}

type Transport interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

type ClientOption func(*Client)

func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectDelay = d
	}
}

func WithMaxReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxReconnectDelay = d
	}
}

// WithReconnectAttempts bounds redials after a drop. Zero disables
// reconnection, a negative value retries forever.
func WithReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.reconnectAttempts = attempts
	}
}

func WithBatchSend(batchSize int, interval time.Duration) ClientOption {
	return func(c *Client) {
		c.batchSize = batchSize
		c.batchInterval = interval
	}
}

func WithClientCompression(enabled bool) ClientOption {
	return func(c *Client) {
		c.compressionEnabled = enabled
	}
}

// WithHeartbeatInterval sets the heartbeat period. Each tick sends a ping frame and
// raises a local ping event. Zero disables the heartbeat.
func WithHeartbeatInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pingInterval = d
	}
}

func WithCodec(codec Codec) ClientOption {
	return func(c *Client) {
		if codec != nil {
			c.codec = codec
		}
	}
}

func NewClient(transport Transport, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		id:                 generateID(),
		conn:               transport,
		codec:              JSONCodec{},
		handlers:           make(map[Event][]Handler),
		onceHandlers:       make(map[Event][]Handler),
		observers:          make(map[Event][]Handler),
		sendCh:             make(chan []byte, 100),
		messageBufferCh:    make(chan []byte, 1000),
		batchSize:          1,
		batchInterval:      50 * time.Millisecond,
		compressionEnabled: false,
		reconnectDelay:     1 * time.Second,
		maxReconnectDelay:  30 * time.Second,
		reconnectAttempts:  5,
		pingInterval:       25 * time.Second,
		ctx:                ctx,
		cancelFunc:         cancel,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.log = debug.Logger().With().Str("component", "client").Str("client", client.id).Logger()
	client.setupTransport(transport)

	return client
}

func (c *Client) ID() string {
	return c.id
}

// Open dials in the background, retrying on failure, and returns at once.
// Success is reported through the connect event.
func (c *Client) Open() {
	attempts := -1
	if c.reconnectAttempts >= 0 {
		attempts = c.reconnectAttempts + 1
	}
	go c.dialLoop(attempts, false)
}

// Connect dials synchronously.
func (c *Client) Connect() error {
	return c.connect(0)
}

func (c *Client) connect(attempt int) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.RLock()
	connected, closed := c.connected, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrConnectionClosed
	}
	if connected {
		return nil
	}

	if err := c.conn.Connect(c.ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.conn.Close()
		return ErrConnectionClosed
	}
	connCtx, cancel := context.WithCancel(c.ctx)
	c.connCancel = cancel
	c.connected = true
	reconnected := c.everConnected
	c.everConnected = true
	c.mu.Unlock()

	go c.sendLoop(connCtx)
	go c.receiveLoop(connCtx)
	go c.batchProcessingLoop(connCtx)
	go c.heartbeatLoop(connCtx)

	c.triggerEvent(EventConnect, nil)
	if reconnected {
		c.triggerEvent(EventReconnect, attempt)
	}

	return nil
}

func (c *Client) dialLoop(maxAttempts int, waitFirst bool) {
	delay := c.reconnectDelay

	for attempt := 1; maxAttempts < 0 || attempt <= maxAttempts; attempt++ {
		if waitFirst || attempt > 1 {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > c.maxReconnectDelay {
				delay = c.maxReconnectDelay
			}
		}

		err := c.connect(attempt)
		if err == nil || c.isClosed() {
			return
		}
		c.log.Debug().Err(err).Int("attempt", attempt).Msg("dial failed")
		c.triggerEvent(EventError, err)
	}
}

func (c *Client) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.sendCh:
			if err := c.conn.Send(data); err != nil {
				c.triggerEvent(EventError, err)
				c.handleDisconnect(err.Error())
				return
			}
		}
	}
}

func (c *Client) receiveLoop(ctx context.Context) {
	for {
		data, err := c.conn.Receive()
		if err != nil {
			if ctx.Err() == nil && c.IsConnected() {
				c.triggerEvent(EventError, err)
				c.handleDisconnect(err.Error())
			}
			return
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.triggerEvent(EventError, ErrInvalidMessage)
			continue
		}

		if reserved(msg.Event) {
			c.log.Debug().Str("event", string(msg.Event)).Msg("dropping inbound reserved event")
			continue
		}

		c.triggerEvent(msg.Event, msg.Data)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	if c.pingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Emit(EventPing, nil); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				continue
			}
			c.triggerEvent(EventPing, nil)
		}
	}
}

func (c *Client) handleDisconnect(reason string) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}

	c.connected = false
	cancel := c.connCancel
	c.connCancel = nil
	closed := c.closed
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Reset the transport so the next dial starts clean.
	c.conn.Close()

	c.triggerEvent(EventDisconnect, reason)

	if !closed && c.reconnectAttempts != 0 {
		go c.dialLoop(c.reconnectAttempts, true)
	}
}

// Emit encodes the message and queues it for sending.
func (c *Client) Emit(event Event, data interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return ErrConnectionClosed
	}

	payload, err := c.codec.Encode(Message{Event: event, Data: data})
	if err != nil {
		return err
	}

	ch := c.sendCh
	if c.batchSize > 1 {
		ch = c.messageBufferCh
	}

	select {
	case ch <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) On(event Event, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *Client) Once(event Event, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onceHandlers[event] = append(c.onceHandlers[event], handler)
}

// Observe attaches a handler that runs before any On or Once handler for
// event and survives Off.
func (c *Client) Observe(event Event, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observers[event] = append(c.observers[event], handler)
}

func (c *Client) Off(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handlers, event)
	delete(c.onceHandlers, event)
}

func (c *Client) triggerEvent(event Event, data interface{}) {
	c.dispatchMu.Lock()
	c.queue = append(c.queue, Message{Event: event, Data: data})
	if c.dispatching {
		c.dispatchMu.Unlock()
		return
	}
	c.dispatching = true
	c.dispatchMu.Unlock()

	go c.dispatch()
}

func (c *Client) dispatch() {
	for {
		c.dispatchMu.Lock()
		if len(c.queue) == 0 {
			c.dispatching = false
			c.dispatchMu.Unlock()
			return
		}
		msg := c.queue[0]
		c.queue[0] = Message{}
		c.queue = c.queue[1:]
		c.dispatchMu.Unlock()

		c.deliver(msg)
	}
}

func (c *Client) deliver(msg Message) {
	c.mu.Lock()
	observers := append([]Handler(nil), c.observers[msg.Event]...)
	handlers := append([]Handler(nil), c.handlers[msg.Event]...)
	once := c.onceHandlers[msg.Event]
	delete(c.onceHandlers, msg.Event)
	c.mu.Unlock()

	for _, handler := range observers {
		c.invoke(msg.Event, handler, msg.Data)
	}
	for _, handler := range handlers {
		c.invoke(msg.Event, handler, msg.Data)
	}
	for _, handler := range once {
		c.invoke(msg.Event, handler, msg.Data)
	}
}

func (c *Client) invoke(event Event, handler Handler, data interface{}) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("event", string(event)).Interface("panic", r).Msg("handler panicked")
		}
	}()
	handler(data)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

// Disconnect closes the connection for good and stops any pending redial.
// A disconnect event with ReasonClientDisconnect follows if the client was
// connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	wasConnected := c.connected
	c.connected = false
	cancel := c.connCancel
	c.connCancel = nil
	c.mu.Unlock()

	err := c.conn.Close()

	c.cancelFunc()
	if cancel != nil {
		cancel()
	}

	if wasConnected {
		c.triggerEvent(EventDisconnect, ReasonClientDisconnect)
	}

	return err
}

func (c *Client) batchProcessingLoop(ctx context.Context) {
	if c.batchSize <= 1 {
		return
	}

	batch := make([][]byte, 0, c.batchSize)
	ticker := time.NewTicker(c.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.messageBufferCh:
			batch = append(batch, msg)

			if len(batch) >= c.batchSize {
				c.processBatch(batch)
				batch = make([][]byte, 0, c.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.processBatch(batch)
				batch = make([][]byte, 0, c.batchSize)
			}
		}
	}
}

func (c *Client) processBatch(messages [][]byte) {
	if len(messages) == 0 {
		return
	}

	if batchTransport, ok := c.conn.(BatchTransport); ok {
		if err := batchTransport.BatchSend(messages); err != nil {
			c.triggerEvent(EventError, err)
			c.handleDisconnect(err.Error())
		}
		return
	}

	for _, msg := range messages {
		if err := c.conn.Send(msg); err != nil {
			c.triggerEvent(EventError, err)
			c.handleDisconnect(err.Error())
			return
		}
	}
}

func (c *Client) setupTransport(t Transport) {
	if t == nil {
		return
	}

	if c.compressionEnabled {
		if compressibleTransport, ok := t.(CompressibleTransport); ok {
			compressibleTransport.EnableCompression(true)
		}
	}

	if c.codec.Binary() {
		if binaryTransport, ok := t.(BinaryTransport); ok {
			binaryTransport.EnableBinary(true)
		}
	}
}

func reserved(event Event) bool {
	switch event {
	case EventConnect, EventReconnect, EventDisconnect, EventPing, EventError:
		return true
	}
	return false
}

type CompressibleTransport interface {
	Transport
	EnableCompression(bool)
}

type BatchTransport interface {
	Transport
	BatchSend([][]byte) error
}

// BinaryTransport is implemented by transports that can switch to binary
// frames for non-text codecs.
type BinaryTransport interface {
	Transport
	EnableBinary(bool)
}

var (
	_ Handle   = (*Client)(nil)
	_ Opener   = (*Client)(nil)
	_ Observer = (*Client)(nil)
)
