package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ServerTransport is the server side of one client connection.
type ServerTransport interface {
	Read() ([]byte, error)
	Write([]byte) error
	Close() error
	ID() string
}

// WebSocketServerTransport serves one upgraded connection. Writes are queued
// on sendCh and flushed by a single pump goroutine; a full queue drops the
// peer.
type WebSocketServerTransport struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	sendCh  chan []byte
	closeCh chan struct{}
	pump    sync.WaitGroup

	writeTimeout time.Duration
	readTimeout  time.Duration
	frameType    int

	mu     sync.Mutex
	closed bool
}

type WebSocketServerConfig struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BufferSize   int
	Binary       bool
}

func DefaultWebSocketServerConfig() WebSocketServerConfig {
	return WebSocketServerConfig{
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		BufferSize:   100,
	}
}

func NewWebSocketServerTransport(id string, conn *websocket.Conn, config WebSocketServerConfig) *WebSocketServerTransport {
	frameType := websocket.TextMessage
	if config.Binary {
		frameType = websocket.BinaryMessage
	}

	t := &WebSocketServerTransport{
		id:           id,
		conn:         conn,
		log:          newLogger("websocket-server").With().Str("socket", id).Logger(),
		sendCh:       make(chan []byte, config.BufferSize),
		closeCh:      make(chan struct{}),
		writeTimeout: config.WriteTimeout,
		readTimeout:  config.ReadTimeout,
		frameType:    frameType,
	}

	t.pump.Add(1)
	go t.writePump()

	return t
}

func (t *WebSocketServerTransport) writePump() {
	defer t.pump.Done()

	for {
		select {
		case <-t.closeCh:
			return
		case frame := <-t.sendCh:
			if err := t.writeFrame(frame); err != nil {
				if !errors.Is(err, io.ErrClosedPipe) {
					t.log.Debug().Err(err).Msg("write failed, dropping peer")
					go t.Close()
				}
				return
			}
		}
	}
}

func (t *WebSocketServerTransport) writeFrame(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return io.ErrClosedPipe
	}
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(t.frameType, frame)
}

// Read blocks for the next frame. Each call pushes the read deadline forward,
// so a client that stays silent longer than ReadTimeout is dropped.
func (t *WebSocketServerTransport) Read() ([]byte, error) {
	if t.readTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}

	_, frame, err := t.conn.ReadMessage()
	if err != nil {
		t.log.Debug().Err(err).Msg("read failed")
		t.Close()
		return nil, err
	}

	return frame, nil
}

func (t *WebSocketServerTransport) Write(data []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return io.ErrClosedPipe
	}

	select {
	case t.sendCh <- data:
		return nil
	default:
		t.log.Warn().Int("buffered", cap(t.sendCh)).Msg("send queue full, dropping peer")
		t.Close()
		return io.ErrShortWrite
	}
}

func (t *WebSocketServerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closeCh)
	t.mu.Unlock()

	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	t.conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(time.Second))

	t.pump.Wait()
	t.log.Debug().Msg("closed")
	return t.conn.Close()
}

func (t *WebSocketServerTransport) ID() string {
	return t.id
}

// LongPollingServerTransport holds one polling session. Outbound frames wait
// in outbox until the next poll; inbound bodies are handed to Read through
// inbox.
type LongPollingServerTransport struct {
	id      string
	log     zerolog.Logger
	inbox   chan []byte
	closeCh chan struct{}
	timeout time.Duration

	mu       sync.Mutex
	outbox   [][]byte
	lastSeen time.Time
	closed   bool
}

type LongPollingServerConfig struct {
	DisconnectTimeout time.Duration
	BufferSize        int
}

func DefaultLongPollingServerConfig() LongPollingServerConfig {
	return LongPollingServerConfig{
		DisconnectTimeout: 60 * time.Second,
		BufferSize:        100,
	}
}

func NewLongPollingServerTransport(id string, config LongPollingServerConfig) *LongPollingServerTransport {
	return &LongPollingServerTransport{
		id:       id,
		log:      newLogger("polling-server").With().Str("session", id).Logger(),
		inbox:    make(chan []byte, config.BufferSize),
		closeCh:  make(chan struct{}),
		timeout:  config.DisconnectTimeout,
		lastSeen: time.Now(),
	}
}

func (t *LongPollingServerTransport) Read() ([]byte, error) {
	select {
	case frame := <-t.inbox:
		return frame, nil
	case <-t.closeCh:
		return nil, io.EOF
	}
}

func (t *LongPollingServerTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return io.ErrClosedPipe
	}
	t.outbox = append(t.outbox, data)
	return nil
}

func (t *LongPollingServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.closeCh)
	t.log.Debug().Int("undelivered", len(t.outbox)).Msg("session closed")
	return nil
}

func (t *LongPollingServerTransport) ID() string {
	return t.id
}

// touch records client activity. It reports false once the session is closed.
func (t *LongPollingServerTransport) touch() bool {
	if t.closed {
		return false
	}
	t.lastSeen = time.Now()
	return true
}

// HandlePoll hands every pending frame to the client as a JSON array of
// base64 strings.
func (t *LongPollingServerTransport) HandlePoll(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	if !t.touch() {
		t.mu.Unlock()
		http.Error(w, "Session closed", http.StatusGone)
		return
	}
	frames := t.outbox
	t.outbox = nil
	t.mu.Unlock()

	if frames == nil {
		frames = [][]byte{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(frames); err != nil {
		t.log.Debug().Err(err).Int("frames", len(frames)).Msg("poll response not written")
	}
}

func (t *LongPollingServerTransport) HandleSend(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	ok := t.touch()
	t.mu.Unlock()
	if !ok {
		http.Error(w, "Session closed", http.StatusGone)
		return
	}

	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	select {
	case t.inbox <- data:
		w.WriteHeader(http.StatusOK)
	default:
		t.log.Warn().Msg("inbound queue full")
		http.Error(w, "Message queue full", http.StatusServiceUnavailable)
	}
}

// IsExpired reports whether the session is closed or has seen no poll or
// send within the disconnect timeout.
func (t *LongPollingServerTransport) IsExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return true
	}
	return time.Since(t.lastSeen) > t.timeout
}

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}
