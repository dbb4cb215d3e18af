package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrNotConnected = errors.New("not connected")

const handshakeTimeout = 10 * time.Second

// WebSocketTransport is the default client transport. Frames are written
// under mu; reads happen outside it on the connection captured at call time.
type WebSocketTransport struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	url          string
	dialer       *websocket.Dialer
	headers      http.Header
	readTimeout  time.Duration
	writeTimeout time.Duration
	compression  bool
	frameType    int
	log          zerolog.Logger
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

// WithReadTimeout bounds the wait for each inbound frame. It must exceed the
// server's send interval or idle connections will be dropped; zero disables it.
func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.compression = enabled
	}
}

func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:          url,
		dialer:       websocket.DefaultDialer,
		headers:      make(http.Header),
		writeTimeout: 10 * time.Second,
		frameType:    websocket.TextMessage,
	}

	for _, opt := range opts {
		opt(t)
	}
	t.log = newLogger("websocket").With().Str("url", url).Logger()

	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	dialer := *t.dialer
	dialer.HandshakeTimeout = handshakeTimeout
	dialer.EnableCompression = t.compression

	conn, resp, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		ev := t.log.Debug().Err(err)
		if resp != nil {
			ev = ev.Int("status", resp.StatusCode)
		}
		ev.Msg("dial failed")
		return err
	}

	t.conn = conn
	t.connected = true
	t.log.Debug().Msg("connected")

	return nil
}

func (t *WebSocketTransport) Send(data []byte) error {
	return t.BatchSend([][]byte{data})
}

// BatchSend writes every frame in order and stops at the first failure.
func (t *WebSocketTransport) BatchSend(messages [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}

	for _, msg := range messages {
		if err := t.writeFrame(msg); err != nil {
			t.log.Debug().Err(err).Int("bytes", len(msg)).Msg("write failed")
			return err
		}
	}

	return nil
}

func (t *WebSocketTransport) writeFrame(data []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(t.frameType, data)
}

func (t *WebSocketTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	if !t.connected || conn == nil {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}

	var err error
	if t.readTimeout > 0 {
		err = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		t.log.Debug().Err(err).Msg("read failed")
		return nil, err
	}

	return message, nil
}

// Close sends a normal-closure frame on a best-effort basis and releases the
// connection. Closing a transport that is not connected is a no-op.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn := t.conn
	if !t.connected || conn == nil {
		return nil
	}
	t.connected = false
	t.conn = nil

	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(time.Second)); err != nil {
		t.log.Debug().Err(err).Msg("close frame not sent")
	}

	err := conn.Close()
	t.log.Debug().AnErr("error", err).Msg("closed")
	return err
}

func (t *WebSocketTransport) EnableCompression(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.compression = enabled
	if t.connected && t.conn != nil {
		t.conn.EnableWriteCompression(enabled)
	}
}

func (t *WebSocketTransport) EnableBinary(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frameType = websocket.TextMessage
	if enabled {
		t.frameType = websocket.BinaryMessage
	}
}
