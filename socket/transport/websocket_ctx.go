package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ContextWebSocketTransport is a websocket client whose reads and writes are
// bound to the context passed to Connect: cancelling it tears the
// connection down.
type ContextWebSocketTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	url          string
	headers      http.Header
	connected    bool
	writeTimeout time.Duration
	readLimit    int64
	compression  bool
	messageType  websocket.MessageType
	log          zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type ContextWebSocketOption func(*ContextWebSocketTransport)

func WithContextHeaders(headers http.Header) ContextWebSocketOption {
	return func(t *ContextWebSocketTransport) {
		t.headers = headers
	}
}

func WithContextWriteTimeout(timeout time.Duration) ContextWebSocketOption {
	return func(t *ContextWebSocketTransport) {
		t.writeTimeout = timeout
	}
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(limit int64) ContextWebSocketOption {
	return func(t *ContextWebSocketTransport) {
		t.readLimit = limit
	}
}

func NewContextWebSocketTransport(url string, opts ...ContextWebSocketOption) *ContextWebSocketTransport {
	t := &ContextWebSocketTransport{
		url:          url,
		headers:      make(http.Header),
		writeTimeout: 10 * time.Second,
		readLimit:    1 << 20,
		messageType:  websocket.MessageText,
	}

	for _, opt := range opts {
		opt(t)
	}
	t.log = newLogger("websocket-ctx").With().Str("url", url).Logger()

	return t
}

func (t *ContextWebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	mode := websocket.CompressionDisabled
	if t.compression {
		mode = websocket.CompressionContextTakeover
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	defer cancelDial()

	conn, _, err := websocket.Dial(dialCtx, t.url, &websocket.DialOptions{
		HTTPHeader:      t.headers,
		CompressionMode: mode,
	})
	if err != nil {
		t.log.Debug().Err(err).Msg("dial failed")
		return err
	}
	conn.SetReadLimit(t.readLimit)

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.conn = conn
	t.connected = true
	t.log.Debug().Msg("connected")

	return nil
}

func (t *ContextWebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn, ctx, typ := t.conn, t.ctx, t.messageType
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	if t.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.writeTimeout)
		defer cancel()
	}

	if err := conn.Write(ctx, typ, data); err != nil {
		t.log.Debug().Err(err).Int("bytes", len(data)).Msg("write failed")
		return err
	}
	return nil
}

func (t *ContextWebSocketTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	conn, ctx := t.conn, t.ctx
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return nil, ErrNotConnected
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.log.Debug().Err(err).Msg("read failed")
		return nil, err
	}
	return data, nil
}

func (t *ContextWebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return nil
	}

	err := t.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	t.cancel()

	t.connected = false
	t.conn = nil

	return err
}

func (t *ContextWebSocketTransport) EnableCompression(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compression = enabled
}

func (t *ContextWebSocketTransport) EnableBinary(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enabled {
		t.messageType = websocket.MessageBinary
	} else {
		t.messageType = websocket.MessageText
	}
}
