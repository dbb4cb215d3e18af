package socket

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kleeedolinux/socketq/socket/transport"
)

// TransportKind selects the byte transport a Dialer builds.
type TransportKind string

const (
	// TransportAuto picks websocket for ws and wss URIs and long polling for
	// http and https.
	TransportAuto         TransportKind = ""
	TransportWebSocket    TransportKind = "websocket"
	TransportWebSocketCtx TransportKind = "websocket-ctx"
	TransportPolling      TransportKind = "polling"
)

func ParseTransportKind(raw string) (TransportKind, error) {
	switch kind := TransportKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case TransportAuto, TransportWebSocket, TransportWebSocketCtx, TransportPolling:
		return kind, nil
	case "auto":
		return TransportAuto, nil
	default:
		return "", &ConfigurationError{Field: "transport", Reason: "unknown transport " + raw}
	}
}

type DialConfig struct {
	Transport    TransportKind
	Headers      http.Header
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PollInterval time.Duration
}

// Dialer creates a transport handle for uri. It must not block on the
// network; handles that dial lazily implement Opener.
type Dialer func(uri string, opts ...ClientOption) (Handle, error)

// NewDialer returns a Dialer building Clients over the transport cfg selects.
func NewDialer(cfg DialConfig) Dialer {
	return func(uri string, opts ...ClientOption) (Handle, error) {
		t, err := newTransport(cfg, uri)
		if err != nil {
			return nil, err
		}
		return NewClient(t, opts...), nil
	}
}

func newTransport(cfg DialConfig, uri string) (Transport, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, &ConfigurationError{Field: "uri", Reason: err.Error()}
	}
	if u.Host == "" {
		return nil, &ConfigurationError{Field: "uri", Reason: "missing host"}
	}

	kind := cfg.Transport
	switch u.Scheme {
	case "ws", "wss":
		if kind == TransportAuto {
			kind = TransportWebSocket
		}
	case "http", "https":
		if kind == TransportAuto {
			kind = TransportPolling
		}
	default:
		return nil, &ConfigurationError{Field: "uri", Reason: "unsupported scheme " + u.Scheme}
	}

	switch kind {
	case TransportWebSocket:
		opts := []transport.WebSocketOption{transport.WithHeaders(cfg.Headers)}
		if cfg.ReadTimeout > 0 {
			opts = append(opts, transport.WithReadTimeout(cfg.ReadTimeout))
		}
		if cfg.WriteTimeout > 0 {
			opts = append(opts, transport.WithWriteTimeout(cfg.WriteTimeout))
		}
		return transport.NewWebSocketTransport(withScheme(u, "ws"), opts...), nil
	case TransportWebSocketCtx:
		opts := []transport.ContextWebSocketOption{transport.WithContextHeaders(cfg.Headers)}
		if cfg.WriteTimeout > 0 {
			opts = append(opts, transport.WithContextWriteTimeout(cfg.WriteTimeout))
		}
		return transport.NewContextWebSocketTransport(withScheme(u, "ws"), opts...), nil
	case TransportPolling:
		opts := []transport.LongPollingOption{transport.WithLongPollingHeaders(cfg.Headers)}
		if cfg.PollInterval > 0 {
			opts = append(opts, transport.WithPollInterval(cfg.PollInterval))
		}
		if cfg.ReadTimeout > 0 {
			opts = append(opts, transport.WithTimeout(cfg.ReadTimeout))
		}
		return transport.NewLongPollingTransport(strings.TrimSuffix(withScheme(u, "http"), "/"), opts...), nil
	default:
		return nil, &ConfigurationError{Field: "transport", Reason: "unknown transport " + string(kind)}
	}
}

// withScheme rewrites u to the plain or secure variant of family.
func withScheme(u *url.URL, family string) string {
	secure := u.Scheme == "wss" || u.Scheme == "https"
	c := *u
	switch family {
	case "ws":
		c.Scheme = "ws"
		if secure {
			c.Scheme = "wss"
		}
	default:
		c.Scheme = "http"
		if secure {
			c.Scheme = "https"
		}
	}
	return c.String()
}
