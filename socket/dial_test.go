package socket

import (
	"errors"
	"testing"

	"github.com/kleeedolinux/socketq/socket/transport"
)

func TestParseTransportKind(t *testing.T) {
	tests := []struct {
		in      string
		want    TransportKind
		wantErr bool
	}{
		{in: "", want: TransportAuto},
		{in: "auto", want: TransportAuto},
		{in: "WebSocket", want: TransportWebSocket},
		{in: " websocket-ctx ", want: TransportWebSocketCtx},
		{in: "polling", want: TransportPolling},
		{in: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransportKind(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Errorf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTransportSelection(t *testing.T) {
	tests := []struct {
		name    string
		kind    TransportKind
		uri     string
		check   func(Transport) bool
		wantErr bool
	}{
		{
			name: "ws defaults to websocket",
			uri:  "ws://localhost:8080/socket",
			check: func(tr Transport) bool {
				_, ok := tr.(*transport.WebSocketTransport)
				return ok
			},
		},
		{
			name: "http defaults to polling",
			uri:  "http://localhost:8080/socket",
			check: func(tr Transport) bool {
				_, ok := tr.(*transport.LongPollingTransport)
				return ok
			},
		},
		{
			name: "explicit context websocket over https",
			kind: TransportWebSocketCtx,
			uri:  "https://example.test/socket",
			check: func(tr Transport) bool {
				_, ok := tr.(*transport.ContextWebSocketTransport)
				return ok
			},
		},
		{name: "unsupported scheme", uri: "ftp://example.test", wantErr: true},
		{name: "missing host", uri: "ws:///socket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := newTransport(DialConfig{Transport: tt.kind}, tt.uri)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected ConfigurationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(tr) {
				t.Errorf("unexpected transport %T", tr)
			}
		})
	}
}

func TestDialerReturnsOpener(t *testing.T) {
	h, err := NewDialer(DialConfig{})("ws://localhost:1/socket")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer h.Disconnect()

	if _, ok := h.(Opener); !ok {
		t.Error("dialed handle should dial lazily")
	}
	if h.IsConnected() {
		t.Error("handle must not be connected before Open")
	}
}
