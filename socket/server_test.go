package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()

	opts = append([]ServerOption{WithServerLogger(zerolog.Nop())}, opts...)
	srv := NewServer(opts...)
	srv.HandleFunc("hello", func(s Socket, data interface{}) {
		s.Send("greeting", data)
	})

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleHTTP))
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ts.Close()
	})
	return srv, ts
}

func TestServerRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		scheme string
		dial   DialConfig
		codec  Codec
		server []ServerOption
	}{
		{name: "websocket", scheme: "ws"},
		{name: "context websocket", scheme: "ws", dial: DialConfig{Transport: TransportWebSocketCtx}},
		{name: "websocket msgpack", scheme: "ws", codec: MsgPackCodec{}, server: []ServerOption{WithServerCodec(MsgPackCodec{})}},
		{name: "long polling", scheme: "http", dial: DialConfig{PollInterval: 10 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ts := newTestServer(t, tt.server...)

			m := NewManager(WithLogger(zerolog.Nop()), WithDialer(NewDialer(tt.dial)))
			defer m.Disconnect()

			rec := &recorder{}
			m.On("greeting", rec.handler("greeting"), 1)
			m.Emit("hello", "from client", 2)

			opts := []ClientOption{WithHeartbeatInterval(0)}
			if tt.codec != nil {
				opts = append(opts, WithCodec(tt.codec))
			}
			uri := tt.scheme + strings.TrimPrefix(ts.URL, "http") + "/socket"
			if _, err := m.Connect(uri, opts...); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}

			eventually(t, "greeting", func() bool { return rec.count("greeting") == 1 })
			if diff := cmp.Diff([]Message{{Event: "greeting", Data: "from client"}}, rec.events()); diff != "" {
				t.Errorf("delivered (-want +got):\n%s", diff)
			}
			if srv.Count() != 1 {
				t.Errorf("expected one server socket, got %d", srv.Count())
			}

			m.Disconnect()
			eventually(t, "server cleanup", func() bool { return srv.Count() == 0 })
		})
	}
}

func TestServerBroadcastAndEvents(t *testing.T) {
	srv, ts := newTestServer(t)

	connected := make(chan Socket, 1)
	srv.HandleFunc(EventConnect, func(s Socket, _ interface{}) { connected <- s })

	h, err := NewDialer(DialConfig{})("ws"+strings.TrimPrefix(ts.URL, "http")+"/socket", WithHeartbeatInterval(0))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := h.(*Client)
	defer c.Disconnect()

	rec := &recorder{}
	c.On("news", rec.handler("news"))
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var sock Socket
	select {
	case sock = <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw the connection")
	}
	if _, ok := srv.GetSocket(sock.ID()); !ok {
		t.Error("connected socket not registered")
	}

	srv.Broadcast("news", "extra")
	eventually(t, "broadcast", func() bool { return rec.count("news") == 1 })

	disconnected := &recorder{}
	c.On(EventDisconnect, disconnected.handler(EventDisconnect))
	if err := sock.Close(); err != nil {
		t.Fatalf("server close: %v", err)
	}
	eventually(t, "client disconnect", func() bool { return disconnected.count(EventDisconnect) == 1 })
}

func TestServerUnknownPollingEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/socket/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/socket/poll?sessionId=missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for a missing session, got %d", resp.StatusCode)
	}
}
