package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLongPollingServerTransport(t *testing.T) {
	tr := NewLongPollingServerTransport("s1", DefaultLongPollingServerConfig())

	t.Run("poll returns pending frames once", func(t *testing.T) {
		tr.Write([]byte(`{"event":"a"}`))
		tr.Write([]byte(`{"event":"b"}`))

		rec := httptest.NewRecorder()
		tr.HandlePoll(rec, httptest.NewRequest(http.MethodGet, "/poll", nil))

		var frames [][]byte
		if err := json.NewDecoder(rec.Body).Decode(&frames); err != nil {
			t.Fatalf("decode poll body: %v", err)
		}
		got := []string{string(frames[0]), string(frames[1])}
		if diff := cmp.Diff([]string{`{"event":"a"}`, `{"event":"b"}`}, got); diff != "" {
			t.Errorf("frames (-want +got):\n%s", diff)
		}

		rec = httptest.NewRecorder()
		tr.HandlePoll(rec, httptest.NewRequest(http.MethodGet, "/poll", nil))
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("expected empty batch, got %s", rec.Body.String())
		}
	})

	t.Run("send feeds Read", func(t *testing.T) {
		rec := httptest.NewRecorder()
		tr.HandleSend(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader("frame")))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		data, err := tr.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if string(data) != "frame" {
			t.Errorf("got %q", data)
		}
	})

	t.Run("close unblocks Read", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			_, err := tr.Read()
			done <- err
		}()

		if err := tr.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}

		select {
		case err := <-done:
			if err != io.EOF {
				t.Errorf("expected io.EOF, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Read still blocked after Close")
		}

		if err := tr.Write([]byte("x")); err != io.ErrClosedPipe {
			t.Errorf("expected io.ErrClosedPipe, got %v", err)
		}
		rec := httptest.NewRecorder()
		tr.HandlePoll(rec, httptest.NewRequest(http.MethodGet, "/poll", nil))
		if rec.Code != http.StatusGone {
			t.Errorf("expected 410 after close, got %d", rec.Code)
		}
		if !tr.IsExpired() {
			t.Error("closed session should report expired")
		}
	})
}

func TestLongPollingServerTransportExpiry(t *testing.T) {
	tr := NewLongPollingServerTransport("s2", LongPollingServerConfig{
		DisconnectTimeout: 10 * time.Millisecond,
		BufferSize:        1,
	})

	if tr.IsExpired() {
		t.Fatal("fresh session should not be expired")
	}
	time.Sleep(30 * time.Millisecond)
	if !tr.IsExpired() {
		t.Error("idle session should expire")
	}
}

func TestLongPollingClientAgainstServer(t *testing.T) {
	server := NewLongPollingServerTransport("sess", DefaultLongPollingServerConfig())
	mux := http.NewServeMux()
	mux.HandleFunc("/rt/connect", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sessionId": "sess"})
	})
	mux.HandleFunc("/rt/poll", server.HandlePoll)
	mux.HandleFunc("/rt/send", server.HandleSend)
	mux.HandleFunc("/rt/disconnect", func(w http.ResponseWriter, _ *http.Request) {
		server.Close()
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewLongPollingTransport(ts.URL+"/rt", WithPollInterval(5*time.Millisecond))
	if err := client.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := client.Send([]byte("up")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Read()
	if err != nil || string(got) != "up" {
		t.Fatalf("server Read = %q, %v", got, err)
	}

	server.Write([]byte("down"))
	got, err = client.Receive()
	if err != nil || string(got) != "down" {
		t.Fatalf("client Receive = %q, %v", got, err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := client.Receive(); err == nil {
		t.Error("expected an error from Receive after Close")
	}
}
