package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LongPollingTransport emulates a socket over HTTP. Frames travel as a JSON
// array of base64 strings, so any codec fits.
type LongPollingTransport struct {
	mu            sync.Mutex
	client        *http.Client
	baseURL       string
	sessionID     string
	connected     bool
	incomingQueue chan []byte
	headers       http.Header

	ctx        context.Context
	cancelFunc context.CancelFunc

	pollInterval time.Duration
	timeout      time.Duration
	log          zerolog.Logger
}

type LongPollingOption func(*LongPollingTransport)

func WithLongPollingHeaders(headers http.Header) LongPollingOption {
	return func(t *LongPollingTransport) {
		for k, v := range headers {
			t.headers[k] = v
		}
	}
}

func WithPollInterval(interval time.Duration) LongPollingOption {
	return func(t *LongPollingTransport) {
		t.pollInterval = interval
	}
}

func WithTimeout(timeout time.Duration) LongPollingOption {
	return func(t *LongPollingTransport) {
		t.timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) LongPollingOption {
	return func(t *LongPollingTransport) {
		if client != nil {
			t.client = client
		}
	}
}

func NewLongPollingTransport(baseURL string, opts ...LongPollingOption) *LongPollingTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &LongPollingTransport{
		client:        &http.Client{},
		baseURL:       baseURL,
		headers:       make(http.Header),
		incomingQueue: make(chan []byte, 100),
		ctx:           ctx,
		cancelFunc:    cancel,
		pollInterval:  1 * time.Second,
		timeout:       30 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}
	t.log = newLogger("polling").With().Str("url", baseURL).Logger()

	return t
}

func (t *LongPollingTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/connect", nil)
	if err != nil {
		return err
	}
	t.setHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect: %s", resp.Status)
	}

	var connectResp struct {
		SessionID string `json:"sessionId"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&connectResp); err != nil {
		return err
	}

	childCtx, cancel := context.WithCancel(ctx)
	t.ctx = childCtx
	t.cancelFunc = cancel
	t.sessionID = connectResp.SessionID
	t.connected = true
	t.incomingQueue = make(chan []byte, cap(t.incomingQueue))

	t.log.Debug().Str("session", t.sessionID).Msg("session opened")

	go t.poll(childCtx, t.incomingQueue)

	return nil
}

func (t *LongPollingTransport) poll(ctx context.Context, queue chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.pollInterval):
			msgs, err := t.fetchMessages(ctx)
			if err != nil {
				t.log.Debug().Err(err).Msg("poll failed")
				if errors.Is(err, errSessionGone) {
					t.Close()
					return
				}
				continue
			}

			for _, msg := range msgs {
				select {
				case queue <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

var errSessionGone = errors.New("polling session gone")

func (t *LongPollingTransport) fetchMessages(ctx context.Context) ([][]byte, error) {
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()

	if sessionID == "" {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.baseURL+"/poll?sessionId="+url.QueryEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	t.setHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return nil, errSessionGone
	default:
		return nil, fmt.Errorf("failed to poll: %s", resp.Status)
	}

	var messages [][]byte
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func (t *LongPollingTransport) Send(data []byte) error {
	t.mu.Lock()
	sessionID, ctx := t.sessionID, t.ctx
	t.mu.Unlock()

	if sessionID == "" {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/send?sessionId="+url.QueryEscape(sessionID),
		bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	t.setHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send message: %s - %s", resp.Status, string(bodyBytes))
	}

	return nil
}

func (t *LongPollingTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	connected, ctx, queue := t.connected, t.ctx, t.incomingQueue
	t.mu.Unlock()

	if !connected {
		return nil, ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return nil, errors.New("connection closed")
	case msg := <-queue:
		return msg, nil
	}
}

func (t *LongPollingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/disconnect?sessionId="+url.QueryEscape(t.sessionID), nil)
	if err == nil {
		t.setHeaders(req)

		resp, err := t.client.Do(req)
		if err == nil {
			resp.Body.Close()
		}
	}

	t.cancelFunc()
	t.connected = false
	t.sessionID = ""

	return nil
}

func (t *LongPollingTransport) setHeaders(req *http.Request) {
	for k, values := range t.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
}
