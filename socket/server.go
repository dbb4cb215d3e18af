package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketq/debug"
	"github.com/kleeedolinux/socketq/socket/transport"
)

type Server struct {
	mu       sync.RWMutex
	sockets  map[string]Socket
	handlers map[Event][]func(s Socket, data interface{})
	sessions map[string]*LongPollingSession

	codec  Codec
	logger zerolog.Logger

	pingInterval         time.Duration
	pingTimeout          time.Duration
	sessionTimeout       time.Duration
	maxConcurrency       int
	concurrencySemaphore chan struct{}
	compressionEnabled   bool
	bufferSize           int

	done     chan struct{}
	stopOnce sync.Once
}

type LongPollingSession struct {
	ID         string
	Transport  *transport.LongPollingServerTransport
	SocketImpl *socketImpl
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		sockets:            make(map[string]Socket),
		handlers:           make(map[Event][]func(s Socket, data interface{})),
		sessions:           make(map[string]*LongPollingSession),
		codec:              JSONCodec{},
		logger:             debug.Logger().With().Str("component", "server").Logger(),
		pingInterval:       25 * time.Second,
		pingTimeout:        5 * time.Second,
		sessionTimeout:     60 * time.Second,
		maxConcurrency:     100,
		bufferSize:         1024,
		compressionEnabled: false,
		done:               make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.concurrencySemaphore == nil && s.maxConcurrency > 0 {
		s.concurrencySemaphore = make(chan struct{}, s.maxConcurrency)
	}

	go s.cleanupSessions()

	return s
}

func (s *Server) cleanupSessions() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		var expired []*LongPollingSession
		s.mu.Lock()
		for id, session := range s.sessions {
			if session.Transport.IsExpired() {
				delete(s.sessions, id)
				expired = append(expired, session)
			}
		}
		s.mu.Unlock()

		for _, session := range expired {
			session.SocketImpl.closeWithReason("ping timeout")
		}
	}
}

type ServerOption func(*Server)

// WithPingInterval is the heartbeat period clients are expected to use. A
// websocket client silent for longer than interval plus timeout is dropped.
func WithPingInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		s.pingInterval = d
	}
}

func WithPingTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.pingTimeout = d
	}
}

// WithSessionTimeout sets how long an idle long-polling session survives.
func WithSessionTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.sessionTimeout = d
	}
}

func WithMaxConcurrency(maxConcurrent int) ServerOption {
	return func(s *Server) {
		s.maxConcurrency = maxConcurrent
		s.concurrencySemaphore = make(chan struct{}, maxConcurrent)
	}
}

func WithCompression(enabled bool) ServerOption {
	return func(s *Server) {
		s.compressionEnabled = enabled
	}
}

func WithBufferSize(size int) ServerOption {
	return func(s *Server) {
		s.bufferSize = size
	}
}

func WithServerCodec(codec Codec) ServerOption {
	return func(s *Server) {
		if codec != nil {
			s.codec = codec
		}
	}
}

func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

func (s *Server) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if socket := s.tryWebSocketUpgrade(w, r); socket != nil {
			s.handleSocket(socket)
		}
		return
	}

	s.handleLongPolling(w, r)
}

func (s *Server) tryWebSocketUpgrade(w http.ResponseWriter, r *http.Request) *socketImpl {
	if s.concurrencySemaphore != nil {
		select {
		case s.concurrencySemaphore <- struct{}{}:
			defer func() {
				<-s.concurrencySemaphore
			}()
		default:
			http.Error(w, "Too many connections", http.StatusServiceUnavailable)
			return nil
		}
	}

	upgraderConfig := transport.Upgrader
	if s.compressionEnabled {
		upgraderConfig.EnableCompression = true
	}
	upgraderConfig.ReadBufferSize = s.bufferSize
	upgraderConfig.WriteBufferSize = s.bufferSize

	conn, err := upgraderConfig.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	id := generateID()

	wsConfig := transport.DefaultWebSocketServerConfig()
	wsConfig.BufferSize = s.bufferSize
	wsConfig.Binary = s.codec.Binary()
	if s.pingInterval > 0 {
		wsConfig.ReadTimeout = s.pingInterval + s.pingTimeout
	}

	wsTransport := transport.NewWebSocketServerTransport(id, conn, wsConfig)

	return newSocketFromServerTransport(id, wsTransport, s.codec, s.dispatch)
}

func (s *Server) handleLongPolling(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	sessionID := r.URL.Query().Get("sessionId")

	switch {
	case strings.HasSuffix(path, "/connect"):
		s.handleLongPollingConnect(w, r)
	case strings.HasSuffix(path, "/poll"):
		s.handleLongPollingPoll(w, r, sessionID)
	case strings.HasSuffix(path, "/send"):
		s.handleLongPollingSend(w, r, sessionID)
	case strings.HasSuffix(path, "/disconnect"):
		s.handleLongPollingDisconnect(w, r, sessionID)
	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

func (s *Server) handleLongPollingConnect(w http.ResponseWriter, _ *http.Request) {
	sessionID := generateID()

	config := transport.DefaultLongPollingServerConfig()
	config.DisconnectTimeout = s.sessionTimeout
	lpTransport := transport.NewLongPollingServerTransport(sessionID, config)

	socket := newSocketFromServerTransport(sessionID, lpTransport, s.codec, s.dispatch)

	s.mu.Lock()
	s.sessions[sessionID] = &LongPollingSession{
		ID:         sessionID,
		Transport:  lpTransport,
		SocketImpl: socket,
	}
	s.mu.Unlock()

	s.handleSocket(socket)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"sessionId": sessionID})
}

func (s *Server) session(sessionID string) (*LongPollingSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *Server) handleLongPollingPoll(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.session(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	session.Transport.HandlePoll(w, r)
}

func (s *Server) handleLongPollingSend(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.session(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	session.Transport.HandleSend(w, r)
}

func (s *Server) handleLongPollingDisconnect(w http.ResponseWriter, _ *http.Request, sessionID string) {
	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	if exists {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if exists {
		session.SocketImpl.closeWithReason("client namespace disconnect")
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleFunc(event Event, handler func(s Socket, data interface{})) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[event] = append(s.handlers[event], handler)
}

func (s *Server) handleSocket(socket *socketImpl) {
	s.mu.Lock()
	s.sockets[socket.ID()] = socket
	s.mu.Unlock()

	s.logger.Debug().Str("socket", socket.ID()).Msg("socket added")

	socket.start()
	s.triggerEvent(socket, EventConnect, nil)
}

// dispatch routes every event raised by a socket to the server handlers.
func (s *Server) dispatch(socket Socket, event Event, data interface{}) {
	if event == EventDisconnect {
		s.mu.Lock()
		delete(s.sockets, socket.ID())
		delete(s.sessions, socket.ID())
		s.mu.Unlock()

		s.logger.Debug().Str("socket", socket.ID()).Interface("reason", data).Msg("socket disconnected")
	}

	s.triggerEvent(socket, event, data)
}

func (s *Server) triggerEvent(socket Socket, event Event, data interface{}) {
	s.mu.RLock()
	handlers := s.handlers[event]
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(socket, data)
	}
}

func (s *Server) Broadcast(event Event, data interface{}) {
	s.mu.RLock()
	socketsCopy := make([]Socket, 0, len(s.sockets))
	for _, socket := range s.sockets {
		socketsCopy = append(socketsCopy, socket)
	}
	s.mu.RUnlock()

	for _, socket := range socketsCopy {
		go func(so Socket) {
			if err := so.Send(event, data); err != nil {
				s.logger.Warn().Err(err).Str("socket", so.ID()).Msg("broadcast failed")
			}
		}(socket)
	}
}

func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sockets)
}

func (s *Server) GetSocket(id string) (Socket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	socket, exists := s.sockets[id]
	return socket, exists
}

// Shutdown closes every socket and stops session reaping.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	sockets := make([]Socket, 0, len(s.sockets))
	for _, socket := range s.sockets {
		sockets = append(sockets, socket)
	}
	s.mu.Unlock()

	for _, socket := range sockets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := socket.Close(); err != nil {
			s.logger.Warn().Err(err).Str("socket", socket.ID()).Msg("closing socket")
		}
	}

	return nil
}
