package socket

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketq/debug"
	"github.com/kleeedolinux/socketq/socket/transport"
)

type socketImpl struct {
	id       string
	mu       sync.RWMutex
	handlers map[Event][]Handler

	transport transport.ServerTransport
	codec     Codec
	onEvent   func(s Socket, event Event, data interface{})
	connected bool
	log       zerolog.Logger
}

func newSocketFromServerTransport(id string, t transport.ServerTransport, codec Codec, onEvent func(Socket, Event, interface{})) *socketImpl {
	return &socketImpl{
		id:        id,
		handlers:  make(map[Event][]Handler),
		transport: t,
		codec:     codec,
		onEvent:   onEvent,
		connected: true,
		log:       debug.Logger().With().Str("component", "server").Str("socket", id).Logger(),
	}
}

func (s *socketImpl) start() {
	go s.receiveLoop()
}

func (s *socketImpl) receiveLoop() {
	for {
		data, err := s.transport.Read()
		if err != nil {
			s.log.Debug().Err(err).Msg("read failed")
			s.closeWithReason(err.Error())
			return
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("undecodable frame")
			s.triggerEvent(EventError, ErrInvalidMessage)
			continue
		}

		if msg.Event == EventPing {
			s.Send(EventPong, msg.Data)
			continue
		}

		s.triggerEvent(msg.Event, msg.Data)
	}
}

func (s *socketImpl) ID() string {
	return s.id
}

func (s *socketImpl) Send(event Event, data interface{}) error {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()

	if !connected {
		s.log.Debug().Str("event", string(event)).Msg("send on closed socket")
		return ErrConnectionClosed
	}

	payload, err := s.codec.Encode(Message{Event: event, Data: data})
	if err != nil {
		s.log.Debug().Err(err).Str("event", string(event)).Msg("encode failed")
		return err
	}

	err = s.transport.Write(payload)
	if err != nil {
		s.log.Debug().Err(err).Str("event", string(event)).Msg("write failed")
	}
	return err
}

func (s *socketImpl) On(event Event, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[event] = append(s.handlers[event], handler)
}

func (s *socketImpl) Off(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.handlers, event)
}

func (s *socketImpl) triggerEvent(event Event, data interface{}) {
	s.mu.RLock()
	handlers := s.handlers[event]
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(data)
	}

	if s.onEvent != nil {
		s.onEvent(s, event, data)
	}
}

func (s *socketImpl) Close() error {
	return s.closeWithReason("server namespace disconnect")
}

func (s *socketImpl) closeWithReason(reason string) error {
	s.mu.Lock()

	if !s.connected {
		s.mu.Unlock()
		return nil
	}

	s.log.Debug().Str("reason", reason).Msg("closing")
	s.connected = false
	s.mu.Unlock()

	s.triggerEvent(EventDisconnect, reason)

	return s.transport.Close()
}

func (s *socketImpl) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.connected
}
