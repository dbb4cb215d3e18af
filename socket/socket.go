package socket

import (
	"errors"
)

type Event string

const (
	EventConnect    Event = "connect"
	EventReconnect  Event = "reconnect"
	EventPing       Event = "ping"
	EventPong       Event = "pong"
	EventDisconnect Event = "disconnect"
	EventError      Event = "error"
	EventMessage    Event = "message"
)

// ReasonClientDisconnect is the disconnect reason reported when the local side
// closed the connection.
const ReasonClientDisconnect = "io client disconnect"

type Message struct {
	Event Event       `json:"event" msgpack:"event"`
	Data  interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
}

// Handler receives the payload delivered with an event.
type Handler func(data interface{})

// Handle is a live connection as seen by the Manager. Lifecycle signals
// (connect, reconnect, ping, disconnect) are delivered through On like any
// other event and must never run concurrently with each other.
type Handle interface {
	ID() string

	IsConnected() bool

	On(event Event, handler Handler)

	Once(event Event, handler Handler)

	// Off detaches every handler bound to event.
	Off(event Event)

	Emit(event Event, data interface{}) error

	Disconnect() error
}

// Opener is implemented by handles that postpone dialing until Open is
// called, so that lifecycle handlers can be attached first.
type Opener interface {
	Open()
}

// Observer is implemented by handles that keep a second listener table which
// Off never touches. The Manager attaches its lifecycle hooks there so that
// application calls to Off cannot unhook them.
type Observer interface {
	Observe(event Event, handler Handler)
}

// Socket is the server side of a connection.
type Socket interface {
	ID() string

	Send(event Event, data interface{}) error

	On(event Event, handler Handler)

	Off(event Event)

	Close() error

	IsConnected() bool
}

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidMessage   = errors.New("invalid message format")
	ErrConfiguration    = errors.New("socket: configuration error")
)

// ConfigurationError reports a Connect call that cannot proceed because of
// missing or invalid arguments. No transport handle is created.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "socket: invalid " + e.Field + ": " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
