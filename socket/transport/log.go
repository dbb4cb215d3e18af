package transport

import (
	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketq/debug"
)

// newLogger derives the logger a transport writes its connection traces to.
func newLogger(kind string) zerolog.Logger {
	return debug.Logger().With().Str("component", "transport").Str("transport", kind).Logger()
}
