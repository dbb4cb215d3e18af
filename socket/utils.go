package socket

import (
	"strings"

	"github.com/google/uuid"
)

// generateID returns a compact random identifier for clients, sockets and
// polling sessions.
func generateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
