package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kleeedolinux/socketq/debug"
	"github.com/kleeedolinux/socketq/socket"
)

// newManager builds a Manager and the Client options from the [client]
// section.
func newManager() (*socket.Manager, []socket.ClientOption, error) {
	managerOpts, err := cfg.Client.managerOptions()
	if err != nil {
		return nil, nil, err
	}
	clientOpts, err := cfg.Client.clientOptions()
	if err != nil {
		return nil, nil, err
	}

	logger := debug.Logger().With().Str("component", "socket").Logger()
	m := socket.NewManager(append(managerOpts, socket.WithLogger(logger))...)
	return m, clientOpts, nil
}

func resolveURI(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Client.URI
}

func eventName(raw string) socket.Event {
	return socket.Event(strings.TrimSpace(raw))
}

type eventBinding struct {
	event    socket.Event
	priority int
}

// parseEventBindings reads "name" or "name:priority" entries.
func parseEventBindings(raw []string) ([]eventBinding, error) {
	bindings := make([]eventBinding, 0, len(raw))
	for _, r := range raw {
		name, prio, found := strings.Cut(r, ":")
		b := eventBinding{event: eventName(name), priority: socket.DefaultPriority}
		if b.event == "" {
			return nil, fmt.Errorf("empty event name in %q", r)
		}
		if found {
			p, err := strconv.Atoi(prio)
			if err != nil {
				return nil, fmt.Errorf("bad priority in %q: %w", r, err)
			}
			b.priority = p
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}
