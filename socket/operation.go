package socket

import "fmt"

// DefaultPriority is used when a call does not name a priority. Lower values
// drain first.
const DefaultPriority = 2

// OpKind identifies what a deferred operation does when replayed.
type OpKind int

const (
	OpBind OpKind = iota
	OpBindOnce
	OpUnbind
	OpClearAll
	OpEmit
)

func (k OpKind) String() string {
	switch k {
	case OpBind:
		return "bind"
	case OpBindOnce:
		return "once"
	case OpUnbind:
		return "unbind"
	case OpClearAll:
		return "clear"
	case OpEmit:
		return "emit"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Operation is a listener or emit call deferred while disconnected. Which
// fields are meaningful depends on Kind: Handler for binds, Data for emits,
// Event for everything but OpClearAll.
type Operation struct {
	Kind     OpKind
	Event    Event
	Handler  Handler
	Data     interface{}
	Priority int

	seq uint64
}

func (op Operation) String() string {
	if op.Kind == OpClearAll {
		return fmt.Sprintf("%s(p=%d)", op.Kind, op.Priority)
	}
	return fmt.Sprintf("%s %q (p=%d)", op.Kind, op.Event, op.Priority)
}

func priorityOf(priority []int) int {
	if len(priority) == 0 {
		return DefaultPriority
	}
	return priority[0]
}
