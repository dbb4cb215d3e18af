package socket

import (
	"sort"
	"sync"
)

// Buffer holds operations deferred while the transport is disconnected.
// Entries are unordered until Drain sorts them by priority.
type Buffer struct {
	mu    sync.Mutex
	items []Operation
	seq   uint64
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Enqueue(op Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	op.seq = b.seq
	b.items = append(b.items, op)
}

// Drain removes every buffered operation and hands them to visit in ascending
// priority order, ties in enqueue order. It reports false, without calling
// visit, when the buffer is empty. Entries are removed before the first visit,
// so an operation whose replay fails is not requeued.
func (b *Buffer) Drain(visit func(Operation)) bool {
	b.mu.Lock()
	if len(b.items) == 0 {
		b.mu.Unlock()
		return false
	}
	items := b.items
	b.items = nil
	b.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].seq < items[j].seq
	})

	for _, op := range items {
		visit(op)
	}
	return true
}

// Flush discards every buffered operation and returns how many were dropped.
func (b *Buffer) Flush() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	b.items = nil
	return n
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Snapshot returns the buffered operations in enqueue order.
func (b *Buffer) Snapshot() []Operation {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Operation, len(b.items))
	copy(out, b.items)
	return out
}
