package socket

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func drained(b *Buffer) ([]string, bool) {
	var out []string
	ok := b.Drain(func(op Operation) {
		out = append(out, op.String())
	})
	return out, ok
}

func TestBufferDrainOrder(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []string
	}{
		{
			name: "ascending priority",
			ops: []Operation{
				{Kind: OpBind, Event: "ack", Priority: 3},
				{Kind: OpBind, Event: "msg", Priority: 1},
				{Kind: OpEmit, Event: "hello", Priority: 2},
			},
			want: []string{`bind "msg" (p=1)`, `emit "hello" (p=2)`, `bind "ack" (p=3)`},
		},
		{
			name: "ties keep enqueue order",
			ops: []Operation{
				{Kind: OpEmit, Event: "a", Priority: 2},
				{Kind: OpEmit, Event: "b", Priority: 2},
				{Kind: OpUnbind, Event: "c", Priority: 0},
				{Kind: OpEmit, Event: "d", Priority: 2},
			},
			want: []string{`unbind "c" (p=0)`, `emit "a" (p=2)`, `emit "b" (p=2)`, `emit "d" (p=2)`},
		},
		{
			name: "duplicates are kept",
			ops: []Operation{
				{Kind: OpBind, Event: "x", Priority: 2},
				{Kind: OpBind, Event: "x", Priority: 2},
			},
			want: []string{`bind "x" (p=2)`, `bind "x" (p=2)`},
		},
		{
			name: "negative priorities first",
			ops: []Operation{
				{Kind: OpClearAll, Priority: 5},
				{Kind: OpBindOnce, Event: "y", Priority: -1},
			},
			want: []string{`once "y" (p=-1)`, `clear(p=5)`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer()
			for _, op := range tt.ops {
				b.Enqueue(op)
			}

			got, ok := drained(b)
			if !ok {
				t.Fatal("Drain reported an empty buffer")
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("drain order (-want +got):\n%s", diff)
			}
			if b.Len() != 0 {
				t.Errorf("expected empty buffer after drain, got %d", b.Len())
			}
		})
	}
}

func TestBufferDrainEmpty(t *testing.T) {
	b := NewBuffer()

	called := false
	if b.Drain(func(Operation) { called = true }) {
		t.Error("expected Drain to report false on an empty buffer")
	}
	if called {
		t.Error("visitor must not run on an empty buffer")
	}
}

func TestBufferDrainRemovesBeforeVisit(t *testing.T) {
	b := NewBuffer()
	b.Enqueue(Operation{Kind: OpEmit, Event: "a"})
	b.Enqueue(Operation{Kind: OpEmit, Event: "b"})

	var seen []int
	b.Drain(func(op Operation) {
		seen = append(seen, b.Len())
		if op.Event == "a" {
			b.Enqueue(Operation{Kind: OpEmit, Event: "late"})
		}
	})

	if diff := cmp.Diff([]int{0, 1}, seen); diff != "" {
		t.Errorf("buffer length during visits (-want +got):\n%s", diff)
	}

	got, _ := drained(b)
	if diff := cmp.Diff([]string{`emit "late" (p=0)`}, got); diff != "" {
		t.Errorf("second drain (-want +got):\n%s", diff)
	}
}

func TestBufferFlush(t *testing.T) {
	b := NewBuffer()
	if n := b.Flush(); n != 0 {
		t.Errorf("flush of empty buffer dropped %d", n)
	}

	b.Enqueue(Operation{Kind: OpBind, Event: "a", Priority: 1})
	b.Enqueue(Operation{Kind: OpEmit, Event: "b", Priority: 2})

	if n := b.Flush(); n != 2 {
		t.Errorf("expected 2 dropped, got %d", n)
	}
	if _, ok := drained(b); ok {
		t.Error("expected nothing to drain after flush")
	}
}

func TestBufferSnapshot(t *testing.T) {
	b := NewBuffer()
	b.Enqueue(Operation{Kind: OpEmit, Event: "b", Priority: 3})
	b.Enqueue(Operation{Kind: OpEmit, Event: "a", Priority: 1})

	snap := b.Snapshot()
	got := []Event{snap[0].Event, snap[1].Event}
	if diff := cmp.Diff([]Event{"b", "a"}, got); diff != "" {
		t.Errorf("snapshot order (-want +got):\n%s", diff)
	}
	if b.Len() != 2 {
		t.Errorf("snapshot must not consume entries, len %d", b.Len())
	}
}

func TestOperationDefaults(t *testing.T) {
	if got := priorityOf(nil); got != DefaultPriority {
		t.Errorf("priorityOf(nil) = %d, want %d", got, DefaultPriority)
	}
	if got := priorityOf([]int{7, 1}); got != 7 {
		t.Errorf("priorityOf([7 1]) = %d, want 7", got)
	}
	if got := OpKind(42).String(); got != "OpKind(42)" {
		t.Errorf("unexpected kind string %q", got)
	}
}
