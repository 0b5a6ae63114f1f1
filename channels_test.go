package fleadaq

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatcherCoalesces(t *testing.T) {
	w := NewWatcher(1)
	if w.Changed() {
		t.Error("fresh Watcher reports a pending change")
	}
	assert.Equal(t, 1, w.Observe())

	// A burst of writes coalesces to one observation of the final value.
	w.Set(2)
	w.Set(3)
	w.Set(4)
	if !w.Changed() {
		t.Error("Watcher does not report a pending change after Set")
	}
	assert.Equal(t, 4, w.Observe())
	if w.Changed() {
		t.Error("Watcher still reports a change after Observe")
	}

	// Peek does not consume the changed flag.
	w.Set(5)
	assert.Equal(t, 5, w.Peek())
	if !w.Changed() {
		t.Error("Peek consumed the changed flag")
	}
}

func TestWatcherWaitChan(t *testing.T) {
	w := NewWatcher("a")

	// A change that raced ahead of WaitChan must not be missed: the
	// returned channel is already closed.
	w.Set("b")
	select {
	case <-w.WaitChan():
	default:
		t.Fatal("WaitChan did not report the pending change")
	}

	// After Observe, WaitChan blocks until the next Set.
	w.Observe()
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Set("c")
	}()
	select {
	case <-w.WaitChan():
	case <-time.After(time.Second):
		t.Fatal("WaitChan never woke after Set")
	}
	assert.Equal(t, "c", w.Observe())
}

func TestControlQueueFIFO(t *testing.T) {
	q := NewControlQueue()
	if q.Pending() {
		t.Error("fresh queue reports pending commands")
	}
	ops := []ControlOp{OpPause, OpCalibrate0V, OpResume}
	for _, op := range ops {
		if err := q.TrySend(ControlCommand{Op: op}); err != nil {
			t.Fatalf("TrySend(%s) failed: %v", op, err)
		}
	}
	if !q.Pending() {
		t.Error("queue does not report pending commands")
	}
	for _, want := range ops {
		cmd, ok := q.TryRecv()
		if !ok {
			t.Fatalf("TryRecv came up empty, want %s", want)
		}
		assert.Equal(t, want, cmd.Op)
	}
	if _, ok := q.TryRecv(); ok {
		t.Error("TryRecv returned a command from an empty queue")
	}
}

func TestControlQueueOverflow(t *testing.T) {
	q := NewControlQueue()
	var err error
	for i := 0; i < controlQueueDepth; i++ {
		if err = q.TrySend(ControlCommand{Op: OpStep}); err != nil {
			t.Fatalf("TrySend #%d failed before the queue was full: %v", i, err)
		}
	}
	if err = q.TrySend(ControlCommand{Op: OpExit}); err == nil {
		t.Error("TrySend succeeded on a full queue, want error")
	}
}

func TestNotifierDropsOnOverflow(t *testing.T) {
	n := NewNotifier()
	for i := 0; i < notifierDepth; i++ {
		n.Success("message %d", i)
	}
	// Overflow: the oldest messages stand, the new one is dropped.
	n.Error("dropped")

	for i := 0; i < notifierDepth; i++ {
		note, ok := n.TryRecv()
		if !ok {
			t.Fatalf("TryRecv #%d came up empty", i)
		}
		assert.Equal(t, NotifySuccess, note.Kind)
		assert.Equal(t, fmt.Sprintf("message %d", i), note.Text)
	}
	if note, ok := n.TryRecv(); ok {
		t.Errorf("overflowed notification %q was delivered, want dropped", note.Text)
	}
}

func TestControlOpStrings(t *testing.T) {
	ops := []ControlOp{OpCalibrate0V, OpCalibrate3V, OpStoreCalibration,
		OpPause, OpResume, OpStep, OpExit}
	seen := make(map[string]bool)
	for _, op := range ops {
		s := op.String()
		if seen[s] {
			t.Errorf("duplicate ControlOp string %q", s)
		}
		seen[s] = true
	}
	assert.Equal(t, "ControlOp(99)", ControlOp(99).String())
}
