package fleadaq

import (
	"fmt"
	"sync"
)

// Watcher is a single-slot, latest-value-wins broadcast cell with a
// has-changed flag, connecting non-blocking UI writers to the one worker
// that observes it. A burst of Set calls coalesces: the worker's next
// Observe sees only the final value. A plain queue would either drop
// updates under rapid edits or backpressure the worker mid-read, so this
// deliberately is not one.
type Watcher[T any] struct {
	mu   sync.Mutex
	val  T
	gen  uint64        // bumped on every Set
	seen uint64        // generation last returned by Observe
	wake chan struct{} // closed and replaced on every Set
}

// NewWatcher creates a Watcher holding initial. The initial value counts
// as already observed.
func NewWatcher[T any](initial T) *Watcher[T] {
	return &Watcher[T]{val: initial, wake: make(chan struct{})}
}

// Set replaces the stored value and wakes any Wait-er. Never blocks.
func (w *Watcher[T]) Set(val T) {
	w.mu.Lock()
	w.val = val
	w.gen++
	close(w.wake)
	w.wake = make(chan struct{})
	w.mu.Unlock()
}

// Peek returns the current value without consuming the changed flag.
func (w *Watcher[T]) Peek() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.val
}

// Changed reports whether Set has been called since the last Observe.
func (w *Watcher[T]) Changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen != w.seen
}

// Observe returns the current value and marks it observed.
func (w *Watcher[T]) Observe() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = w.gen
	return w.val
}

// WaitChan returns a channel that is closed at the next Set. If a change is
// already pending the returned channel is already closed, so selecting on
// it will not miss updates that raced with the caller.
func (w *Watcher[T]) WaitChan() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != w.seen {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return w.wake
}

// ControlCommand is one entry in the worker's command queue.
type ControlCommand struct {
	Op    ControlOp
	Probe ProbeKind // for the calibrate ops
}

// ControlOp enumerates the worker's control operations.
type ControlOp int

// Names for the possible values of ControlOp
const (
	OpCalibrate0V ControlOp = iota
	OpCalibrate3V
	OpStoreCalibration
	OpPause
	OpResume
	OpStep
	OpExit
)

func (op ControlOp) String() string {
	switch op {
	case OpCalibrate0V:
		return "calibrate0V"
	case OpCalibrate3V:
		return "calibrate3V"
	case OpStoreCalibration:
		return "storeCalibration"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpStep:
		return "step"
	case OpExit:
		return "exit"
	}
	return fmt.Sprintf("ControlOp(%d)", int(op))
}

// controlQueueDepth bounds the command queue. Deep enough that a burst of
// UI clicks fits; callers must treat a full queue as "try again later".
const controlQueueDepth = 32

// ControlQueue is a bounded multi-writer, single-reader FIFO. Producers
// only ever TrySend, so no UI action can stall waiting on the worker.
type ControlQueue struct {
	ch chan ControlCommand
}

// NewControlQueue creates an empty command queue.
func NewControlQueue() *ControlQueue {
	return &ControlQueue{ch: make(chan ControlCommand, controlQueueDepth)}
}

// TrySend enqueues cmd without blocking. A full queue is an error the
// caller should surface as "busy", not a crash.
func (q *ControlQueue) TrySend(cmd ControlCommand) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return fmt.Errorf("control queue full, %s command dropped", cmd.Op)
	}
}

// TryRecv dequeues one command without blocking.
func (q *ControlQueue) TryRecv() (ControlCommand, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
		return ControlCommand{}, false
	}
}

// Pending reports whether at least one command is waiting. Used as a
// cancellation source while a hardware read is in flight.
func (q *ControlQueue) Pending() bool {
	return len(q.ch) > 0
}

// Recv exposes the underlying channel for blocking receives (the paused
// state selects on this alongside config changes).
func (q *ControlQueue) Recv() <-chan ControlCommand {
	return q.ch
}

// NotifyKind distinguishes success toasts from error toasts.
type NotifyKind int

// Names for the possible values of NotifyKind
const (
	NotifySuccess NotifyKind = iota
	NotifyError
)

// Notification is an advisory, user-visible message from the worker.
type Notification struct {
	Kind NotifyKind
	Text string
}

const notifierDepth = 16

// Notifier is the bounded worker→UI notification channel. Notifications
// are advisory: on overflow the oldest messages stand and the new one is
// dropped with a log line.
type Notifier struct {
	ch chan Notification
}

// NewNotifier creates an empty notification channel.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan Notification, notifierDepth)}
}

// Success enqueues a success notification, dropping it if the channel is full.
func (n *Notifier) Success(format string, args ...interface{}) {
	n.send(Notification{Kind: NotifySuccess, Text: fmt.Sprintf(format, args...)})
}

// Error enqueues an error notification, dropping it if the channel is full.
func (n *Notifier) Error(format string, args ...interface{}) {
	n.send(Notification{Kind: NotifyError, Text: fmt.Sprintf(format, args...)})
}

func (n *Notifier) send(note Notification) {
	select {
	case n.ch <- note:
	default:
		ProblemLogger.Printf("notification channel full, dropping: %s", note.Text)
	}
}

// TryRecv drains one notification without blocking.
func (n *Notifier) TryRecv() (Notification, bool) {
	select {
	case note := <-n.ch:
		return note, true
	default:
		return Notification{}, false
	}
}
