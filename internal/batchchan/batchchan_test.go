package batchchan

import (
	"testing"
	"time"
)

// The producer side must never block, no matter how slow the consumer is.
func TestSendsNeverBlock(t *testing.T) {
	c := New()
	const nbatches = 1000
	done := make(chan struct{})
	go func() {
		for i := 0; i < nbatches; i++ {
			c.In() <- []float64{float64(i)}
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked with no consumer draining")
	}

	for i := 0; i < nbatches; i++ {
		select {
		case batch := <-c.Out():
			if len(batch) != 1 || batch[0] != float64(i) {
				t.Fatalf("batch %d out of order: got %v", i, batch)
			}
		case <-time.After(time.Second):
			t.Fatalf("consumer starved at batch %d", i)
		}
	}
	c.Close()
}

// Close flushes the queue: every batch sent before Close is delivered, then
// Out closes.
func TestCloseFlushesQueue(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.In() <- []float64{float64(i)}
	}
	c.Close()

	n := 0
	for batch := range c.Out() {
		if batch[0] != float64(n) {
			t.Errorf("batch %d out of order: got %v", n, batch[0])
		}
		n++
	}
	if n != 10 {
		t.Errorf("drained %d batches after Close, want 10", n)
	}
}
