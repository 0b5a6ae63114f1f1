// Package batchchan provides an unbounded channel of sample batches,
// decoupling the capture worker's continuous-mode reads from however slowly
// the consumer drains them. The worker must never block on a send, and
// continuous batches must not be dropped, so neither a bounded channel nor
// a lossy queue will do.
package batchchan

// Channel carries []float64 batches from one producer to one consumer with
// an elastic queue in between. Close the In side when the producer is done;
// queued batches are flushed before Out closes.
type Channel struct {
	in    chan []float64
	out   chan []float64
	queue [][]float64
}

// New creates and starts a Channel.
func New() *Channel {
	c := &Channel{
		in:  make(chan []float64),
		out: make(chan []float64),
	}
	go c.run()
	return c
}

// In returns the producer side.
func (c *Channel) In() chan<- []float64 { return c.in }

// Out returns the consumer side. It is closed after In is closed and the
// queue has drained.
func (c *Channel) Out() <-chan []float64 { return c.out }

// Close closes the producer side. Safe to call exactly once.
func (c *Channel) Close() { close(c.in) }

func (c *Channel) run() {
	for {
		if len(c.queue) == 0 {
			batch, ok := <-c.in
			if !ok {
				close(c.out)
				return
			}
			c.queue = append(c.queue, batch)
			continue
		}
		select {
		case c.out <- c.queue[0]:
			c.queue = c.queue[1:]
		case batch, ok := <-c.in:
			if !ok {
				for _, b := range c.queue {
					c.out <- b
				}
				close(c.out)
				return
			}
			c.queue = append(c.queue, batch)
		}
	}
}
