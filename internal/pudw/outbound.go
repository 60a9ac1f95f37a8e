package pudw

import (
	"sync"
	"time"
)

// drainInterval and idleTimeout realize the spec's self-quiescing
// outbound queue policy (start draining on first item, stop after a
// sustained empty period) with an interval left implementation-defined
// by the spec; 5ms keeps per-message latency far under the 100ms bound
// it requires.
const (
	drainInterval = 5 * time.Millisecond
	idleTimeout   = 30 * time.Second
)

// OutboundQueue is an unbounded FIFO with a single drainer goroutine
// that starts when the queue transitions empty->non-empty and stops
// after idleTimeout of continuous emptiness, decoupling producers
// (schedule executors) from the single websocket writer.
type OutboundQueue struct {
	mu      sync.Mutex
	items   [][]byte
	draining bool
	send    func([]byte)
}

// NewOutboundQueue creates a queue that delivers drained items to send.
func NewOutboundQueue(send func([]byte)) *OutboundQueue {
	return &OutboundQueue{send: send}
}

// Push enqueues msg, starting the drainer if it is not already running.
func (q *OutboundQueue) Push(msg []byte) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	startDrainer := !q.draining
	if startDrainer {
		q.draining = true
	}
	q.mu.Unlock()

	if startDrainer {
		go q.drain()
	}
}

func (q *OutboundQueue) drain() {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	var emptySince time.Time
	for range ticker.C {
		q.mu.Lock()
		if len(q.items) == 0 {
			if emptySince.IsZero() {
				emptySince = time.Now()
			}
			if time.Since(emptySince) > idleTimeout {
				q.draining = false
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			continue
		}
		emptySince = time.Time{}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.send(item)
	}
}

// Len reports the number of messages currently queued, for tests.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
