package eventloop

import (
	"sync"

	"instant-translator/src/messages"
)

// queue is an unbounded FIFO. Push never blocks, so posters on other
// goroutines cannot be stalled by a busy loop.
type queue struct {
	mu    sync.Mutex
	items []messages.Message
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(m messages.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain takes everything queued so far.
func (q *queue) drain() []messages.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
