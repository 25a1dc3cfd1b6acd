package live

import (
	"sync"

	"github.com/pollrelay/pollengine/types"
)

// dropOldestQueueSize is the per-viewer bounded queue depth (§4.7): a
// slow viewer loses its oldest buffered events rather than blocking
// the broadcaster or getting disconnected.
const dropOldestQueueSize = 32

// dropOldestQueue is a bounded FIFO that, once full, discards its
// oldest element to make room for a new one. A Go channel alone can't
// express this policy (a full buffered channel either blocks the
// sender or drops the newest value), so this keeps its own slice
// behind a mutex and signals a consumer goroutine via a 1-buffered
// wake channel.
type dropOldestQueue struct {
	mu     sync.Mutex
	items  []types.Event
	wake   chan struct{}
	closed bool
}

func newDropOldestQueue() *dropOldestQueue {
	return &dropOldestQueue{
		items: make([]types.Event, 0, dropOldestQueueSize),
		wake:  make(chan struct{}, 1),
	}
}

// Push appends an event, dropping the oldest buffered one if the queue
// is already at capacity.
func (q *dropOldestQueue) Push(e types.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if len(q.items) >= dropOldestQueueSize {
		q.items = q.items[1:]
	}
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drain removes and returns every currently buffered event.
func (q *dropOldestQueue) Drain() []types.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]types.Event, 0, dropOldestQueueSize)
	return out
}

// Wake is signaled whenever Push adds to a (possibly previously empty)
// queue; a consumer should Drain after each receive.
func (q *dropOldestQueue) Wake() <-chan struct{} { return q.wake }

func (q *dropOldestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}
