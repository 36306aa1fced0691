package router

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// queue is an unbounded FIFO shared by one or more producers and a single
// consumer. Closing it discards whatever is still queued.
type queue struct {
	lock   sync.Mutex
	items  []interface{}
	closed bool

	// notify holds at most one pending wake-up for the consumer.
	notify chan struct{}
	done   chan struct{}
}

func newQueue() *queue {
	return &queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *queue) enqueue(item interface{}) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return errors.WithStack(ErrRouteClosed)
	}
	q.items = append(q.items, item)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *queue) tryDequeue() (item interface{}, ok bool, err error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return nil, false, errors.WithStack(ErrRouteClosed)
	}
	if len(q.items) == 0 {
		return nil, false, nil
	}
	item = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item, true, nil
}

// dequeue blocks until an item is available, the queue is closed or
// timeout expires. A zero timeout waits forever.
func (q *queue) dequeue(timeout time.Duration) (interface{}, error) {
	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	for {
		item, ok, err := q.tryDequeue()
		if err != nil {
			return nil, err
		}
		if ok {
			return item, nil
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-timeoutChan:
			return nil, errors.WithStack(ErrTimeout)
		}
	}
}

func (q *queue) len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.items)
}

// close returns false if the queue was already closed.
func (q *queue) close() bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return false
	}
	q.closed = true
	q.items = nil
	close(q.done)
	return true
}
