package queue

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO. Send never blocks; a single pump goroutine
// moves items onto the channel returned by Out so receivers can select on it.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	wake chan struct{}
	done chan struct{}
	out  chan T
	once sync.Once
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan T),
	}
	go q.pump()
	return q
}

func (q *Queue[T]) Send(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting items. Items not yet received are dropped and Out is
// closed shortly after. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}

func (q *Queue[T]) Out() <-chan T { return q.out }

// Done is closed when Close has been called.
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len reports the number of buffered items not yet handed to Out.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) pump() {
	defer close(q.out)
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.items = nil
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
			case <-q.done:
			}
			continue
		}
		v := q.items[0]
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- v:
		case <-q.done:
			return
		}
	}
}
