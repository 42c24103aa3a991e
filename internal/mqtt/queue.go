package mqtt

import (
	"errors"
	"log"
	"sync"
	"time"
)

// Errors returned by Queue when an event cannot be accepted.
var (
	ErrQueueFull   = errors.New("publish queue full")
	ErrQueueClosed = errors.New("publish queue closed")
)

// queued is one pending event; exactly one field is set.
type queued struct {
	session *SessionEvent
	system  *SystemEvent
}

// Queue hands events to a background goroutine that owns the broker round
// trip. Publish and PublishSystem never block: when the queue is full the
// event is refused with ErrQueueFull. Events reach next in the order they
// were accepted.
type Queue struct {
	next         Publisher
	drainTimeout time.Duration

	mu     sync.Mutex
	ch     chan queued
	closed bool
	done   chan struct{}
}

// NewQueue starts the publishing goroutine. Close waits up to drainTimeout
// for accepted events to go out before closing next.
func NewQueue(next Publisher, capacity int, drainTimeout time.Duration) *Queue {
	q := &Queue{
		next:         next,
		drainTimeout: drainTimeout,
		ch:           make(chan queued, capacity),
		done:         make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for m := range q.ch {
		if m.system != nil {
			if err := q.next.PublishSystem(*m.system); err != nil {
				log.Printf("[mqtt] %s not published: %v", m.system.Event, err)
			}
			continue
		}
		if err := q.next.Publish(*m.session); err != nil {
			log.Printf("[mqtt] %s not published: %v", m.session.Event.Type, err)
		}
	}
}

func (q *Queue) enqueue(m queued) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish queues a session event.
func (q *Queue) Publish(event SessionEvent) error {
	return q.enqueue(queued{session: &event})
}

// PublishSystem queues a system event.
func (q *Queue) PublishSystem(event SystemEvent) error {
	return q.enqueue(queued{system: &event})
}

// Pending returns the number of accepted events not yet handed to next.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Close stops accepting events, drains the queue and closes next. Events
// still queued after the drain timeout are abandoned.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-time.After(q.drainTimeout):
		log.Printf("[mqtt] gave up draining publish queue, %d events left", len(q.ch))
	}
	return q.next.Close()
}
