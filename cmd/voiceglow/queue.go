package main

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QueuedEvent is a lifecycle event plus the bookkeeping the queue attaches
// to it on Put.
type QueuedEvent struct {
	ID    uuid.UUID
	Event LifecycleEvent
	At    time.Time
}

var errAckWithoutGet = errors.New("event queue: Ack called more times than events were queued")

// EventQueue is an unbounded FIFO of lifecycle events.
//
// Put never blocks and never drops: bursts grow the backlog instead. Gets are
// either non-blocking (TryGet) or bounded by a timeout (GetTimeout). Every
// event handed out must be acknowledged with Ack once it has been handled.
//
// Safe for any number of producers and consumers.
type EventQueue struct {
	mu         sync.Mutex
	items      []QueuedEvent
	unfinished int

	// notify holds at most one wakeup for a consumer parked in GetTimeout.
	notify chan struct{}
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		notify: make(chan struct{}, 1),
	}
}

// Put appends ev and returns the id assigned to it.
func (q *EventQueue) Put(ev LifecycleEvent) uuid.UUID {
	qe := QueuedEvent{
		ID:    uuid.New(),
		Event: ev,
		At:    time.Now(),
	}

	q.mu.Lock()
	q.items = append(q.items, qe)
	q.unfinished++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return qe.ID
}

// TryGet pops the oldest event without blocking. ok is false when the queue
// is empty; that is the normal "nothing pending" signal, not an error.
func (q *EventQueue) TryGet() (QueuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return QueuedEvent{}, false
	}
	qe := q.items[0]
	q.items[0] = QueuedEvent{}
	q.items = q.items[1:]
	return qe, true
}

// GetTimeout pops the oldest event, waiting up to d for one to arrive. The
// wait ends early, with no event, once stop is closed. A nil stop never fires.
func (q *EventQueue) GetTimeout(d time.Duration, stop <-chan struct{}) (QueuedEvent, bool) {
	if qe, ok := q.TryGet(); ok || d <= 0 {
		return qe, ok
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if qe, ok := q.TryGet(); ok {
				return qe, true
			}
		case <-stop:
			return QueuedEvent{}, false
		case <-timer.C:
			return q.TryGet()
		}
	}
}

// Ack marks one previously received event as handled.
func (q *EventQueue) Ack() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished <= 0 {
		return errAckWithoutGet
	}
	q.unfinished--
	return nil
}

// Len returns the number of events waiting to be received.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished returns the number of events put but not yet acknowledged.
func (q *EventQueue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}
