package file

import (
	"sync"
)

// EventKind identifies a transfer notification.
type EventKind uint8

const (
	// EventOffered reports a new incoming offer awaiting acceptance.
	EventOffered EventKind = iota
	// EventProgress reports bytes moved for a transfer.
	EventProgress
	// EventCompleted reports a transfer that finished successfully.
	EventCompleted
	// EventFailed reports a transfer that stopped on an error.
	EventFailed
	// EventCancelled reports a transfer cancelled locally.
	EventCancelled
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventOffered:
		return "offered"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is delivered on Manager.Events. Transfer is a snapshot taken when
// the event was raised.
type Event struct {
	Kind     EventKind
	Transfer Snapshot
	Progress float64
	Reason   FailureReason
	Err      error
}

func newEvent(kind EventKind, s Snapshot) Event {
	return Event{
		Kind:     kind,
		Transfer: s,
		Progress: s.Progress(),
		Reason:   s.Reason,
		Err:      s.Err,
	}
}

// eventQueue is an unbounded FIFO drained into a channel by one goroutine.
// push never blocks, so events can be raised while holding the manager lock
// and still reach the consumer in the order they were raised.
type eventQueue struct {
	mu     sync.Mutex
	wake   *sync.Cond
	items  []Event
	closed bool

	out  chan Event
	done chan struct{}
	wg   sync.WaitGroup
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	q.wake = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.dispatch()
	return q
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, e)
	q.wake.Signal()
}

func (q *eventQueue) dispatch() {
	defer q.wg.Done()
	defer close(q.out)

	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.wake.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		e := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- e:
		case <-q.done:
			return
		}
	}
}

// close stops dispatch, discards undelivered events and closes the channel.
func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.wake.Broadcast()
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}
