package file

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventOffered, "offered"},
		{EventProgress, "progress"},
		{EventCompleted, "completed"},
		{EventFailed, "failed"},
		{EventCancelled, "cancelled"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestNewEventCopiesFailure(t *testing.T) {
	cause := errors.New("boom")
	e := newEvent(EventFailed, Snapshot{
		ID:               "t1",
		FileLength:       200,
		BytesTransferred: 50,
		Reason:           ReasonHashMismatch,
		Err:              cause,
	})

	assert.Equal(t, EventFailed, e.Kind)
	assert.Equal(t, "t1", e.Transfer.ID)
	assert.InDelta(t, 0.25, e.Progress, 1e-9)
	assert.Equal(t, ReasonHashMismatch, e.Reason)
	assert.Same(t, cause, e.Err)
}

func TestEventQueueFIFO(t *testing.T) {
	q := newEventQueue()
	defer q.close()

	for i := 0; i < 100; i++ {
		q.push(Event{Kind: EventProgress, Transfer: Snapshot{BytesTransferred: int64(i)}})
	}

	for i := 0; i < 100; i++ {
		select {
		case e := <-q.out:
			require.Equal(t, int64(i), e.Transfer.BytesTransferred)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestEventQueuePushNeverBlocks(t *testing.T) {
	q := newEventQueue()
	defer q.close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.push(Event{Kind: EventProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked without a consumer")
	}
}

func TestEventQueueClose(t *testing.T) {
	q := newEventQueue()
	q.push(Event{Kind: EventOffered})
	q.push(Event{Kind: EventCompleted})

	q.close()
	q.close()
	q.push(Event{Kind: EventFailed})

	for range q.out {
	}
	_, ok := <-q.out
	assert.False(t, ok)
}
