package real

import (
	"errors"
	"sync"

	"github.com/opd-ai/otrdata/interfaces"
	"github.com/sirupsen/logrus"
)

// ErrLinkClosed is returned when sending on a closed link.
var ErrLinkClosed = errors.New("message link closed")

// LoopbackLink is an in-process interfaces.IMessageLink. Frames sent on one
// end are delivered to the receiver of the other end in send order on a
// dedicated goroutine, with the peer flipped to the receiver's perspective.
type LoopbackLink struct {
	mu       sync.Mutex
	wake     *sync.Cond
	other    *LoopbackLink
	receiver func(from interfaces.Peer, frame []byte)
	queue    []loopbackFrame
	closed   bool
	wg       sync.WaitGroup
}

type loopbackFrame struct {
	from  interfaces.Peer
	frame []byte
}

// NewLoopbackLinkPair returns two connected link ends.
func NewLoopbackLinkPair() (*LoopbackLink, *LoopbackLink) {
	a, b := newLoopbackLink(), newLoopbackLink()
	a.other, b.other = b, a

	logrus.WithFields(logrus.Fields{
		"function": "NewLoopbackLinkPair",
	}).Debug("Created loopback message link pair")

	return a, b
}

func newLoopbackLink() *LoopbackLink {
	l := &LoopbackLink{}
	l.wake = sync.NewCond(&l.mu)
	l.wg.Add(1)
	go l.deliver()
	return l
}

// Send implements interfaces.IMessageLink.
func (l *LoopbackLink) Send(peer interfaces.Peer, frame []byte) error {
	if !l.IsConnected() {
		return ErrLinkClosed
	}

	other := l.other
	other.mu.Lock()
	defer other.mu.Unlock()
	if other.closed {
		return ErrLinkClosed
	}
	other.queue = append(other.queue, loopbackFrame{
		from:  peer.Remote(),
		frame: append([]byte(nil), frame...),
	})
	other.wake.Signal()
	return nil
}

// SetReceiver implements interfaces.IMessageLink.
func (l *LoopbackLink) SetReceiver(fn func(from interfaces.Peer, frame []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receiver = fn
}

func (l *LoopbackLink) deliver() {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.wake.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		f := l.queue[0]
		l.queue = l.queue[1:]
		receiver := l.receiver
		l.mu.Unlock()

		if receiver != nil {
			receiver(f.from, f.frame)
		}
	}
}

// IsConnected implements interfaces.IMessageLink.
func (l *LoopbackLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

// Close implements interfaces.IMessageLink. Pending frames are dropped.
func (l *LoopbackLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.queue = nil
	l.wake.Broadcast()
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}
