package real

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/otrdata/crypto"
	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/noise"
	"github.com/opd-ai/otrdata/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPeer = interfaces.Peer{Account: "alice", User: "bob", Protocol: "xmpp"}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

// flakyLink fails the first failures sends and records the rest.
type flakyLink struct {
	mu       sync.Mutex
	failures int
	frames   [][]byte
}

func (l *flakyLink) Send(peer interfaces.Peer, frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return errors.New("link busy")
	}
	l.frames = append(l.frames, frame)
	return nil
}

func (l *flakyLink) SetReceiver(fn func(from interfaces.Peer, frame []byte)) {}
func (l *flakyLink) Close() error                                            { return nil }
func (l *flakyLink) IsConnected() bool                                       { return true }

func newSessions(t *testing.T) (*noise.Session, *noise.Session) {
	t.Helper()
	a, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	ini, resp, err := noise.Establish(a, b)
	require.NoError(t, err)
	return ini, resp
}

func TestNoiseChannelRetriesWithBackoff(t *testing.T) {
	ini, _ := newSessions(t)
	link := &flakyLink{failures: 2}
	sleeper := &recordingSleeper{}

	ch := NewNoiseChannel(link, ini, &interfaces.ChannelConfig{RetryAttempts: 3, RetryBackoff: 100 * time.Millisecond})
	ch.SetSleeper(sleeper)

	err := ch.SendRecords([]tlv.Record{{Type: tlv.TypeDataRequest, Value: []byte("x")}}, testPeer, nil)
	require.NoError(t, err)
	assert.Len(t, link.frames, 1)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.delays)
	assert.False(t, ch.IsSimulation())
}

func TestNoiseChannelGivesUp(t *testing.T) {
	ini, _ := newSessions(t)
	link := &flakyLink{failures: 5}
	sleeper := &recordingSleeper{}

	ch := NewNoiseChannel(link, ini, &interfaces.ChannelConfig{RetryAttempts: 2, RetryBackoff: time.Millisecond})
	ch.SetSleeper(sleeper)

	err := ch.SendRecords([]tlv.Record{{Type: tlv.TypeDataRequest}}, testPeer, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Len(t, sleeper.delays, 1)
}

func TestNoiseChannelRejectsOversizedRecord(t *testing.T) {
	ini, _ := newSessions(t)
	ch := NewNoiseChannel(&flakyLink{}, ini, &interfaces.ChannelConfig{RetryAttempts: 1})

	err := ch.SendRecords([]tlv.Record{{Type: tlv.TypeDataResponse, Value: make([]byte, 70000)}}, testPeer, nil)
	assert.ErrorIs(t, err, tlv.ErrValueTooLarge)
}

func TestNoiseChannelLoopback(t *testing.T) {
	ini, resp := newSessions(t)
	la, lb := NewLoopbackLinkPair()

	cfg := &interfaces.ChannelConfig{RetryAttempts: 1}
	alice := NewNoiseChannel(la, ini, cfg)
	bob := NewNoiseChannel(lb, resp, cfg)
	defer alice.Close()
	defer bob.Close()

	type batch struct {
		records []tlv.Record
		peer    interfaces.Peer
	}
	received := make(chan batch, 4)
	bob.SetHandler(func(data []byte, peer interfaces.Peer, tag any) {
		records, err := tlv.Decode(data)
		if err == nil {
			received <- batch{records, peer}
		}
	})

	for _, v := range []string{"one", "two", "three"} {
		require.NoError(t, alice.SendRecords([]tlv.Record{{Type: tlv.TypeDataRequest, Value: []byte(v)}}, testPeer, nil))
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case b := <-received:
			require.Len(t, b.records, 1)
			assert.Equal(t, want, string(b.records[0].Value))
			assert.Equal(t, testPeer.Remote(), b.peer)
		case <-time.After(time.Second):
			t.Fatalf("batch %q not delivered", want)
		}
	}
}

func TestNoiseChannelDropsForgedFrames(t *testing.T) {
	_, resp := newSessions(t)
	la, lb := NewLoopbackLinkPair()
	defer la.Close()

	bob := NewNoiseChannel(lb, resp, &interfaces.ChannelConfig{RetryAttempts: 1})
	defer bob.Close()

	called := make(chan struct{}, 1)
	bob.SetHandler(func(data []byte, peer interfaces.Peer, tag any) { called <- struct{}{} })

	require.NoError(t, la.Send(testPeer, []byte("not a noise frame at all")))

	assert.Eventually(t, func() bool { return bob.Dropped() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, called)
}

func TestNoiseChannelNotConnected(t *testing.T) {
	ini, _ := newSessions(t)
	la, lb := NewLoopbackLinkPair()
	defer lb.Close()

	ch := NewNoiseChannel(la, ini, &interfaces.ChannelConfig{RetryAttempts: 1})
	require.NoError(t, ch.Close())

	err := ch.SendRecords(nil, testPeer, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestLoopbackLinkClosedPeer(t *testing.T) {
	la, lb := NewLoopbackLinkPair()
	defer la.Close()
	require.NoError(t, lb.Close())

	assert.True(t, la.IsConnected())
	assert.ErrorIs(t, la.Send(testPeer, []byte("x")), ErrLinkClosed)
}
