package file

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/tlv"
	"github.com/opd-ai/otrdata/tunnel"
	"github.com/stretchr/testify/require"
)

var (
	alicePeer = interfaces.Peer{Account: "alice@example.org", User: "bob@example.org", Protocol: "xmpp"}
	bobPeer   = alicePeer.Remote()
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// sentRecord is one record captured by mockChannel.
type sentRecord struct {
	record tlv.Record
	peer   interfaces.Peer
	tag    any
}

// message parses the tunneled message carried by the record.
func (s sentRecord) message(t *testing.T) *tunnel.Message {
	t.Helper()
	msg, err := tunnel.Parse(s.record.Value)
	require.NoError(t, err)
	return msg
}

// mockChannel implements interfaces.IRecordChannel for testing.
type mockChannel struct {
	mu   sync.Mutex
	sent []sentRecord
	err  error
}

func newMockChannel() *mockChannel {
	return &mockChannel{}
}

func (c *mockChannel) SendRecords(records []tlv.Record, peer interfaces.Peer, tag any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, err := tlv.EncodeAll(records...); err != nil {
		return err
	}
	for _, r := range records {
		c.sent = append(c.sent, sentRecord{record: r, peer: peer, tag: tag})
	}
	return nil
}

func (c *mockChannel) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// take returns and clears every captured record.
func (c *mockChannel) take() []sentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sent
	c.sent = nil
	return out
}

// pending returns a copy of captured records without clearing them.
func (c *mockChannel) pending() []sentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentRecord(nil), c.sent...)
}

var errChannelDown = errors.New("channel down")

// testConfig uses timers long enough never to fire during a test.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FetchTimeout = time.Hour
	return cfg
}

func newTestManager(t testing.TB, cfg Config) (*Manager, *mockChannel) {
	t.Helper()
	ch := newMockChannel()
	m, err := NewManager(ch, cfg)
	require.NoError(t, err)
	m.SetTimeProvider(newMockTimeProvider())
	t.Cleanup(func() { _ = m.Close() })
	return m, ch
}

// transferPair wires two managers through mock channels. Records only move
// when the test calls deliver or pump, which keeps interleavings exact.
type transferPair struct {
	t       testing.TB
	alice   *Manager
	bob     *Manager
	aliceCh *mockChannel
	bobCh   *mockChannel
}

func newTransferPair(t testing.TB, aliceCfg, bobCfg Config) *transferPair {
	t.Helper()
	p := &transferPair{t: t}
	p.alice, p.aliceCh = newTestManager(t, aliceCfg)
	p.bob, p.bobCh = newTestManager(t, bobCfg)
	return p
}

// deliver hands records to a manager as if they came off the wire.
func deliver(m *Manager, records []sentRecord) {
	for _, r := range records {
		m.OnRecordsReceived([]tlv.Record{r.record}, r.peer.Remote(), nil)
	}
}

// pump moves records in both directions until neither side sends anything.
func (p *transferPair) pump() {
	for i := 0; i < 100000; i++ {
		fromAlice := p.aliceCh.take()
		fromBob := p.bobCh.take()
		if len(fromAlice) == 0 && len(fromBob) == 0 {
			return
		}
		deliver(p.bob, fromAlice)
		deliver(p.alice, fromBob)
	}
	p.t.Fatal("pump did not settle")
}

// offer sends content from alice and delivers the offer to bob.
func (p *transferPair) offer(name string, content []byte) string {
	p.t.Helper()
	id, err := p.alice.SendFile(name, content, alicePeer, nil)
	require.NoError(p.t, err)
	deliver(p.bob, p.aliceCh.take())
	return id
}

// nextEvent reads one event or fails the test.
func nextEvent(t *testing.T, m *Manager) Event {
	t.Helper()
	select {
	case e, ok := <-m.Events():
		require.True(t, ok, "event channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// waitForEvent reads events until one of kind arrives for id.
func waitForEvent(t *testing.T, m *Manager, id string, kind EventKind) Event {
	t.Helper()
	for {
		e := nextEvent(t, m)
		if e.Transfer.ID == id && e.Kind == kind {
			return e
		}
	}
}

// pendingRequestIDs lists the request ids of outstanding fetches for id.
func pendingRequestIDs(m *Manager, id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.findLocked(id, nil)
	if err != nil {
		return nil
	}
	var out []string
	for reqID := range m.sched.byTransfer[e.base().key()] {
		out = append(out, reqID)
	}
	return out
}

func testContent(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + i/251)
	}
	return data
}
