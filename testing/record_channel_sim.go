package testing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/tlv"
	"github.com/sirupsen/logrus"
)

// ErrSimulatedFailure is returned by SendRecords while failure injection is on.
var ErrSimulatedFailure = errors.New("simulated channel failure")

// ErrChannelClosed is returned by SendRecords after Close.
var ErrChannelClosed = errors.New("simulated channel closed")

// SimulatedChannel implements interfaces.IRecordChannel in memory. Every
// send is recorded in a delivery log. When linked to another channel, sent
// batches are encoded and handed to the other side's handler in send order
// on a separate goroutine, so handlers may send replies without re-entering
// the sender.
type SimulatedChannel struct {
	mu          sync.Mutex
	deliveryLog []DeliveryRecord
	config      *interfaces.ChannelConfig
	failing     bool
	closed      bool

	peer    *SimulatedChannel
	handler interfaces.MessageHandler

	inbox  []inboundBatch
	wake   *sync.Cond
	wg     sync.WaitGroup
	active int
}

// DeliveryRecord represents a record batch send for testing verification.
type DeliveryRecord struct {
	Peer      interfaces.Peer
	Records   []tlv.Record
	Tag       any
	Timestamp time.Time
	Success   bool
	Error     error
}

type inboundBatch struct {
	data []byte
	peer interfaces.Peer
}

// NewSimulatedChannel creates a new in-memory channel for testing.
func NewSimulatedChannel(config *interfaces.ChannelConfig) *SimulatedChannel {
	if config == nil {
		config = &interfaces.ChannelConfig{UseSimulation: true, RetryAttempts: 1}
	}

	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedChannel",
		"retries":  config.RetryAttempts,
	}).Info("Creating simulated record channel for testing")

	s := &SimulatedChannel{
		config: config,
	}
	s.wake = sync.NewCond(&s.mu)
	s.wg.Add(1)
	go s.pump()
	return s
}

// Link connects two simulated channels so each delivers to the other.
func Link(a, b *SimulatedChannel) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()

	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

// SetHandler installs the callback receiving batches from the linked channel.
func (s *SimulatedChannel) SetHandler(h interfaces.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetFailing turns failure injection on or off.
func (s *SimulatedChannel) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// SendRecords implements interfaces.IRecordChannel with simulation.
func (s *SimulatedChannel) SendRecords(records []tlv.Record, peer interfaces.Peer, tag any) error {
	logrus.WithFields(logrus.Fields{
		"function":     "SimulatedChannel.SendRecords",
		"peer":         peer.String(),
		"record_count": len(records),
	}).Debug("Simulating record delivery")

	copied := make([]tlv.Record, len(records))
	for i, r := range records {
		copied[i] = tlv.Record{Type: r.Type, Value: append([]byte(nil), r.Value...)}
	}

	s.mu.Lock()
	err := s.sendError()
	var target *SimulatedChannel
	if err == nil {
		target = s.peer
	}
	s.deliveryLog = append(s.deliveryLog, DeliveryRecord{
		Peer:      peer,
		Records:   copied,
		Tag:       tag,
		Timestamp: time.Now(),
		Success:   err == nil,
		Error:     err,
	})
	s.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SimulatedChannel.SendRecords",
			"peer":     peer.String(),
			"error":    err.Error(),
		}).Warn("Simulated delivery failed")
		return err
	}

	if target != nil {
		data, encErr := tlv.EncodeAll(copied...)
		if encErr != nil {
			return fmt.Errorf("failed to encode record batch: %w", encErr)
		}
		target.enqueue(inboundBatch{data: data, peer: peer.Remote()})
	}
	return nil
}

// sendError returns the injected error for the next send. Caller holds mu.
func (s *SimulatedChannel) sendError() error {
	switch {
	case s.closed:
		return ErrChannelClosed
	case s.failing:
		return ErrSimulatedFailure
	}
	return nil
}

func (s *SimulatedChannel) enqueue(b inboundBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.inbox = append(s.inbox, b)
	s.wake.Signal()
}

// pump hands queued batches to the handler in arrival order.
func (s *SimulatedChannel) pump() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.inbox) == 0 && !s.closed {
			s.wake.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		batch := s.inbox[0]
		s.inbox = s.inbox[1:]
		handler := s.handler
		s.active++
		s.mu.Unlock()

		if handler != nil {
			handler(batch.data, batch.peer, nil)
		}

		s.mu.Lock()
		s.active--
		s.wake.Broadcast()
		s.mu.Unlock()
	}
}

// Idle reports whether no inbound batch is queued or being handled.
func (s *SimulatedChannel) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbox) == 0 && s.active == 0
}

// Close stops delivery. Queued batches are discarded. Close must not be
// called from inside a handler.
func (s *SimulatedChannel) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.inbox = nil
	s.wake.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// IsSimulation returns true; this is a simulation implementation.
func (s *SimulatedChannel) IsSimulation() bool {
	return true
}

// GetDeliveryLog returns a copy of the delivery log for testing verification.
func (s *SimulatedChannel) GetDeliveryLog() []DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeliveryRecord, len(s.deliveryLog))
	copy(out, s.deliveryLog)
	return out
}

// ClearDeliveryLog clears the delivery log.
func (s *SimulatedChannel) ClearDeliveryLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryLog = nil
}

// SentRecords returns every record of every successful send, in order.
func (s *SimulatedChannel) SentRecords() []tlv.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []tlv.Record
	for _, d := range s.deliveryLog {
		if d.Success {
			out = append(out, d.Records...)
		}
	}
	return out
}
