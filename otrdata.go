package otrdata

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/otrdata/crypto"
	"github.com/opd-ai/otrdata/factory"
	"github.com/opd-ai/otrdata/file"
	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/tlv"
	"github.com/sirupsen/logrus"
)

// ErrClosed indicates the data handler has been closed.
var ErrClosed = errors.New("data handler closed")

// ReceiveStats counts what ReceiveMessage has seen.
type ReceiveStats struct {
	Messages  int
	Records   int
	Skipped   int
	Truncated int
}

// DataHandler is the entry point for in-band file transfers with one record
// channel. It feeds received records to a file.Manager and exposes the
// transfer operations.
type DataHandler struct {
	manager *file.Manager
	channel interfaces.IRecordChannel
	sealer  crypto.WipingSealer

	// closer is set when the handler owns its channel.
	closer func() error

	mu     sync.Mutex
	stats  ReceiveStats
	closed bool
}

// handlerSetter is implemented by channels that deliver inbound batches.
type handlerSetter interface {
	SetHandler(h interfaces.MessageHandler)
}

// New creates a DataHandler sending through ch. If ch also delivers inbound
// batches, the handler registers itself to receive them; otherwise the host
// calls ReceiveMessage.
func New(opts *Options, ch interfaces.IRecordChannel) (*DataHandler, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if ch == nil {
		return nil, errors.New("record channel is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	cfg := opts.transferConfig()
	sealer, err := opts.sealer()
	if err != nil {
		return nil, fmt.Errorf("failed to derive at-rest key: %w", err)
	}
	if sealer != nil {
		cfg.Sealer = sealer
	}

	manager, err := file.NewManager(ch, cfg)
	if err != nil {
		if sealer != nil {
			sealer.Wipe()
		}
		return nil, err
	}

	h := &DataHandler{
		manager: manager,
		channel: ch,
		sealer:  sealer,
	}
	if hs, ok := ch.(handlerSetter); ok {
		hs.SetHandler(h.ReceiveMessage)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "New",
		"chunk_size":      opts.ChunkSize,
		"at_rest_sealing": sealer != nil,
		"at_rest_cipher":  opts.AtRestCipher.String(),
	}).Info("Created data handler")

	return h, nil
}

// NewLoopbackPair creates two connected handlers for local transfers. The
// channel mode follows opts.Channel: a Noise XX session between the two
// identities over an in-process link, or linked simulated channels.
func NewLoopbackPair(opts *Options, a, b *crypto.KeyPair) (*DataHandler, *DataHandler, error) {
	if opts == nil {
		opts = NewOptions()
	}

	f := factory.NewChannelFactory()
	if err := f.UpdateConfig(&opts.Channel); err != nil {
		return nil, nil, fmt.Errorf("invalid channel options: %w", err)
	}
	ca, cb, err := f.CreateLoopbackPair(a, b)
	if err != nil {
		return nil, nil, err
	}

	ha, err := New(opts, ca)
	if err != nil {
		_ = ca.Close()
		_ = cb.Close()
		return nil, nil, err
	}
	hb, err := New(opts, cb)
	if err != nil {
		_ = ha.Close()
		_ = ca.Close()
		_ = cb.Close()
		return nil, nil, err
	}
	ha.closer = ca.Close
	hb.closer = cb.Close

	return ha, hb, nil
}

// SendFile offers content to peer and returns the transfer id.
func (h *DataHandler) SendFile(name string, content []byte, peer interfaces.Peer, tag any) (string, error) {
	return h.manager.SendFile(name, content, peer, tag)
}

// AcceptIncomingTransfer starts fetching an offered file.
func (h *DataHandler) AcceptIncomingTransfer(id string) error {
	return h.manager.AcceptIncomingTransfer(id)
}

// AcceptIncomingTransferFrom accepts the offer peer made under id.
func (h *DataHandler) AcceptIncomingTransferFrom(peer interfaces.Peer, id string) error {
	return h.manager.AcceptIncomingTransferFrom(peer, id)
}

// Cancel stops a transfer, or releases it if it already completed or failed.
func (h *DataHandler) Cancel(id string) error {
	return h.manager.Cancel(id)
}

// CancelFrom cancels the transfer shared with peer under id.
func (h *DataHandler) CancelFrom(peer interfaces.Peer, id string) error {
	return h.manager.CancelFrom(peer, id)
}

// Events returns the transfer notification channel.
func (h *DataHandler) Events() <-chan file.Event {
	return h.manager.Events()
}

// IncomingData returns the verified content of a completed incoming transfer.
// It fails with ErrClosed once the handler is closed, since the at-rest key
// is wiped by Close.
func (h *DataHandler) IncomingData(id string) ([]byte, error) {
	if h.isClosed() {
		return nil, ErrClosed
	}
	return h.manager.IncomingData(id)
}

// IncomingDataFrom returns the content of the transfer peer offered under id.
func (h *DataHandler) IncomingDataFrom(peer interfaces.Peer, id string) ([]byte, error) {
	if h.isClosed() {
		return nil, ErrClosed
	}
	return h.manager.IncomingDataFrom(peer, id)
}

// Transfer returns a snapshot of one transfer.
func (h *DataHandler) Transfer(id string) (file.Snapshot, bool) {
	return h.manager.Transfer(id)
}

// Transfers returns snapshots of every transfer, oldest first.
func (h *DataHandler) Transfers() []file.Snapshot {
	return h.manager.Transfers()
}

// ReceiveMessage decodes a batch of TLV records received from peer and hands
// the data records to the transfer manager. Records of other types are
// skipped. Decoding stops at a truncated tail; the records before it are
// still applied.
func (h *DataHandler) ReceiveMessage(data []byte, peer interfaces.Peer, tag any) {
	var records []tlv.Record
	skipped, truncated := 0, 0

	for r, err := range tlv.DecodeAll(data) {
		if err != nil {
			truncated++
			logrus.WithFields(logrus.Fields{
				"function": "ReceiveMessage",
				"peer":     peer.String(),
				"size":     len(data),
				"error":    err.Error(),
			}).Warn("Dropping truncated record tail")
			break
		}
		if !tlv.Handles(r.Type) {
			skipped++
			continue
		}
		records = append(records, r)
	}

	h.mu.Lock()
	h.stats.Messages++
	h.stats.Records += len(records)
	h.stats.Skipped += skipped
	h.stats.Truncated += truncated
	closed := h.closed
	h.mu.Unlock()

	if closed || len(records) == 0 {
		return
	}
	h.manager.OnRecordsReceived(records, peer, tag)
}

func (h *DataHandler) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Stats returns the receive counters.
func (h *DataHandler) Stats() ReceiveStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Close stops the transfer manager and closes the channel if the handler
// created it.
func (h *DataHandler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err := h.manager.Close()
	if h.closer != nil {
		err = errors.Join(err, h.closer())
	}
	if h.sealer != nil {
		h.sealer.Wipe()
	}
	return err
}
