package file

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/otrdata/crypto"
	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/limits"
	"github.com/opd-ai/otrdata/tlv"
	"github.com/opd-ai/otrdata/tunnel"
	"github.com/sirupsen/logrus"
)

// entry is a registry slot holding exactly one transfer direction.
type entry struct {
	out *OutgoingTransfer
	in  *IncomingTransfer
}

func (e *entry) base() *Transfer {
	if e.out != nil {
		return &e.out.Transfer
	}
	return &e.in.Transfer
}

func (e *entry) snapshot() Snapshot {
	if e.out != nil {
		return e.out.snapshot()
	}
	return e.in.snapshot()
}

// Manager runs file transfers in both directions over a record channel.
//
// One mutex guards the transfer registry, pending fetches, counters and the
// event queue. Records are collected while holding it and sent after it is
// released, so a channel that delivers synchronously cannot deadlock the
// manager.
type Manager struct {
	channel interfaces.IRecordChannel
	cfg     Config

	mu           sync.Mutex
	transfers    map[string]map[interfaces.Peer]*entry // id -> peer -> entry
	sched        *scheduler
	events       *eventQueue
	timeProvider TimeProvider
	closed       bool
}

// NewManager creates a transfer manager sending through ch.
func NewManager(ch interfaces.IRecordChannel, cfg Config) (*Manager, error) {
	if ch == nil {
		return nil, errors.New("record channel is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transfer configuration: %w", err)
	}

	m := &Manager{
		channel:      ch,
		cfg:          cfg,
		transfers:    make(map[string]map[interfaces.Peer]*entry),
		events:       newEventQueue(),
		timeProvider: DefaultTimeProvider{},
	}
	m.sched = newScheduler(cfg, m.expireFetch)

	logrus.WithFields(logrus.Fields{
		"function":        "NewManager",
		"chunk_size":      cfg.ChunkSize,
		"max_concurrent":  cfg.MaxConcurrentFetches,
		"fetch_timeout":   cfg.FetchTimeout,
		"max_attempts":    cfg.MaxFetchAttempts,
		"at_rest_sealing": cfg.Sealer != nil,
	}).Info("Created file transfer manager")

	return m, nil
}

// SetTimeProvider sets the time source used for transfer timestamps.
func (m *Manager) SetTimeProvider(tp TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeProvider = tp
}

// now returns the current time. Caller holds mu.
func (m *Manager) now() time.Time {
	return m.timeProvider.Now()
}

// Events returns the notification channel. It is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events.out
}

// SendFile offers content to peer and returns the new transfer id. The
// content is copied; the receiver fetches it range by range.
func (m *Manager) SendFile(name string, content []byte, peer interfaces.Peer, tag any) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}
	if err := limits.ValidateFileName(name); err != nil {
		return "", fmt.Errorf("invalid file name: %w", err)
	}
	if err := limits.ValidateFileLength(int64(len(content))); err != nil {
		return "", fmt.Errorf("invalid file length: %w", err)
	}

	data := append([]byte(nil), content...)
	id := uuid.NewString()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	now := m.now()
	o := newOutgoingTransfer(Transfer{
		ID:         id,
		Peer:       peer,
		FileName:   name,
		MimeType:   mimeTypeFor(name),
		FileLength: int64(len(data)),
		FileHash:   crypto.Digest(data),
		Tag:        tag,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, data)
	m.storeLocked(&entry{out: o})
	rec := offerRecord(o)
	m.mu.Unlock()

	if err := m.channel.SendRecords([]tlv.Record{rec}, peer, tag); err != nil {
		m.mu.Lock()
		m.removeLocked(peer, id)
		m.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":    "SendFile",
			"transfer_id": id,
			"peer":        peer.String(),
			"error":       err.Error(),
		}).Error("Failed to send offer")
		return "", fmt.Errorf("%w: %w", ErrPeerUnavailable, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "SendFile",
		"transfer_id": id,
		"peer":        peer.String(),
		"file_name":   name,
		"file_length": len(data),
		"mime_type":   o.MimeType,
	}).Info("Offered outgoing file transfer")

	return id, nil
}

// OnRecordsReceived processes records received from peer. Records of types
// the data subsystem does not handle are skipped; malformed records are
// logged and dropped without affecting other records.
func (m *Manager) OnRecordsReceived(records []tlv.Record, peer interfaces.Peer, tag any) {
	for _, r := range records {
		if !tlv.Handles(r.Type) {
			continue
		}
		if err := m.handleRecord(r, peer, tag); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "OnRecordsReceived",
				"peer":        peer.String(),
				"record_type": r.Type.String(),
				"error":       err.Error(),
			}).Debug("Record not applied")
		}
	}
}

func (m *Manager) handleRecord(r tlv.Record, peer interfaces.Peer, tag any) error {
	msg, err := tunnel.Parse(r.Value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleRecord",
			"peer":     peer.String(),
			"size":     len(r.Value),
			"error":    err.Error(),
		}).Warn("Dropping malformed tunneled message")
		return err
	}

	if !msg.IsRequest() {
		return m.handleResponse(msg, peer)
	}

	switch msg.Method {
	case tunnel.MethodOffer:
		return m.handleOffer(msg, peer, tag)
	case tunnel.MethodGet:
		return m.handleGet(msg, peer, tag)
	default:
		m.send(outbound{
			peer:   peer,
			tag:    tag,
			record: responseRecord(tunnel.StatusBadRequest, msg.RequestID(), nil, "unsupported method"),
		})
		return fmt.Errorf("%w: unsupported method %q", tunnel.ErrMalformed, msg.Method)
	}
}

func (m *Manager) handleOffer(msg *tunnel.Message, peer interfaces.Peer, tag any) error {
	info, err := parseOffer(msg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleOffer",
			"peer":     peer.String(),
			"error":    err.Error(),
		}).Warn("Dropping invalid offer")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.transfers[info.id][peer] != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "handleOffer",
			"transfer_id": info.id,
			"peer":        peer.String(),
		}).Warn("Dropping duplicate offer")
		return fmt.Errorf("duplicate offer for transfer %s", info.id)
	}

	now := m.now()
	in := newIncomingTransfer(Transfer{
		ID:         info.id,
		Peer:       peer,
		FileName:   info.fileName,
		MimeType:   info.mimeType,
		FileLength: info.length,
		FileHash:   info.hash,
		Tag:        tag,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	m.storeLocked(&entry{in: in})
	m.events.push(newEvent(EventOffered, in.snapshot()))

	logrus.WithFields(logrus.Fields{
		"function":    "handleOffer",
		"transfer_id": info.id,
		"peer":        peer.String(),
		"file_name":   info.fileName,
		"file_length": info.length,
	}).Info("Received file offer")

	return nil
}

// AcceptIncomingTransfer starts fetching an offered file. The offer is
// acknowledged to the sender before the first range request.
func (m *Manager) AcceptIncomingTransfer(id string) error {
	return m.accept(id, nil)
}

// AcceptIncomingTransferFrom accepts the offer peer made under id.
func (m *Manager) AcceptIncomingTransferFrom(peer interfaces.Peer, id string) error {
	return m.accept(id, &peer)
}

func (m *Manager) accept(id string, peer *interfaces.Peer) error {
	m.mu.Lock()
	e, err := m.findLocked(id, peer)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if e.in == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is not incoming", ErrTransferNotFound, id)
	}
	in := e.in
	if err := in.transition(StateAccepted, m.now()); err != nil {
		m.mu.Unlock()
		return err
	}
	in.prepare(m.cfg.ChunkSize)

	out := []outbound{{
		peer:   in.Peer,
		tag:    in.Tag,
		record: responseRecord(tunnel.StatusOK, in.ID, nil, ""),
	}}
	out = append(out, m.sched.start(in)...)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "AcceptIncomingTransfer",
		"transfer_id":  id,
		"total_chunks": in.TotalChunks,
	}).Info("Accepted incoming file transfer")

	m.flush(out)
	return nil
}

func (m *Manager) handleGet(msg *tunnel.Message, peer interfaces.Peer, tag any) error {
	requestID := msg.RequestID()
	if requestID == "" {
		return fmt.Errorf("%w: GET without %s", tunnel.ErrMalformed, tunnel.HeaderRequestID)
	}
	id, _ := tunnel.TransferIDFromTarget(msg.Target)

	m.mu.Lock()
	var o *OutgoingTransfer
	if e := m.transfers[id][peer]; e != nil {
		o = e.out
	}
	if o == nil {
		m.mu.Unlock()
		m.send(outbound{
			peer:   peer,
			tag:    tag,
			record: responseRecord(tunnel.StatusNotFound, requestID, nil, "unknown transfer"),
		})
		return fmt.Errorf("%w: %q", ErrTransferNotFound, id)
	}
	if o.State == StateCancelled {
		m.mu.Unlock()
		return nil
	}

	rng, err := requestedRange(o, msg.Header.Get(tunnel.HeaderRange))
	if err != nil {
		m.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":    "handleGet",
			"transfer_id": id,
			"request_id":  requestID,
			"error":       err.Error(),
		}).Warn("Rejecting unsatisfiable range")

		m.send(outbound{
			peer:   peer,
			tag:    tag,
			record: responseRecord(tunnel.StatusRangeNotSatisfiable, requestID, nil, err.Error()),
		})
		return err
	}

	now := m.now()
	if o.State == StateAnnounced || o.State == StateAccepted {
		_ = o.transition(StateInProgress, now)
	}
	before := o.BytesTransferred
	covered := o.markServed(rng)
	if o.BytesTransferred != before {
		o.UpdatedAt = now
		m.events.push(newEvent(EventProgress, o.snapshot()))
	}
	if covered && o.State == StateInProgress {
		_ = o.transition(StateCompleted, now)
		m.events.push(newEvent(EventCompleted, o.snapshot()))

		logrus.WithFields(logrus.Fields{
			"function":    "handleGet",
			"transfer_id": id,
			"file_length": o.FileLength,
		}).Info("Outgoing file transfer completed")
	}
	rec := responseRecord(tunnel.StatusOK, requestID, o.readRange(rng), "")
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "handleGet",
		"transfer_id": id,
		"request_id":  requestID,
		"range":       rng.String(),
	}).Debug("Serving range")

	m.send(outbound{peer: peer, tag: tag, record: rec})
	return nil
}

// requestedRange validates a Range header against an outgoing transfer.
func requestedRange(o *OutgoingTransfer, header string) (ByteRange, error) {
	if header == "" {
		return ByteRange{}, fmt.Errorf("%w: missing %s header", ErrRangeInvalid, tunnel.HeaderRange)
	}
	start, end, err := tunnel.ParseRange(header)
	if err != nil {
		return ByteRange{}, fmt.Errorf("%w: %v", ErrRangeInvalid, err)
	}
	rng, err := o.resolveRange(start, end)
	if err != nil {
		return ByteRange{}, err
	}
	if rng.Len() > limits.MaxChunkSize {
		return ByteRange{}, fmt.Errorf("%w: %d bytes exceeds maximum chunk %d", ErrRangeInvalid, rng.Len(), limits.MaxChunkSize)
	}
	return rng, nil
}

func (m *Manager) handleResponse(msg *tunnel.Message, peer interfaces.Peer) error {
	requestID := msg.RequestID()
	if requestID == "" {
		return fmt.Errorf("%w: response without %s", tunnel.ErrMalformed, tunnel.HeaderRequestID)
	}

	m.mu.Lock()
	if e := m.transfers[requestID][peer]; e != nil && e.out != nil {
		o := e.out
		if msg.IsSuccess() && o.State == StateAnnounced {
			_ = o.transition(StateAccepted, m.now())

			logrus.WithFields(logrus.Fields{
				"function":    "handleResponse",
				"transfer_id": o.ID,
			}).Info("Peer accepted outgoing file transfer")
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	return m.onResponse(requestID, msg, peer)
}

// onResponse applies the answer to a pending fetch. Responses that match no
// pending fetch are dropped with ErrUnknownRequestID and change nothing.
func (m *Manager) onResponse(requestID string, msg *tunnel.Message, peer interfaces.Peer) error {
	m.mu.Lock()
	pf, ok := m.sched.lookup(requestID)
	var in *IncomingTransfer
	if ok && pf.key.peer == peer {
		if e := m.transfers[pf.key.id][peer]; e != nil {
			in = e.in
		}
	}
	if in == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownRequestID, requestID)
	}
	m.sched.claim(requestID)
	if in.chunks.has(pf.index) {
		m.mu.Unlock()
		return fmt.Errorf("chunk %d of transfer %s already applied", pf.index, in.ID)
	}

	if !msg.IsSuccess() || int64(len(msg.Body)) != pf.rng.Len() {
		cause := fmt.Errorf("%w: status %d with %d bytes for range %s",
			tunnel.ErrMalformed, msg.StatusCode, len(msg.Body), pf.rng)
		out := m.retryLocked(in, pf, cause)
		m.mu.Unlock()
		m.flush(out)
		return cause
	}
	buf := in.buffer
	m.mu.Unlock()

	// The range was claimed exclusively above, so no other writer touches it.
	copy(buf[pf.rng.Start:pf.rng.End+1], msg.Body)

	m.applyChunk(in, pf)
	return nil
}

// applyChunk records a written chunk, admits the next fetch and finishes the
// transfer when the last chunk lands.
func (m *Manager) applyChunk(in *IncomingTransfer, pf *pendingFetch) {
	m.mu.Lock()
	if in.State.Terminal() || !in.chunks.set(pf.index) {
		m.mu.Unlock()
		return
	}

	now := m.now()
	in.ChunksReceived++
	in.BytesTransferred += pf.rng.Len()
	in.UpdatedAt = now
	if in.State == StateAccepted {
		_ = in.transition(StateInProgress, now)
	}
	m.events.push(newEvent(EventProgress, in.snapshot()))

	var out []outbound
	if next, ok := m.sched.admit(in); ok {
		out = append(out, next)
	}
	done := in.complete()
	received := in.ChunksReceived
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":        "applyChunk",
		"transfer_id":     in.ID,
		"request_id":      pf.requestID,
		"chunks_received": received,
	}).Debug("Applied chunk")

	m.flush(out)
	if done {
		m.finish(in)
	}
}

// finish verifies the reassembled content and completes or fails the transfer.
func (m *Manager) finish(in *IncomingTransfer) {
	m.mu.Lock()
	buf, hash, sealer := in.buffer, in.FileHash, m.cfg.Sealer
	m.mu.Unlock()
	if buf == nil {
		return
	}

	verified := crypto.VerifyDigest(buf, hash)
	var sealed []byte
	var sealErr error
	if verified && sealer != nil {
		sealed, sealErr = sealer.Seal(buf)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if in.State != StateInProgress {
		return
	}
	now := m.now()

	switch {
	case !verified:
		m.failLocked(in, ReasonHashMismatch,
			fmt.Errorf("%w: transfer %s expected %s", ErrHashMismatch, in.ID, hash), now)
	case sealErr != nil:
		m.failLocked(in, ReasonSealFailed, fmt.Errorf("failed to seal content: %w", sealErr), now)
	default:
		if sealed != nil {
			crypto.ZeroBytes(in.buffer)
			in.buffer = nil
			in.sealed = sealed
		}
		_ = in.transition(StateCompleted, now)
		m.events.push(newEvent(EventCompleted, in.snapshot()))

		logrus.WithFields(logrus.Fields{
			"function":    "finish",
			"transfer_id": in.ID,
			"file_length": in.FileLength,
			"sealed":      sealed != nil,
		}).Info("Incoming file transfer completed")
	}
}

// retryLocked re-requests the range of a failed fetch, or fails the whole
// transfer once the attempt limit is reached. Caller holds mu.
func (m *Manager) retryLocked(in *IncomingTransfer, pf *pendingFetch, cause error) []outbound {
	if pf.attempt >= m.cfg.MaxFetchAttempts {
		m.failLocked(in, ReasonFetchExhausted,
			fmt.Errorf("%w: range %s after %d attempts: %w", ErrFetchExhausted, pf.rng, pf.attempt, cause), m.now())
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":    "retryLocked",
		"transfer_id": in.ID,
		"request_id":  pf.requestID,
		"range":       pf.rng.String(),
		"attempt":     pf.attempt,
		"error":       cause.Error(),
	}).Warn("Retrying chunk fetch")

	return []outbound{m.sched.issue(in, pf.index, pf.attempt+1)}
}

// failLocked drops every pending fetch and the partial buffer. Caller holds mu.
func (m *Manager) failLocked(in *IncomingTransfer, reason FailureReason, cause error, now time.Time) {
	dropped := m.sched.dropTransfer(in.key())
	missing := len(in.chunks.missing())
	in.release()
	if err := in.fail(reason, cause, now); err != nil {
		return
	}
	m.events.push(newEvent(EventFailed, in.snapshot()))

	logrus.WithFields(logrus.Fields{
		"function":       "failLocked",
		"transfer_id":    in.ID,
		"reason":         reason.String(),
		"dropped_fetch":  dropped,
		"missing_chunks": missing,
		"error":          cause.Error(),
	}).Error("Incoming file transfer failed")
}

// expireFetch is called by a fetch timer.
func (m *Manager) expireFetch(requestID string) {
	m.mu.Lock()
	pf, ok := m.sched.claim(requestID)
	if !ok {
		m.mu.Unlock()
		return
	}
	e := m.transfers[pf.key.id][pf.key.peer]
	if e == nil || e.in == nil || e.in.State.Terminal() {
		m.mu.Unlock()
		return
	}
	out := m.retryLocked(e.in, pf, errFetchTimeout)
	m.mu.Unlock()

	m.flush(out)
}

// Cancel stops a transfer. Pending fetches and buffers are released and
// later records for the transfer are ignored. Cancelling a transfer that
// completed or failed removes it from the manager; cancelling it again once
// cancelled changes nothing.
func (m *Manager) Cancel(id string) error {
	return m.cancel(id, nil)
}

// CancelFrom cancels the transfer shared with peer under id.
func (m *Manager) CancelFrom(peer interfaces.Peer, id string) error {
	return m.cancel(id, &peer)
}

func (m *Manager) cancel(id string, peer *interfaces.Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.findLocked(id, peer)
	if err != nil {
		return err
	}
	t := e.base()

	switch t.State {
	case StateCancelled:
		// The entry stays so later records for the id remain no-ops.
		return nil
	case StateCompleted, StateFailed:
		m.removeLocked(t.Peer, id)
		logrus.WithFields(logrus.Fields{
			"function":    "Cancel",
			"transfer_id": id,
			"state":       t.State.String(),
		}).Info("Released finished transfer")
		return nil
	}

	dropped := m.sched.dropTransfer(t.key())
	if e.in != nil {
		e.in.release()
	} else {
		e.out.content = nil
	}
	if err := t.transition(StateCancelled, m.now()); err != nil {
		return err
	}
	m.events.push(newEvent(EventCancelled, e.snapshot()))

	logrus.WithFields(logrus.Fields{
		"function":      "Cancel",
		"transfer_id":   id,
		"direction":     t.Direction.String(),
		"dropped_fetch": dropped,
	}).Info("Cancelled file transfer")

	return nil
}

// IncomingData returns the verified content of a completed incoming transfer.
func (m *Manager) IncomingData(id string) ([]byte, error) {
	return m.incomingData(id, nil)
}

// IncomingDataFrom returns the content of the transfer peer offered under id.
func (m *Manager) IncomingDataFrom(peer interfaces.Peer, id string) ([]byte, error) {
	return m.incomingData(id, &peer)
}

func (m *Manager) incomingData(id string, peer *interfaces.Peer) ([]byte, error) {
	m.mu.Lock()
	e, err := m.findLocked(id, peer)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if e.in == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is not incoming", ErrTransferNotFound, id)
	}
	in := e.in
	if in.State != StateCompleted {
		state := in.State
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: transfer %s is %s", ErrTransferIncomplete, id, state)
	}
	buf, sealed, sealer := in.buffer, in.sealed, m.cfg.Sealer
	m.mu.Unlock()

	if sealed != nil {
		return sealer.Open(sealed)
	}
	return append([]byte(nil), buf...), nil
}

// Transfer returns a snapshot of the transfer registered under id.
func (m *Manager) Transfer(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.findLocked(id, nil)
	if err != nil {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Transfers returns snapshots of every registered transfer, oldest first.
func (m *Manager) Transfers() []Snapshot {
	m.mu.Lock()
	var out []Snapshot
	for _, peers := range m.transfers {
		for _, e := range peers {
			out = append(out, e.snapshot())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Peer.String() < out[j].Peer.String()
	})
	return out
}

// PendingFetches returns the number of outstanding range requests for id.
func (m *Manager) PendingFetches(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.findLocked(id, nil)
	if err != nil {
		return 0
	}
	return m.sched.count(e.base().key())
}

// findLocked returns the entry for id, scoped to peer when one is given.
// Without a peer, an id shared by several peers resolves to the local
// outgoing transfer if there is one. Caller holds mu.
func (m *Manager) findLocked(id string, peer *interfaces.Peer) (*entry, error) {
	peers := m.transfers[id]
	if peer != nil {
		if e := peers[*peer]; e != nil {
			return e, nil
		}
		return nil, fmt.Errorf("%w: %s with %s", ErrTransferNotFound, id, peer.String())
	}

	var found *entry
	for _, e := range peers {
		if e.out != nil {
			return e, nil
		}
		found = e
	}
	switch len(peers) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	case 1:
		return found, nil
	default:
		return nil, fmt.Errorf("%w: %s announced by %d peers", ErrAmbiguousTransfer, id, len(peers))
	}
}

// storeLocked registers e under its id and peer. Caller holds mu.
func (m *Manager) storeLocked(e *entry) {
	t := e.base()
	peers := m.transfers[t.ID]
	if peers == nil {
		peers = make(map[interfaces.Peer]*entry)
		m.transfers[t.ID] = peers
	}
	peers[t.Peer] = e
}

// removeLocked forgets the transfer shared with peer under id. Caller holds mu.
func (m *Manager) removeLocked(peer interfaces.Peer, id string) {
	peers := m.transfers[id]
	delete(peers, peer)
	if len(peers) == 0 {
		delete(m.transfers, id)
	}
}

// Close stops all fetch timers and closes the event channel. Transfers in
// progress are left as they are.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.sched.stopAll()
	m.mu.Unlock()

	m.events.close()

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("File transfer manager closed")
	return nil
}

func (m *Manager) flush(out []outbound) {
	for _, o := range out {
		m.send(o)
	}
}

func (m *Manager) send(o outbound) {
	if err := m.channel.SendRecords([]tlv.Record{o.record}, o.peer, o.tag); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "send",
			"peer":     o.peer.String(),
			"error":    err.Error(),
		}).Warn("Failed to send record")
	}
}
