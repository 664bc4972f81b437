package file

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/otrdata/interfaces"
)

var (
	// ErrUnknownRequestID indicates a response whose Request-Id matches no pending fetch.
	ErrUnknownRequestID = errors.New("unknown request id")

	// ErrRangeInvalid indicates a range request outside the file bounds.
	ErrRangeInvalid = errors.New("range not satisfiable")

	// ErrFetchExhausted indicates a chunk fetch failed more than the allowed attempts.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")

	// ErrHashMismatch indicates reassembled content does not match the announced digest.
	ErrHashMismatch = errors.New("content digest mismatch")

	// ErrEmptyContent indicates an attempt to send a zero-length file.
	ErrEmptyContent = errors.New("cannot send empty content")

	// ErrPeerUnavailable indicates the record channel refused the offer.
	ErrPeerUnavailable = errors.New("peer unavailable")

	// ErrTransferNotFound indicates no transfer is registered under the id.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrInvalidTransition indicates a state change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTransferIncomplete indicates content was requested before completion.
	ErrTransferIncomplete = errors.New("transfer not complete")

	// ErrManagerClosed indicates the manager has been closed.
	ErrManagerClosed = errors.New("transfer manager closed")

	// ErrAmbiguousTransfer indicates several peers announced the same
	// transfer id and the caller did not name one.
	ErrAmbiguousTransfer = errors.New("transfer id shared by several peers")
)

// Direction indicates whether a transfer is incoming or outgoing.
type Direction uint8

const (
	// DirectionIncoming represents a file being received.
	DirectionIncoming Direction = iota
	// DirectionOutgoing represents a file being sent.
	DirectionOutgoing
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// State represents the lifecycle position of a transfer.
type State uint8

const (
	// StateAnnounced indicates an offer was sent or received.
	StateAnnounced State = iota
	// StateAccepted indicates the receiver agreed to fetch the file.
	StateAccepted
	// StateInProgress indicates chunks are moving.
	StateInProgress
	// StateCompleted indicates every byte arrived and the digest matched.
	StateCompleted
	// StateFailed indicates the transfer stopped on an error.
	StateFailed
	// StateCancelled indicates the local side cancelled the transfer.
	StateCancelled
)

var stateNames = map[State]string{
	StateAnnounced:  "announced",
	StateAccepted:   "accepted",
	StateInProgress: "in_progress",
	StateCompleted:  "completed",
	StateFailed:     "failed",
	StateCancelled:  "cancelled",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// validTransitions lists the states reachable from each state.
var validTransitions = map[State][]State{
	StateAnnounced:  {StateAccepted, StateInProgress, StateFailed, StateCancelled},
	StateAccepted:   {StateInProgress, StateFailed, StateCancelled},
	StateInProgress: {StateCompleted, StateFailed, StateCancelled},
}

// FailureReason explains why a transfer entered StateFailed.
type FailureReason uint8

const (
	// ReasonNone is the zero value for transfers that have not failed.
	ReasonNone FailureReason = iota
	// ReasonHashMismatch means the reassembled content did not match the digest.
	ReasonHashMismatch
	// ReasonFetchExhausted means a chunk could not be fetched within the attempt limit.
	ReasonFetchExhausted
	// ReasonSealFailed means verified content could not be sealed for storage.
	ReasonSealFailed
)

// String returns the reason name.
func (r FailureReason) String() string {
	switch r {
	case ReasonHashMismatch:
		return "hash_mismatch"
	case ReasonFetchExhausted:
		return "fetch_exhausted"
	case ReasonSealFailed:
		return "seal_failed"
	default:
		return "none"
	}
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Transfer holds the metadata and progress shared by both directions.
// Instances are owned by a Manager and only mutated under its lock.
type Transfer struct {
	ID               string
	Peer             interfaces.Peer
	FileName         string
	MimeType         string
	FileLength       int64
	FileHash         string
	BytesTransferred int64
	Tag              any
	State            State
	Direction        Direction
	Reason           FailureReason
	Err              error
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// transferKey scopes a transfer id to the peer it is shared with. Offering
// peers choose ids, so only the pair is unique.
type transferKey struct {
	peer interfaces.Peer
	id   string
}

func (t *Transfer) key() transferKey {
	return transferKey{peer: t.Peer, id: t.ID}
}

// transition moves the transfer to the given state.
func (t *Transfer) transition(to State, now time.Time) error {
	for _, allowed := range validTransitions[t.State] {
		if allowed == to {
			t.State = to
			t.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s for transfer %s", ErrInvalidTransition, t.State, to, t.ID)
}

// fail moves the transfer to StateFailed with reason and cause.
func (t *Transfer) fail(reason FailureReason, cause error, now time.Time) error {
	if err := t.transition(StateFailed, now); err != nil {
		return err
	}
	t.Reason = reason
	t.Err = cause
	return nil
}

// OutgoingTransfer serves ranges of content it owns. The content is never
// modified after registration.
type OutgoingTransfer struct {
	Transfer
	content []byte
	served  coverage
}

func newOutgoingTransfer(base Transfer, content []byte) *OutgoingTransfer {
	base.Direction = DirectionOutgoing
	base.State = StateAnnounced
	return &OutgoingTransfer{Transfer: base, content: content}
}

// resolveRange clamps end to the last byte and validates start. An end of -1
// means "to the end of the file".
func (o *OutgoingTransfer) resolveRange(start, end int64) (ByteRange, error) {
	last := o.FileLength - 1
	if end < 0 || end > last {
		end = last
	}
	if start < 0 || start > last || start > end {
		return ByteRange{}, fmt.Errorf("%w: bytes=%d-%d for length %d", ErrRangeInvalid, start, end, o.FileLength)
	}
	return ByteRange{Start: start, End: end}, nil
}

// readRange returns the content bytes of a resolved range.
func (o *OutgoingTransfer) readRange(r ByteRange) []byte {
	return o.content[r.Start : r.End+1]
}

// markServed records r as delivered and reports whether the whole file has
// now been served at least once.
func (o *OutgoingTransfer) markServed(r ByteRange) bool {
	o.BytesTransferred += o.served.add(r)
	return o.served.covers(o.FileLength)
}

// IncomingTransfer reassembles a file from fetched chunks into a buffer
// allocated at acceptance.
type IncomingTransfer struct {
	Transfer
	ChunksReceived int
	TotalChunks    int

	buffer    []byte
	ranges    []ByteRange
	chunks    *chunkBitmap
	nextRange int
	sealed    []byte
}

func newIncomingTransfer(base Transfer) *IncomingTransfer {
	base.Direction = DirectionIncoming
	base.State = StateAnnounced
	return &IncomingTransfer{Transfer: base}
}

// prepare allocates the receive buffer and chunk plan.
func (in *IncomingTransfer) prepare(chunkSize int) {
	in.buffer = make([]byte, in.FileLength)
	in.ranges = ChunkRanges(in.FileLength, chunkSize)
	in.TotalChunks = len(in.ranges)
	in.chunks = newChunkBitmap(in.TotalChunks)
}

// hasUnrequested reports whether chunks remain that were never requested.
func (in *IncomingTransfer) hasUnrequested() bool {
	return in.nextRange < len(in.ranges)
}

// complete reports whether every chunk has been applied.
func (in *IncomingTransfer) complete() bool {
	return in.TotalChunks > 0 && in.chunks.count() == in.TotalChunks
}

// release drops the receive buffer and any sealed content.
func (in *IncomingTransfer) release() {
	in.buffer = nil
	in.sealed = nil
}

// Snapshot is an immutable copy of a transfer's observable state.
type Snapshot struct {
	ID               string
	Peer             interfaces.Peer
	FileName         string
	MimeType         string
	FileLength       int64
	FileHash         string
	BytesTransferred int64
	Tag              any
	State            State
	Direction        Direction
	Reason           FailureReason
	Err              error
	ChunksReceived   int
	TotalChunks      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Progress returns the fraction of bytes transferred in [0, 1].
func (s Snapshot) Progress() float64 {
	if s.FileLength <= 0 {
		return 0
	}
	return float64(s.BytesTransferred) / float64(s.FileLength)
}

func (t *Transfer) snapshot() Snapshot {
	return Snapshot{
		ID:               t.ID,
		Peer:             t.Peer,
		FileName:         t.FileName,
		MimeType:         t.MimeType,
		FileLength:       t.FileLength,
		FileHash:         t.FileHash,
		BytesTransferred: t.BytesTransferred,
		Tag:              t.Tag,
		State:            t.State,
		Direction:        t.Direction,
		Reason:           t.Reason,
		Err:              t.Err,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func (in *IncomingTransfer) snapshot() Snapshot {
	s := in.Transfer.snapshot()
	s.ChunksReceived = in.ChunksReceived
	s.TotalChunks = in.TotalChunks
	return s
}
