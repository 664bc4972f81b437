package file

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/otrdata/crypto"
	"github.com/opd-ai/otrdata/limits"
	"github.com/sirupsen/logrus"
)

// Scheduler bounds.
const (
	// DefaultMaxConcurrentFetches is the number of chunk requests kept in flight per transfer.
	DefaultMaxConcurrentFetches = 4
	// MinConcurrentFetches is the smallest accepted concurrency.
	MinConcurrentFetches = 1
	// MaxConcurrentFetches is the largest accepted concurrency.
	MaxConcurrentFetches = 64

	// DefaultFetchTimeout is how long a chunk request may stay unanswered.
	DefaultFetchTimeout = 10 * time.Second
	// MinFetchTimeout is the smallest accepted fetch timeout.
	MinFetchTimeout = time.Millisecond

	// DefaultMaxFetchAttempts is how many times one range is requested before the transfer fails.
	DefaultMaxFetchAttempts = 3
	// MaxFetchAttempts is the largest accepted attempt limit.
	MaxFetchAttempts = 20
)

var errFetchTimeout = errors.New("fetch timed out")

// Config tunes the fetch scheduler and content handling of a Manager.
type Config struct {
	MaxConcurrentFetches int
	ChunkSize            int
	FetchTimeout         time.Duration
	MaxFetchAttempts     int

	// Sealer, when set, encrypts verified incoming content while it is held
	// by the manager.
	Sealer crypto.Sealer
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentFetches: DefaultMaxConcurrentFetches,
		ChunkSize:            limits.DefaultChunkSize,
		FetchTimeout:         DefaultFetchTimeout,
		MaxFetchAttempts:     DefaultMaxFetchAttempts,
	}
}

// Validate checks every field against its bounds.
func (c Config) Validate() error {
	if c.MaxConcurrentFetches < MinConcurrentFetches || c.MaxConcurrentFetches > MaxConcurrentFetches {
		return fmt.Errorf("%w: max concurrent fetches %d not in [%d, %d]",
			limits.ErrOutOfBounds, c.MaxConcurrentFetches, MinConcurrentFetches, MaxConcurrentFetches)
	}
	if err := limits.ValidateChunkSize(c.ChunkSize); err != nil {
		return err
	}
	if c.FetchTimeout < MinFetchTimeout {
		return fmt.Errorf("%w: fetch timeout %s below %s", limits.ErrOutOfBounds, c.FetchTimeout, MinFetchTimeout)
	}
	if c.MaxFetchAttempts < 1 || c.MaxFetchAttempts > MaxFetchAttempts {
		return fmt.Errorf("%w: max fetch attempts %d not in [1, %d]",
			limits.ErrOutOfBounds, c.MaxFetchAttempts, MaxFetchAttempts)
	}
	return nil
}

// pendingFetch is one outstanding range request.
type pendingFetch struct {
	requestID string
	key       transferKey
	index     int
	rng       ByteRange
	attempt   int
	timer     *time.Timer
}

// scheduler tracks pending fetches for all incoming transfers. It has no
// lock of its own; every method runs under the Manager's lock.
type scheduler struct {
	cfg        Config
	pending    map[string]*pendingFetch
	byTransfer map[transferKey]map[string]*pendingFetch
	expire     func(requestID string)
}

func newScheduler(cfg Config, expire func(requestID string)) *scheduler {
	return &scheduler{
		cfg:        cfg,
		pending:    make(map[string]*pendingFetch),
		byTransfer: make(map[transferKey]map[string]*pendingFetch),
		expire:     expire,
	}
}

// start admits the first window of fetches for a freshly accepted transfer.
func (s *scheduler) start(in *IncomingTransfer) []outbound {
	window := min(s.cfg.MaxConcurrentFetches, in.TotalChunks)
	out := make([]outbound, 0, window)
	for i := 0; i < window; i++ {
		o, ok := s.admit(in)
		if !ok {
			break
		}
		out = append(out, o)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "scheduler.start",
		"transfer_id":  in.ID,
		"total_chunks": in.TotalChunks,
		"window":       len(out),
	}).Debug("Admitted initial fetch window")

	return out
}

// admit issues a request for the next never-requested chunk, if the
// concurrency bound allows it.
func (s *scheduler) admit(in *IncomingTransfer) (outbound, bool) {
	if !in.hasUnrequested() || s.count(in.key()) >= s.cfg.MaxConcurrentFetches {
		return outbound{}, false
	}
	idx := in.nextRange
	in.nextRange++
	return s.issue(in, idx, 1), true
}

// issue registers a pending fetch for chunk idx and builds its request.
func (s *scheduler) issue(in *IncomingTransfer, idx, attempt int) outbound {
	pf := &pendingFetch{
		requestID: uuid.NewString(),
		key:       in.key(),
		index:     idx,
		rng:       in.ranges[idx],
		attempt:   attempt,
	}
	requestID := pf.requestID
	pf.timer = time.AfterFunc(s.cfg.FetchTimeout, func() { s.expire(requestID) })

	s.pending[pf.requestID] = pf
	set := s.byTransfer[pf.key]
	if set == nil {
		set = make(map[string]*pendingFetch)
		s.byTransfer[pf.key] = set
	}
	set[pf.requestID] = pf

	logrus.WithFields(logrus.Fields{
		"function":    "scheduler.issue",
		"transfer_id": in.ID,
		"request_id":  pf.requestID,
		"range":       pf.rng.String(),
		"attempt":     attempt,
	}).Debug("Requesting chunk")

	return outbound{peer: in.Peer, tag: in.Tag, record: fetchRecord(in.ID, pf.requestID, pf.rng)}
}

// claim removes a pending fetch and stops its timer.
func (s *scheduler) claim(requestID string) (*pendingFetch, bool) {
	pf, ok := s.pending[requestID]
	if !ok {
		return nil, false
	}
	pf.timer.Stop()
	delete(s.pending, requestID)
	if set := s.byTransfer[pf.key]; set != nil {
		delete(set, requestID)
		if len(set) == 0 {
			delete(s.byTransfer, pf.key)
		}
	}
	return pf, true
}

// lookup returns a pending fetch without claiming it.
func (s *scheduler) lookup(requestID string) (*pendingFetch, bool) {
	pf, ok := s.pending[requestID]
	return pf, ok
}

// count returns the number of pending fetches for a transfer.
func (s *scheduler) count(key transferKey) int {
	return len(s.byTransfer[key])
}

// dropTransfer cancels every pending fetch of a transfer.
func (s *scheduler) dropTransfer(key transferKey) int {
	set := s.byTransfer[key]
	for id, pf := range set {
		pf.timer.Stop()
		delete(s.pending, id)
	}
	delete(s.byTransfer, key)
	return len(set)
}

// stopAll cancels every pending fetch.
func (s *scheduler) stopAll() {
	for _, pf := range s.pending {
		pf.timer.Stop()
	}
	s.pending = make(map[string]*pendingFetch)
	s.byTransfer = make(map[transferKey]map[string]*pendingFetch)
}
