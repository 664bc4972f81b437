package otrdata

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/opd-ai/otrdata/crypto"
	"github.com/opd-ai/otrdata/factory"
	"github.com/opd-ai/otrdata/file"
	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/limits"
	"github.com/sirupsen/logrus"
)

// Environment variables read by LoadOptionsFromEnv.
const (
	EnvChunkSize            = "OTRDATA_CHUNK_SIZE"
	EnvMaxConcurrentFetches = "OTRDATA_MAX_CONCURRENT_FETCHES"
	EnvFetchTimeout         = "OTRDATA_FETCH_TIMEOUT_MS"
	EnvFetchAttempts        = "OTRDATA_FETCH_ATTEMPTS"
	EnvAtRestCipher         = "OTRDATA_AT_REST_CIPHER"
)

// maxFetchTimeoutMillis caps OTRDATA_FETCH_TIMEOUT_MS at ten minutes.
const maxFetchTimeoutMillis = 10 * 60 * 1000

// AtRestCipher selects the cipher that seals completed content when
// Options.AtRestKey is set.
type AtRestCipher uint8

const (
	// CipherSecretbox seals with NaCl secretbox.
	CipherSecretbox AtRestCipher = iota
	// CipherAESGCM seals with AES-256-GCM and a 16-byte IV.
	CipherAESGCM
)

var atRestCipherNames = map[AtRestCipher]string{
	CipherSecretbox: "secretbox",
	CipherAESGCM:    "aes-gcm",
}

// String returns the cipher name accepted by ParseAtRestCipher.
func (c AtRestCipher) String() string {
	if name, ok := atRestCipherNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cipher(%d)", c)
}

// ParseAtRestCipher parses "secretbox" or "aes-gcm".
func ParseAtRestCipher(name string) (AtRestCipher, error) {
	for c, n := range atRestCipherNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown at-rest cipher %q", limits.ErrOutOfBounds, name)
}

// Options configures a DataHandler.
type Options struct {
	// ChunkSize is the number of bytes requested per range fetch.
	ChunkSize int
	// MaxConcurrentFetches bounds the range requests in flight per transfer.
	MaxConcurrentFetches int
	// FetchTimeout is how long a range request may stay unanswered.
	FetchTimeout time.Duration
	// MaxFetchAttempts is how many times a range is requested before the
	// transfer fails.
	MaxFetchAttempts int

	// AtRestKey, when set, seals completed incoming content in memory with a
	// key derived from it.
	AtRestKey []byte
	// AtRestCipher selects the cipher used with AtRestKey.
	AtRestCipher AtRestCipher

	// Channel configures channels created by NewLoopbackPair.
	Channel interfaces.ChannelConfig
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		ChunkSize:            limits.DefaultChunkSize,
		MaxConcurrentFetches: file.DefaultMaxConcurrentFetches,
		FetchTimeout:         file.DefaultFetchTimeout,
		MaxFetchAttempts:     file.DefaultMaxFetchAttempts,
		Channel: interfaces.ChannelConfig{
			RetryAttempts: 3,
			RetryBackoff:  500 * time.Millisecond,
		},
	}
}

// Validate checks every option against its bounds.
func (o *Options) Validate() error {
	if err := o.transferConfig().Validate(); err != nil {
		return err
	}
	if _, ok := atRestCipherNames[o.AtRestCipher]; !ok {
		return fmt.Errorf("%w: at-rest cipher %s", limits.ErrOutOfBounds, o.AtRestCipher)
	}
	if o.Channel.RetryAttempts < factory.MinRetryAttempts || o.Channel.RetryAttempts > factory.MaxRetryAttempts {
		return fmt.Errorf("%w: channel retry attempts %d not in [%d, %d]",
			limits.ErrOutOfBounds, o.Channel.RetryAttempts, factory.MinRetryAttempts, factory.MaxRetryAttempts)
	}
	if o.Channel.RetryBackoff < 0 {
		return fmt.Errorf("%w: negative channel retry backoff %s", limits.ErrOutOfBounds, o.Channel.RetryBackoff)
	}
	return nil
}

func (o *Options) transferConfig() file.Config {
	return file.Config{
		MaxConcurrentFetches: o.MaxConcurrentFetches,
		ChunkSize:            o.ChunkSize,
		FetchTimeout:         o.FetchTimeout,
		MaxFetchAttempts:     o.MaxFetchAttempts,
	}
}

// sealer derives the at-rest sealer, or returns nil when no key is set.
func (o *Options) sealer() (crypto.WipingSealer, error) {
	if len(o.AtRestKey) == 0 {
		return nil, nil
	}
	if o.AtRestCipher == CipherAESGCM {
		s, err := crypto.NewAtRestGCMSealer(o.AtRestKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := crypto.NewAtRestSealer(o.AtRestKey)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LoadOptionsFromEnv applies OTRDATA_* environment overrides to o. Values
// that fail to parse or fall outside their bounds are logged and ignored.
func LoadOptionsFromEnv(o *Options) {
	if n, ok := envInt(EnvChunkSize, limits.MinChunkSize, limits.MaxChunkSize, o.ChunkSize); ok {
		o.ChunkSize = n
	}
	if n, ok := envInt(EnvMaxConcurrentFetches, file.MinConcurrentFetches, file.MaxConcurrentFetches, o.MaxConcurrentFetches); ok {
		o.MaxConcurrentFetches = n
	}
	if n, ok := envInt(EnvFetchTimeout, int(file.MinFetchTimeout/time.Millisecond), maxFetchTimeoutMillis, int(o.FetchTimeout/time.Millisecond)); ok {
		o.FetchTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := envInt(EnvFetchAttempts, 1, file.MaxFetchAttempts, o.MaxFetchAttempts); ok {
		o.MaxFetchAttempts = n
	}
	if raw := os.Getenv(EnvAtRestCipher); raw != "" {
		c, err := ParseAtRestCipher(raw)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "LoadOptionsFromEnv",
				"env_var":     EnvAtRestCipher,
				"value":       raw,
				"error":       err.Error(),
				"using_value": o.AtRestCipher.String(),
			}).Warn("Failed to parse environment variable, using default")
		} else {
			o.AtRestCipher = c
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":       "LoadOptionsFromEnv",
		"chunk_size":     o.ChunkSize,
		"max_concurrent": o.MaxConcurrentFetches,
		"fetch_timeout":  o.FetchTimeout,
		"max_attempts":   o.MaxFetchAttempts,
		"at_rest_cipher": o.AtRestCipher.String(),
	}).Debug("Loaded options from environment")
}

func envInt(name string, lo, hi, current int) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "envInt",
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse environment variable, using default")
		return 0, false
	}
	if n < lo || n > hi {
		logrus.WithFields(logrus.Fields{
			"function":    "envInt",
			"env_var":     name,
			"value":       n,
			"min":         lo,
			"max":         hi,
			"using_value": current,
		}).Warn("Environment variable out of bounds, using default")
		return 0, false
	}
	return n, true
}
