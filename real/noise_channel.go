package real

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/noise"
	"github.com/opd-ai/otrdata/tlv"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned when the underlying link is down.
var ErrNotConnected = errors.New("message link not connected")

// Sleeper provides an abstraction over time.Sleep for deterministic testing.
type Sleeper interface {
	// Sleep pauses execution for the specified duration.
	Sleep(d time.Duration)
}

// DefaultSleeper implements Sleeper using the standard library time.Sleep.
type DefaultSleeper struct{}

// Sleep pauses execution for the specified duration using time.Sleep.
func (DefaultSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// NoiseChannel implements interfaces.IRecordChannel on top of a Noise
// session. Each SendRecords call is encoded as one TLV batch, encrypted with
// the session's send cipher and shipped as a single link frame.
type NoiseChannel struct {
	link    interfaces.IMessageLink
	session *noise.Session
	config  *interfaces.ChannelConfig

	// sendMu keeps encryption order equal to link order.
	sendMu sync.Mutex

	mu      sync.RWMutex
	handler interfaces.MessageHandler
	sleeper Sleeper
	dropped int
}

// NewNoiseChannel creates a channel that protects record batches with session.
func NewNoiseChannel(link interfaces.IMessageLink, session *noise.Session, config *interfaces.ChannelConfig) *NoiseChannel {
	logrus.WithFields(logrus.Fields{
		"function": "NewNoiseChannel",
		"retries":  config.RetryAttempts,
		"backoff":  config.RetryBackoff,
	}).Info("Creating noise record channel")

	c := &NoiseChannel{
		link:    link,
		session: session,
		config:  config,
		sleeper: DefaultSleeper{},
	}
	link.SetReceiver(c.onFrame)
	return c
}

// SetSleeper sets a custom Sleeper implementation (primarily for testing).
func (c *NoiseChannel) SetSleeper(s Sleeper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeper = s
}

// SetHandler installs the callback receiving decrypted record batches.
func (c *NoiseChannel) SetHandler(h interfaces.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SendRecords implements interfaces.IRecordChannel.
func (c *NoiseChannel) SendRecords(records []tlv.Record, peer interfaces.Peer, tag any) error {
	if !c.link.IsConnected() {
		return ErrNotConnected
	}

	data, err := tlv.EncodeAll(records...)
	if err != nil {
		return fmt.Errorf("failed to encode record batch: %w", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	frame, err := c.session.Encrypt(data)
	if err != nil {
		return err
	}
	return c.attemptSendWithRetries(peer, frame)
}

// attemptSendWithRetries retries the same ciphertext so nonce order holds.
func (c *NoiseChannel) attemptSendWithRetries(peer interfaces.Peer, frame []byte) error {
	attempts := c.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := c.link.Send(peer, frame)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"function":   "NoiseChannel.SendRecords",
				"peer":       peer.String(),
				"frame_size": len(frame),
				"attempt":    attempt + 1,
			}).Debug("Record batch sent")
			return nil
		}

		lastErr = err
		logrus.WithFields(logrus.Fields{
			"function": "NoiseChannel.SendRecords",
			"peer":     peer.String(),
			"attempt":  attempt + 1,
			"error":    err.Error(),
		}).Warn("Record batch send failed, retrying")
		c.waitBeforeRetry(attempt, attempts)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NoiseChannel.SendRecords",
		"peer":     peer.String(),
		"attempts": attempts,
		"error":    lastErr.Error(),
	}).Error("All send attempts failed")

	return fmt.Errorf("failed to send record batch after %d attempts: %w", attempts, lastErr)
}

// waitBeforeRetry implements linear backoff between retries.
func (c *NoiseChannel) waitBeforeRetry(attempt, attempts int) {
	if attempt >= attempts-1 {
		return
	}
	c.mu.RLock()
	sleeper := c.sleeper
	c.mu.RUnlock()
	sleeper.Sleep(c.config.RetryBackoff * time.Duration(attempt+1))
}

func (c *NoiseChannel) onFrame(from interfaces.Peer, frame []byte) {
	data, err := c.session.Decrypt(frame)
	if err != nil {
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":   "NoiseChannel.onFrame",
			"peer":       from.String(),
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Warn("Dropping frame that failed decryption")
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(data, from, nil)
	}
}

// Dropped returns the number of inbound frames that failed decryption.
func (c *NoiseChannel) Dropped() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Close closes the underlying link.
func (c *NoiseChannel) Close() error {
	return c.link.Close()
}

// IsSimulation returns false; frames are really encrypted and transmitted.
func (c *NoiseChannel) IsSimulation() bool {
	return false
}
