package factory

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/otrdata/crypto"
	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/noise"
	"github.com/opd-ai/otrdata/real"
	"github.com/opd-ai/otrdata/testing"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinRetryAttempts is the minimum allowed send attempts.
	MinRetryAttempts = 1
	// MaxRetryAttempts is the maximum allowed send attempts.
	MaxRetryAttempts = 100
	// MinRetryBackoff is the minimum allowed backoff in milliseconds.
	MinRetryBackoff = 0
	// MaxRetryBackoff is the maximum allowed backoff in milliseconds (1 minute).
	MaxRetryBackoff = 60000
)

// Environment variables read by NewChannelFactory.
const (
	EnvUseSimulation = "OTRDATA_USE_SIMULATION"
	EnvRetryAttempts = "OTRDATA_RETRY_ATTEMPTS"
	EnvRetryBackoff  = "OTRDATA_RETRY_BACKOFF_MS"
)

// ChannelFactory creates record channel implementations based on configuration.
// It is safe for concurrent use.
type ChannelFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.ChannelConfig
}

// TestConfigOption is a functional option for customizing test simulation configuration.
type TestConfigOption func(*interfaces.ChannelConfig)

// NewChannelFactory creates a new factory with default configuration and
// OTRDATA_* environment overrides applied.
func NewChannelFactory() *ChannelFactory {
	config := createDefaultConfig()
	applyEnvironmentOverrides(config)

	logrus.WithFields(logrus.Fields{
		"function":       "NewChannelFactory",
		"use_simulation": config.UseSimulation,
		"retry_attempts": config.RetryAttempts,
		"retry_backoff":  config.RetryBackoff,
	}).Info("Created channel factory with configuration")

	return &ChannelFactory{defaultConfig: config}
}

// createDefaultConfig returns the production defaults: noise channel, three
// attempts, 500ms base backoff.
func createDefaultConfig() *interfaces.ChannelConfig {
	return &interfaces.ChannelConfig{
		UseSimulation: false,
		RetryAttempts: 3,
		RetryBackoff:  500 * time.Millisecond,
	}
}

// applyEnvironmentOverrides updates configuration from OTRDATA_* variables.
// Invalid values are logged and ignored.
func applyEnvironmentOverrides(config *interfaces.ChannelConfig) {
	if v := os.Getenv(EnvUseSimulation); v != "" {
		useSim, err := strconv.ParseBool(v)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "applyEnvironmentOverrides",
				"env_var":     EnvUseSimulation,
				"value":       v,
				"error":       err.Error(),
				"using_value": config.UseSimulation,
			}).Warn("Failed to parse environment variable, using default")
		} else {
			config.UseSimulation = useSim
		}
	}

	if n, ok := parseBoundedInt(EnvRetryAttempts, MinRetryAttempts, MaxRetryAttempts, config.RetryAttempts); ok {
		config.RetryAttempts = n
	}
	if n, ok := parseBoundedInt(EnvRetryBackoff, MinRetryBackoff, MaxRetryBackoff, int(config.RetryBackoff/time.Millisecond)); ok {
		config.RetryBackoff = time.Duration(n) * time.Millisecond
	}
}

// parseBoundedInt reads an integer environment variable within [lo, hi].
func parseBoundedInt(name string, lo, hi, current int) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseBoundedInt",
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse environment variable, using default")
		return 0, false
	}
	if n < lo || n > hi {
		logrus.WithFields(logrus.Fields{
			"function":    "parseBoundedInt",
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

// CreateChannel creates a record channel over link using the default configuration.
func (f *ChannelFactory) CreateChannel(link interfaces.IMessageLink, session *noise.Session) (interfaces.IDuplexChannel, error) {
	return f.CreateChannelWithConfig(link, session, nil)
}

// CreateChannelWithConfig creates a record channel with a custom configuration.
// Simulation mode ignores link and session.
func (f *ChannelFactory) CreateChannelWithConfig(link interfaces.IMessageLink, session *noise.Session, config *interfaces.ChannelConfig) (interfaces.IDuplexChannel, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}

	if config.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function": "CreateChannelWithConfig",
			"type":     "simulation",
		}).Info("Creating simulated record channel")
		return testing.NewSimulatedChannel(config), nil
	}

	if link == nil {
		return nil, fmt.Errorf("message link is required for noise channel")
	}
	if session == nil {
		return nil, fmt.Errorf("noise session is required for noise channel")
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreateChannelWithConfig",
		"type":     "noise",
	}).Info("Creating noise record channel")

	return real.NewNoiseChannel(link, session, config), nil
}

// CreateLoopbackPair creates two connected channels for local transfers.
// In simulation mode the channels are linked in memory; otherwise a Noise XX
// handshake runs between the two identities and the channels share a
// loopback link.
func (f *ChannelFactory) CreateLoopbackPair(a, b *crypto.KeyPair) (interfaces.IDuplexChannel, interfaces.IDuplexChannel, error) {
	config := f.GetCurrentConfig()

	if config.UseSimulation {
		sa := testing.NewSimulatedChannel(config)
		sb := testing.NewSimulatedChannel(config)
		testing.Link(sa, sb)
		return sa, sb, nil
	}

	ini, resp, err := noise.Establish(a, b)
	if err != nil {
		return nil, nil, fmt.Errorf("noise handshake failed: %w", err)
	}

	la, lb := real.NewLoopbackLinkPair()
	return real.NewNoiseChannel(la, ini, config), real.NewNoiseChannel(lb, resp, config), nil
}

// WithRetryAttempts sets custom retry attempts for the test configuration.
func WithRetryAttempts(retries int) TestConfigOption {
	return func(c *interfaces.ChannelConfig) {
		c.RetryAttempts = retries
	}
}

// WithRetryBackoff sets a custom backoff for the test configuration.
func WithRetryBackoff(d time.Duration) TestConfigOption {
	return func(c *interfaces.ChannelConfig) {
		c.RetryBackoff = d
	}
}

// CreateSimulationForTesting creates a simulated channel for tests.
// Defaults: RetryAttempts=1, RetryBackoff=0.
func (f *ChannelFactory) CreateSimulationForTesting(opts ...TestConfigOption) *testing.SimulatedChannel {
	testConfig := &interfaces.ChannelConfig{
		UseSimulation: true,
		RetryAttempts: 1,
	}
	for _, opt := range opts {
		opt(testConfig)
	}

	logrus.WithFields(logrus.Fields{
		"function":       "CreateSimulationForTesting",
		"retry_attempts": testConfig.RetryAttempts,
	}).Info("Creating simulation implementation for testing")

	return testing.NewSimulatedChannel(testConfig)
}

// SwitchToSimulation switches the configuration to use simulation.
func (f *ChannelFactory) SwitchToSimulation() {
	f.setSimulation(true)
}

// SwitchToReal switches the configuration to use the noise channel.
func (f *ChannelFactory) SwitchToReal() {
	f.setSimulation(false)
}

func (f *ChannelFactory) setSimulation(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "setSimulation",
		"previous": f.defaultConfig.UseSimulation,
		"current":  on,
	}).Info("Switching factory channel mode")

	f.defaultConfig.UseSimulation = on
}

// GetCurrentConfig returns a copy of the current default configuration.
func (f *ChannelFactory) GetCurrentConfig() *interfaces.ChannelConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c := *f.defaultConfig
	return &c
}

// IsUsingSimulation returns true if the factory is configured for simulation.
func (f *ChannelFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig.UseSimulation
}

// UpdateConfig replaces the factory's default configuration.
func (f *ChannelFactory) UpdateConfig(config *interfaces.ChannelConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.RetryAttempts < MinRetryAttempts || config.RetryAttempts > MaxRetryAttempts {
		return fmt.Errorf("retry attempts %d outside [%d, %d]", config.RetryAttempts, MinRetryAttempts, MaxRetryAttempts)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": config.UseSimulation,
	}).Info("Updating factory configuration")

	c := *config
	f.defaultConfig = &c
	return nil
}
