package vision

import (
	"log/slog"
	"time"
)

// Config holds the device configuration. Construct it with NewConfigBuilder.
type Config struct {
	dialer     Dialer
	bufferSize int
	atTimeout  time.Duration
	ackTimeout time.Duration
	maxRetries int
	logger     *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.bufferSize == 0 {
		c.bufferSize = 8192
	}
	if c.atTimeout == 0 {
		c.atTimeout = time.Second
	}
	if c.ackTimeout == 0 {
		c.ackTimeout = 50 * time.Millisecond
	}
	if c.maxRetries == 0 {
		c.maxRetries = 2
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config fluently.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with zero values; Build applies
// defaults for everything left unset.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets the Dialer used to open the transport. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithBufferSize sets the response buffer capacity in bytes. The buffer must
// exceed the largest expected single frame; image-carrying events need
// several kilobytes.
func (b *ConfigBuilder) WithBufferSize(n int) *ConfigBuilder {
	b.config.bufferSize = n
	return b
}

// WithATTimeout sets the default wait for a command response.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

// WithAckTimeout sets the short wait for the acknowledgement phase of
// Invoke and Sample.
func (b *ConfigBuilder) WithAckTimeout(d time.Duration) *ConfigBuilder {
	b.config.ackTimeout = d
	return b
}

// WithMaxRetries sets how many times PerformCommand attempts the full
// send+wait cycle when a frame fails to decode.
func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.config.maxRetries = n
	return b
}

// WithLogger sets the logger for wire-level debug traces.
func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build validates the configuration and applies defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	b.config.setDefaults()
	return b.config, nil
}
