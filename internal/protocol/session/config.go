package session

import "time"

const (
	// EnvSocket names the environment variable carrying the socket path to participants.
	EnvSocket = "CODETANGO_SOCKET"
	// DefaultSocketPath is the well-known coordinator endpoint.
	DefaultSocketPath = "/tmp/codetango.sock"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport timeouts shared by both ends of a session.
type Config struct {
	DialTimeout     time.Duration
	IdentifyTimeout time.Duration
	ReceiveTimeout  time.Duration
	WriteTimeout    time.Duration
	MaxMessageSize  int
	Backoff         BackoffConfig
}

// DefaultConfig returns transport defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:     5 * time.Second,
		IdentifyTimeout: 5 * time.Second,
		ReceiveTimeout:  time.Second,
		WriteTimeout:    5 * time.Second,
		MaxMessageSize:  1 << 20,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.IdentifyTimeout <= 0 {
		c.IdentifyTimeout = def.IdentifyTimeout
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = def.ReceiveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
