package client

import (
	"time"

	"github.com/danmuck/rsensor/internal/protocol/frame"
)

// Config controls how a Client reaches a remote sensor server.
type Config struct {
	Address            string
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration // 0 blocks until a frame arrives
	MaxConnectAttempts int           // 0 retries until ctx is done
	MaxFrameBytes      uint32
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Address:        "127.0.0.1:42001",
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxFrameBytes:  frame.DefaultMaxPayloadBytes,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero durations and limits. Address is left as given.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	return c
}
