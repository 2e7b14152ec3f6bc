package server

import (
	"strings"
	"time"

	"github.com/danmuck/rsensor/internal/protocol/frame"
)

const DefaultListenAddr = "127.0.0.1:42001"

// ServiceConfig configures one server instance.
type ServiceConfig struct {
	ListenAddr string
	// MaxFrameBytes caps both inbound and outbound payloads.
	MaxFrameBytes uint32
	// WriteTimeout bounds each socket write; a peer that cannot drain in time is detached.
	WriteTimeout time.Duration
	// OutboundQueue is the per-peer backlog of frames awaiting write.
	OutboundQueue  int
	ReadBufferSize int
	StrictQuotes   bool
	// RelayBroadcasts forwards inbound broadcast frames to every other peer.
	RelayBroadcasts bool
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      DefaultListenAddr,
		MaxFrameBytes:   frame.DefaultMaxPayloadBytes,
		WriteTimeout:    5 * time.Second,
		OutboundQueue:   256,
		ReadBufferSize:  4096,
		StrictQuotes:    false,
		RelayBroadcasts: true,
	}
}

// WithDefaults fills zero-valued fields from DefaultServiceConfig.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = def.OutboundQueue
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	return c
}

func (c ServiceConfig) limits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.MaxFrameBytes}
}
