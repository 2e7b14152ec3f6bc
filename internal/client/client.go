package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: address required")
	ErrClosed          = errors.New("client: connection closed")
)

// Client is one peer connection to a remote sensor server. Sends are safe for
// concurrent use; Recv must be called from a single goroutine.
type Client struct {
	cfg    Config
	limits frame.Limits
	conn   net.Conn
	reader *bufio.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to cfg.Address, retrying with backoff until it succeeds, the
// attempt budget runs out, or ctx is done.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	backoff := NewBackoff(cfg.Backoff, rand.New(rand.NewSource(time.Now().UnixNano())))

	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err == nil {
			log.Debug().Str("addr", cfg.Address).Int("attempt", attempt).Msg("client.Dial connected")
			return newClient(cfg, conn), nil
		}
		log.Warn().Err(err).Str("addr", cfg.Address).Int("attempt", attempt).Msg("client.Dial failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("client: dial %s after %d attempts: %w", cfg.Address, attempt, err)
		}

		timer := time.NewTimer(backoff.Next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// New wraps an established connection.
func New(conn net.Conn, cfg Config) *Client {
	return newClient(cfg.WithDefaults(), conn)
}

func newClient(cfg Config, conn net.Conn) *Client {
	return &Client{
		cfg:    cfg,
		limits: frame.Limits{MaxPayloadBytes: cfg.MaxFrameBytes},
		conn:   conn,
		reader: bufio.NewReader(conn),
		closed: make(chan struct{}),
	}
}

func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Client) Send(msg protocol.Message) error {
	return c.SendRaw([]byte(protocol.Encode(msg)))
}

// SendRaw frames payload as-is; used for outbound blobs that are not in the
// quoted grammar.
func (c *Client) SendRaw(payload []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return frame.WriteFrame(c.conn, payload, c.limits)
}

func (c *Client) SensorUpdate(values map[string]protocol.Value) error {
	return c.Send(protocol.SensorUpdate(values))
}

func (c *Client) Broadcast(name string) error {
	return c.Send(protocol.NewMessage(protocol.CommandBroadcast, protocol.StringValue(name)))
}

// RecvRaw returns the next frame payload.
func (c *Client) RecvRaw() ([]byte, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	payload, err := frame.ReadFrame(c.reader, c.limits)
	if err != nil {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}
		return nil, err
	}
	return payload, nil
}

// Recv reads and decodes the next message.
func (c *Client) Recv() (protocol.Message, error) {
	payload, err := c.RecvRaw()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(strings.ToValidUTF8(string(payload), "�"))
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
