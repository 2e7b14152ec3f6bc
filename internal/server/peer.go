package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/rsensor/internal/protocol/frame"
	"github.com/google/uuid"
)

// PeerInfo is the observable shape of one attached peer.
type PeerInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	AttachedAt time.Time `json:"attached_at"`
}

type peer struct {
	id         string
	conn       net.Conn
	remote     string
	attachedAt time.Time

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(conn net.Conn, queue int) *peer {
	return &peer{
		id:         uuid.NewString(),
		conn:       conn,
		remote:     conn.RemoteAddr().String(),
		attachedAt: time.Now(),
		out:        make(chan []byte, queue),
		done:       make(chan struct{}),
	}
}

// enqueue never blocks; false means the peer is not draining.
func (p *peer) enqueue(b []byte) bool {
	select {
	case p.out <- b:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *peer) info() PeerInfo {
	return PeerInfo{ID: p.id, RemoteAddr: p.remote, AttachedAt: p.attachedAt}
}

// readLoop is the only reader of p.conn. Frames are reassembled across reads
// and handed to the event loop in arrival order.
func (s *Server) readLoop(run *runState, p *peer) {
	dec := frame.NewDecoder(s.cfg.limits())
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				payload, ok, derr := dec.Next()
				if derr != nil {
					s.post(run, peerEvent{kind: eventClosed, peer: p, err: derr})
					return
				}
				if !ok {
					break
				}
				if !s.post(run, peerEvent{kind: eventFrame, peer: p, payload: payload}) {
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if dec.Buffered() > 0 {
					err = frame.ErrFrameTruncated
				} else {
					err = fmt.Errorf("%w: %w", ErrPeerDisconnected, err)
				}
			}
			s.post(run, peerEvent{kind: eventClosed, peer: p, err: err})
			return
		}
	}
}

// writeLoop drains the peer queue in order. Each write is bounded by
// WriteTimeout; a failed write detaches only this peer.
func (s *Server) writeLoop(p *peer) {
	for {
		select {
		case <-p.done:
			return
		case b := <-p.out:
			if s.cfg.WriteTimeout > 0 {
				_ = p.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			}
			if _, err := p.conn.Write(b); err != nil {
				s.detach(p, "write_error", err)
				return
			}
		}
	}
}

func closeReason(err error) string {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, frame.ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, frame.ErrFrameTruncated):
		return "truncated"
	case errors.Is(err, net.ErrClosed):
		return "closed"
	default:
		return "read_error"
	}
}
