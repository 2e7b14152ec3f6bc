package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/danmuck/rsensor/internal/observability"
	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// DefaultCameraFormat tags images when neither the caller nor the controller
// names a format.
const DefaultCameraFormat = "jpg"

var imageFormats = map[string]struct{}{
	"jpg": {},
	"gif": {},
	"png": {},
}

// Broadcast queues an already framed message to every attached peer. A peer
// whose queue is full is detached; delivery to the rest continues.
func (s *Server) Broadcast(b []byte) {
	s.mu.Lock()
	stalled := s.fanoutLocked(b, nil)
	s.mu.Unlock()
	s.detachStalled(stalled)
}

// BroadcastMessage encodes, frames, and fans out msg.
func (s *Server) BroadcastMessage(msg protocol.Message) error {
	b, err := s.encodeFrame(msg)
	if err != nil {
		return err
	}
	s.Broadcast(b)
	observability.RecordFrameOut(msg.Command)
	s.publish(msg)
	return nil
}

// SendBroadcast emits a broadcast event to all peers.
func (s *Server) SendBroadcast(name string) error {
	return s.BroadcastMessage(protocol.NewMessage(protocol.CommandBroadcast, protocol.StringValue(name)))
}

// SensorUpdate records readings and fans out only what changed. The table is
// updated even when no peer is attached, so later attaches see it in the
// snapshot.
func (s *Server) SensorUpdate(values map[string]protocol.Value) error {
	s.mu.Lock()
	msg, ok := s.sensors.DiffUpdate(values, false)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	b, err := s.encodeFrame(msg)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	stalled := s.fanoutLocked(b, nil)
	s.mu.Unlock()

	s.detachStalled(stalled)
	observability.RecordFrameOut(msg.Command)
	s.publish(msg)
	return nil
}

// Camera sends one image as "<format> <base64>". The payload is built raw so
// the blob stays a bare token on the wire. An empty format falls back to the
// bound controller's CameraFormat, then DefaultCameraFormat.
func (s *Server) Camera(format string, image []byte) error {
	format = normalizeFormat(format)
	if format == "" {
		format = s.cameraFormat()
	}
	if _, ok := imageFormats[format]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	encoded := base64.StdEncoding.EncodeToString(image)
	b, err := frame.AppendFrame(nil, []byte(format+" "+encoded), s.cfg.limits())
	if err != nil {
		return err
	}
	s.Broadcast(b)
	observability.RecordFrameOut(format)
	s.publish(protocol.NewMessage(format, protocol.StringValue(encoded)))
	return nil
}

// Watch streams every message fanned out to all peers, including relayed
// broadcasts, until ctx is done. Per-peer attach snapshots are not streamed.
// Slow watchers drop messages rather than stall fan-out.
func (s *Server) Watch(ctx context.Context) <-chan protocol.Message {
	ch := make(chan protocol.Message, 64)
	s.watchMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchMu.Unlock()
	go func() {
		<-ctx.Done()
		s.watchMu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.watchMu.Unlock()
	}()
	return ch
}

func (s *Server) cameraFormat() string {
	s.mu.Lock()
	ctrl := s.controller
	s.mu.Unlock()
	if cf, ok := ctrl.(CameraFormatter); ok {
		if f := normalizeFormat(cf.CameraFormat()); f != "" {
			return f
		}
	}
	return DefaultCameraFormat
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func (s *Server) publish(msg protocol.Message) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *Server) fanoutLocked(b []byte, except *peer) []*peer {
	var stalled []*peer
	for p := range s.peers {
		if p == except {
			continue
		}
		if !p.enqueue(b) {
			stalled = append(stalled, p)
		}
	}
	return stalled
}

func (s *Server) detachStalled(stalled []*peer) {
	for _, p := range stalled {
		s.detach(p, "stalled", ErrPeerStalled)
	}
	if len(stalled) > 0 {
		log.Warn().Int("peers", len(stalled)).Msg("server fan-out detached stalled peers")
	}
}
