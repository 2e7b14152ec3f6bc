package server

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/danmuck/rsensor/internal/observability"
	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/protocol/frame"
	"github.com/danmuck/rsensor/internal/sensor"
	"github.com/rs/zerolog/log"
)

type eventKind int

const (
	eventFrame eventKind = iota
	eventClosed
	eventAcceptFailed
)

type peerEvent struct {
	kind    eventKind
	peer    *peer
	payload []byte
	err     error
}

// runState is owned by one Running period; a restart gets a fresh one so
// goroutines of a stopped run can never feed the next.
type runState struct {
	stop     chan struct{}
	done     chan struct{}
	accepted chan net.Conn
	events   chan peerEvent
}

// Server is the connection multiplexer. The event loop is the only reader of
// peer sockets; outbound calls may come from any goroutine.
type Server struct {
	cfg     ServiceConfig
	sensors *sensor.Store

	mu         sync.Mutex
	running    bool
	ln         net.Listener
	run        *runState
	peers      map[*peer]struct{}
	controller Controller

	watchMu  sync.Mutex
	watchers map[chan protocol.Message]struct{}
}

func NewServer() *Server {
	return NewServerWithConfig(DefaultServiceConfig())
}

func NewServerWithConfig(cfg ServiceConfig) *Server {
	observability.RegisterMetrics()
	return &Server{
		cfg:      cfg.WithDefaults(),
		sensors:  sensor.NewStore(),
		peers:    make(map[*peer]struct{}),
		watchers: make(map[chan protocol.Message]struct{}),
	}
}

// SetController binds the command sink. Detaching (nil) clears the sensor table.
func (s *Server) SetController(c Controller) {
	s.mu.Lock()
	prev := s.controller
	s.controller = c
	s.mu.Unlock()
	if c == nil && prev != nil {
		s.sensors.Reset()
	}
}

// Start binds the configured address and runs the event loop in the
// background. It is a no-op while running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: addr=%q: %w", ErrBindFailure, s.cfg.ListenAddr, err)
	}
	s.startLocked(ln)
	return nil
}

// StartListener runs the event loop on an existing listener. Like Start it
// is a no-op while running; ln is then left untouched and stays the caller's.
func (s *Server) StartListener(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.startLocked(ln)
	return nil
}

func (s *Server) startLocked(ln net.Listener) {
	run := &runState{
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		accepted: make(chan net.Conn),
		events:   make(chan peerEvent, 64),
	}
	s.ln = ln
	s.run = run
	s.running = true
	s.peers = make(map[*peer]struct{})
	go s.acceptLoop(run, ln)
	go s.loop(run)
	log.Info().Str("addr", ln.Addr().String()).Msg("server.Start listening")
}

// Stop closes the listener and every peer and waits for the event loop to
// exit. Safe to call repeatedly and before Start.
func (s *Server) Stop() {
	if run := s.halt(nil); run != nil {
		<-run.done
	}
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listener address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Peers returns attached peers ordered by attach time.
func (s *Server) Peers() []PeerInfo {
	s.mu.Lock()
	out := make([]PeerInfo, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p.info())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].AttachedAt.Before(out[j].AttachedAt)
	})
	return out
}

// Sensors returns a copy of the last broadcast sensor state.
func (s *Server) Sensors() map[string]protocol.Value {
	return s.sensors.Snapshot()
}

// halt tears down the current run. When expect is set, only that run is
// stopped, so a stale loop cannot stop a restarted server.
func (s *Server) halt(expect *runState) *runState {
	s.mu.Lock()
	if !s.running || (expect != nil && s.run != expect) {
		s.mu.Unlock()
		return nil
	}
	run, ln, peers := s.run, s.ln, s.peers
	s.running = false
	s.run = nil
	s.ln = nil
	s.peers = make(map[*peer]struct{})
	s.mu.Unlock()

	close(run.stop)
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn().Err(err).Msg("server.Stop close listener")
	}
	for p := range peers {
		p.close()
	}
	observability.SetPeersActive(0)
	log.Info().Int("peers_closed", len(peers)).Msg("server.Stop stopped")
	return run
}

func (s *Server) acceptLoop(run *runState, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-run.stop:
				return
			default:
			}
			s.post(run, peerEvent{kind: eventAcceptFailed, err: err})
			return
		}
		select {
		case run.accepted <- conn:
		case <-run.stop:
			_ = conn.Close()
			return
		}
	}
}

// post hands an event to the loop; false once the run is stopped.
func (s *Server) post(run *runState, ev peerEvent) bool {
	select {
	case run.events <- ev:
		return true
	case <-run.stop:
		return false
	}
}

func (s *Server) loop(run *runState) {
	defer close(run.done)
	defer func() {
		if r := recover(); r != nil {
			observability.RecordDispatchFailure()
			log.Error().Interface("panic", r).Msg("server.loop failure, stopping")
			s.halt(run)
		}
	}()

	for {
		select {
		case <-run.stop:
			return
		case conn := <-run.accepted:
			s.attach(run, conn)
		case ev := <-run.events:
			switch ev.kind {
			case eventFrame:
				s.handleFrame(ev.peer, ev.payload)
			case eventClosed:
				s.detach(ev.peer, closeReason(ev.err), ev.err)
			case eventAcceptFailed:
				observability.RecordDispatchFailure()
				log.Error().Err(ev.err).Msg("server.loop accept failed, stopping")
				s.halt(run)
				return
			}
		}
	}
}

// attach registers the peer and queues the full sensor snapshot ahead of any
// other outbound traffic; both happen under mu so no diff can slip in first.
func (s *Server) attach(run *runState, conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			log.Warn().Err(err).Msg("server.attach set nodelay")
		}
	}
	p := newPeer(conn, s.cfg.OutboundQueue)

	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.peers[p] = struct{}{}
	active := len(s.peers)
	snapshot, hasSnapshot := s.sensors.FullSnapshot()
	if hasSnapshot {
		if b, err := s.encodeFrame(snapshot); err != nil {
			log.Warn().Err(err).Str("peer", p.id).Msg("server.attach encode snapshot")
		} else {
			p.enqueue(b)
		}
	}
	s.mu.Unlock()

	go s.writeLoop(p)
	go s.readLoop(run, p)

	observability.RecordPeerAccepted(active)
	if hasSnapshot {
		observability.RecordFrameOut(snapshot.Command)
	}
	log.Info().
		Str("peer", p.id).
		Str("remote", p.remote).
		Int("active_peers", active).
		Msg("server peer attached")
}

// detach is idempotent and may run on any goroutine.
func (s *Server) detach(p *peer, reason string, err error) {
	s.mu.Lock()
	_, attached := s.peers[p]
	delete(s.peers, p)
	active := len(s.peers)
	s.mu.Unlock()

	p.close()
	if !attached {
		return
	}
	switch reason {
	case "frame_too_large", "truncated":
		observability.RecordFrameError(reason)
	}
	observability.RecordPeerDetached(reason, active)
	ev := log.Info()
	if reason != "eof" {
		ev = log.Warn().Err(err)
	}
	ev.Str("peer", p.id).
		Str("remote", p.remote).
		Str("reason", reason).
		Int("active_peers", active).
		Msg("server peer detached")
}

func (s *Server) handleFrame(p *peer, payload []byte) {
	s.mu.Lock()
	_, attached := s.peers[p]
	ctrl := s.controller
	s.mu.Unlock()
	if !attached {
		return
	}

	text := string(payload)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	var (
		msg protocol.Message
		err error
	)
	if s.cfg.StrictQuotes {
		msg, err = protocol.DecodeStrict(text)
	} else {
		msg, err = protocol.Decode(text)
	}
	if err != nil {
		observability.RecordFrameError("malformed")
		log.Warn().Err(err).Str("peer", p.id).Msg("server.handleFrame decode")
		return
	}
	observability.RecordFrameIn(msg.Command)
	log.Debug().Str("peer", p.id).Str("command", msg.Command).Int("args", len(msg.Args)).Msg("server.handleFrame")

	if msg.Command == protocol.CommandBroadcast && s.cfg.RelayBroadcasts {
		s.relay(p, payload, msg)
	}
	s.dispatch(ctrl, p, msg)
}

func (s *Server) dispatch(ctrl Controller, p *peer, msg protocol.Message) {
	if ctrl == nil {
		return
	}
	switch msg.Command {
	case protocol.CommandSensorUpdate:
		ctrl.SensorUpdate(msg.Pairs())
	case protocol.CommandBroadcast:
		name, ok := msg.Arg(0)
		if !ok {
			log.Warn().Str("peer", p.id).Msg("server.dispatch broadcast without name")
			return
		}
		ctrl.Broadcast(name.String())
	default:
		log.Debug().Str("peer", p.id).Str("command", msg.Command).Msg("server.dispatch ignored command")
	}
}

// relay forwards an inbound payload to every peer except its sender.
func (s *Server) relay(from *peer, payload []byte, msg protocol.Message) {
	b, err := frame.AppendFrame(nil, payload, s.cfg.limits())
	if err != nil {
		log.Warn().Err(err).Str("peer", from.id).Msg("server.relay")
		return
	}
	s.mu.Lock()
	stalled := s.fanoutLocked(b, from)
	s.mu.Unlock()
	s.detachStalled(stalled)
	observability.RecordFrameOut(protocol.CommandBroadcast)
	s.publish(msg)
}

func (s *Server) encodeFrame(msg protocol.Message) ([]byte, error) {
	return frame.AppendFrame(nil, []byte(protocol.Encode(msg)), s.cfg.limits())
}
