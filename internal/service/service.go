package service

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/rsensor/internal/admin"
	"github.com/danmuck/rsensor/internal/board"
	"github.com/danmuck/rsensor/internal/config"
	"github.com/danmuck/rsensor/internal/robot"
	"github.com/danmuck/rsensor/internal/server"
	"github.com/rs/zerolog/log"
)

const heartbeatInterval = 30 * time.Second

var (
	_ server.Controller      = (*robot.Controller)(nil)
	_ server.CameraFormatter = (*robot.Controller)(nil)
)

// Service wires the sensor server to its controller, optional board, and
// admin surface for one process.
type Service struct {
	cfg    config.Config
	server *server.Server
	admin  *admin.Admin
	robot  *robot.Controller
	board  *board.Board
}

func New(cfg config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:    cfg,
		server: server.NewServerWithConfig(cfg.Server),
	}
	if cfg.Board.Enabled {
		b, err := board.Open(cfg.Board)
		if err != nil {
			return nil, err
		}
		s.board = b
	}
	if cfg.Robot.Enabled {
		var motors robot.Motors = robot.LogMotors{}
		if s.board != nil {
			motors = s.board
		}
		s.robot = robot.New(cfg.Robot, motors)
		if s.board != nil {
			s.robot.SetSource(s.board)
		}
		s.robot.SetSink(s.server)
		s.server.SetController(s.robot)
	}
	if cfg.Admin.Enabled {
		s.admin = admin.New(cfg.Admin, s.server)
	}
	return s, nil
}

func (s *Service) Server() *server.Server {
	return s.server
}

// Robot is nil when the controller is disabled.
func (s *Service) Robot() *robot.Controller {
	return s.robot
}

// Run serves until SIGINT/SIGTERM or a quit broadcast.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

func (s *Service) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.board != nil {
		defer func() {
			if err := s.board.Close(); err != nil {
				log.Warn().Err(err).Msg("service.Serve close board")
			}
		}()
	}
	if err := s.server.Start(); err != nil {
		return err
	}
	defer s.server.Stop()

	adminErr := make(chan error, 1)
	robotDone := make(chan struct{})
	adminRunning := s.admin != nil
	if adminRunning {
		go func() { adminErr <- s.admin.Serve(ctx) }()
	}
	if s.robot != nil {
		s.robot.OnQuit(cancel)
		go func() {
			defer close(robotDone)
			_ = s.robot.Run(ctx)
		}()
	} else {
		close(robotDone)
	}
	log.Info().
		Str("addr", s.server.Addr().String()).
		Bool("admin", s.admin != nil).
		Bool("robot", s.robot != nil).
		Bool("board", s.board != nil).
		Msg("service.Serve ready")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case aerr := <-adminErr:
			if aerr != nil {
				err = fmt.Errorf("admin: %w", aerr)
			}
			adminRunning = false
			break loop
		case <-ticker.C:
			log.Info().
				Int("peers", len(s.server.Peers())).
				Int("sensors", len(s.server.Sensors())).
				Msg("service.heartbeat")
		}
	}

	cancel()
	<-robotDone
	if adminRunning {
		if aerr := <-adminErr; aerr != nil && err == nil {
			err = fmt.Errorf("admin: %w", aerr)
		}
	}
	log.Info().Msg("service.Serve shutdown")
	return err
}
