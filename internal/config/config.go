package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/danmuck/rsensor/internal/admin"
	"github.com/danmuck/rsensor/internal/board"
	"github.com/danmuck/rsensor/internal/logging"
	"github.com/danmuck/rsensor/internal/robot"
	"github.com/danmuck/rsensor/internal/server"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the full runtime shape of one rsensorctl serve process.
type Config struct {
	Server server.ServiceConfig
	Admin  admin.Config
	Robot  robot.Config
	Board  board.Config
	Log    LogConfig
}

type LogConfig struct {
	Level     string
	JSON      bool
	Timestamp bool
	NoColor   bool
}

func Default() Config {
	return Config{
		Server: server.DefaultServiceConfig(),
		Admin:  admin.DefaultConfig(),
		Robot:  robot.DefaultConfig(),
		Board:  board.DefaultConfig(),
		Log:    LogConfig{Level: "info", Timestamp: true},
	}
}

// Validate reports the first setting that would keep the process from
// starting.
func (c Config) Validate() error {
	if err := validateAddr("server.listen_addr", c.Server.ListenAddr); err != nil {
		return err
	}
	if c.Server.MaxFrameBytes == 0 {
		return fmt.Errorf("%w: server.max_frame_bytes must be > 0", ErrInvalid)
	}
	if c.Server.OutboundQueue <= 0 {
		return fmt.Errorf("%w: server.outbound_queue must be > 0", ErrInvalid)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("%w: server.write_timeout must be >= 0", ErrInvalid)
	}
	if c.Admin.Enabled {
		if err := validateAddr("admin.addr", c.Admin.Addr); err != nil {
			return err
		}
		if c.Admin.Addr == c.Server.ListenAddr && !strings.HasSuffix(c.Admin.Addr, ":0") {
			return fmt.Errorf("%w: admin.addr and server.listen_addr collide (%s)", ErrInvalid, c.Admin.Addr)
		}
	}
	if c.Robot.Enabled {
		if err := c.Robot.Validate(); err != nil {
			return fmt.Errorf("%w: robot: %w", ErrInvalid, err)
		}
	}
	if c.Board.Enabled {
		if !c.Robot.Enabled {
			return fmt.Errorf("%w: board requires robot.enabled", ErrInvalid)
		}
		if strings.TrimSpace(c.Board.Device) == "" {
			return fmt.Errorf("%w: board.device is required when board.enabled", ErrInvalid)
		}
		if c.Board.BaudRate <= 0 {
			return fmt.Errorf("%w: board.baud_rate must be > 0", ErrInvalid)
		}
	}
	if strings.TrimSpace(c.Log.Level) != "" {
		if _, ok := logging.ParseLevel(c.Log.Level); !ok {
			return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
		}
	}
	return nil
}

// Logging maps the [log] section to a sink config; RSENSOR_LOG_* env vars
// still win.
func (c Config) Logging() logging.Config {
	lvl, _ := logging.ParseLevel(c.Log.Level)
	return logging.WithEnv(logging.Config{
		Level:     lvl,
		JSON:      c.Log.JSON,
		Timestamp: c.Log.Timestamp,
		NoColor:   c.Log.NoColor,
	})
}

func validateAddr(key, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrInvalid, key, addr, err)
	}
	return nil
}
