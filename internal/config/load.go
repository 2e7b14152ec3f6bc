package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// rsensor.toml key mapping. Durations are Go duration strings ("500ms").
type fileConfig struct {
	Server serverSection `toml:"server"`
	Admin  adminSection  `toml:"admin"`
	Robot  robotSection  `toml:"robot"`
	Board  boardSection  `toml:"board"`
	Log    logSection    `toml:"log"`
}

type serverSection struct {
	ListenAddr      string `toml:"listen_addr"`
	MaxFrameBytes   uint32 `toml:"max_frame_bytes"`
	WriteTimeout    string `toml:"write_timeout"`
	OutboundQueue   int    `toml:"outbound_queue"`
	ReadBufferSize  int    `toml:"read_buffer_size"`
	StrictQuotes    bool   `toml:"strict_quotes"`
	RelayBroadcasts bool   `toml:"relay_broadcasts"`
}

type adminSection struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Name        string   `toml:"name"`
	CORSOrigins []string `toml:"cors_origins"`
}

type robotSection struct {
	Enabled      bool   `toml:"enabled"`
	MovingTime   string `toml:"moving_time"`
	TurningTime  string `toml:"turning_time"`
	TickInterval string `toml:"tick_interval"`
	LeftPower    int    `toml:"left_power"`
	RightPower   int    `toml:"right_power"`
	TurnRatio    int    `toml:"turn_ratio"`
	Balance      int    `toml:"balance"`
	CameraFormat string `toml:"camera_format"`
}

type boardSection struct {
	Enabled     bool   `toml:"enabled"`
	Device      string `toml:"device"`
	BaudRate    int    `toml:"baud_rate"`
	ReadTimeout string `toml:"read_timeout"`
}

type logSection struct {
	Level     string `toml:"level"`
	JSON      bool   `toml:"json"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

// Load reads path and overlays every key it defines onto Default. The result
// is validated.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	cfg, err := overlay(Default(), raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlay(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	d := durations{meta: meta}

	if meta.IsDefined("server", "listen_addr") {
		cfg.Server.ListenAddr = strings.TrimSpace(raw.Server.ListenAddr)
	}
	if meta.IsDefined("server", "max_frame_bytes") {
		cfg.Server.MaxFrameBytes = raw.Server.MaxFrameBytes
	}
	d.set(&cfg.Server.WriteTimeout, raw.Server.WriteTimeout, "server", "write_timeout")
	if meta.IsDefined("server", "outbound_queue") {
		cfg.Server.OutboundQueue = raw.Server.OutboundQueue
	}
	if meta.IsDefined("server", "read_buffer_size") {
		cfg.Server.ReadBufferSize = raw.Server.ReadBufferSize
	}
	if meta.IsDefined("server", "strict_quotes") {
		cfg.Server.StrictQuotes = raw.Server.StrictQuotes
	}
	if meta.IsDefined("server", "relay_broadcasts") {
		cfg.Server.RelayBroadcasts = raw.Server.RelayBroadcasts
	}

	if meta.IsDefined("admin", "enabled") {
		cfg.Admin.Enabled = raw.Admin.Enabled
	}
	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "name") {
		cfg.Admin.Name = strings.TrimSpace(raw.Admin.Name)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CORSOrigins = raw.Admin.CORSOrigins
	}

	if meta.IsDefined("robot", "enabled") {
		cfg.Robot.Enabled = raw.Robot.Enabled
	}
	d.set(&cfg.Robot.MovingTime, raw.Robot.MovingTime, "robot", "moving_time")
	d.set(&cfg.Robot.TurningTime, raw.Robot.TurningTime, "robot", "turning_time")
	d.set(&cfg.Robot.TickInterval, raw.Robot.TickInterval, "robot", "tick_interval")
	if meta.IsDefined("robot", "left_power") {
		cfg.Robot.LeftPower = raw.Robot.LeftPower
	}
	if meta.IsDefined("robot", "right_power") {
		cfg.Robot.RightPower = raw.Robot.RightPower
	}
	if meta.IsDefined("robot", "turn_ratio") {
		cfg.Robot.TurnRatio = raw.Robot.TurnRatio
	}
	if meta.IsDefined("robot", "balance") {
		cfg.Robot.Balance = raw.Robot.Balance
	}
	if meta.IsDefined("robot", "camera_format") {
		cfg.Robot.CameraFormat = strings.ToLower(strings.TrimSpace(raw.Robot.CameraFormat))
	}

	if meta.IsDefined("board", "enabled") {
		cfg.Board.Enabled = raw.Board.Enabled
	}
	if meta.IsDefined("board", "device") {
		cfg.Board.Device = strings.TrimSpace(raw.Board.Device)
	}
	if meta.IsDefined("board", "baud_rate") {
		cfg.Board.BaudRate = raw.Board.BaudRate
	}
	d.set(&cfg.Board.ReadTimeout, raw.Board.ReadTimeout, "board", "read_timeout")

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "json") {
		cfg.Log.JSON = raw.Log.JSON
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	return cfg, d.err
}

// durations parses optional duration keys, keeping the first failure.
type durations struct {
	meta toml.MetaData
	err  error
}

func (d *durations) set(dst *time.Duration, raw string, key ...string) {
	if d.err != nil || !d.meta.IsDefined(key...) {
		return
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		d.err = fmt.Errorf("%w: %s: %w", ErrInvalid, strings.Join(key, "."), err)
		return
	}
	*dst = v
}
