package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders cfg in the rsensor.toml layout accepted by Load.
func Template(cfg Config) (string, error) {
	out, err := toml.Marshal(toFile(cfg))
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(out), nil
}

// WriteTemplate writes the default config to path.
func WriteTemplate(path string, overwrite bool) error {
	body, err := Template(Default())
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(body), 0o600)
}

func toFile(cfg Config) fileConfig {
	origins := cfg.Admin.CORSOrigins
	if origins == nil {
		origins = []string{}
	}
	return fileConfig{
		Server: serverSection{
			ListenAddr:      cfg.Server.ListenAddr,
			MaxFrameBytes:   cfg.Server.MaxFrameBytes,
			WriteTimeout:    cfg.Server.WriteTimeout.String(),
			OutboundQueue:   cfg.Server.OutboundQueue,
			ReadBufferSize:  cfg.Server.ReadBufferSize,
			StrictQuotes:    cfg.Server.StrictQuotes,
			RelayBroadcasts: cfg.Server.RelayBroadcasts,
		},
		Admin: adminSection{
			Enabled:     cfg.Admin.Enabled,
			Addr:        cfg.Admin.Addr,
			Name:        cfg.Admin.Name,
			CORSOrigins: origins,
		},
		Robot: robotSection{
			Enabled:      cfg.Robot.Enabled,
			MovingTime:   cfg.Robot.MovingTime.String(),
			TurningTime:  cfg.Robot.TurningTime.String(),
			TickInterval: cfg.Robot.TickInterval.String(),
			LeftPower:    cfg.Robot.LeftPower,
			RightPower:   cfg.Robot.RightPower,
			TurnRatio:    cfg.Robot.TurnRatio,
			Balance:      cfg.Robot.Balance,
			CameraFormat: cfg.Robot.CameraFormat,
		},
		Board: boardSection{
			Enabled:     cfg.Board.Enabled,
			Device:      cfg.Board.Device,
			BaudRate:    cfg.Board.BaudRate,
			ReadTimeout: cfg.Board.ReadTimeout.String(),
		},
		Log: logSection{
			Level:     cfg.Log.Level,
			JSON:      cfg.Log.JSON,
			Timestamp: cfg.Log.Timestamp,
			NoColor:   cfg.Log.NoColor,
		},
	}
}
