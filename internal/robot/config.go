package robot

import (
	"fmt"
	"strings"
	"time"
)

const (
	minTickInterval = 10 * time.Millisecond
	maxPower        = 100
	maxVariable     = 1<<31 - 1
)

var cameraFormats = []string{"jpg", "gif", "png"}

// Config holds the tunable parameters. Peers may change every field at
// runtime through sensor-update.
type Config struct {
	Enabled      bool
	MovingTime   time.Duration
	TurningTime  time.Duration
	TickInterval time.Duration
	LeftPower    int // -100..100
	RightPower   int // -100..100
	TurnRatio    int // 0..100
	Balance      int // 0..100, 50 is centered
	CameraFormat string
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MovingTime:   500 * time.Millisecond,
		TurningTime:  300 * time.Millisecond,
		TickInterval: 200 * time.Millisecond,
		LeftPower:    100,
		RightPower:   100,
		TurnRatio:    100,
		Balance:      50,
		CameraFormat: "jpg",
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.MovingTime < 0:
		return fmt.Errorf("%w: moving_time=%s", ErrInvalidConfig, c.MovingTime)
	case c.TurningTime < 0:
		return fmt.Errorf("%w: turning_time=%s", ErrInvalidConfig, c.TurningTime)
	case c.TickInterval < minTickInterval:
		return fmt.Errorf("%w: tick_interval=%s below %s", ErrInvalidConfig, c.TickInterval, minTickInterval)
	case c.LeftPower < -maxPower || c.LeftPower > maxPower:
		return fmt.Errorf("%w: left_power=%d", ErrInvalidConfig, c.LeftPower)
	case c.RightPower < -maxPower || c.RightPower > maxPower:
		return fmt.Errorf("%w: right_power=%d", ErrInvalidConfig, c.RightPower)
	case c.TurnRatio < 0 || c.TurnRatio > 100:
		return fmt.Errorf("%w: turn_ratio=%d", ErrInvalidConfig, c.TurnRatio)
	case c.Balance < 0 || c.Balance > 100:
		return fmt.Errorf("%w: balance=%d", ErrInvalidConfig, c.Balance)
	case !IsCameraFormat(c.CameraFormat):
		return fmt.Errorf("%w: camera_format=%q", ErrInvalidConfig, c.CameraFormat)
	}
	return nil
}

func IsCameraFormat(format string) bool {
	format = strings.ToLower(format)
	for _, f := range cameraFormats {
		if f == format {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
