package robot

import "github.com/rs/zerolog/log"

// LogMotors stands in for hardware and only logs the requested power.
type LogMotors struct{}

func (LogMotors) Drive(left, right int) error {
	log.Info().Int("left", left).Int("right", right).Msg("robot motors")
	return nil
}

// MotorFunc adapts a function to Motors.
type MotorFunc func(left, right int) error

func (f MotorFunc) Drive(left, right int) error {
	return f(left, right)
}
