package robot

import "errors"

var (
	ErrInvalidConfig   = errors.New("robot: invalid config")
	ErrUnknownVariable = errors.New("robot: unknown variable")
	ErrInvalidValue    = errors.New("robot: invalid value")
)
