package protocol

import "errors"

var (
	ErrMalformedMessage = errors.New("protocol: malformed message")
	ErrUnsupportedValue = errors.New("protocol: unsupported value")
)
