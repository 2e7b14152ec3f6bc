package server

import "errors"

var (
	ErrBindFailure = errors.New("server: bind failure")

	// ErrPeerDisconnected marks an orderly close; it only reaches logs.
	ErrPeerDisconnected = errors.New("server: peer disconnected")
	ErrPeerStalled      = errors.New("server: peer outbound queue full")
	ErrInvalidFormat    = errors.New("server: invalid image format")
)
