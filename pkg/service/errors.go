package service

import "errors"

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")

	// ErrTransport wraps read and write failures on a client connection.
	ErrTransport = errors.New("transport error")
)
