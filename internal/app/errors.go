package service

import "errors"

// Sentinel errors for the service.
var (
	ErrAlreadyRunning = errors.New("service already running")
)
