package feedsim

import "errors"

// Static errors for the simulator.
var (
	ErrInvalidConfig = errors.New("invalid simulator config")
	ErrUnhealthy     = errors.New("service is not healthy")
	ErrUnexpected    = errors.New("unexpected response")
	ErrMismatch      = errors.New("leaderboard does not match the last batch")
)
