package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrUnknownState = errors.New("metrics: unknown view state")
)
