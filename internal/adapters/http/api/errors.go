package api

import (
	"errors"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

type errorResponse = types.ErrorResponse
