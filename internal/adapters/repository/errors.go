package repository

import "errors"

// Sentinel kinds for snapshot store errors.
var (
	ErrBoardNotFound    = errors.New("board not found")
	ErrBoardExists      = errors.New("board already registered")
	ErrEmptyBoardID     = errors.New("board id is empty")
	ErrNoSnapshot       = errors.New("board has no snapshot yet")
	ErrNotFound         = errors.New("participant not found")
	ErrInvalidLimit     = errors.New("invalid leaderboard limit")
	ErrOutdatedSnapshot = errors.New("snapshot older than the stored one")
)
