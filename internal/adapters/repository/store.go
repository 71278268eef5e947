// Package repository stores the latest published snapshot of every board.
package repository

import (
	"context"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// Store provides access to published leaderboard snapshots.
type Store interface {
	// Publish replaces the board's snapshot unless a newer one is stored.
	Publish(ctx context.Context, snap model.Snapshot) error

	// Latest returns the board's current snapshot.
	// Returns ErrNoSnapshot if nothing was published yet.
	Latest(ctx context.Context, boardID string) (model.Snapshot, error)

	// TopN returns at most n leading entries of the board.
	TopN(ctx context.Context, boardID string, n int) ([]model.RankedEntry, error)

	// Rank returns a single participant's entry.
	// Returns ErrNotFound if the participant is not on the board.
	Rank(ctx context.Context, boardID, participantID string) (model.RankedEntry, error)

	// Count returns the number of entries on the board.
	Count(ctx context.Context, boardID string) (int, error)

	// Boards lists registered boards in registration order.
	Boards() []string
}
