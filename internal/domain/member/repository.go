package member

import (
	"context"
)

// Repository defines durable cache access for member records.
// Upsert is strictly keyed by normalized wallet so repeated or
// out-of-order mirror writes converge instead of duplicating rows.
type Repository interface {
	Get(ctx context.Context, wallet string) (*Member, error)
	Upsert(ctx context.Context, m *Member) error
	Delete(ctx context.Context, wallet string) error
	List(ctx context.Context, limit, offset int) ([]*Member, error)

	// Leaderboard returns members ordered by shares descending
	Leaderboard(ctx context.Context, limit int) ([]*Member, error)

	Count(ctx context.Context) (int, error)
}
