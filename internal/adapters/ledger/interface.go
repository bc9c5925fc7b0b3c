package ledger

import (
	"context"
)

// Ledger defines the read contract against the authoritative pool ledger.
// The ledger is the sole ordering authority and always wins conflicts;
// this layer never writes to it.
type Ledger interface {
	Name() string

	// GetPoolStats returns the ledger's structural pool state:
	// total shares, member count and per-asset allocation.
	GetPoolStats(ctx context.Context) (*PoolStats, error)

	// GetMemberPosition returns the authoritative position for one wallet.
	// Returns errors.ErrNotFound for unknown wallets.
	GetMemberPosition(ctx context.Context, wallet string) (*MemberPosition, error)

	// ListMembers iterates the indexed member collection page by page.
	// Pass an empty cursor to start; a page with an empty NextCursor is last.
	ListMembers(ctx context.Context, cursor string, limit int) (*MemberPage, error)
}
