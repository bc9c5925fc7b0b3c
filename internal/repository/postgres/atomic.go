package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"poolvault/internal/domain/history"
	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/pkg/errors"
)

// Atomic groups repository writes into one database transaction.
// The callback receives repositories bound to the transaction; either
// every write in it commits or none do.
type Atomic struct {
	db *sqlx.DB
}

// NewAtomic creates a transaction runner over the shared connection pool
func NewAtomic(db *sqlx.DB) *Atomic {
	return &Atomic{db: db}
}

// Run executes fn inside a transaction, rolling back on any error
func (a *Atomic) Run(ctx context.Context, fn func(pools pool.Repository, members member.Repository, hist history.Repository) error) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	if err := fn(NewPoolRepository(tx), NewMemberRepository(tx), NewHistoryRepository(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}
