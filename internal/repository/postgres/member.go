package postgres

import (
	"context"
	"database/sql"

	"poolvault/internal/domain/member"
	"poolvault/pkg/errors"
)

// MemberRepository implements member.Repository on Postgres.
// Rows are keyed by normalized wallet; Upsert converges repeated mirror
// writes for the same wallet onto one row regardless of input casing.
type MemberRepository struct {
	db DBTX
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

// Get retrieves a member by wallet (any casing)
func (r *MemberRepository) Get(ctx context.Context, wallet string) (*member.Member, error) {
	query := `
		SELECT wallet, shares, deposited_usd, withdrawn_usd, joined_at, last_action_at
		FROM members
		WHERE wallet = $1
	`

	m := &member.Member{}
	err := r.db.QueryRowContext(ctx, query, member.Normalize(wallet)).Scan(
		&m.Wallet, &m.Shares, &m.DepositedUSD, &m.WithdrawnUSD,
		&m.JoinedAt, &m.LastActionAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get member")
	}
	return m, nil
}

// Upsert inserts or fully overwrites a member row
func (r *MemberRepository) Upsert(ctx context.Context, m *member.Member) error {
	query := `
		INSERT INTO members (
			wallet, shares, deposited_usd, withdrawn_usd, joined_at, last_action_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wallet) DO UPDATE SET
			shares = EXCLUDED.shares,
			deposited_usd = EXCLUDED.deposited_usd,
			withdrawn_usd = EXCLUDED.withdrawn_usd,
			last_action_at = EXCLUDED.last_action_at
	`

	_, err := r.db.ExecContext(ctx, query,
		member.Normalize(m.Wallet), m.Shares, m.DepositedUSD, m.WithdrawnUSD,
		m.JoinedAt, m.LastActionAt,
	)
	return errors.Wrap(err, "upsert member")
}

// Delete removes a member row
func (r *MemberRepository) Delete(ctx context.Context, wallet string) error {
	query := `DELETE FROM members WHERE wallet = $1`

	result, err := r.db.ExecContext(ctx, query, member.Normalize(wallet))
	if err != nil {
		return errors.Wrap(err, "delete member")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}
	if rows == 0 {
		return errors.ErrNotFound
	}

	return nil
}

// List retrieves members ordered by join time
func (r *MemberRepository) List(ctx context.Context, limit, offset int) ([]*member.Member, error) {
	query := `
		SELECT wallet, shares, deposited_usd, withdrawn_usd, joined_at, last_action_at
		FROM members
		ORDER BY joined_at
		LIMIT $1 OFFSET $2
	`

	return r.queryMembers(ctx, query, limit, offset)
}

// Leaderboard retrieves members ordered by shares descending
func (r *MemberRepository) Leaderboard(ctx context.Context, limit int) ([]*member.Member, error) {
	query := `
		SELECT wallet, shares, deposited_usd, withdrawn_usd, joined_at, last_action_at
		FROM members
		ORDER BY shares DESC
		LIMIT $1
	`

	return r.queryMembers(ctx, query, limit)
}

// Count returns the number of member rows
func (r *MemberRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM members`)
	return count, errors.Wrap(err, "count members")
}

func (r *MemberRepository) queryMembers(ctx context.Context, query string, args ...interface{}) ([]*member.Member, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query members")
	}
	defer rows.Close()

	var members []*member.Member
	for rows.Next() {
		m := &member.Member{}
		if err := rows.Scan(
			&m.Wallet, &m.Shares, &m.DepositedUSD, &m.WithdrawnUSD,
			&m.JoinedAt, &m.LastActionAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan member")
		}
		members = append(members, m)
	}

	return members, rows.Err()
}
