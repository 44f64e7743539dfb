package aiusage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store handles ai_usage persistence.
type Store struct {
	db *pgxpool.Pool
}

// NewStore returns a Store backed by the given connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// UseToken deducts one call from uid's allowance for month in a single
// statement. A missing row is created and a row from an earlier month is
// reset to allowance first. Returns ErrInsufficientTokens when nothing is left.
func (s *Store) UseToken(ctx context.Context, uid, month string, allowance int) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO ai_usage (uid, tokens_remaining, last_reset_month)
		VALUES ($1, $2 - 1, $3)
		ON CONFLICT (uid) DO UPDATE SET
			tokens_remaining = CASE WHEN ai_usage.last_reset_month <> EXCLUDED.last_reset_month
				THEN $2 - 1 ELSE ai_usage.tokens_remaining - 1 END,
			last_reset_month = EXCLUDED.last_reset_month
		WHERE ai_usage.last_reset_month <> EXCLUDED.last_reset_month OR ai_usage.tokens_remaining > 0
	`, uid, allowance, month)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientTokens
	}
	return nil
}

// Remaining reports uid's calls left for month without consuming one.
func (s *Store) Remaining(ctx context.Context, uid, month string, allowance int) (int, error) {
	var remaining int
	var last string
	err := s.db.QueryRow(ctx, `
		SELECT tokens_remaining, last_reset_month FROM ai_usage WHERE uid = $1`, uid,
	).Scan(&remaining, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return allowance, nil
	}
	if err != nil {
		return 0, err
	}
	if last != month {
		return allowance, nil
	}
	return remaining, nil
}
