package aiusage

import (
	"context"
	"time"
)

type Repository interface {
	UseToken(ctx context.Context, uid, month string, allowance int) error
	Remaining(ctx context.Context, uid, month string, allowance int) (int, error)
}

// Service enforces the monthly ride assistant allowance.
type Service struct {
	store     Repository
	allowance int
	loc       *time.Location
	now       func() time.Time
}

// NewService creates a Service; a non-positive allowance falls back to DefaultTokens.
// Months roll over in loc.
func NewService(store Repository, allowance int, loc *time.Location) *Service {
	if allowance <= 0 {
		allowance = DefaultTokens
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, allowance: allowance, loc: loc, now: time.Now}
}

// UseToken deducts one call from the user's monthly allowance.
// Returns ErrInsufficientTokens when the quota for the current month is exhausted.
func (s *Service) UseToken(ctx context.Context, uid string) error {
	return s.store.UseToken(ctx, uid, s.month(), s.allowance)
}

func (s *Service) Remaining(ctx context.Context, uid string) (int, error) {
	return s.store.Remaining(ctx, uid, s.month(), s.allowance)
}

func (s *Service) month() string {
	return s.now().In(s.loc).Format(monthLayout)
}
