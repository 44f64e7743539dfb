// README: Shared Google Maps client plus the breaker/limiter guard every upstream call goes through.
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"ridepool/internal/logging"
	"ridepool/internal/metrics"
)

var (
	// ErrUpstreamUnavailable wraps every geocoding or routing failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNoCandidate is returned by Resolve when nothing inside the region matches.
	ErrNoCandidate = errors.New("no matching place in serviced region")
)

// NewClient creates a Google Maps client with the given API key.
func NewClient(apiKey string) (*maps.Client, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// guard applies a client-side rate limit and a circuit breaker to one upstream API.
type guard[T any] struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[T]
}

func newGuard[T any](name string, requestsPerSecond float64) *guard[T] {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	return &guard[T]{
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
			IsExcluded: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (g *guard[T]) do(ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := g.limiter.Wait(ctx); err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues(g.name, metrics.OutcomeRejected).Inc()
		return zero, fmt.Errorf("%w: %s rate limit: %w", ErrUpstreamUnavailable, g.name, err)
	}
	v, err := g.breaker.Execute(fn)
	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues(g.name, metrics.OutcomeError).Inc()
		return zero, fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, g.name, err)
	}
	metrics.UpstreamCallsTotal.WithLabelValues(g.name, metrics.OutcomeOK).Inc()
	return v, nil
}
