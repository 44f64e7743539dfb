// README: Ride assistant; turns a free-text request into a ride search via Gemini and the geocoder.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"ridepool/internal/ai"
	"ridepool/internal/logging"
	"ridepool/internal/maps"
	"ridepool/internal/modules/matching"
	"ridepool/internal/types"
)

// maxAssistantMessage bounds the request text, counted in runes.
const maxAssistantMessage = 500

// assistantRegion is handed to the model so it resolves places locally.
const assistantRegion = "Bangalore, India"

var (
	ErrAssistantUnavailable = errors.New("ride assistant is not configured")
	ErrAssistantParse       = errors.New("could not understand the request")
)

type Quota interface {
	UseToken(ctx context.Context, uid string) error
	Remaining(ctx context.Context, uid string) (int, error)
}

type PlaceResolver interface {
	Resolve(ctx context.Context, query string) (maps.Address, error)
}

type RideSearcher interface {
	Search(ctx context.Context, q matching.SearchQuery) (*matching.SearchResult, error)
}

// AssistantResult is what the assistant found. Result is nil when the
// request did not name both places or a place could not be resolved.
type AssistantResult struct {
	Reply       string                 `json:"reply"`
	Query       *ai.RideQuery          `json:"query,omitempty"`
	Source      *maps.Address          `json:"source,omitempty"`
	Destination *maps.Address          `json:"destination,omitempty"`
	Result      *matching.SearchResult `json:"result,omitempty"`
}

// RideAssistant orchestrates AI parsing, geocoding and the ride search.
type RideAssistant struct {
	llm    ai.LLMProvider
	quota  Quota
	places PlaceResolver
	search RideSearcher
	loc    *time.Location
	now    func() time.Time
}

// NewRideAssistant creates a RideAssistant. A nil llm leaves the assistant
// disabled; Search then returns ErrAssistantUnavailable.
func NewRideAssistant(llm ai.LLMProvider, quota Quota, places PlaceResolver, search RideSearcher, loc *time.Location) *RideAssistant {
	if loc == nil {
		loc = time.UTC
	}
	return &RideAssistant{llm: llm, quota: quota, places: places, search: search, loc: loc, now: time.Now}
}

// Search parses message, resolves both places and runs the ride search.
// Each call that reaches the model consumes one unit of uid's allowance.
func (a *RideAssistant) Search(ctx context.Context, uid types.ID, message string) (*AssistantResult, error) {
	if a == nil || a.llm == nil {
		return nil, ErrAssistantUnavailable
	}
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > maxAssistantMessage {
		return nil, fmt.Errorf("%w: message must be 1-%d characters", matching.ErrValidation, maxAssistantMessage)
	}
	if a.quota != nil {
		if err := a.quota.UseToken(ctx, string(uid)); err != nil {
			return nil, err
		}
	}

	q, err := a.llm.ParseRideQuery(ctx, message, map[string]string{
		"current_time": a.now().In(a.loc).Format(time.RFC3339),
		"region":       assistantRegion,
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("assistant parse failed")
		return nil, fmt.Errorf("%w: %w", ErrAssistantParse, err)
	}
	out := &AssistantResult{Reply: q.Reply, Query: q}
	if !q.Ready() {
		if out.Reply == "" {
			out.Reply = "Where are you starting from, and where do you want to go?"
		}
		return out, nil
	}

	day, err := q.Day(a.loc)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("assistant date ignored")
		day = nil
	}

	src, dst, err := a.resolvePair(ctx, *q.Source, *q.Destination)
	if errors.Is(err, maps.ErrNoCandidate) {
		out.Reply = fmt.Sprintf("I couldn't find %s in Bangalore. Could you be more specific?", unresolvedName(err, *q.Source, *q.Destination))
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.Source, out.Destination = &src, &dst

	res, err := a.search.Search(ctx, matching.SearchQuery{
		Source:      &src.Coordinate,
		Destination: &dst.Coordinate,
		Date:        day,
	})
	if err != nil {
		return nil, err
	}
	out.Result = res
	out.Reply = summarize(len(res.Matches), src.PrimaryLabel, dst.PrimaryLabel, day)
	return out, nil
}

// Allowance reports how many assistant searches uid has left this month.
func (a *RideAssistant) Allowance(ctx context.Context, uid types.ID) (int, error) {
	if a.llm == nil || a.quota == nil {
		return 0, ErrAssistantUnavailable
	}
	return a.quota.Remaining(ctx, string(uid))
}

// placeError tags a resolution failure with the place that failed.
type placeError struct {
	place string
	err   error
}

func (e *placeError) Error() string { return fmt.Sprintf("resolving %q: %v", e.place, e.err) }
func (e *placeError) Unwrap() error { return e.err }

func (a *RideAssistant) resolvePair(ctx context.Context, source, destination string) (maps.Address, maps.Address, error) {
	var src, dst maps.Address
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr, err := a.places.Resolve(gctx, source)
		if err != nil {
			return &placeError{place: source, err: err}
		}
		src = addr
		return nil
	})
	g.Go(func() error {
		addr, err := a.places.Resolve(gctx, destination)
		if err != nil {
			return &placeError{place: destination, err: err}
		}
		dst = addr
		return nil
	})
	if err := g.Wait(); err != nil {
		return maps.Address{}, maps.Address{}, err
	}
	return src, dst, nil
}

func unresolvedName(err error, fallback ...string) string {
	var pe *placeError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%q", pe.place)
	}
	return fmt.Sprintf("%q", strings.Join(fallback, " or "))
}

func summarize(n int, from, to string, day *time.Time) string {
	when := ""
	if day != nil {
		when = " on " + day.Format("2 Jan")
	}
	switch n {
	case 0:
		return fmt.Sprintf("No rides from %s to %s%s yet. Try another day or a nearby pickup point.", from, to, when)
	case 1:
		return fmt.Sprintf("Found 1 ride from %s to %s%s.", from, to, when)
	default:
		return fmt.Sprintf("Found %d rides from %s to %s%s.", n, from, to, when)
	}
}
