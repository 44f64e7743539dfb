package maps

import (
	"context"
	"strings"
	"unicode/utf8"

	"googlemaps.github.io/maps"

	"ridepool/internal/logging"
	"ridepool/internal/modules/location"
	"ridepool/internal/types"
)

// MinQueryLength is the shortest query, in characters, sent upstream.
const MinQueryLength = 3

// searchRadiusMeters covers the serviced region from its centre.
const searchRadiusMeters = 20000

// placesAPI is the subset of *maps.Client used for geocoding.
type placesAPI interface {
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
}

// Candidate is one place returned by a text search.
type Candidate struct {
	Name             string      `json:"name"`
	FormattedAddress string      `json:"formattedAddress"`
	Vicinity         string      `json:"vicinity,omitempty"`
	PlaceID          string      `json:"placeId"`
	Location         types.Point `json:"location"`
}

// Address is the normalized record stored on rides and used for search.
type Address struct {
	Coordinate     types.Point `json:"coordinate"`
	FormattedLabel string      `json:"formattedLabel"`
	PrimaryLabel   string      `json:"primaryLabel"`
	SecondaryLabel string      `json:"secondaryLabel"`
	ExternalID     string      `json:"externalId"`
}

// Geocoder turns free text into places inside the serviced region.
type Geocoder struct {
	api    placesAPI
	guard  *guard[maps.PlacesSearchResponse]
	bounds location.Bounds
}

// NewGeocoder creates a Geocoder over api (normally a *maps.Client).
func NewGeocoder(api placesAPI, requestsPerSecond float64) *Geocoder {
	return &Geocoder{
		api:    api,
		guard:  newGuard[maps.PlacesSearchResponse]("places", requestsPerSecond),
		bounds: location.Region,
	}
}

// Suggest is the search-as-you-type path. It never fails: short input,
// upstream errors and malformed results all produce an empty list.
func (g *Geocoder) Suggest(ctx context.Context, query string) []Candidate {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return nil
	}
	candidates, err := g.search(ctx, q)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("query", q).Msg("geocode suggestions unavailable")
		return nil
	}
	return candidates
}

// Resolve returns the best in-region match for query. Unlike Suggest it
// reports upstream failures to the caller.
func (g *Geocoder) Resolve(ctx context.Context, query string) (Address, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return Address{}, ErrNoCandidate
	}
	candidates, err := g.search(ctx, q)
	if err != nil {
		return Address{}, err
	}
	if len(candidates) == 0 {
		return Address{}, ErrNoCandidate
	}
	return ToAddress(candidates[0]), nil
}

func (g *Geocoder) search(ctx context.Context, q string) ([]Candidate, error) {
	center := g.bounds.Center()
	req := &maps.TextSearchRequest{
		Query:    q,
		Location: &maps.LatLng{Lat: center.Lat, Lng: center.Lng},
		Radius:   searchRadiusMeters,
		Language: "en",
		Region:   location.RegionCountry,
	}
	resp, err := g.guard.do(ctx, func() (maps.PlacesSearchResponse, error) {
		return g.api.TextSearch(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, r := range resp.Results {
		p := types.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
		// Contains rejects NaN/Inf as well as out-of-region points.
		if !g.bounds.Contains(p) {
			continue
		}
		out = append(out, Candidate{
			Name:             r.Name,
			FormattedAddress: r.FormattedAddress,
			Vicinity:         r.Vicinity,
			PlaceID:          r.PlaceID,
			Location:         p,
		})
	}
	return out, nil
}

// ToAddress normalizes a candidate into an Address.
func ToAddress(c Candidate) Address {
	formatted := strings.TrimSpace(c.FormattedAddress)
	primary := strings.TrimSpace(c.Name)
	if primary == "" {
		primary, _, _ = strings.Cut(formatted, ",")
		primary = strings.TrimSpace(primary)
	}
	if formatted == "" {
		formatted = primary
	}

	secondary := strings.TrimSpace(strings.TrimPrefix(formatted, primary+","))
	if secondary == "" || secondary == primary {
		secondary = strings.TrimSpace(c.Vicinity)
	}

	return Address{
		Coordinate:     c.Location,
		FormattedLabel: formatted,
		PrimaryLabel:   primary,
		SecondaryLabel: secondary,
		ExternalID:     c.PlaceID,
	}
}
