// README: Place suggestion and route preview handlers.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ridepool/internal/maps"
	"ridepool/internal/types"
)

type PlaceSuggester interface {
	Suggest(ctx context.Context, query string) []maps.Candidate
}

type RoutePreviewer interface {
	Route(ctx context.Context, origin, destination *types.Point) maps.Route
}

type PlacesHandler struct {
	places PlaceSuggester
	routes RoutePreviewer
}

func NewPlacesHandler(places PlaceSuggester, routes RoutePreviewer) *PlacesHandler {
	return &PlacesHandler{places: places, routes: routes}
}

// Suggest handles GET /api/places?q=. It never fails; no match is an empty list.
func (h *PlacesHandler) Suggest(c *gin.Context) {
	candidates := h.places.Suggest(c.Request.Context(), c.Query("q"))
	if candidates == nil {
		candidates = []maps.Candidate{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"candidates": candidates})
}

// Route handles GET /api/routes?from=lat,lng&to=lat,lng. A missing route
// is reported as null.
func (h *PlacesHandler) Route(c *gin.Context) {
	from, ok1 := parseLatLng(c.Query("from"))
	to, ok2 := parseLatLng(c.Query("to"))
	if !ok1 || !ok2 {
		writeError(c, http.StatusBadRequest, "from and to must be lat,lng")
		return
	}
	route := h.routes.Route(c.Request.Context(), from, to)
	if route.IsNull() {
		writeJSON(c, http.StatusOK, map[string]any{"route": nil})
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"route": route})
}

func parseLatLng(v string) (*types.Point, bool) {
	latS, lngS, ok := strings.Cut(v, ",")
	if !ok {
		return nil, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	p := &types.Point{Lat: lat, Lng: lng}
	return p, p.Valid()
}
