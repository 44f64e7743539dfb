package ai

import (
	"fmt"
	"strings"
	"time"
)

const (
	IntentSearch        = "search"
	IntentClarification = "clarification"
	IntentChat          = "chat"
)

// RideQuery captures the structured output from the AI model.
type RideQuery struct {
	// Intent is "search" only when both places are known.
	Intent string `json:"intent"`

	// Source and Destination are place names as the user wrote them.
	Source      *string `json:"source,omitempty"`
	Destination *string `json:"destination,omitempty"`

	// Date is the travel day as YYYY-MM-DD, resolved against the current time.
	Date *string `json:"date,omitempty"`

	// Seats defaults to 1.
	Seats int `json:"seats,omitempty"`

	// Reply is a short response to show the user.
	Reply string `json:"reply"`
}

// Ready reports whether the query names both places.
func (q *RideQuery) Ready() bool {
	return q != nil && q.Intent == IntentSearch && nonEmpty(q.Source) && nonEmpty(q.Destination)
}

// Day parses Date as a calendar day in loc; it returns nil when no date was given.
func (q *RideQuery) Day(loc *time.Location) (*time.Time, error) {
	if q == nil || !nonEmpty(q.Date) {
		return nil, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(*q.Date), loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", *q.Date, err)
	}
	return &d, nil
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
