package ai

import (
	"context"
)

// LLMProvider defines the contract for interacting with AI models.
type LLMProvider interface {
	// ParseRideQuery extracts the places and day of a free-text ride request.
	// currentContext carries dynamic information such as "current_time" and "region".
	ParseRideQuery(ctx context.Context, userMessage string, currentContext map[string]string) (*RideQuery, error)
}
