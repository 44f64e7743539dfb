package aiusage

import "errors"

// ErrInsufficientTokens is returned when a user has no assistant calls left for the current month.
var ErrInsufficientTokens = errors.New("insufficient tokens")

// DefaultTokens is the number of assistant calls granted per month.
const DefaultTokens = 30

// monthLayout keys the allowance period, e.g. "2025-06".
const monthLayout = "2006-01"
