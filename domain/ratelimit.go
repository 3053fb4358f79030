package domain

import "time"

// RateLimitDecision is derived per admission check and never persisted.
type RateLimitDecision struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	WindowSeconds     int64
	ResetAt           time.Time
	RetryAfterSeconds int64
}
