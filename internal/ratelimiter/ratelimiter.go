package ratelimiter

import "time"

// Limiter decides whether a client identified by key may make another request.
// When it may not, the duration is how long until it can retry.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

type Config struct {
	RequestsPerTimeFrame int
	TimeFrame            time.Duration
	Enabled              bool
}
