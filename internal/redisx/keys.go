package redisx

import "time"

const (
	// Dedup of processed confirmation events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Sliding-window rate limit for the order read path: rate:orders:{ip}
	KeyOrderRate = "rate:orders:%s"
)

var TTLDedup = 48 * time.Hour
