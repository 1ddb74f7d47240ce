package cache

import "time"

// ICache keeps the short-lived state of the stub identity service.
type ICache interface {
	// RevokeToken blocks a token ID until ttl elapses.
	RevokeToken(tokenID string, ttl time.Duration) error
	IsTokenRevoked(tokenID string) (bool, error)

	// GetRateLimit counts one request for identifier and returns the seconds to wait
	// once more than requestsPerMinute were made in the current minute, else 0.
	GetRateLimit(identifier string, requestsPerMinute int) (int, error)

	Close() error
}
