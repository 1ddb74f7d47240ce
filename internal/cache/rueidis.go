package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"time"

	"authflow/internal/configuration"
	"authflow/internal/models"

	"github.com/redis/rueidis"
)

// RueidisCache shares revocations and rate limits between stub instances through Redis or Valkey.
type RueidisCache struct {
	client rueidis.Client
}

func NewRueidisCache(config models.CacheConfiguration) (*RueidisCache, error) {
	clientOption := rueidis.ClientOption{
		InitAddress: config.Hosts,
		Password:    config.Password,
	}

	if config.TLSEnabled {
		clientOption.TLSConfig = &tls.Config{
			ServerName: config.TLSServerName,
			MinVersion: tls.VersionTLS12,
		}
	}

	client, err := rueidis.NewClient(clientOption)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	return &RueidisCache{client: client}, nil
}

func (r *RueidisCache) RevokeToken(tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx := context.Background()
	key := fmt.Sprintf(configuration.CacheRevokedTokenKey, tokenID)

	seconds := int64(math.Ceil(ttl.Seconds()))

	return r.client.Do(ctx, r.client.B().Set().Key(key).Value("1").ExSeconds(seconds).Build()).Error()
}

func (r *RueidisCache) IsTokenRevoked(tokenID string) (bool, error) {
	ctx := context.Background()
	key := fmt.Sprintf(configuration.CacheRevokedTokenKey, tokenID)

	result, err := r.client.Do(ctx, r.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

func (r *RueidisCache) GetRateLimit(identifier string, requestsPerMinute int) (int, error) {
	ctx := context.Background()
	key := fmt.Sprintf(configuration.CacheRateLimitKey, identifier)

	count, err := r.client.Do(ctx, r.client.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		expireErr := r.client.Do(ctx, r.client.B().Expire().Key(key).Seconds(int64(time.Minute.Seconds())).Build()).
			Error()
		if expireErr != nil {
			return 0, expireErr
		}
	}

	if int(count) > requestsPerMinute {
		retryAfter, ttlErr := r.client.Do(ctx, r.client.B().Ttl().Key(key).Build()).AsInt64()
		if ttlErr != nil {
			return 0, ttlErr
		}
		return int(retryAfter), nil
	}

	return 0, nil
}

func (r *RueidisCache) Close() error {
	r.client.Close()
	return nil
}
