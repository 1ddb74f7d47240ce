package cache

import (
	"fmt"

	"authflow/internal/configuration"
	"authflow/internal/models"
)

func New(config models.CacheConfiguration) (ICache, error) {
	switch config.Type {
	case configuration.CacheRedis:
		return NewRueidisCache(config)
	case configuration.CacheMemory, "":
		return NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", config.Type)
	}
}
