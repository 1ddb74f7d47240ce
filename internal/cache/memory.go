package cache

import (
	"math"
	"sync"
	"time"
)

type counter struct {
	count     int
	expiresAt time.Time
}

// MemoryCache is a single-process ICache. Expired entries are dropped on access and
// by Purge.
type MemoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	revoked map[string]time.Time
	limits  map[string]*counter
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		now:     time.Now,
		revoked: map[string]time.Time{},
		limits:  map[string]*counter{},
	}
}

func (m *MemoryCache) RevokeToken(tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = m.now().Add(ttl)
	return nil
}

func (m *MemoryCache) IsTokenRevoked(tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(expiresAt) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

func (m *MemoryCache) GetRateLimit(identifier string, requestsPerMinute int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.limits[identifier]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{expiresAt: now.Add(time.Minute)}
		m.limits[identifier] = c
	}
	c.count++

	if c.count > requestsPerMinute {
		return int(math.Ceil(c.expiresAt.Sub(now).Seconds())), nil
	}
	return 0, nil
}

// Purge drops expired entries and returns how many were removed.
func (m *MemoryCache) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, expiresAt := range m.revoked {
		if !now.Before(expiresAt) {
			delete(m.revoked, id)
			removed++
		}
	}
	for id, c := range m.limits {
		if !now.Before(c.expiresAt) {
			delete(m.limits, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryCache) Close() error {
	return nil
}
