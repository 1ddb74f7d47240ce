package timer

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose countdowns only advance when Tick is called.
// It drives the recovery flow deterministically in tests and scripted sessions.
type Manual struct {
	mu     sync.Mutex
	timers []*manualCountdown
}

func NewManual() *Manual {
	return &Manual{}
}

type manualCountdown struct {
	mu        sync.Mutex
	remaining int
	cancelled bool
	onTick    func(int)
	onExpire  func()
}

func (c *manualCountdown) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *manualCountdown) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.cancelled && c.remaining > 0
}

func (m *Manual) StartCountdown(from int, _ time.Duration, onTick func(int), onExpire func()) Handle {
	countdown := &manualCountdown{remaining: from, onTick: onTick, onExpire: onExpire}

	m.mu.Lock()
	m.timers = append(m.timers, countdown)
	m.mu.Unlock()

	return countdown
}

// Tick advances every live countdown by one interval. Callbacks run outside the
// scheduler lock so they may start or cancel countdowns.
func (m *Manual) Tick() {
	m.mu.Lock()
	timers := make([]*manualCountdown, 0, len(m.timers))
	for _, c := range m.timers {
		if c.live() {
			timers = append(timers, c)
		}
	}
	m.timers = timers
	m.mu.Unlock()

	for _, c := range timers {
		c.mu.Lock()
		if c.cancelled || c.remaining == 0 {
			c.mu.Unlock()
			continue
		}
		c.remaining--
		remaining := c.remaining
		c.mu.Unlock()

		if c.onTick != nil {
			c.onTick(remaining)
		}
		if remaining == 0 && c.onExpire != nil {
			c.onExpire()
		}
	}
}

// Advance calls Tick n times.
func (m *Manual) Advance(n int) {
	for range n {
		m.Tick()
	}
}

// Active returns the number of countdowns that are neither cancelled nor finished.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, c := range m.timers {
		if c.live() {
			count++
		}
	}
	return count
}
