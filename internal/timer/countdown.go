package timer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle cancels a running countdown. Cancel is idempotent and never blocks, so it
// is safe to call from inside a tick callback.
type Handle interface {
	Cancel()
}

// Scheduler starts countdowns that tick once per interval from `from` down to zero.
// onTick receives the remaining count after each decrement; onExpire runs once after
// the tick that reached zero. No callback runs after the countdown is cancelled and
// the cancellation has been observed.
type Scheduler interface {
	StartCountdown(from int, interval time.Duration, onTick func(remaining int), onExpire func()) Handle
}

type TickerScheduler struct{}

func NewTicker() *TickerScheduler {
	return &TickerScheduler{}
}

type tickerHandle struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (h *tickerHandle) Cancel() {
	h.once.Do(h.cancel)
}

func (s *TickerScheduler) StartCountdown(
	from int,
	interval time.Duration,
	onTick func(remaining int),
	onExpire func(),
) Handle {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &tickerHandle{cancel: cancel}

	go func() {
		defer handle.Cancel()
		runCountdown(ctx, from, interval, onTick, onExpire)
	}()

	return handle
}

func runCountdown(ctx context.Context, from int, interval time.Duration, onTick func(int), onExpire func()) {
	remaining := from
	if remaining <= 0 {
		if onExpire != nil {
			onExpire()
		}
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-ctx.Done():
			zap.L().Debug("Countdown cancelled", zap.Int("remaining", remaining))
			return
		case <-ticker.C:
			// Both channels may be ready at once; cancellation wins.
			if ctx.Err() != nil {
				return
			}
			remaining--
			if onTick != nil {
				onTick(remaining)
			}
		}
	}

	if ctx.Err() == nil && onExpire != nil {
		onExpire()
	}
}
