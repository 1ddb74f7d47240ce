package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeExpired() int {
	p.calls.Add(1)
	return 2
}

func TestRunOnce(t *testing.T) {
	t.Run("should report every task count even when one fails", func(t *testing.T) {
		w := New("test", time.Minute, zap.NewNop(),
			Task{Name: "ok", Fn: func(context.Context) (int, error) { return 3, nil }},
			Task{Name: "failing", Fn: func(context.Context) (int, error) { return 1, errors.New("boom") }},
		)

		counts := w.RunOnce(context.Background())
		assert.Equal(t, map[string]int{"ok": 3, "failing": 1}, counts)
	})

	t.Run("should purge through the janitor task", func(t *testing.T) {
		p := &countingPurger{}
		counts := NewJanitor(p, time.Minute, zap.NewNop()).RunOnce(context.Background())

		assert.Equal(t, 2, counts["expired_entries"])
		assert.Equal(t, int32(1), p.calls.Load())
	})
}

func TestRun(t *testing.T) {
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewJanitor(p, 10*time.Millisecond, zap.NewNop()).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
