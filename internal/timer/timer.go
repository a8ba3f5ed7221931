package timer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Coordinator keeps at most one countdown per key. Starting a countdown for a
// key cancels the one already running for it.
type Coordinator struct {
	mu     sync.Mutex
	timers map[string]*entry
	gen    uint64
	unit   time.Duration
	logger *zap.Logger
}

type entry struct {
	gen    uint64
	cancel context.CancelFunc
}

// NewCoordinator counts down in steps of unit; production uses time.Second.
func NewCoordinator(logger *zap.Logger, unit time.Duration) *Coordinator {
	if unit <= 0 {
		unit = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		timers: make(map[string]*entry),
		unit:   unit,
		logger: logger,
	}
}

func (c *Coordinator) Unit() time.Duration { return c.unit }

// Start schedules onExpire after seconds units and calls onTick with the
// remaining count once per unit, starting with the full count. It returns the
// generation of the new countdown. Callbacks run on the countdown's goroutine.
func (c *Coordinator) Start(key string, seconds int, onTick func(left int), onExpire func()) uint64 {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if old, ok := c.timers[key]; ok {
		old.cancel()
	}
	c.gen++
	gen := c.gen
	c.timers[key] = &entry{gen: gen, cancel: cancel}
	c.mu.Unlock()

	go c.run(ctx, key, gen, seconds, onTick, onExpire)
	return gen
}

// Cancel stops the countdown for key, if any. It does not wait for a callback
// that is already running.
func (c *Coordinator) Cancel(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.timers[key]; ok {
		e.cancel()
		delete(c.timers, key)
	}
}

func (c *Coordinator) Active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[key]
	return ok
}

func (c *Coordinator) run(ctx context.Context, key string, gen uint64, seconds int, onTick func(int), onExpire func()) {
	defer c.cleanup(key, gen)

	ticker := time.NewTicker(c.unit)
	defer ticker.Stop()

	left := seconds
	for left > 0 {
		c.safeTick(key, onTick, left)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			left--
		}
	}

	if ctx.Err() != nil {
		return
	}
	c.safeExpire(key, onExpire)
}

func (c *Coordinator) safeTick(key string, onTick func(int), left int) {
	if onTick == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("timer tick callback panicked", zap.String("key", key), zap.Any("panic", r))
		}
	}()
	onTick(left)
}

func (c *Coordinator) safeExpire(key string, onExpire func()) {
	if onExpire == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("timer expiry callback panicked", zap.String("key", key), zap.Any("panic", r))
		}
	}()
	onExpire()
}

// cleanup drops the entry unless a newer countdown already replaced it.
func (c *Coordinator) cleanup(key string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.timers[key]; ok && e.gen == gen {
		e.cancel()
		delete(c.timers, key)
	}
}
