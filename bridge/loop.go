package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/6over3/webplatform/errors"
)

// Loop is the cooperative run loop hosts build RunLoop on. Everything it
// runs, queued host work and ticks alike, runs on the goroutine that called
// Run, one item at a time. Post is the only method meant to be called from
// other goroutines.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	paused  atomic.Bool
	running atomic.Bool
	ticks   atomic.Uint64

	logger *zap.Logger
}

// NewLoop creates an idle loop.
func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger.Named("loop"),
	}
}

// Post queues fn to run on the loop goroutine before the next tick.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Drain runs queued work on the calling goroutine until the queue is empty
// and returns how many items ran. Work posted by running items is included.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Pending returns the number of queued items.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Pause stops tick scheduling. It takes effect as soon as the current item
// returns and lasts until the next Run.
func (l *Loop) Pause() {
	l.paused.Store(true)
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Ticks returns the number of ticks run since the loop was created.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Run drains queued work and invokes tick once per frame until Pause is
// called, ctx is done, or tick fails. fps <= 0 runs ticks back to back.
// Pausing returns nil.
func (l *Loop) Run(ctx context.Context, fps int, tick func() error) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New(errors.PhaseLoop, errors.KindLoop).
			Detail("loop is already running").
			Build()
	}
	defer l.running.Store(false)
	l.paused.Store(false)

	var frames <-chan time.Time
	if fps > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		frames = ticker.C
	}
	l.logger.Debug("loop started", zap.Int("fps", fps))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Drain()
		if l.paused.Load() {
			break
		}
		if err := tick(); err != nil {
			return err
		}
		l.ticks.Add(1)
		if l.paused.Load() {
			break
		}
		if frames == nil {
			continue
		}
		if paused, err := l.waitFrame(ctx, frames); err != nil || paused {
			return err
		}
	}
	l.logger.Debug("loop paused", zap.Uint64("ticks", l.ticks.Load()))
	return nil
}

// waitFrame blocks until the next frame, running posted work as it arrives.
func (l *Loop) waitFrame(ctx context.Context, frames <-chan time.Time) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-frames:
			return false, nil
		case <-l.wake:
			l.Drain()
			if l.paused.Load() {
				return true, nil
			}
		}
	}
}
