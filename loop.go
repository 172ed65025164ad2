package webplatform

import (
	"context"

	"github.com/6over3/webplatform/bridge"
)

// OnTick adds fn to the functions run on every tick.
func (s *Session) OnTick(fn func()) {
	s.mu.Lock()
	s.onTick = append(s.onTick, fn)
	s.mu.Unlock()
}

// Spin hands control to the host's loop. The host ticks the session and
// delivers events until Pause is called from inside the loop, the session's
// context is done, or the host fails. Pausing returns nil.
//
// Spin never pauses by itself: a tick function or listener must call Pause,
// or Spin runs until the context ends.
func (s *Session) Spin() error {
	if s == nil || s.inv == nil {
		return notInitialized("spin")
	}
	s.logger.Debug("spin")
	return s.inv.Host().RunLoop(s.ctx, s.tick, s.fps)
}

// Pause asks the host to stop scheduling ticks. It lasts until the next
// Spin.
func (s *Session) Pause() {
	if s == nil || s.inv == nil {
		return
	}
	s.inv.Host().PauseLoop()
}

// Ticks returns the number of ticks the session has run.
func (s *Session) Ticks() uint64 {
	return s.ticks.Load()
}

func (s *Session) runTick(context.Context, []bridge.Slot) bridge.Slot {
	s.mu.Lock()
	fns := make([]func(), len(s.onTick))
	copy(fns, s.onTick)
	s.mu.Unlock()

	s.ticks.Add(1)
	for _, fn := range fns {
		fn()
	}
	return 0
}
