package webplatform

import (
	"context"

	"go.uber.org/zap"

	"github.com/6over3/webplatform/bridge"
)

// dispatchExport is the name of the single trampoline every listener calls
// through, shared by all sessions on a runtime.
const dispatchExport = "webplatform_dispatch"

// Event is what a listener receives. Target is nil when the host reported
// no target; otherwise it is a newly allocated handle to the event source.
type Event struct {
	Target *Node
}

// dispatch returns the trampoline. The host calls it as
// (closure address, session address, target handle or -1).
func dispatch(rt *bridge.Runtime) bridge.NativeFunc {
	logger := rt.Logger().Named("dispatch")
	return func(_ context.Context, args []bridge.Slot) bridge.Slot {
		closure := bridge.Addr(args[0])
		sessionAddr := bridge.Addr(args[1])
		target := bridge.Handle(args[2])

		v, ok := rt.Pinned(sessionAddr)
		s, _ := v.(*Session)
		if !ok || s == nil {
			logger.Warn("event for unknown session", zap.Int32("session", int32(sessionAddr)))
			return 0
		}
		s.deliver(closure, target)
		return 0
	}
}

// deliver runs the closure registered at addr. The registry keeps ownership.
func (s *Session) deliver(addr bridge.Addr, target bridge.Handle) {
	fn, ok := s.closures.Get(addr)
	if !ok || fn == nil {
		s.logger.Warn("event for unknown closure", zap.Int32("closure", int32(addr)))
		return
	}
	var ev Event
	if target.IsValid() {
		n := s.node(target)
		ev.Target = &n
	}
	if ce := s.logger.Check(zap.DebugLevel, "deliver event"); ce != nil {
		ce.Write(zap.Int32("closure", int32(addr)), zap.Int32("target", int32(target)))
	}
	fn(ev)
}

type listenSnippet = bridge.Snippet5[i32, text, ptr, ptr, ptr]

// listen boxes fn into the session's registry before installing the host
// listener, so an event raised during installation already finds it.
func (n Node) listen(install listenSnippet, event string, fn func(Event)) error {
	s := n.session
	if s == nil || s.inv == nil {
		return notInitialized("listen")
	}
	addr := s.closures.Add(fn)
	_, err := install.Call(s.context(), s.invoker(), i32(n.id), text(event), ptr(addr), ptr(s.trampoline), ptr(s.addr))
	return err
}
