package gojahost

import (
	stderrors "errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Event phases as seen by scripts.
const (
	capturingPhase = 1
	atTargetPhase  = 2
	bubblingPhase  = 3
)

type listener struct {
	typ     string
	obj     *goja.Object
	fn      goja.Callable
	capture bool
}

type event struct {
	typ       string
	obj       *goja.Object
	stopped   bool
	immediate bool
	prevented bool
}

func (h *Host) addListener(target *goja.Object, call goja.FunctionCall) {
	typ := call.Argument(0).String()
	obj, ok := call.Argument(1).(*goja.Object)
	if !ok {
		return
	}
	fn, ok := goja.AssertFunction(obj)
	if !ok {
		return
	}
	capture := captureFlag(call.Argument(2))
	for _, l := range h.listeners[target] {
		if l.typ == typ && l.obj == obj && l.capture == capture {
			return
		}
	}
	h.listeners[target] = append(h.listeners[target], &listener{typ: typ, obj: obj, fn: fn, capture: capture})
}

func (h *Host) removeListener(target *goja.Object, call goja.FunctionCall) {
	typ := call.Argument(0).String()
	obj, _ := call.Argument(1).(*goja.Object)
	capture := captureFlag(call.Argument(2))
	ls := h.listeners[target]
	for i, l := range ls {
		if l.typ == typ && l.obj == obj && l.capture == capture {
			h.listeners[target] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// captureFlag reads the third addEventListener argument, a boolean or an
// options object.
func captureFlag(v goja.Value) bool {
	if obj, ok := v.(*goja.Object); ok {
		c := obj.Get("capture")
		return c != nil && c.ToBoolean()
	}
	return v != nil && v.ToBoolean()
}

func (h *Host) newEvent(typ string, target goja.Value, bubbles bool) *event {
	ev := &event{typ: typ, obj: h.vm.NewObject()}
	_ = ev.obj.Set("type", typ)
	_ = ev.obj.Set("target", target)
	_ = ev.obj.Set("bubbles", bubbles)
	h.method(ev.obj, "stopPropagation", func(goja.FunctionCall) goja.Value {
		ev.stopped = true
		return goja.Undefined()
	})
	h.method(ev.obj, "stopImmediatePropagation", func(goja.FunctionCall) goja.Value {
		ev.stopped = true
		ev.immediate = true
		return goja.Undefined()
	})
	h.method(ev.obj, "preventDefault", func(goja.FunctionCall) goja.Value {
		ev.prevented = true
		return goja.Undefined()
	})
	h.getter(ev.obj, "defaultPrevented", func() any { return ev.prevented })
	return ev
}

// path returns the objects an event on target propagates through, outermost
// first, excluding target itself. A node attached to the document ends at
// the window.
func (h *Host) path(target *goja.Object) []*goja.Object {
	n, ok := h.nodes[target]
	if !ok {
		return nil
	}
	var chain []*goja.Object
	root := n
	for p := n.Parent; p != nil; p = p.Parent {
		chain = append(chain, h.wrap(p).(*goja.Object))
		root = p
	}
	if root == h.doc {
		chain = append(chain, h.window)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// dispatch runs the capture, target and bubble phases of one event.
// Listener failures are logged and joined into the result; they do not stop
// propagation.
func (h *Host) dispatch(target *goja.Object, targetVal goja.Value, typ string, bubbles bool) (*event, error) {
	ev := h.newEvent(typ, targetVal, bubbles)
	path := h.path(target)
	var errs []error

	for _, cur := range path {
		if ev.stopped {
			break
		}
		errs = append(errs, h.invoke(cur, ev, capturingPhase, true)...)
	}
	if !ev.stopped {
		errs = append(errs, h.invoke(target, ev, atTargetPhase, true)...)
		errs = append(errs, h.invoke(target, ev, atTargetPhase, false)...)
	}
	if bubbles {
		for i := len(path) - 1; i >= 0 && !ev.stopped; i-- {
			errs = append(errs, h.invoke(path[i], ev, bubblingPhase, false)...)
		}
	}
	return ev, stderrors.Join(errs...)
}

// invoke runs current's listeners for ev whose capture flag equals capture.
// Listeners added while it runs wait for the next event.
func (h *Host) invoke(current *goja.Object, ev *event, phase int, capture bool) []error {
	ls := append([]*listener(nil), h.listeners[current]...)
	_ = ev.obj.Set("currentTarget", current)
	_ = ev.obj.Set("eventPhase", phase)

	var errs []error
	for _, l := range ls {
		if l.typ != ev.typ || l.capture != capture {
			continue
		}
		if ev.immediate {
			break
		}
		if _, err := l.fn(current, ev.obj); err != nil {
			h.logger.Warn("listener failed", zap.String("event", ev.typ), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}

// dispatchFromScript implements EventTarget.dispatchEvent. Listener failures
// are reported, not thrown, and the result is false if a listener called
// preventDefault.
func (h *Host) dispatchFromScript(target *goja.Object, v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		panic(h.vm.NewTypeError("dispatchEvent: argument is not an event"))
	}
	typ := obj.Get("type")
	if typ == nil {
		panic(h.vm.NewTypeError("dispatchEvent: event has no type"))
	}
	bubbles := obj.Get("bubbles")
	ev, err := h.dispatch(target, target, typ.String(), bubbles != nil && bubbles.ToBoolean())
	if err != nil {
		h.logger.Warn("dispatchEvent", zap.String("event", typ.String()), zap.Error(err))
	}
	return !ev.prevented
}

func (h *Host) focus(n *html.Node) {
	h.focused = n
	obj := h.wrap(n).(*goja.Object)
	if _, err := h.dispatch(obj, obj, "focus", false); err != nil {
		h.logger.Warn("focus listeners failed", zap.Error(err))
	}
}

// eventConstructor implements `new Event(type, {bubbles})`.
func (h *Host) eventConstructor(call goja.ConstructorCall) *goja.Object {
	_ = call.This.Set("type", call.Argument(0).String())
	bubbles := false
	if opts, ok := call.Argument(1).(*goja.Object); ok {
		if b := opts.Get("bubbles"); b != nil {
			bubbles = b.ToBoolean()
		}
	}
	_ = call.This.Set("bubbles", bubbles)
	return nil
}
