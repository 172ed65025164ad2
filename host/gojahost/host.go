// Package gojahost is an in-process scripting host for the bridge: a goja
// engine over a golang.org/x/net/html document, with just enough of the
// browser object model for the host-side snippets and for page scripts.
//
// A Host is not safe for concurrent use. Everything except Post must run on
// the goroutine that drives it.
package gojahost

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/6over3/webplatform/bridge"
	"github.com/6over3/webplatform/errors"
)

const blankDocument = "<!DOCTYPE html><html><head></head><body></body></html>"

// Options configures a Host.
type Options struct {
	// HTML is the initial document. Empty means a blank page.
	HTML string

	// Hash is the initial location.hash.
	Hash string

	// Logger receives console output and diagnostics. Nil means no logging.
	Logger *zap.Logger

	// OnAlert, if set, is called with every alert message.
	OnAlert func(msg string)
}

// Host implements bridge.Host.
type Host struct {
	rt     *bridge.Runtime
	vm     *goja.Runtime
	loop   *bridge.Loop
	logger *zap.Logger
	ctx    context.Context

	doc       *html.Node
	window    *goja.Object
	objects   map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	listeners map[*goja.Object][]*listener
	selectors map[string]cascadia.Selector
	compiled  map[bridge.SnippetID]goja.Callable

	store   *Store
	hash    string
	focused *html.Node
	alerts  []string
	onAlert func(string)
}

var _ bridge.Host = (*Host)(nil)

// New parses the document and builds the script environment.
func New(rt *bridge.Runtime, opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	src := opts.HTML
	if src == "" {
		src = blankDocument
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	h := &Host{
		rt:        rt,
		vm:        goja.New(),
		loop:      bridge.NewLoop(logger),
		logger:    logger.Named("gojahost"),
		ctx:       context.Background(),
		doc:       doc,
		objects:   make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		listeners: make(map[*goja.Object][]*listener),
		selectors: make(map[string]cascadia.Selector),
		compiled:  make(map[bridge.SnippetID]goja.Callable),
		store:     newStore(),
		hash:      normalizeHash(opts.Hash),
		onAlert:   opts.OnAlert,
	}
	if err := h.install(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Host) install() error {
	global := h.vm.GlobalObject()
	h.window = global

	h.method(global, "addEventListener", func(call goja.FunctionCall) goja.Value {
		h.addListener(global, call)
		return goja.Undefined()
	})
	h.method(global, "removeEventListener", func(call goja.FunctionCall) goja.Value {
		h.removeListener(global, call)
		return goja.Undefined()
	})
	h.method(global, "dispatchEvent", func(call goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.dispatchFromScript(global, call.Argument(0)))
	})

	globals := []struct {
		name  string
		value any
	}{
		{"window", global},
		{"self", global},
		{"document", h.wrap(h.doc)},
		{"localStorage", h.storageObject()},
		{"location", h.location()},
		{"console", h.console()},
		{"Event", h.eventConstructor},
		{"alert", h.alert},
		{"UTF8ToString", h.utf8ToString},
		{"allocString", h.allocString},
		{"setValue", h.setValue},
		{"dynCall", h.dynCall},
	}
	for _, g := range globals {
		if err := h.vm.Set(g.name, g.value); err != nil {
			return fmt.Errorf("install %s: %w", g.name, err)
		}
	}
	return nil
}

// Call runs the snippet's body with args as $0..$n-1. Each snippet is
// compiled once. Calls may nest: a callback reached through dynCall can
// issue further calls before this one returns.
func (h *Host) Call(ctx context.Context, s *bridge.Snippet, args []bridge.Slot) (bridge.Slot, error) {
	fn, err := h.compile(s)
	if err != nil {
		return 0, err
	}

	prev := h.ctx
	h.ctx = ctx
	defer func() { h.ctx = prev }()

	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = h.vm.ToValue(int32(a))
	}
	ret, err := fn(goja.Undefined(), vals...)
	if err != nil {
		return 0, errors.HostException(s.Name(), err)
	}
	return bridge.Slot(int32(ret.ToInteger())), nil
}

func (h *Host) compile(s *bridge.Snippet) (goja.Callable, error) {
	if fn, ok := h.compiled[s.ID()]; ok {
		return fn, nil
	}
	v, err := h.vm.RunScript(s.Name(), "("+s.Source()+")")
	if err != nil {
		return nil, errors.HostException(s.Name(), err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.New(errors.PhaseHost, errors.KindHostException).
			Path(s.Name()).
			Detail("snippet body is not a function").
			Build()
	}
	h.compiled[s.ID()] = fn
	h.logger.Debug("snippet compiled", zap.String("snippet", s.Name()))
	return fn, nil
}

// RunLoop runs the host loop, ticking through the export at tick.
func (h *Host) RunLoop(ctx context.Context, tick bridge.FuncPtr, fps int) error {
	prev := h.ctx
	h.ctx = ctx
	defer func() { h.ctx = prev }()

	return h.loop.Run(ctx, fps, func() error {
		_, err := h.rt.Exports.Invoke(ctx, tick, "v", nil)
		return err
	})
}

// PauseLoop stops the loop after the current tick.
func (h *Host) PauseLoop() {
	h.loop.Pause()
}

// Loop returns the host's loop.
func (h *Host) Loop() *bridge.Loop { return h.loop }

// Drain runs work queued with Post outside of RunLoop.
func (h *Host) Drain() int { return h.loop.Drain() }

// Host contract primitives.

func (h *Host) utf8ToString(call goja.FunctionCall) goja.Value {
	s, err := h.rt.Memory.ReadCString(bridge.Addr(call.Argument(0).ToInteger()))
	if err != nil {
		panic(h.vm.NewGoError(err))
	}
	return h.vm.ToValue(s)
}

func (h *Host) allocString(call goja.FunctionCall) goja.Value {
	v := call.Argument(0)
	s := ""
	if !goja.IsUndefined(v) && !goja.IsNull(v) {
		s = v.String()
	}
	addr, err := h.rt.Scratch.PutString(s)
	if err != nil {
		panic(h.vm.NewGoError(err))
	}
	return h.vm.ToValue(int32(addr))
}

func (h *Host) setValue(call goja.FunctionCall) goja.Value {
	typ := "i32"
	if t := call.Argument(2); !goja.IsUndefined(t) {
		typ = t.String()
	}
	if typ != "i32" && typ != "*" {
		panic(h.vm.NewTypeError("setValue: unsupported type " + typ))
	}
	addr := bridge.Addr(call.Argument(0).ToInteger())
	if err := h.rt.Memory.WriteInt32(addr, int32(call.Argument(1).ToInteger())); err != nil {
		panic(h.vm.NewGoError(err))
	}
	return goja.Undefined()
}

func (h *Host) dynCall(call goja.FunctionCall) goja.Value {
	sig := bridge.Signature(call.Argument(0).String())
	fn := bridge.FuncPtr(call.Argument(1).ToInteger())

	var args []bridge.Slot
	if arr, ok := call.Argument(2).(*goja.Object); ok {
		n := 0
		if l := arr.Get("length"); l != nil {
			n = int(l.ToInteger())
		}
		args = make([]bridge.Slot, n)
		for i := range args {
			if v := arr.Get(strconv.Itoa(i)); v != nil {
				args[i] = bridge.Slot(int32(v.ToInteger()))
			}
		}
	}

	ret, err := h.rt.Exports.Invoke(h.ctx, fn, sig, args)
	if err != nil {
		panic(h.vm.NewGoError(err))
	}
	if sig.Void() {
		return goja.Undefined()
	}
	return h.vm.ToValue(int32(ret))
}

func (h *Host) alert(call goja.FunctionCall) goja.Value {
	msg := call.Argument(0).String()
	h.alerts = append(h.alerts, msg)
	h.logger.Info("alert", zap.String("message", msg))
	if h.onAlert != nil {
		h.onAlert(msg)
	}
	return goja.Undefined()
}

func (h *Host) console() *goja.Object {
	obj := h.vm.NewObject()
	log := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			h.logger.Info("console", zap.String("level", level), zap.String("message", strings.Join(parts, " ")))
			return goja.Undefined()
		}
	}
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		h.method(obj, level, log(level))
	}
	return obj
}

func (h *Host) location() *goja.Object {
	obj := h.vm.NewObject()
	h.accessor(obj, "hash", func() any { return h.hash }, func(v goja.Value) {
		if err := h.SetHash(v.String()); err != nil {
			h.logger.Warn("hashchange listeners failed", zap.Error(err))
		}
	})
	h.getter(obj, "href", func() any { return "about:blank" + h.hash })
	return obj
}

func normalizeHash(hash string) string {
	if hash == "" || hash == "#" {
		return ""
	}
	if !strings.HasPrefix(hash, "#") {
		return "#" + hash
	}
	return hash
}

// Driver API. These stand in for a user and for the browser chrome.

// Fire dispatches a bubbling event of type typ at the first element matching
// selector.
func (h *Host) Fire(selector, typ string) error {
	n, err := h.find(selector)
	if err != nil {
		return err
	}
	obj := h.wrap(n).(*goja.Object)
	_, err = h.dispatch(obj, obj, typ, true)
	return err
}

// FireWindow dispatches an event of type typ with the window as its target.
func (h *Host) FireWindow(typ string) error {
	_, err := h.dispatch(h.window, h.window, typ, false)
	return err
}

// FireUntargeted dispatches an event of type typ at the window with a null
// target.
func (h *Host) FireUntargeted(typ string) error {
	_, err := h.dispatch(h.window, goja.Null(), typ, false)
	return err
}

// Post queues Fire(selector, typ) to run on the loop goroutine. It is safe
// to call from any goroutine.
func (h *Host) Post(selector, typ string) {
	h.loop.Post(func() {
		if err := h.Fire(selector, typ); err != nil {
			h.logger.Warn("posted event failed", zap.String("selector", selector), zap.String("event", typ), zap.Error(err))
		}
	})
}

// PostFunc queues fn to run on the loop goroutine.
func (h *Host) PostFunc(fn func()) {
	h.loop.Post(fn)
}

// SetHash changes location.hash and fires hashchange at the window when it
// differs.
func (h *Host) SetHash(hash string) error {
	hash = normalizeHash(hash)
	if hash == h.hash {
		return nil
	}
	h.hash = hash
	return h.FireWindow("hashchange")
}

// Ref returns the node in slot id of the handle table.
func (h *Host) Ref(id bridge.Handle) (*html.Node, bool) {
	v := h.vm.Get("WEBPLATFORM")
	bridgeObj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	refs, ok := bridgeObj.Get("rs_refs").(*goja.Object)
	if !ok {
		return nil, false
	}
	ref := refs.Get(strconv.Itoa(int(id)))
	if ref == nil {
		return nil, false
	}
	return h.unwrap(ref)
}

// Query returns the first element matching selector.
func (h *Host) Query(selector string) (*html.Node, error) {
	return h.find(selector)
}

// Render serialises the whole document.
func (h *Host) Render() (string, error) {
	var b strings.Builder
	if err := html.Render(&b, h.doc); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Document returns the document root.
func (h *Host) Document() *html.Node { return h.doc }

// Alerts returns every alert message shown so far.
func (h *Host) Alerts() []string {
	return append([]string(nil), h.alerts...)
}

// Focused returns the focused element, or nil.
func (h *Host) Focused() *html.Node { return h.focused }

// Storage returns the host's localStorage.
func (h *Host) Storage() *Store { return h.store }

// Hash returns location.hash.
func (h *Host) Hash() string { return h.hash }

// Eval runs a page script.
func (h *Host) Eval(src string) (goja.Value, error) {
	return h.vm.RunString(src)
}

func (h *Host) find(selector string) (*html.Node, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Path(selector).
			Cause(err).
			Detail("invalid selector").
			Build()
	}
	n := cascadia.Query(h.doc, m)
	if n == nil {
		return nil, errors.New(errors.PhaseHost, errors.KindNotFound).
			Path(selector).
			Detail("no element matches").
			Build()
	}
	return n, nil
}
