package webplatform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/6over3/webplatform/bridge"
	"github.com/6over3/webplatform/errors"
)

// Session is the native side of one document. It owns every closure
// registered through it and is the root Nodes are allocated from.
//
// A Session is created once with [Init] and lives as long as its Runtime.
// Its methods, and the methods of the Nodes it hands out, must be called
// from the goroutine driving the host.
type Session struct {
	id     ulid.ULID
	ctx    context.Context
	rt     *bridge.Runtime
	inv    *bridge.Invoker
	logger *zap.Logger

	addr       bridge.Addr
	closures   *bridge.Registry[func(Event)]
	trampoline bridge.FuncPtr
	tick       bridge.FuncPtr
	fps        int

	mu     sync.Mutex
	onTick []func()
	ticks  atomic.Uint64
}

type options struct {
	logger *zap.Logger
	tracer trace.Tracer
	fps    int
}

// Option configures Init.
type Option func(*options)

// WithLogger sets the session's logger. The default is the runtime's.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer used for foreign call spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithFPS sets the tick rate requested by Spin. Zero, the default, asks the
// host to tick as fast as it can.
func WithFPS(fps int) Option {
	return func(o *options) { o.fps = fps }
}

// Init establishes the host-side bridge state and returns a new Session.
// It issues exactly one foreign call, which is safe to repeat: a second
// Session on the same host shares the handle table.
//
// The context is used for every foreign call the Session makes and should
// remain valid for its lifetime.
func Init(ctx context.Context, rt *bridge.Runtime, host bridge.Host, opts ...Option) (*Session, error) {
	o := options{logger: rt.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	id := ulid.Make()
	s := &Session{
		id:       id,
		ctx:      ctx,
		rt:       rt,
		inv:      bridge.NewInvoker(rt, host, bridge.WithLogger(o.logger), bridge.WithTracer(o.tracer)),
		logger:   o.logger.Named("session").With(zap.Stringer("session", id)),
		closures: bridge.NewRegistry[func(Event)](),
		fps:      o.fps,
	}

	refs, err := initBridge.Call(ctx, s.inv)
	if err != nil {
		return nil, fmt.Errorf("init bridge: %w", err)
	}

	s.addr = rt.Pin(s)
	if s.trampoline, err = exportOnce(rt, dispatchExport, "viii", dispatch(rt)); err != nil {
		return nil, err
	}
	if _, err = exportOnce(rt, syscallExport, "ii", syscallEntry); err != nil {
		return nil, err
	}
	if s.tick, err = rt.Exports.Export("tick/"+id.String(), "v", s.runTick); err != nil {
		return nil, err
	}

	s.logger.Debug("session initialised",
		zap.Int32("addr", int32(s.addr)),
		zap.Int32("trampoline", int32(s.trampoline)),
		zap.Int32("refs", int32(refs)))
	return s, nil
}

// exportOnce returns the pointer exported under name, exporting fn first if
// nothing is.
func exportOnce(rt *bridge.Runtime, name string, sig bridge.Signature, fn bridge.NativeFunc) (bridge.FuncPtr, error) {
	if p, ok := rt.Exports.Lookup(name); ok {
		return p, nil
	}
	p, err := rt.Exports.Export(name, sig, fn)
	if err != nil {
		// Lost a race with another Init.
		if p, ok := rt.Exports.Lookup(name); ok {
			return p, nil
		}
		return 0, fmt.Errorf("export %s: %w", name, err)
	}
	return p, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() ulid.ULID { return s.id }

// Addr returns the address the host uses to refer back to the session.
func (s *Session) Addr() bridge.Addr { return s.addr }

// Invoker returns the invoker the session issues foreign calls through.
func (s *Session) Invoker() *bridge.Invoker { return s.inv }

// Context returns the context foreign calls are issued with.
func (s *Session) Context() context.Context { return s.ctx }

// context and invoker accept a nil Session, so a zero Node or Storage fails
// with errors.KindNotInitialized on its first call.
func (s *Session) context() context.Context {
	if s == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Session) invoker() *bridge.Invoker {
	if s == nil {
		return nil
	}
	return s.inv
}

func notInitialized(op string) error {
	return errors.New(errors.PhaseInit, errors.KindNotInitialized).
		Path(op).
		Detail("no session; use one returned by Init").
		Build()
}

func (s *Session) node(h bridge.Handle) Node {
	return Node{id: h, session: s}
}

// optNode maps the sentinel to absent.
func (s *Session) optNode(ret bridge.Slot) (Node, bool) {
	h := bridge.Handle(ret)
	if !h.IsValid() {
		return Node{}, false
	}
	return s.node(h), true
}

// queryAll wraps count consecutive handles starting at the value the host
// wrote to an out-parameter.
func (s *Session) queryAll(call func(out bridge.Ptr) (bridge.Slot, error)) ([]Node, error) {
	var nodes []Node
	err := s.invoker().Scoped(func(a *bridge.Arena) error {
		out, err := a.Alloc(4)
		if err != nil {
			return err
		}
		count, err := call(bridge.Ptr(out))
		if err != nil || count <= 0 {
			return err
		}
		start, err := s.rt.Memory.ReadInt32(out)
		if err != nil {
			return err
		}
		nodes = make([]Node, count)
		for i := range nodes {
			nodes[i] = s.node(bridge.Handle(start + int32(i)))
		}
		return nil
	})
	return nodes, err
}

// CreateElement creates a detached element. ok is false if the host
// produced nothing.
func (s *Session) CreateElement(tag string) (Node, bool, error) {
	ret, err := documentCreate.Call(s.context(), s.invoker(), text(tag))
	if err != nil {
		return Node{}, false, err
	}
	n, ok := s.optNode(ret)
	return n, ok, nil
}

// Query returns the first element in the document matching selector.
func (s *Session) Query(selector string) (Node, bool, error) {
	ret, err := documentQuery.Call(s.context(), s.invoker(), text(selector))
	if err != nil {
		return Node{}, false, err
	}
	n, ok := s.optNode(ret)
	return n, ok, nil
}

// QueryAll returns every element in the document matching selector, in
// document order.
func (s *Session) QueryAll(selector string) ([]Node, error) {
	return s.queryAll(func(out bridge.Ptr) (bridge.Slot, error) {
		return documentQueryAll.Call(s.context(), s.invoker(), text(selector), out)
	})
}

// LocationHash returns window.location.hash.
func (s *Session) LocationHash() (string, error) {
	ret, err := locationHash.Call(s.context(), s.invoker())
	if err != nil {
		return "", err
	}
	return s.inv.String(ret)
}

// Alert shows msg through the host's alert.
func (s *Session) Alert(msg string) error {
	_, err := windowAlert.Call(s.context(), s.invoker(), text(msg))
	return err
}

// On registers fn for events of the given type on the window.
func (s *Session) On(event string, fn func(Event)) error {
	if s == nil || s.inv == nil {
		return notInitialized("listen")
	}
	addr := s.closures.Add(fn)
	_, err := windowListen.Call(s.context(), s.invoker(), text(event), ptr(addr), ptr(s.trampoline), ptr(s.addr))
	return err
}

// LocalStorage returns a view of window.localStorage.
func (s *Session) LocalStorage() Storage {
	return Storage{s: s}
}

// Stats describes the session's resource use. Both tables only grow.
type Stats struct {
	Closures int    // closures owned by the session
	Refs     int    // slots in the host handle table
	Ticks    uint64 // ticks run by this session
}

// Stats reports the current table sizes.
func (s *Session) Stats() (Stats, error) {
	refs, err := refCount.Call(s.context(), s.invoker())
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Closures: s.closures.Len(),
		Refs:     int(refs),
		Ticks:    s.ticks.Load(),
	}, nil
}
