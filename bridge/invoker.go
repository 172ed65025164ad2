package bridge

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/6over3/webplatform/errors"
)

const tracerName = "github.com/6over3/webplatform/bridge"

// Host is the external environment on the other side of the boundary.
//
// Call runs one snippet synchronously on the calling goroutine and returns
// its integer result. Text arguments arrive as addresses of NUL-terminated
// strings in the runtime's memory; string results are written to the
// runtime's scratch region and returned by address.
//
// RunLoop hands control to the host's cooperative loop, which invokes the
// zero-argument export tick once per frame until PauseLoop is called from
// inside the loop or ctx is done. fps <= 0 means as fast as possible.
type Host interface {
	Call(ctx context.Context, s *Snippet, args []Slot) (Slot, error)
	RunLoop(ctx context.Context, tick FuncPtr, fps int) error
	PauseLoop()
}

// Invoker issues foreign calls: it encodes arguments into the arena, calls
// the host once, and releases the arena on every exit path.
type Invoker struct {
	rt     *Runtime
	host   Host
	logger *zap.Logger
	tracer trace.Tracer
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithLogger sets the invoker's logger.
func WithLogger(l *zap.Logger) InvokerOption {
	return func(inv *Invoker) {
		if l != nil {
			inv.logger = l
		}
	}
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(t trace.Tracer) InvokerOption {
	return func(inv *Invoker) {
		if t != nil {
			inv.tracer = t
		}
	}
}

// NewInvoker binds a runtime to a host.
func NewInvoker(rt *Runtime, host Host, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		rt:     rt,
		host:   host,
		logger: rt.logger,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.logger = inv.logger.Named("invoker")
	return inv
}

// Runtime returns the runtime the invoker encodes into.
func (inv *Invoker) Runtime() *Runtime { return inv.rt }

// Host returns the host the invoker calls.
func (inv *Invoker) Host() Host { return inv.host }

func (inv *Invoker) invoke(ctx context.Context, s *Snippet, args []Arg) (Slot, error) {
	if inv == nil {
		return 0, errNoInvoker(s.name)
	}
	snippets.seal()

	ctx, span := inv.tracer.Start(ctx, "bridge.call "+s.name,
		trace.WithAttributes(
			attribute.String("snippet.name", s.name),
			attribute.Int("snippet.id", int(s.id)),
			attribute.Int("snippet.arity", len(s.params)),
		))
	defer span.End()

	arena := inv.rt.Arena
	mark := arena.Mark()
	defer arena.Release(mark)

	slots, err := encode(arena, s, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	ret, err := inv.host.Call(ctx, s, slots)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		inv.logger.Debug("foreign call failed", zap.String("snippet", s.name), zap.Error(err))
		return 0, err
	}
	if ce := inv.logger.Check(zap.DebugLevel, "foreign call"); ce != nil {
		ce.Write(zap.String("snippet", s.name), zap.Int32("result", int32(ret)))
	}
	return ret, nil
}

func errNoInvoker(path string) error {
	return errors.New(errors.PhaseInvoke, errors.KindNotInitialized).
		Path(path).
		Detail("nil invoker").
		Build()
}

// String copies the string result at ret out of the scratch region.
func (inv *Invoker) String(ret Slot) (string, error) {
	return inv.rt.Memory.ReadCString(Addr(ret))
}

// OptString is String for snippets that return -1 when there is no value.
func (inv *Invoker) OptString(ret Slot) (string, bool, error) {
	if ret == Slot(NoHandle) {
		return "", false, nil
	}
	s, err := inv.String(ret)
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// Scoped runs fn with the arena and releases everything fn allocated when it
// returns. Call sites use it for out-parameters the host writes during a
// call issued from fn.
func (inv *Invoker) Scoped(fn func(a *Arena) error) error {
	if inv == nil {
		return errNoInvoker("scoped")
	}
	arena := inv.rt.Arena
	mark := arena.Mark()
	defer arena.Release(mark)
	return fn(arena)
}
