package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/6over3/webplatform/errors"
)

// NativeFunc is a native entry point the host may call. args has exactly as
// many slots as the signature declares parameters.
type NativeFunc func(ctx context.Context, args []Slot) Slot

// Signature describes a native entry point in dynCall notation: the first
// character is the return type ('v' void, 'i' int32), the rest are int32
// parameters ("viii" takes three ints and returns nothing).
type Signature string

// Params returns the number of parameters the signature declares.
func (s Signature) Params() int {
	if len(s) == 0 {
		return 0
	}
	return len(s) - 1
}

// Void reports whether the entry point returns nothing.
func (s Signature) Void() bool {
	return len(s) > 0 && s[0] == 'v'
}

func (s Signature) valid() bool {
	if len(s) == 0 || (s[0] != 'v' && s[0] != 'i') {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != 'i' {
			return false
		}
	}
	return true
}

type export struct {
	name string
	sig  Signature
	fn   NativeFunc
}

// Exports is the native function table. The host never holds a Go function;
// it holds a FuncPtr and calls through Invoke with the signature it expects.
type Exports struct {
	mu      sync.RWMutex
	entries []export
	byName  map[string]FuncPtr
	logger  *zap.Logger
}

// NewExports creates an empty export table.
func NewExports(logger *zap.Logger) *Exports {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exports{
		byName: make(map[string]FuncPtr),
		logger: logger.Named("exports"),
	}
}

// Export adds fn under name and returns its pointer. Names are unique.
func (e *Exports) Export(name string, sig Signature, fn NativeFunc) (FuncPtr, error) {
	if !sig.valid() {
		return 0, errors.InvalidInput(errors.PhaseInit, []string{name}, "invalid signature "+string(sig))
	}
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhaseInit, []string{name}, "nil function")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byName[name]; ok {
		return 0, errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Path(name).
			Detail("export already defined").
			Build()
	}
	e.entries = append(e.entries, export{name: name, sig: sig, fn: fn})
	ptr := FuncPtr(len(e.entries))
	e.byName[name] = ptr
	e.logger.Debug("export defined", zap.String("name", name), zap.String("sig", string(sig)), zap.Int32("ptr", int32(ptr)))
	return ptr, nil
}

// Lookup returns the pointer exported under name.
func (e *Exports) Lookup(name string) (FuncPtr, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ptr, ok := e.byName[name]
	return ptr, ok
}

// Invoke calls the entry point at ptr. The caller's signature must match the
// exported one exactly and args must supply every parameter.
func (e *Exports) Invoke(ctx context.Context, ptr FuncPtr, sig Signature, args []Slot) (Slot, error) {
	e.mu.RLock()
	if ptr <= 0 || int(ptr) > len(e.entries) {
		e.mu.RUnlock()
		return 0, errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Value(int32(ptr)).
			Detail("no export at %d", int32(ptr)).
			Build()
	}
	ent := e.entries[ptr-1]
	e.mu.RUnlock()

	if ent.sig != sig {
		return 0, errors.SignatureMismatch(ent.name, string(ent.sig), string(sig))
	}
	if len(args) != sig.Params() {
		return 0, errors.New(errors.PhaseDispatch, errors.KindSignature).
			Path(ent.name).
			Detail("got %d arguments, signature %q takes %d", len(args), string(sig), sig.Params()).
			Build()
	}
	ret := ent.fn(ctx, args)
	if sig.Void() {
		return 0, nil
	}
	return ret, nil
}
