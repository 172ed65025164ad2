package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Runtime owns the native side of the boundary: the linear memory the host
// exchanges arguments and results through, the argument arena and scratch
// region carved out of it, the export table the host calls back through,
// and the pin table that gives native objects opaque addresses.
//
// Use [New] to create a Runtime and [Runtime.Close] to release it. A Runtime
// is shared by every host and session in the process.
//
// # Memory layout
//
//	[0, 16)                      null guard, address 0 is never handed out
//	[16, 16+ScratchBytes)        scratch region for host string results
//	[stack base, memory end)     argument arena, grows the memory on demand
//
// # Thread Safety
//
// The export and pin tables are safe for concurrent use. Memory, Arena and
// Scratch are only touched from the goroutine driving the host, matching the
// single-threaded call model of the boundary.
type Runtime struct {
	// Memory provides raw reads and writes of the linear memory.
	Memory *Memory

	// Arena holds text arguments for the duration of a call.
	Arena *Arena

	// Scratch is where hosts place string results.
	Scratch *Scratch

	// Exports holds native entry points callable by the host.
	Exports *Exports

	logger *zap.Logger
	ctx    context.Context
	wazero wazero.Runtime

	mu       sync.Mutex
	pins     *Registry[any]
	disposed bool
}

// Options configures Runtime creation.
type Options struct {
	// InitialPages is the initial size of linear memory in 64 KiB pages.
	// It is raised if it cannot hold the scratch region plus one arena page.
	InitialPages uint32

	// MaxPages caps linear memory growth. Zero means 1024 pages (64 MiB).
	MaxPages uint32

	// ScratchBytes is the capacity of the scratch region. Zero means 1 MiB.
	ScratchBytes uint32

	// Logger receives diagnostics. Nil means no logging.
	Logger *zap.Logger
}

const (
	defaultScratchBytes = 1 << 20
	defaultMaxPages     = 1024
)

// New creates a Runtime with a fresh linear memory.
//
// The context is used for all wazero operations and should remain valid for
// the lifetime of the Runtime.
func New(ctx context.Context, opts *Options) (*Runtime, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scratch := opts.ScratchBytes
	if scratch == 0 {
		scratch = defaultScratchBytes
	}
	maxPages := opts.MaxPages
	if maxPages == 0 {
		maxPages = defaultMaxPages
	}
	stackBase := alignUp(nullGuard+scratch, arenaAlign)
	minPages := (stackBase+pageSize-1)/pageSize + 1
	initial := opts.InitialPages
	if initial < minPages {
		initial = minPages
	}
	if initial > maxPages {
		return nil, fmt.Errorf("memory: %d pages required but max is %d", initial, maxPages)
	}

	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(maxPages)
	wzr := wazero.NewRuntimeWithConfig(ctx, cfg)

	// wazero host modules can only export functions, so the memory comes from
	// a minimal core module equivalent to:
	//   (module (memory (export "memory") <initial> <max>))
	compiled, err := wzr.CompileModule(ctx, envModule(initial, maxPages))
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("compile env module: %w", err)
	}
	envMod, err := wzr.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("instantiate env module: %w", err)
	}

	mem := NewMemory(envMod.Memory())
	rt := &Runtime{
		Memory:  mem,
		Arena:   newArena(mem, stackBase),
		Scratch: &Scratch{mem: mem, base: nullGuard, size: scratch},
		Exports: NewExports(logger),
		logger:  logger.Named("bridge"),
		ctx:     ctx,
		wazero:  wzr,
		pins:    NewRegistry[any](),
	}
	rt.logger.Debug("runtime created",
		zap.Uint32("pages", initial),
		zap.Uint32("max_pages", maxPages),
		zap.Uint32("scratch_bytes", scratch))
	return rt, nil
}

// Pin gives v an opaque address the host can hand back later. Pins are
// never released; they live as long as the Runtime.
func (rt *Runtime) Pin(v any) Addr {
	return rt.pins.Add(v)
}

// Pinned returns the value pinned at addr.
func (rt *Runtime) Pinned(addr Addr) (any, bool) {
	return rt.pins.Get(addr)
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *zap.Logger {
	return rt.logger
}

// Close releases the linear memory and the wazero runtime.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.disposed {
		return nil
	}
	rt.disposed = true
	if rt.wazero != nil {
		return rt.wazero.Close(rt.ctx)
	}
	return nil
}

// envModule encodes a core wasm module that only exports a memory.
func envModule(minPages, maxPages uint32) []byte {
	limits := append([]byte{0x01}, uleb128(minPages)...)
	limits = append(limits, uleb128(maxPages)...)

	memSec := append([]byte{0x01}, limits...) // one memory
	// one export: "memory", kind memory, index 0
	exportSec := []byte{0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00}

	out := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic: \0asm
		0x01, 0x00, 0x00, 0x00, // version: 1
	}
	out = appendSection(out, 0x05, memSec)
	out = appendSection(out, 0x07, exportSec)
	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = append(out, uleb128(uint32(len(content)))...)
	return append(out, content...)
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}
