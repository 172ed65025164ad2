package bridge

import (
	"strings"

	"github.com/6over3/webplatform/errors"
)

const (
	pageSize   = 65536
	nullGuard  = 16
	arenaAlign = 8
)

// ArenaMark is a saved arena top; releasing to it frees everything allocated
// after the mark was taken.
type ArenaMark uint32

// Arena is the argument arena: a LIFO stack allocator over native linear
// memory. Text arguments are copied here for the duration of a single foreign
// call. Nested calls (issued from callbacks running inside a call) allocate
// above the outer call's buffers and release back to their own mark, so the
// outer buffers stay valid until the outer call returns.
type Arena struct {
	mem  *Memory
	base uint32
	top  uint32
	peak uint32
}

func newArena(mem *Memory, base uint32) *Arena {
	base = alignUp(base, arenaAlign)
	return &Arena{mem: mem, base: base, top: base, peak: base}
}

// Mark returns the current arena top.
func (a *Arena) Mark() ArenaMark {
	return ArenaMark(a.top)
}

// Release frees every allocation made after mark.
// Releasing to a mark above the current top is a no-op.
func (a *Arena) Release(mark ArenaMark) {
	if uint32(mark) < a.base {
		mark = ArenaMark(a.base)
	}
	if uint32(mark) < a.top {
		a.top = uint32(mark)
	}
}

// Used returns the number of bytes currently allocated.
func (a *Arena) Used() uint32 {
	return a.top - a.base
}

// Peak returns the highest top the arena has reached, relative to its base.
func (a *Arena) Peak() uint32 {
	return a.peak - a.base
}

// Alloc reserves n zeroed bytes and returns their address. Memory grows when
// the stack runs past the end of the current memory.
func (a *Arena) Alloc(n uint32) (Addr, error) {
	size := alignUp(n, arenaAlign)
	if size == 0 {
		size = arenaAlign
	}
	end := uint64(a.top) + uint64(size)
	if end > uint64(^uint32(0)>>1) {
		return 0, errors.AllocationFailed(errors.PhaseMemory, n)
	}
	if cur := uint64(a.mem.Size()); end > cur {
		delta := (end - cur + pageSize - 1) / pageSize
		if !a.mem.Grow(uint32(delta)) {
			return 0, errors.AllocationFailed(errors.PhaseMemory, n)
		}
	}
	addr := Addr(a.top)
	if err := a.mem.WriteBytes(addr, make([]byte, size)); err != nil {
		return 0, err
	}
	a.top = uint32(end)
	if a.top > a.peak {
		a.peak = a.top
	}
	return addr, nil
}

// AllocCString copies s into the arena with a NUL terminator.
func (a *Arena) AllocCString(s string) (Addr, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return 0, errors.InvalidInput(errors.PhaseEncode, nil, "text argument contains NUL")
	}
	addr, err := a.Alloc(uint32(len(s)) + 1)
	if err != nil {
		return 0, err
	}
	if err := a.mem.WriteBytes(addr, []byte(s)); err != nil {
		return 0, err
	}
	return addr, nil
}

// Scratch is the fixed region the host writes string results into. A result
// stays valid until the next call that writes the region again, so readers
// copy it out immediately.
type Scratch struct {
	mem  *Memory
	base Addr
	size uint32
}

// Base returns the start of the scratch region.
func (s *Scratch) Base() Addr { return s.base }

// Size returns the capacity of the scratch region in bytes.
func (s *Scratch) Size() uint32 { return s.size }

// PutString writes str NUL-terminated at the start of the region and returns
// its address.
func (s *Scratch) PutString(str string) (Addr, error) {
	if strings.IndexByte(str, 0) >= 0 {
		return 0, errors.InvalidInput(errors.PhaseHost, nil, "string result contains NUL")
	}
	if uint64(len(str))+1 > uint64(s.size) {
		return 0, errors.New(errors.PhaseHost, errors.KindAllocation).
			Detail("string result of %d bytes exceeds scratch region of %d bytes", len(str), s.size).
			Build()
	}
	if err := s.mem.WriteCString(s.base, str); err != nil {
		return 0, err
	}
	return s.base, nil
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}
