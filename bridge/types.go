// Package bridge implements the native side of the foreign-call boundary
// between Go code and a handle-addressed scripting host.
//
// The package owns the parts of the boundary that are independent of any
// particular host: the native linear memory the host reads arguments from and
// writes results into, the argument encoder, the snippet table, the invoker
// that issues one synchronous call per snippet, the export table the host
// calls back through, and the append-only registries that keep callback
// targets alive.
package bridge

import "fmt"

// Slot is the integer-width value every argument is lowered to and every
// foreign call returns.
type Slot int32

// Handle is an index into the host-side object table.
// Handles are allocated by the host and never reused.
type Handle int32

// NoHandle is the sentinel the host returns when a lookup finds nothing.
const NoHandle Handle = -1

// IsValid reports whether the handle refers to a host object.
func (h Handle) IsValid() bool { return h >= 0 }

func (h Handle) String() string {
	if !h.IsValid() {
		return "Handle(none)"
	}
	return fmt.Sprintf("Handle(%d)", int32(h))
}

// Addr is an opaque pointer-sized value in the native address space: a
// linear memory offset, a registry address, or a pinned object address.
type Addr int32

// IsNull reports whether the address is null (zero).
func (a Addr) IsNull() bool { return a == 0 }

func (a Addr) String() string { return fmt.Sprintf("Addr(0x%x)", int32(a)) }

// FuncPtr indexes the native export table.
type FuncPtr int32

// IsNull reports whether the pointer is null (zero).
func (p FuncPtr) IsNull() bool { return p == 0 }

func (p FuncPtr) String() string { return fmt.Sprintf("FuncPtr(%d)", int32(p)) }

// SnippetID identifies a precompiled host-side snippet.
type SnippetID int32

func (id SnippetID) String() string { return fmt.Sprintf("SnippetID(%d)", int32(id)) }
