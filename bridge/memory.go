package bridge

import (
	"bytes"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	"github.com/6over3/webplatform/errors"
)

// Memory provides raw access to the native linear memory shared with the host.
type Memory struct {
	mem api.Memory
}

// NewMemory wraps a wazero memory instance.
func NewMemory(mem api.Memory) *Memory {
	return &Memory{mem: mem}
}

// Size returns the current size of the memory in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Grow grows the memory by delta pages and reports whether it succeeded.
func (m *Memory) Grow(deltaPages uint32) bool {
	_, ok := m.mem.Grow(deltaPages)
	return ok
}

// ReadBytes reads n bytes from the given offset.
func (m *Memory) ReadBytes(offset Addr, n uint32) ([]byte, error) {
	data, ok := m.mem.Read(uint32(offset), n)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, uint32(offset), n, m.mem.Size())
	}
	return data, nil
}

// WriteBytes writes bytes to the given offset.
func (m *Memory) WriteBytes(offset Addr, data []byte) error {
	if !m.mem.Write(uint32(offset), data) {
		return errors.OutOfBounds(errors.PhaseMemory, uint32(offset), uint32(len(data)), m.mem.Size())
	}
	return nil
}

// ReadInt32 reads a little-endian int32 from the given offset.
func (m *Memory) ReadInt32(offset Addr) (int32, error) {
	v, ok := m.mem.ReadUint32Le(uint32(offset))
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 4, m.mem.Size())
	}
	return int32(v), nil
}

// WriteInt32 writes a little-endian int32 to the given offset.
func (m *Memory) WriteInt32(offset Addr, val int32) error {
	if !m.mem.WriteUint32Le(uint32(offset), uint32(val)) {
		return errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 4, m.mem.Size())
	}
	return nil
}

// ReadCString reads a NUL-terminated UTF-8 string starting at offset.
// The returned string is a copy.
func (m *Memory) ReadCString(offset Addr) (string, error) {
	if offset.IsNull() {
		return "", errors.New(errors.PhaseMemory, errors.KindInvalidInput).
			Detail("read string at null address").
			Build()
	}
	size := m.mem.Size()
	if uint32(offset) >= size {
		return "", errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 1, size)
	}
	data, ok := m.mem.Read(uint32(offset), size-uint32(offset))
	if !ok {
		return "", errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 1, size)
	}
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("string at %d is not NUL-terminated", int32(offset)).
			Build()
	}
	if !utf8.Valid(data[:end]) {
		return "", errors.New(errors.PhaseMemory, errors.KindInvalidUTF8).
			Detail("string at %d is not valid UTF-8", int32(offset)).
			Build()
	}
	return string(data[:end]), nil
}

// WriteCString writes s followed by a NUL terminator.
func (m *Memory) WriteCString(offset Addr, s string) error {
	data := make([]byte, len(s)+1)
	copy(data, s)
	return m.WriteBytes(offset, data)
}
