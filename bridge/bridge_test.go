package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeHost records every call and answers with a programmable function.
// Text arguments are decoded while the call is in flight, the only time the
// arena guarantees they are readable.
type fakeHost struct {
	rt     *Runtime
	calls  []fakeCall
	answer func(s *Snippet, args []Slot) (Slot, error)
	paused bool
}

type fakeCall struct {
	snippet string
	slots   []Slot
	texts   map[int]string
	used    uint32
}

func (h *fakeHost) Call(ctx context.Context, s *Snippet, args []Slot) (Slot, error) {
	call := fakeCall{snippet: s.Name(), slots: append([]Slot(nil), args...), texts: map[int]string{}, used: h.rt.Arena.Used()}
	for i, kind := range s.Params() {
		if kind == ParamText {
			str, err := h.rt.Memory.ReadCString(Addr(args[i]))
			if err != nil {
				return 0, err
			}
			call.texts[i] = str
		}
	}
	h.calls = append(h.calls, call)
	if h.answer != nil {
		return h.answer(s, args)
	}
	return 0, nil
}

func (h *fakeHost) RunLoop(ctx context.Context, tick FuncPtr, fps int) error {
	h.paused = false
	for !h.paused {
		if _, err := h.rt.Exports.Invoke(ctx, tick, "v", nil); err != nil {
			return err
		}
	}
	return nil
}

func (h *fakeHost) PauseLoop() { h.paused = true }

func newTestRuntime(t *testing.T, opts *Options) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}
