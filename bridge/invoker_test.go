package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6over3/webplatform/errors"
)

var (
	testNoArgs   = Define0("test.noargs", "return 7;")
	testEcho     = Define1[Text]("test.echo", "return allocString(UTF8ToString($0));")
	testMixed    = Define3[Int, Text, Ptr]("test.mixed", "return $0 + $2;")
	testFive     = Define5[Int, Int, Int, Int, Text]("test.five", "return $0+$1+$2+$3;")
	testOptional = Define1[Int]("test.optional", "return $0 ? allocString('x') : -1;")
)

func newTestInvoker(t *testing.T) (*Invoker, *fakeHost) {
	t.Helper()
	rt := newTestRuntime(t, &Options{ScratchBytes: 256})
	host := &fakeHost{rt: rt}
	return NewInvoker(rt, host), host
}

func TestInvokePassesSlots(t *testing.T) {
	inv, host := newTestInvoker(t)
	host.answer = func(s *Snippet, args []Slot) (Slot, error) {
		return args[0] + args[2], nil
	}

	ret, err := testMixed.Call(context.Background(), inv, Int(-3), Text("héllo"), Ptr(40))
	require.NoError(t, err)
	assert.Equal(t, Slot(37), ret)

	require.Len(t, host.calls, 1)
	call := host.calls[0]
	assert.Equal(t, "test.mixed", call.snippet)
	assert.Equal(t, Slot(-3), call.slots[0])
	assert.Equal(t, Slot(40), call.slots[2])
	assert.Equal(t, "héllo", call.texts[1])
	assert.NotZero(t, call.used, "text buffers are live during the call")
	assert.Zero(t, inv.Runtime().Arena.Used(), "arena is released after the call")
}

func TestInvokeNoArgs(t *testing.T) {
	inv, host := newTestInvoker(t)
	host.answer = func(*Snippet, []Slot) (Slot, error) { return 7, nil }

	ret, err := testNoArgs.Call(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, Slot(7), ret)
	assert.Empty(t, host.calls[0].slots)
}

func TestInvokeMaxArity(t *testing.T) {
	inv, host := newTestInvoker(t)
	_, err := testFive.Call(context.Background(), inv, 1, 2, 3, 4, "five")
	require.NoError(t, err)
	assert.Len(t, host.calls[0].slots, MaxArity)
	assert.Equal(t, "five", host.calls[0].texts[4])
}

func TestInvokeStringResult(t *testing.T) {
	inv, host := newTestInvoker(t)
	host.answer = func(s *Snippet, args []Slot) (Slot, error) {
		addr, err := host.rt.Scratch.PutString(host.calls[len(host.calls)-1].texts[0] + "!")
		return Slot(addr), err
	}

	ret, err := testEcho.Call(context.Background(), inv, "hi")
	require.NoError(t, err)
	got, err := inv.String(ret)
	require.NoError(t, err)
	assert.Equal(t, "hi!", got)
}

func TestInvokeOptString(t *testing.T) {
	inv, host := newTestInvoker(t)
	host.answer = func(s *Snippet, args []Slot) (Slot, error) {
		if args[0] == 0 {
			return Slot(NoHandle), nil
		}
		addr, err := host.rt.Scratch.PutString("x")
		return Slot(addr), err
	}

	ret, err := testOptional.Call(context.Background(), inv, 0)
	require.NoError(t, err)
	_, ok, err := inv.OptString(ret)
	require.NoError(t, err)
	assert.False(t, ok)

	ret, err = testOptional.Call(context.Background(), inv, 1)
	require.NoError(t, err)
	s, ok, err := inv.OptString(ret)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", s)
}

func TestInvokeReleasesArenaOnHostError(t *testing.T) {
	inv, host := newTestInvoker(t)
	boom := fmt.Errorf("boom")
	host.answer = func(*Snippet, []Slot) (Slot, error) {
		return 0, errors.HostException("test.echo", boom)
	}

	_, err := testEcho.Call(context.Background(), inv, "payload")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, inv.Runtime().Arena.Used())
}

func TestInvokeRejectsNULWithoutCallingHost(t *testing.T) {
	inv, host := newTestInvoker(t)

	_, err := testMixed.Call(context.Background(), inv, 1, "bad\x00text", 0)
	require.Error(t, err)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
	assert.Equal(t, []string{"test.mixed", "$1"}, e.Path)
	assert.Empty(t, host.calls)
	assert.Zero(t, inv.Runtime().Arena.Used())
}

func TestNestedInvokeKeepsOuterBuffers(t *testing.T) {
	inv, host := newTestInvoker(t)
	var outerAddr Addr
	host.answer = func(s *Snippet, args []Slot) (Slot, error) {
		if s.Name() != "test.echo" {
			return 0, nil
		}
		outerAddr = Addr(args[0])
		// A callback issued from inside the call makes its own call.
		if _, err := testMixed.Call(context.Background(), inv, 0, "nested", 0); err != nil {
			return 0, err
		}
		str, err := host.rt.Memory.ReadCString(outerAddr)
		if err != nil {
			return 0, err
		}
		addr, err := host.rt.Scratch.PutString(str)
		return Slot(addr), err
	}

	ret, err := testEcho.Call(context.Background(), inv, "outer")
	require.NoError(t, err)
	got, err := inv.String(ret)
	require.NoError(t, err)
	assert.Equal(t, "outer", got)
	assert.Zero(t, inv.Runtime().Arena.Used())
}

func TestScopedReleases(t *testing.T) {
	inv, _ := newTestInvoker(t)
	err := inv.Scoped(func(a *Arena) error {
		_, err := a.Alloc(4)
		require.NoError(t, err)
		assert.NotZero(t, a.Used())
		return fmt.Errorf("done")
	})
	require.EqualError(t, err, "done")
	assert.Zero(t, inv.Runtime().Arena.Used())
}

func TestNilInvokerIsNotInitialized(t *testing.T) {
	var inv *Invoker
	notInit := errors.New(errors.PhaseInvoke, errors.KindNotInitialized).Build()

	_, err := testNoArgs.Call(context.Background(), inv)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, notInit))
	assert.Contains(t, err.Error(), "test.noargs")

	called := false
	err = inv.Scoped(func(*Arena) error {
		called = true
		return nil
	})
	assert.True(t, stderrors.Is(err, notInit))
	assert.False(t, called)
}

func TestEncodeChecksKinds(t *testing.T) {
	rt := newTestRuntime(t, nil)
	s := testMixed.Snippet()

	_, err := encode(rt.Arena, s, []Arg{Int(1), Int(2), Ptr(3)})
	require.Error(t, err)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, []string{"test.mixed", "$1"}, e.Path)

	_, err = encode(rt.Arena, s, []Arg{Int(1)})
	require.Error(t, err)
}
