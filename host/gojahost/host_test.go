package gojahost

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6over3/webplatform/bridge"
	"github.com/6over3/webplatform/errors"
)

var (
	echoSnippet   = bridge.Define1[bridge.Text]("gojahost.echo", `return allocString(UTF8ToString($0).toUpperCase());`)
	storeSnippet  = bridge.Define2[bridge.Int, bridge.Ptr]("gojahost.store", `setValue($1, $0 * 2, 'i32'); return 0;`)
	throwSnippet  = bridge.Define0("gojahost.throw", `throw new Error('boom');`)
	nativeSnippet = bridge.Define2[bridge.Ptr, bridge.Int]("gojahost.native", `return dynCall('ii', $0, [$1]);`)
	countSnippet  = bridge.Define1[bridge.Text]("gojahost.count", `return document.querySelectorAll(UTF8ToString($0)).length;`)
)

const testPage = `<html><head></head><body>
<div id="root" class="a b"><p id="first">one</p><p id="second">two</p></div>
</body></html>`

func newTestHost(t *testing.T, opts Options) (*Host, *bridge.Invoker) {
	t.Helper()
	rt, err := bridge.New(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	if opts.HTML == "" {
		opts.HTML = testPage
	}
	h, err := New(rt, opts)
	require.NoError(t, err)
	return h, bridge.NewInvoker(rt, h)
}

func eval(t *testing.T, h *Host, src string) any {
	t.Helper()
	v, err := h.Eval(src)
	require.NoError(t, err)
	return v.Export()
}

func TestCallTextRoundTrip(t *testing.T) {
	h, inv := newTestHost(t, Options{})
	ctx := context.Background()

	ret, err := echoSnippet.Call(ctx, inv, "héllo")
	require.NoError(t, err)
	s, err := inv.String(ret)
	require.NoError(t, err)
	assert.Equal(t, "HÉLLO", s)

	ret, err = countSnippet.Call(ctx, inv, "p")
	require.NoError(t, err)
	assert.Equal(t, bridge.Slot(2), ret)
	assert.Len(t, h.compiled, 2, "each snippet is compiled once")

	_, err = countSnippet.Call(ctx, inv, "div")
	require.NoError(t, err)
	assert.Len(t, h.compiled, 2)
}

func TestCallOutParam(t *testing.T) {
	_, inv := newTestHost(t, Options{})
	rt := inv.Runtime()

	err := inv.Scoped(func(a *bridge.Arena) error {
		out, err := a.Alloc(4)
		if err != nil {
			return err
		}
		if _, err := storeSnippet.Call(context.Background(), inv, 21, bridge.Ptr(out)); err != nil {
			return err
		}
		v, err := rt.Memory.ReadInt32(out)
		require.NoError(t, err)
		assert.Equal(t, int32(42), v)
		return nil
	})
	require.NoError(t, err)
}

func TestCallScriptException(t *testing.T) {
	_, inv := newTestHost(t, Options{})

	_, err := throwSnippet.Call(context.Background(), inv)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindHostException).Build()))
	assert.Contains(t, err.Error(), "boom")
	assert.Zero(t, inv.Runtime().Arena.Used())
}

func TestDynCall(t *testing.T) {
	h, inv := newTestHost(t, Options{})
	rt := inv.Runtime()

	var seen context.Context
	ptr, err := rt.Exports.Export("gojahost.triple", "ii", func(ctx context.Context, args []bridge.Slot) bridge.Slot {
		seen = ctx
		return args[0] * 3
	})
	require.NoError(t, err)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "call")
	ret, err := nativeSnippet.Call(ctx, inv, bridge.Ptr(ptr), 7)
	require.NoError(t, err)
	assert.Equal(t, bridge.Slot(21), ret)
	assert.Equal(t, "call", seen.Value(key{}), "native callbacks see the context of the call in flight")
	assert.Equal(t, context.Background(), h.ctx, "the host context is restored after the call")

	_, err = h.Eval(fmt.Sprintf(`dynCall('v', %d, [])`, int32(ptr)))
	require.Error(t, err, "signature mismatch surfaces as a script exception")
	_, err = h.Eval(`dynCall('ii', 9999, [1])`)
	require.Error(t, err)
}

func TestAllocStringNull(t *testing.T) {
	h, inv := newTestHost(t, Options{})
	v := eval(t, h, `allocString(null)`)
	s, err := inv.Runtime().Memory.ReadCString(bridge.Addr(v.(int64)))
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestSetValueRejectsUnknownType(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	_, err := h.Eval(`setValue(16, 1, 'double')`)
	require.Error(t, err)
}

func TestRef(t *testing.T) {
	h, _ := newTestHost(t, Options{})

	_, ok := h.Ref(0)
	assert.False(t, ok, "no table before the bridge is initialised")

	eval(t, h, `window.WEBPLATFORM = {rs_refs: [document.getElementById('first'), 'text']}`)
	n, ok := h.Ref(0)
	require.True(t, ok)
	first, err := h.Query("#first")
	require.NoError(t, err)
	assert.Same(t, first, n)

	_, ok = h.Ref(1)
	assert.False(t, ok, "a slot holding a non-node")
	_, ok = h.Ref(2)
	assert.False(t, ok)
	_, ok = h.Ref(bridge.NoHandle)
	assert.False(t, ok)
}

func TestFind(t *testing.T) {
	h, _ := newTestHost(t, Options{})

	_, err := h.Query("#nope")
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindNotFound).Build()))

	_, err = h.Query("p[")
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindInvalidInput).Build()))
}

func TestAlertAndConsole(t *testing.T) {
	var got []string
	h, _ := newTestHost(t, Options{OnAlert: func(m string) { got = append(got, m) }})

	eval(t, h, `alert('one'); window.alert(2); console.log('ignored', 1)`)
	assert.Equal(t, []string{"one", "2"}, got)
	assert.Equal(t, []string{"one", "2"}, h.Alerts())
}

func TestLocation(t *testing.T) {
	h, _ := newTestHost(t, Options{Hash: "start"})
	assert.Equal(t, "#start", eval(t, h, `location.hash`))

	eval(t, h, `
		window.changes = 0;
		addEventListener('hashchange', function () { changes++; });
		location.hash = 'next';
		location.hash = '#next';
	`)
	assert.Equal(t, "#next", h.Hash())
	assert.EqualValues(t, 1, eval(t, h, `changes`))

	require.NoError(t, h.SetHash(""))
	assert.Equal(t, "", eval(t, h, `location.hash`))
	assert.EqualValues(t, 2, eval(t, h, `changes`))
}

func TestNormalizeHash(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"#":     "",
		"a":     "#a",
		"#a":    "#a",
		"#a#b":  "#a#b",
		"todo/": "#todo/",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeHash(in), "normalizeHash(%q)", in)
	}
}

func TestRunLoop(t *testing.T) {
	h, inv := newTestHost(t, Options{})
	rt := inv.Runtime()

	ticks := 0
	tick, err := rt.Exports.Export("gojahost.tick", "v", func(context.Context, []bridge.Slot) bridge.Slot {
		ticks++
		if ticks == 2 {
			h.PostFunc(h.PauseLoop)
		}
		return 0
	})
	require.NoError(t, err)

	require.NoError(t, h.RunLoop(context.Background(), tick, 0))
	assert.Equal(t, 2, ticks)
	assert.False(t, h.Loop().Running())
}

func TestPostAndDrain(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `window.clicks = 0; document.getElementById('first').addEventListener('click', function () { clicks++; })`)

	h.Post("#first", "click")
	h.Post("#missing", "click")
	assert.Zero(t, eval(t, h, `clicks`), "posted work waits for the loop")
	assert.Equal(t, 2, h.Drain())
	assert.EqualValues(t, 1, eval(t, h, `clicks`))
}

func TestRender(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `document.getElementById('second').textContent = 'changed'`)
	out, err := h.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `<p id="second">changed</p>`)
}
