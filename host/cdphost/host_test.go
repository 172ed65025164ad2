package cdphost

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6over3/webplatform/bridge"
	"github.com/6over3/webplatform/errors"
)

var (
	greetSnippet = bridge.Define2[bridge.Text, bridge.Text]("cdphost.greet", `return allocString(UTF8ToString($0) + ', ' + UTF8ToString($1));`)
	outSnippet   = bridge.Define2[bridge.Int, bridge.Ptr]("cdphost.out", `setValue($1, $0 + 1, 'i32'); return $0;`)
	failSnippet  = bridge.Define1[bridge.Text]("cdphost.fail", `throw new Error(UTF8ToString($0));`)
	postSnippet  = bridge.Define2[bridge.Ptr, bridge.Int]("cdphost.post", `dynCall('vi', $0, [$1]); return 0;`)
	valueSnippet = bridge.Define1[bridge.Ptr]("cdphost.value", `return dynCall('ii', $0, [1]);`)
	alertSnippet = bridge.Define1[bridge.Text]("cdphost.alert", `alert(UTF8ToString($0)); return 0;`)
	bigSnippet   = bridge.Define0("cdphost.big", `return 0x7f000005;`)
)

// newPage returns a Host whose page is a goja runtime with the prelude
// installed, standing in for a browser tab.
func newPage(t *testing.T, opts Options) (*Host, *bridge.Invoker, *goja.Runtime) {
	t.Helper()
	rt, err := bridge.New(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	h := newHost(rt, opts)
	vm := goja.New()
	require.NoError(t, vm.Set("window", vm.GlobalObject()))
	require.NoError(t, vm.Set(bindingName, func(payload string) { h.onBinding(payload) }))
	_, err = vm.RunString(prelude)
	require.NoError(t, err)

	h.evaluate = func(_ context.Context, expr string, res any) error {
		v, err := vm.RunString("JSON.stringify(" + expr + ")")
		if err != nil {
			return err
		}
		if res == nil || goja.IsUndefined(v) {
			return nil
		}
		return json.Unmarshal([]byte(v.String()), res)
	}
	return h, bridge.NewInvoker(rt, h), vm
}

func TestCallExpression(t *testing.T) {
	s := outSnippet.Snippet()
	first, err := callExpression(s, []bridge.Slot{3, 64}, map[string]string{}, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "(__webplatformHost.define("))
	assert.Contains(t, first, s.Source())
	assert.True(t, strings.HasSuffix(first, "__webplatformHost.call("+strconv.Itoa(int(s.ID()))+", [3,64], {}))"))

	again, err := callExpression(s, []bridge.Slot{3, 64}, map[string]string{"64": "x"}, false)
	require.NoError(t, err)
	assert.Equal(t, "__webplatformHost.call("+strconv.Itoa(int(s.ID()))+`, [3,64], {"64":"x"})`, again)
}

func TestDecodeTexts(t *testing.T) {
	rt, err := bridge.New(context.Background(), nil)
	require.NoError(t, err)
	defer rt.Close()

	addr, err := rt.Scratch.PutString("hello")
	require.NoError(t, err)
	texts, err := decodeTexts(rt.Memory, greetSnippet.Snippet(), []bridge.Slot{bridge.Slot(addr), bridge.Slot(addr)})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{strconv.Itoa(int(addr)): "hello"}, texts)

	texts, err = decodeTexts(rt.Memory, outSnippet.Snippet(), []bridge.Slot{1, 2})
	require.NoError(t, err)
	assert.Empty(t, texts, "only text parameters are decoded")
}

func TestCallThroughPrelude(t *testing.T) {
	h, inv, _ := newPage(t, Options{})
	ctx := context.Background()

	ret, err := greetSnippet.Call(ctx, inv, "hello", "wörld")
	require.NoError(t, err)
	s, err := inv.String(ret)
	require.NoError(t, err)
	assert.Equal(t, "hello, wörld", s)
	assert.True(t, h.defined[greetSnippet.Snippet().ID()])

	ret, err = greetSnippet.Call(ctx, inv, "bye", "now")
	require.NoError(t, err)
	s, err = inv.String(ret)
	require.NoError(t, err)
	assert.Equal(t, "bye, now", s)
	assert.Zero(t, inv.Runtime().Arena.Used())
}

func TestOutParamWritesAreReplayed(t *testing.T) {
	_, inv, _ := newPage(t, Options{})
	rt := inv.Runtime()

	require.NoError(t, inv.Scoped(func(a *bridge.Arena) error {
		out, err := a.Alloc(4)
		require.NoError(t, err)
		ret, err := outSnippet.Call(context.Background(), inv, 41, bridge.Ptr(out))
		require.NoError(t, err)
		assert.Equal(t, bridge.Slot(41), ret)
		v, err := rt.Memory.ReadInt32(out)
		require.NoError(t, err)
		assert.Equal(t, int32(42), v)
		return nil
	}))
}

func TestIntResultsAboveTheMarkPassThrough(t *testing.T) {
	_, inv, _ := newPage(t, Options{})
	ret, err := bigSnippet.Call(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, bridge.Slot(0x7f000005), ret, "no strings were allocated, so this is not a string result")
}

func TestPageExceptions(t *testing.T) {
	h, inv, _ := newPage(t, Options{})
	hostErr := errors.New(errors.PhaseHost, errors.KindHostException).Build()

	_, err := failSnippet.Call(context.Background(), inv, "kaput")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, hostErr))
	assert.Contains(t, err.Error(), "kaput")

	// A navigation drops the page's definitions.
	h.defined[outSnippet.Snippet().ID()] = true
	_, err = outSnippet.Call(context.Background(), inv, 1, 16)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, hostErr))
	assert.Contains(t, err.Error(), "not defined")
}

func TestDynCallIsDeliveredThroughTheLoop(t *testing.T) {
	h, inv, _ := newPage(t, Options{})
	rt := inv.Runtime()

	var got []bridge.Slot
	ptr, err := rt.Exports.Export("cdphost.sink", "vi", func(_ context.Context, args []bridge.Slot) bridge.Slot {
		got = append(got, args[0])
		return 0
	})
	require.NoError(t, err)

	_, err = postSnippet.Call(context.Background(), inv, bridge.Ptr(ptr), 7)
	require.NoError(t, err)
	_, err = postSnippet.Call(context.Background(), inv, bridge.Ptr(ptr), 8)
	require.NoError(t, err)
	assert.Empty(t, got, "binding events wait for the loop")
	assert.Equal(t, 2, h.Loop().Pending())

	assert.Equal(t, 2, h.Pump())
	assert.Equal(t, []bridge.Slot{7, 8}, got)
}

func TestDynCallWithResultIsRejected(t *testing.T) {
	_, inv, _ := newPage(t, Options{})
	_, err := valueSnippet.Call(context.Background(), inv, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returns a value")
}

func TestAlert(t *testing.T) {
	var shown []string
	h, inv, _ := newPage(t, Options{OnAlert: func(m string) { shown = append(shown, m) }})

	_, err := alertSnippet.Call(context.Background(), inv, "careful")
	require.NoError(t, err)
	h.Pump()
	assert.Equal(t, []string{"careful"}, shown)
	assert.Equal(t, []string{"careful"}, h.Alerts())
}

func TestRunLoopDeliversBindingEvents(t *testing.T) {
	h, inv, _ := newPage(t, Options{})
	rt := inv.Runtime()

	sink, err := rt.Exports.Export("cdphost.pause", "vi", func(context.Context, []bridge.Slot) bridge.Slot {
		h.PauseLoop()
		return 0
	})
	require.NoError(t, err)
	ticks := 0
	tick, err := rt.Exports.Export("cdphost.tick", "v", func(ctx context.Context, _ []bridge.Slot) bridge.Slot {
		ticks++
		if ticks == 1 {
			_, err := postSnippet.Call(ctx, inv, bridge.Ptr(sink), 0)
			require.NoError(t, err)
		}
		return 0
	})
	require.NoError(t, err)

	require.NoError(t, h.RunLoop(context.Background(), tick, 0))
	assert.Equal(t, 1, ticks)
}

func TestParseMessage(t *testing.T) {
	m, err := parseMessage(`{"kind":"call","sig":"viii","fn":3,"args":[1,2,-1]}`)
	require.NoError(t, err)
	assert.Equal(t, message{Kind: "call", Sig: "viii", Fn: 3, Args: []int32{1, 2, -1}}, m)

	_, err = parseMessage(`{"kind":"call","sig":"ii","fn":3,"args":[1]}`)
	require.Error(t, err)
	_, err = parseMessage(`not json`)
	require.Error(t, err)
}

func TestUnknownBindingMessagesAreDropped(t *testing.T) {
	h, _, _ := newPage(t, Options{})
	h.onBinding(`{"kind":"mystery"}`)
	h.onBinding(`{`)
	assert.Zero(t, h.Loop().Pending())
}

func TestHelpersEscapeArguments(t *testing.T) {
	h, _, vm := newPage(t, Options{})
	_, err := vm.RunString(`
		window.location = {hash: ''};
		window.fired = [];
		window.document = {querySelector: function (sel) {
			return sel === 'a[title="x\'y"]' ? {dispatchEvent: function (e) { fired.push(e.type + ':' + e.bubbles); }} : null;
		}};
		window.Event = function (type, opts) { this.type = type; this.bubbles = !!(opts && opts.bubbles); };
	`)
	require.NoError(t, err)

	require.NoError(t, h.Fire(context.Background(), `a[title="x'y"]`, "click"))
	assert.Equal(t, "click:true", vm.Get("fired").ToObject(vm).Get("0").String())

	err = h.Fire(context.Background(), "#missing", "click")
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindNotFound).Build()))

	require.NoError(t, h.SetHash(context.Background(), `#"quoted"`))
	assert.Equal(t, `#"quoted"`, vm.Get("location").ToObject(vm).Get("hash").String())
}
