package gojahost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listenAll = `
	window.log = [];
	function track(name, capture) {
		var el = name === 'window' ? window : (name === 'document' ? document : document.getElementById(name));
		el.addEventListener('click', function (e) {
			log.push(name + (capture ? ':capture' : ':bubble') + ':' + e.eventPhase);
		}, capture);
	}
	['window', 'document', 'root', 'first'].forEach(function (n) { track(n, true); track(n, false); });
`

func TestDispatchOrder(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, listenAll)
	require.NoError(t, h.Fire("#first", "click"))

	assert.Equal(t, []any{
		"window:capture:1",
		"document:capture:1",
		"root:capture:1",
		"first:capture:2",
		"first:bubble:2",
		"root:bubble:3",
		"document:bubble:3",
		"window:bubble:3",
	}, eval(t, h, `log`))
}

func TestNonBubblingEventSkipsBubblePhase(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, listenAll)
	eval(t, h, `document.getElementById('first').dispatchEvent(new Event('click'))`)

	assert.Equal(t, []any{
		"window:capture:1",
		"document:capture:1",
		"root:capture:1",
		"first:capture:2",
		"first:bubble:2",
	}, eval(t, h, `log`))
}

func TestStopPropagation(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, listenAll)
	eval(t, h, `document.getElementById('root').addEventListener('click', function (e) { e.stopPropagation() }, true)`)
	require.NoError(t, h.Fire("#first", "click"))

	assert.Equal(t, []any{
		"window:capture:1",
		"document:capture:1",
		"root:capture:1",
	}, eval(t, h, `log`), "listeners on the current target still run")
}

func TestStopImmediatePropagation(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `
		window.log = [];
		var p = document.getElementById('first');
		p.addEventListener('click', function (e) { log.push('a'); e.stopImmediatePropagation(); });
		p.addEventListener('click', function () { log.push('b'); });
		document.getElementById('root').addEventListener('click', function () { log.push('root'); });
	`)
	require.NoError(t, h.Fire("#first", "click"))
	assert.Equal(t, []any{"a"}, eval(t, h, `log`))
}

func TestListenerDedupeAndRemove(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `
		window.n = 0;
		function inc() { n++; }
		var p = document.getElementById('first');
		p.addEventListener('click', inc);
		p.addEventListener('click', inc);
		p.addEventListener('click', inc, {capture: true});
	`)
	require.NoError(t, h.Fire("#first", "click"))
	assert.EqualValues(t, 2, eval(t, h, `n`), "same type, function and phase registers once")

	eval(t, h, `p.removeEventListener('click', inc); p.removeEventListener('click', inc, true)`)
	require.NoError(t, h.Fire("#first", "click"))
	assert.EqualValues(t, 2, eval(t, h, `n`))
}

func TestListenerErrorsDoNotStopDispatch(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `
		window.reached = false;
		document.getElementById('first').addEventListener('click', function () { throw new Error('bad listener'); });
		document.getElementById('root').addEventListener('click', function () { reached = true; });
	`)
	err := h.Fire("#first", "click")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad listener")
	assert.Equal(t, true, eval(t, h, `reached`))
}

func TestDispatchEventFromScript(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `
		window.seen = null;
		document.getElementById('root').addEventListener('custom', function (e) {
			seen = e.target.id + '/' + e.currentTarget.id;
			e.preventDefault();
		});
		window.result = document.getElementById('first').dispatchEvent(new Event('custom', {bubbles: true}));
	`)
	assert.Equal(t, "first/root", eval(t, h, `seen`))
	assert.Equal(t, false, eval(t, h, `result`))

	_, err := h.Eval(`document.body.dispatchEvent('click')`)
	require.Error(t, err)
}

func TestUntargetedEvent(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `window.target = 'unset'; addEventListener('ping', function (e) { target = e.target; })`)

	require.NoError(t, h.FireUntargeted("ping"))
	assert.Nil(t, eval(t, h, `target`))

	require.NoError(t, h.FireWindow("ping"))
	assert.Equal(t, true, eval(t, h, `target === window`))
}

func TestDetachedNodeHasNoWindowInPath(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `
		window.log = [];
		addEventListener('click', function () { log.push('window'); });
		var box = document.createElement('div');
		var inner = document.createElement('span');
		box.appendChild(inner);
		box.addEventListener('click', function () { log.push('box'); });
		inner.dispatchEvent(new Event('click', {bubbles: true}));
	`)
	assert.Equal(t, []any{"box"}, eval(t, h, `log`))
}
