package cdphost

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/6over3/webplatform/bridge"
	"github.com/6over3/webplatform/errors"
)

const (
	// bindingName is the runtime binding the page publishes native calls
	// through.
	bindingName = "__webplatformDispatch"

	// stringMark is added to the index of a string the page allocated during
	// a call. A snippet returning allocString(...) returns such a value.
	stringMark = 0x7f000000
)

// prelude runs in every document before its own scripts. The page has no
// view of native memory: text arguments arrive already decoded, and
// allocString and setValue are recorded per call and applied natively once
// the call returns. dynCall can only publish, so it accepts void signatures.
const prelude = `(function () {
	if (window.__webplatformHost) return;
	var snippets = {};
	var frame = null;
	var MARK = 0x7f000000;
	function publish(msg) { window.` + bindingName + `(JSON.stringify(msg)); }
	window.UTF8ToString = function (p) {
		if (frame && Object.prototype.hasOwnProperty.call(frame.texts, p)) return frame.texts[p];
		throw new Error('UTF8ToString: address ' + p + ' was not passed to this call');
	};
	window.allocString = function (s) {
		if (!frame) throw new Error('allocString: no call in progress');
		frame.strings.push(s == null ? '' : String(s));
		return MARK + frame.strings.length - 1;
	};
	window.setValue = function (p, v, type) {
		if (type !== undefined && type !== 'i32' && type !== '*') throw new TypeError('setValue: unsupported type ' + type);
		if (!frame) throw new Error('setValue: no call in progress');
		frame.writes.push([p | 0, v | 0]);
	};
	window.dynCall = function (sig, fn, args) {
		if (String(sig).charAt(0) !== 'v') throw new Error('dynCall: ' + sig + ' returns a value');
		publish({kind: 'call', sig: String(sig), fn: fn | 0, args: (args || []).map(function (a) { return a | 0; })});
	};
	window.alert = function (msg) { publish({kind: 'alert', message: String(msg)}); };
	window.__webplatformHost = {
		define: function (id, fn) { snippets[id] = fn; },
		call: function (id, args, texts) {
			if (!snippets[id]) return {error: 'snippet ' + id + ' is not defined in this document'};
			var outer = frame;
			frame = {texts: texts, strings: [], writes: []};
			try {
				var ret = snippets[id].apply(null, args);
				return {ret: ret | 0, strings: frame.strings, writes: frame.writes};
			} catch (e) {
				return {error: String((e && e.stack) || e)};
			} finally {
				frame = outer;
			}
		}
	};
})();`

// callResult is what __webplatformHost.call returns.
type callResult struct {
	Ret     int32      `json:"ret"`
	Strings []string   `json:"strings"`
	Writes  [][2]int32 `json:"writes"`
	Error   string     `json:"error"`
}

// message is a binding payload.
type message struct {
	Kind    string  `json:"kind"`
	Sig     string  `json:"sig"`
	Fn      int32   `json:"fn"`
	Args    []int32 `json:"args"`
	Message string  `json:"message"`
}

// decodeTexts reads the text arguments of a call out of native memory,
// keyed by address as the page's UTF8ToString sees them.
func decodeTexts(mem *bridge.Memory, s *bridge.Snippet, args []bridge.Slot) (map[string]string, error) {
	texts := make(map[string]string)
	for i, kind := range s.Params() {
		if kind != bridge.ParamText || i >= len(args) {
			continue
		}
		str, err := mem.ReadCString(bridge.Addr(args[i]))
		if err != nil {
			return nil, err
		}
		texts[strconv.Itoa(int(args[i]))] = str
	}
	return texts, nil
}

// callExpression builds the expression evaluated for one call. The snippet
// source is included the first time an id is used in a document.
func callExpression(s *bridge.Snippet, args []bridge.Slot, texts map[string]string, define bool) (string, error) {
	ints := make([]int32, len(args))
	for i, a := range args {
		ints[i] = int32(a)
	}
	argsJSON, err := json.Marshal(ints)
	if err != nil {
		return "", err
	}
	textsJSON, err := json.Marshal(texts)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if define {
		fmt.Fprintf(&b, "__webplatformHost.define(%d, (%s)), ", int32(s.ID()), s.Source())
	}
	fmt.Fprintf(&b, "__webplatformHost.call(%d, %s, %s)", int32(s.ID()), argsJSON, textsJSON)
	if define {
		return "(" + b.String() + ")", nil
	}
	return b.String(), nil
}

// apply replays the call's memory effects natively and resolves its result.
func apply(rt *bridge.Runtime, name string, res callResult) (bridge.Slot, error) {
	for _, w := range res.Writes {
		if err := rt.Memory.WriteInt32(bridge.Addr(w[0]), w[1]); err != nil {
			return 0, err
		}
	}
	idx := int64(res.Ret) - stringMark
	if idx < 0 || idx >= int64(len(res.Strings)) {
		return bridge.Slot(res.Ret), nil
	}
	addr, err := rt.Scratch.PutString(res.Strings[idx])
	if err != nil {
		return 0, errors.New(errors.PhaseHost, errors.KindAllocation).
			Path(name).
			Cause(err).
			Detail("string result").
			Build()
	}
	return bridge.Slot(addr), nil
}

func parseMessage(payload string) (message, error) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return message{}, err
	}
	if m.Kind == "call" && !bridge.Signature(m.Sig).Void() {
		return message{}, fmt.Errorf("signature %q returns a value", m.Sig)
	}
	return m, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
