package webplatform

import (
	"github.com/6over3/webplatform/bridge"
)

type (
	i32  = bridge.Int
	text = bridge.Text
	ptr  = bridge.Ptr
)

// Host-side bodies. Every body sees the host contract globals: WEBPLATFORM
// (created by initBridge), UTF8ToString, allocString, setValue, dynCall,
// document and window. A body that creates or finds an object pushes it onto
// WEBPLATFORM.rs_refs and returns the new index, or -1 when there is none.

var initBridge = bridge.Define0("init", `
window.WEBPLATFORM || (window.WEBPLATFORM = { rs_refs: [] });
if (!WEBPLATFORM.morph) {
	var slice = Array.prototype.slice;
	var sameKind = function (a, b) {
		return a.nodeType === b.nodeType && a.nodeName === b.nodeName;
	};
	var morphAttrs = function (from, to) {
		slice.call(to.attributes).forEach(function (a) {
			if (from.getAttribute(a.name) !== a.value) from.setAttribute(a.name, a.value);
		});
		slice.call(from.attributes).forEach(function (a) {
			if (!to.hasAttribute(a.name)) from.removeAttribute(a.name);
		});
	};
	var morphChildren = function (from, to) {
		var have = slice.call(from.childNodes);
		var want = slice.call(to.childNodes);
		for (var i = 0; i < want.length; i++) {
			var h = have[i], w = want[i];
			if (!h) {
				from.appendChild(w);
			} else if (!sameKind(h, w)) {
				from.replaceChild(w, h);
			} else if (h.nodeType === 1) {
				morphAttrs(h, w);
				morphChildren(h, w);
			} else if (h.nodeValue !== w.nodeValue) {
				h.nodeValue = w.nodeValue;
			}
		}
		for (var j = want.length; j < have.length; j++) from.removeChild(have[j]);
	};
	WEBPLATFORM.morph = function (from, html) {
		var to = from.cloneNode(false);
		to.innerHTML = html;
		morphChildren(from, to);
	};
}
return WEBPLATFORM.rs_refs.length;`)

var refCount = bridge.Define0("refs.length", `return WEBPLATFORM.rs_refs.length;`)

// document

var documentCreate = bridge.Define1[text]("document.create", `
var value = document.createElement(UTF8ToString($0));
if (!value) return -1;
return WEBPLATFORM.rs_refs.push(value) - 1;`)

var documentQuery = bridge.Define1[text]("document.query", `
var value = document.querySelector(UTF8ToString($0));
if (!value) return -1;
return WEBPLATFORM.rs_refs.push(value) - 1;`)

var documentQueryAll = bridge.Define2[text, ptr]("document.queryAll", `
var elements = document.querySelectorAll(UTF8ToString($0));
if (elements.length == 0) return 0;
setValue($1, WEBPLATFORM.rs_refs.length, 'i32');
Array.prototype.push.apply(WEBPLATFORM.rs_refs, elements);
return elements.length;`)

var locationHash = bridge.Define0("location.hash", `return allocString(window.location.hash);`)

var windowAlert = bridge.Define1[text]("alert", `alert(UTF8ToString($0)); return 0;`)

var windowListen = bridge.Define4[text, ptr, ptr, ptr]("window.listen", `
window.addEventListener(UTF8ToString($0), function (e) {
	dynCall('viii', $2, [$1, $3, e.target ? WEBPLATFORM.rs_refs.push(e.target) - 1 : -1]);
}, false);
return 0;`)

// node

var nodeQuery = bridge.Define2[i32, text]("node.query", `
var value = WEBPLATFORM.rs_refs[$0].querySelector(UTF8ToString($1));
if (!value) return -1;
return WEBPLATFORM.rs_refs.push(value) - 1;`)

var nodeQueryAll = bridge.Define3[i32, text, ptr]("node.queryAll", `
var elements = WEBPLATFORM.rs_refs[$0].querySelectorAll(UTF8ToString($1));
if (elements.length == 0) return 0;
setValue($2, WEBPLATFORM.rs_refs.length, 'i32');
Array.prototype.push.apply(WEBPLATFORM.rs_refs, elements);
return elements.length;`)

var nodeTagName = bridge.Define1[i32]("node.tagName", `
return allocString(WEBPLATFORM.rs_refs[$0].tagName.toLowerCase());`)

var nodeFocus = bridge.Define1[i32]("node.focus", `WEBPLATFORM.rs_refs[$0].focus(); return 0;`)

var nodeSetHTML = bridge.Define2[i32, text]("node.setHTML", `
WEBPLATFORM.rs_refs[$0].innerHTML = UTF8ToString($1);
return 0;`)

var nodePatchHTML = bridge.Define2[i32, text]("node.patchHTML", `
WEBPLATFORM.morph(WEBPLATFORM.rs_refs[$0], UTF8ToString($1));
return 0;`)

var nodeHTML = bridge.Define1[i32]("node.html", `return allocString(WEBPLATFORM.rs_refs[$0].innerHTML);`)

var nodeInsertHTML = bridge.Define3[i32, text, text]("node.insertHTML", `
WEBPLATFORM.rs_refs[$0].insertAdjacentHTML(UTF8ToString($1), UTF8ToString($2));
return 0;`)

var nodeClassName = bridge.Define1[i32]("node.className", `
return allocString(WEBPLATFORM.rs_refs[$0].className || '');`)

var nodeAddClass = bridge.Define2[i32, text]("node.addClass", `
WEBPLATFORM.rs_refs[$0].classList.add(UTF8ToString($1));
return 0;`)

var nodeRemoveClass = bridge.Define2[i32, text]("node.removeClass", `
WEBPLATFORM.rs_refs[$0].classList.remove(UTF8ToString($1));
return 0;`)

var nodeParent = bridge.Define1[i32]("node.parent", `
var value = WEBPLATFORM.rs_refs[$0].parentNode;
if (!value) return -1;
return WEBPLATFORM.rs_refs.push(value) - 1;`)

var nodeSetData = bridge.Define3[i32, text, text]("node.setData", `
WEBPLATFORM.rs_refs[$0].dataset[UTF8ToString($1)] = UTF8ToString($2);
return 0;`)

var nodeData = bridge.Define2[i32, text]("node.data", `
var str = WEBPLATFORM.rs_refs[$0].dataset[UTF8ToString($1)];
if (str == null) return -1;
return allocString(str);`)

var nodeSetStyle = bridge.Define3[i32, text, text]("node.setStyle", `
WEBPLATFORM.rs_refs[$0].style[UTF8ToString($1)] = UTF8ToString($2);
return 0;`)

var nodeStyle = bridge.Define2[i32, text]("node.style", `
return allocString(WEBPLATFORM.rs_refs[$0].style[UTF8ToString($1)] || '');`)

var nodeSetPropInt = bridge.Define3[i32, text, i32]("node.setPropInt", `
WEBPLATFORM.rs_refs[$0][UTF8ToString($1)] = $2;
return 0;`)

var nodeSetProp = bridge.Define3[i32, text, text]("node.setProp", `
WEBPLATFORM.rs_refs[$0][UTF8ToString($1)] = UTF8ToString($2);
return 0;`)

var nodePropInt = bridge.Define2[i32, text]("node.propInt", `
return Number(WEBPLATFORM.rs_refs[$0][UTF8ToString($1)]) | 0;`)

var nodeProp = bridge.Define2[i32, text]("node.prop", `
var value = WEBPLATFORM.rs_refs[$0][UTF8ToString($1)];
if (value == null) return -1;
return allocString(String(value));`)

var nodeSetAttrInt = bridge.Define3[i32, text, i32]("node.setAttrInt", `
WEBPLATFORM.rs_refs[$0].setAttribute(UTF8ToString($1), String($2));
return 0;`)

var nodeSetAttr = bridge.Define3[i32, text, text]("node.setAttr", `
WEBPLATFORM.rs_refs[$0].setAttribute(UTF8ToString($1), UTF8ToString($2));
return 0;`)

var nodeAttrInt = bridge.Define2[i32, text]("node.attrInt", `
return Number(WEBPLATFORM.rs_refs[$0].getAttribute(UTF8ToString($1))) | 0;`)

var nodeAttr = bridge.Define2[i32, text]("node.attr", `
var str = WEBPLATFORM.rs_refs[$0].getAttribute(UTF8ToString($1));
if (str == null) return -1;
return allocString(str);`)

var nodeAppend = bridge.Define2[i32, i32]("node.append", `
WEBPLATFORM.rs_refs[$0].appendChild(WEBPLATFORM.rs_refs[$1]);
return 0;`)

var nodeRemove = bridge.Define1[i32]("node.remove", `
var s = WEBPLATFORM.rs_refs[$0];
if (s.parentNode) s.parentNode.removeChild(s);
return 0;`)

var nodeListen = bridge.Define5[i32, text, ptr, ptr, ptr]("node.listen", `
WEBPLATFORM.rs_refs[$0].addEventListener(UTF8ToString($1), function (e) {
	dynCall('viii', $3, [$2, $4, e.target ? WEBPLATFORM.rs_refs.push(e.target) - 1 : -1]);
}, false);
return 0;`)

var nodeListenCapture = bridge.Define5[i32, text, ptr, ptr, ptr]("node.listenCapture", `
WEBPLATFORM.rs_refs[$0].addEventListener(UTF8ToString($1), function (e) {
	dynCall('viii', $3, [$2, $4, e.target ? WEBPLATFORM.rs_refs.push(e.target) - 1 : -1]);
}, true);
return 0;`)

var nodeSame = bridge.Define2[i32, i32]("node.same", `
var a = WEBPLATFORM.rs_refs[$0], b = WEBPLATFORM.rs_refs[$1];
return a !== undefined && a === b ? 1 : 0;`)

// localStorage

var storageLength = bridge.Define0("storage.length", `return window.localStorage.length;`)

var storageClear = bridge.Define0("storage.clear", `window.localStorage.clear(); return 0;`)

var storageRemove = bridge.Define1[text]("storage.remove", `
window.localStorage.removeItem(UTF8ToString($0));
return 0;`)

var storageSet = bridge.Define2[text, text]("storage.set", `
window.localStorage.setItem(UTF8ToString($0), UTF8ToString($1));
return 0;`)

var storageGet = bridge.Define1[text]("storage.get", `
var str = window.localStorage.getItem(UTF8ToString($0));
if (str == null) return -1;
return allocString(str);`)

var storageKey = bridge.Define1[i32]("storage.key", `
var key = window.localStorage.key($0);
if (key == null) return -1;
return allocString(key);`)
