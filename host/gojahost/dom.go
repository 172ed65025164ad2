package gojahost

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOM node types as seen by scripts.
const (
	elementNode  = 1
	textNode     = 3
	commentNode  = 8
	documentNode = 9
)

// wrap returns the script object for n. Every *html.Node has exactly one
// object, so scripts can compare nodes with ===.
func (h *Host) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := h.objects[n]; ok {
		return obj
	}
	obj := h.vm.NewObject()
	h.objects[n] = obj
	h.nodes[obj] = n

	h.value(obj, "nodeType", nodeType(n))
	h.value(obj, "nodeName", nodeName(n))
	h.getter(obj, "parentNode", func() any { return h.wrap(n.Parent) })
	h.getter(obj, "firstChild", func() any { return h.wrap(n.FirstChild) })
	h.getter(obj, "lastChild", func() any { return h.wrap(n.LastChild) })
	h.getter(obj, "nextSibling", func() any { return h.wrap(n.NextSibling) })
	h.getter(obj, "previousSibling", func() any { return h.wrap(n.PrevSibling) })
	h.getter(obj, "childNodes", func() any { return h.children(n) })
	h.accessor(obj, "textContent", func() any { return textContent(n) }, func(v goja.Value) {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			n.Data = v.String()
			return
		}
		removeChildren(n)
		n.AppendChild(&html.Node{Type: html.TextNode, Data: v.String()})
	})
	h.accessor(obj, "nodeValue", func() any {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			return n.Data
		}
		return goja.Null()
	}, func(v goja.Value) {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			n.Data = v.String()
		}
	})

	h.method(obj, "appendChild", func(call goja.FunctionCall) goja.Value {
		child := h.mustNode(call.Argument(0))
		h.insert(n, child, nil)
		return call.Argument(0)
	})
	h.method(obj, "insertBefore", func(call goja.FunctionCall) goja.Value {
		child := h.mustNode(call.Argument(0))
		var ref *html.Node
		if v := call.Argument(1); !goja.IsNull(v) && !goja.IsUndefined(v) {
			ref = h.mustNode(v)
			if ref.Parent != n {
				panic(h.vm.NewGoError(fmt.Errorf("insertBefore: reference node is not a child")))
			}
		}
		h.insert(n, child, ref)
		return call.Argument(0)
	})
	h.method(obj, "removeChild", func(call goja.FunctionCall) goja.Value {
		child := h.mustNode(call.Argument(0))
		if child.Parent != n {
			panic(h.vm.NewGoError(fmt.Errorf("removeChild: node is not a child")))
		}
		n.RemoveChild(child)
		return call.Argument(0)
	})
	h.method(obj, "replaceChild", func(call goja.FunctionCall) goja.Value {
		repl := h.mustNode(call.Argument(0))
		old := h.mustNode(call.Argument(1))
		if old.Parent != n {
			panic(h.vm.NewGoError(fmt.Errorf("replaceChild: node is not a child")))
		}
		if repl != old {
			h.insert(n, repl, old)
			n.RemoveChild(old)
		}
		return call.Argument(1)
	})
	h.method(obj, "cloneNode", func(call goja.FunctionCall) goja.Value {
		return h.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
	})
	h.method(obj, "querySelector", func(call goja.FunctionCall) goja.Value {
		return h.wrap(cascadia.Query(n, h.selector(call.Argument(0).String())))
	})
	h.method(obj, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		found := cascadia.QueryAll(n, h.selector(call.Argument(0).String()))
		items := make([]any, len(found))
		for i, m := range found {
			items[i] = h.wrap(m)
		}
		return h.vm.NewArray(items...)
	})
	h.method(obj, "addEventListener", func(call goja.FunctionCall) goja.Value {
		h.addListener(obj, call)
		return goja.Undefined()
	})
	h.method(obj, "removeEventListener", func(call goja.FunctionCall) goja.Value {
		h.removeListener(obj, call)
		return goja.Undefined()
	})
	h.method(obj, "dispatchEvent", func(call goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.dispatchFromScript(obj, call.Argument(0)))
	})

	switch n.Type {
	case html.ElementNode:
		h.element(obj, n)
	case html.DocumentNode:
		h.document(obj, n)
	}
	return obj
}

func (h *Host) element(obj *goja.Object, n *html.Node) {
	h.value(obj, "tagName", strings.ToUpper(n.Data))
	h.value(obj, "classList", h.classList(n))
	h.value(obj, "dataset", h.vm.NewDynamicObject(&dataset{h: h, n: n}))
	h.value(obj, "style", h.vm.NewDynamicObject(&style{h: h, n: n}))
	h.getter(obj, "children", func() any {
		var items []any
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				items = append(items, h.wrap(c))
			}
		}
		return h.vm.NewArray(items...)
	})
	h.accessor(obj, "id", func() any { return attr(n, "id") }, func(v goja.Value) { setAttr(n, "id", v.String()) })
	h.accessor(obj, "className", func() any { return attr(n, "class") }, func(v goja.Value) { setAttr(n, "class", v.String()) })
	h.getter(obj, "attributes", func() any {
		items := make([]any, len(n.Attr))
		for i, a := range n.Attr {
			o := h.vm.NewObject()
			_ = o.Set("name", a.Key)
			_ = o.Set("value", a.Val)
			items[i] = o
		}
		return h.vm.NewArray(items...)
	})
	h.accessor(obj, "innerHTML", func() any { return htmlquery.OutputHTML(n, false) }, func(v goja.Value) {
		nodes := h.parseFragment(n, v.String())
		removeChildren(n)
		for _, c := range nodes {
			n.AppendChild(c)
		}
	})
	h.getter(obj, "outerHTML", func() any { return htmlquery.OutputHTML(n, true) })

	h.method(obj, "getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := lookupAttr(n, call.Argument(0).String()); ok {
			return h.vm.ToValue(v)
		}
		return goja.Null()
	})
	h.method(obj, "setAttribute", func(call goja.FunctionCall) goja.Value {
		setAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	h.method(obj, "removeAttribute", func(call goja.FunctionCall) goja.Value {
		removeAttr(n, call.Argument(0).String())
		return goja.Undefined()
	})
	h.method(obj, "hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := lookupAttr(n, call.Argument(0).String())
		return h.vm.ToValue(ok)
	})
	h.method(obj, "insertAdjacentHTML", func(call goja.FunctionCall) goja.Value {
		h.insertAdjacentHTML(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	h.method(obj, "focus", func(goja.FunctionCall) goja.Value {
		h.focus(n)
		return goja.Undefined()
	})
}

func (h *Host) document(obj *goja.Object, n *html.Node) {
	h.method(obj, "createElement", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		if tag == "" {
			return goja.Null()
		}
		return h.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	})
	h.method(obj, "createTextNode", func(call goja.FunctionCall) goja.Value {
		return h.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	h.method(obj, "getElementById", func(call goja.FunctionCall) goja.Value {
		found, err := htmlquery.Query(n, "//*[@id="+xpathLiteral(call.Argument(0).String())+"]")
		if err != nil {
			return goja.Null()
		}
		return h.wrap(found)
	})
	h.getter(obj, "body", func() any { return h.wrap(htmlquery.FindOne(n, "//body")) })
	h.getter(obj, "head", func() any { return h.wrap(htmlquery.FindOne(n, "//head")) })
	h.getter(obj, "documentElement", func() any { return h.wrap(htmlquery.FindOne(n, "/html")) })
	h.getter(obj, "activeElement", func() any {
		if h.focused != nil {
			return h.wrap(h.focused)
		}
		return h.wrap(htmlquery.FindOne(n, "//body"))
	})
}

func (h *Host) value(obj *goja.Object, name string, v any) {
	if err := obj.DefineDataProperty(name, h.vm.ToValue(v), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		h.logger.Error("define property", zap.String("property", name), zap.Error(err))
	}
}

func (h *Host) method(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	if err := obj.Set(name, fn); err != nil {
		h.logger.Error("define method", zap.String("method", name), zap.Error(err))
	}
}

func (h *Host) getter(obj *goja.Object, name string, get func() any) {
	h.accessor(obj, name, get, nil)
}

func (h *Host) accessor(obj *goja.Object, name string, get func() any, set func(goja.Value)) {
	g := h.vm.ToValue(func(goja.FunctionCall) goja.Value { return h.vm.ToValue(get()) })
	s := goja.Undefined()
	if set != nil {
		s = h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, g, s, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		h.logger.Error("define accessor", zap.String("property", name), zap.Error(err))
	}
}

// unwrap returns the node behind a script value.
func (h *Host) unwrap(v goja.Value) (*html.Node, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	n, ok := h.nodes[obj]
	return n, ok
}

func (h *Host) mustNode(v goja.Value) *html.Node {
	n, ok := h.unwrap(v)
	if !ok {
		panic(h.vm.NewTypeError("argument is not a node"))
	}
	return n
}

func (h *Host) children(n *html.Node) *goja.Object {
	var items []any
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		items = append(items, h.wrap(c))
	}
	return h.vm.NewArray(items...)
}

func (h *Host) selector(sel string) cascadia.Selector {
	m, ok := h.selectors[sel]
	if ok {
		return m
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		panic(h.vm.NewGoError(fmt.Errorf("invalid selector %q: %w", sel, err)))
	}
	h.selectors[sel] = m
	return m
}

// insert moves child under parent before ref, or to the end when ref is nil.
func (h *Host) insert(parent, child, ref *html.Node) {
	for p := parent; p != nil; p = p.Parent {
		if p == child {
			panic(h.vm.NewGoError(fmt.Errorf("cannot insert a node into itself")))
		}
	}
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.InsertBefore(child, ref)
}

func (h *Host) parseFragment(context *html.Node, src string) []*html.Node {
	if context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), context)
	if err != nil {
		panic(h.vm.NewGoError(fmt.Errorf("parse html: %w", err)))
	}
	return nodes
}

func (h *Host) insertAdjacentHTML(n *html.Node, position, src string) {
	switch strings.ToLower(position) {
	case "beforebegin":
		if n.Parent == nil {
			return
		}
		for _, c := range h.parseFragment(n.Parent, src) {
			n.Parent.InsertBefore(c, n)
		}
	case "afterbegin":
		first := n.FirstChild
		for _, c := range h.parseFragment(n, src) {
			n.InsertBefore(c, first)
		}
	case "beforeend":
		for _, c := range h.parseFragment(n, src) {
			n.AppendChild(c)
		}
	case "afterend":
		if n.Parent == nil {
			return
		}
		next := n.NextSibling
		for _, c := range h.parseFragment(n.Parent, src) {
			n.Parent.InsertBefore(c, next)
		}
	default:
		panic(h.vm.NewGoError(fmt.Errorf("insertAdjacentHTML: invalid position %q", position)))
	}
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return elementNode
	case html.TextNode:
		return textNode
	case html.CommentNode:
		return commentNode
	case html.DocumentNode:
		return documentNode
	default:
		return 0
	}
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	default:
		return ""
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return n.Data
	}
	return htmlquery.InnerText(n)
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for k := n.FirstChild; k != nil; k = k.NextSibling {
			c.AppendChild(cloneNode(k, true))
		}
	}
	return c
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	key = strings.ToLower(key)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
