package gojahost

import (
	"sort"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

func (h *Host) classList(n *html.Node) *goja.Object {
	obj := h.vm.NewObject()
	h.method(obj, "add", func(call goja.FunctionCall) goja.Value {
		names := strings.Fields(attr(n, "class"))
		for _, arg := range call.Arguments {
			if c := arg.String(); !contains(names, c) {
				names = append(names, c)
			}
		}
		setAttr(n, "class", strings.Join(names, " "))
		return goja.Undefined()
	})
	h.method(obj, "remove", func(call goja.FunctionCall) goja.Value {
		names := strings.Fields(attr(n, "class"))
		for _, arg := range call.Arguments {
			names = without(names, arg.String())
		}
		setAttr(n, "class", strings.Join(names, " "))
		return goja.Undefined()
	})
	h.method(obj, "contains", func(call goja.FunctionCall) goja.Value {
		return h.vm.ToValue(contains(strings.Fields(attr(n, "class")), call.Argument(0).String()))
	})
	h.method(obj, "toggle", func(call goja.FunctionCall) goja.Value {
		c := call.Argument(0).String()
		names := strings.Fields(attr(n, "class"))
		on := !contains(names, c)
		if on {
			names = append(names, c)
		} else {
			names = without(names, c)
		}
		setAttr(n, "class", strings.Join(names, " "))
		return h.vm.ToValue(on)
	})
	h.getter(obj, "length", func() any { return len(strings.Fields(attr(n, "class"))) })
	return obj
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// dataset reflects data-* attributes as camelCase properties.
type dataset struct {
	h *Host
	n *html.Node
}

func (d *dataset) Get(key string) goja.Value {
	if v, ok := lookupAttr(d.n, "data-"+kebab(key)); ok {
		return d.h.vm.ToValue(v)
	}
	return goja.Undefined()
}

func (d *dataset) Set(key string, val goja.Value) bool {
	setAttr(d.n, "data-"+kebab(key), val.String())
	return true
}

func (d *dataset) Has(key string) bool {
	_, ok := lookupAttr(d.n, "data-"+kebab(key))
	return ok
}

func (d *dataset) Delete(key string) bool {
	removeAttr(d.n, "data-"+kebab(key))
	return true
}

func (d *dataset) Keys() []string {
	var keys []string
	for _, a := range d.n.Attr {
		if a.Namespace == "" && strings.HasPrefix(a.Key, "data-") {
			keys = append(keys, camel(strings.TrimPrefix(a.Key, "data-")))
		}
	}
	return keys
}

// style reflects the style attribute. Property names may be given in
// camelCase or as CSS names.
type style struct {
	h *Host
	n *html.Node
}

// decls parses the style attribute. A value that does not parse is treated
// as empty, so the next write replaces it.
func (s *style) decls() []*css.Declaration {
	text := strings.TrimSpace(attr(s.n, "style"))
	if text == "" {
		return nil
	}
	// The parser only closes a declaration at a semicolon.
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}
	decls, err := parser.ParseDeclarations(text)
	if err != nil {
		s.h.logger.Debug("unparsable style attribute", zap.Error(err))
		return nil
	}
	return decls
}

func (s *style) write(decls []*css.Declaration) {
	if len(decls) == 0 {
		removeAttr(s.n, "style")
		return
	}
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.String()
	}
	setAttr(s.n, "style", strings.Join(parts, " "))
}

func (s *style) Get(key string) goja.Value {
	prop := kebab(key)
	for _, d := range s.decls() {
		if d.Property == prop {
			return s.h.vm.ToValue(d.Value)
		}
	}
	return s.h.vm.ToValue("")
}

func (s *style) Set(key string, val goja.Value) bool {
	prop, value := kebab(key), strings.TrimSpace(val.String())
	decls := s.decls()
	for i, d := range decls {
		if d.Property != prop {
			continue
		}
		if value == "" {
			decls = append(decls[:i], decls[i+1:]...)
		} else {
			d.Value, d.Important = value, false
		}
		s.write(decls)
		return true
	}
	if value != "" {
		s.write(append(decls, &css.Declaration{Property: prop, Value: value}))
	}
	return true
}

func (s *style) Has(key string) bool {
	prop := kebab(key)
	for _, d := range s.decls() {
		if d.Property == prop {
			return true
		}
	}
	return false
}

func (s *style) Delete(key string) bool {
	return s.Set(key, s.h.vm.ToValue(""))
}

func (s *style) Keys() []string {
	var keys []string
	for _, d := range s.decls() {
		keys = append(keys, camel(d.Property))
	}
	sort.Strings(keys)
	return keys
}

// kebab converts backgroundColor to background-color.
func kebab(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// camel converts background-color to backgroundColor.
func camel(s string) string {
	var b strings.Builder
	up := false
	for _, r := range s {
		if r == '-' {
			up = true
			continue
		}
		if up && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		up = false
		b.WriteRune(r)
	}
	return b.String()
}
