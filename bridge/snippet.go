package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MaxArity is the largest number of arguments a snippet may declare.
const MaxArity = 5

// Snippet is a precompiled host-side call body. Snippets are declared once,
// at package initialisation, with the Define functions; the host resolves
// them by ID. The body refers to its arguments as $0..$n-1.
type Snippet struct {
	id     SnippetID
	name   string
	params []ParamKind
	body   string
}

// ID returns the snippet's static identity.
func (s *Snippet) ID() SnippetID { return s.id }

// Name returns the snippet's declared name.
func (s *Snippet) Name() string { return s.name }

// Body returns the host-side script body.
func (s *Snippet) Body() string { return s.body }

// Arity returns the number of parameters.
func (s *Snippet) Arity() int { return len(s.params) }

// Params returns the parameter kinds in order.
func (s *Snippet) Params() []ParamKind {
	out := make([]ParamKind, len(s.params))
	copy(out, s.params)
	return out
}

// Source returns the body as a function expression taking $0..$n-1.
func (s *Snippet) Source() string {
	names := make([]string, len(s.params))
	for i := range names {
		names[i] = "$" + strconv.Itoa(i)
	}
	return "function(" + strings.Join(names, ", ") + ") {\n" + s.body + "\n}"
}

func (s *Snippet) String() string {
	return fmt.Sprintf("Snippet(%d %s/%d)", int32(s.id), s.name, len(s.params))
}

type snippetTable struct {
	mu       sync.RWMutex
	snippets []*Snippet
	byName   map[string]*Snippet
	sealed   bool
}

func newSnippetTable() *snippetTable {
	return &snippetTable{byName: make(map[string]*Snippet)}
}

var snippets = newSnippetTable()

// define adds a snippet. Misdeclarations are programming errors and panic;
// they surface at package initialisation, before any call is issued.
func (t *snippetTable) define(name, body string, params ...ParamKind) *Snippet {
	if name == "" {
		panic("bridge: snippet name is empty")
	}
	if len(params) > MaxArity {
		panic(fmt.Sprintf("bridge: snippet %s declares %d parameters, max is %d", name, len(params), MaxArity))
	}
	if n, ok := maxParamRef(body); ok && n >= len(params) {
		panic(fmt.Sprintf("bridge: snippet %s references $%d but declares %d parameters", name, n, len(params)))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		panic(fmt.Sprintf("bridge: snippet %s defined after the first foreign call", name))
	}
	if _, ok := t.byName[name]; ok {
		panic(fmt.Sprintf("bridge: snippet %s defined twice", name))
	}
	s := &Snippet{
		id:     SnippetID(len(t.snippets) + 1),
		name:   name,
		params: params,
		body:   body,
	}
	t.snippets = append(t.snippets, s)
	t.byName[name] = s
	return s
}

func (t *snippetTable) seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

func (t *snippetTable) lookup(id SnippetID) (*Snippet, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id <= 0 || int(id) > len(t.snippets) {
		return nil, false
	}
	return t.snippets[id-1], true
}

func (t *snippetTable) all() []*Snippet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Snippet, len(t.snippets))
	copy(out, t.snippets)
	return out
}

// LookupSnippet returns the snippet declared with id.
func LookupSnippet(id SnippetID) (*Snippet, bool) {
	return snippets.lookup(id)
}

// Snippets returns every declared snippet in declaration order.
func Snippets() []*Snippet {
	return snippets.all()
}

// maxParamRef returns the highest $n referenced by body.
func maxParamRef(body string) (int, bool) {
	best, found := -1, false
	for i := 0; i < len(body); i++ {
		if body[i] != '$' {
			continue
		}
		j := i + 1
		for j < len(body) && body[j] >= '0' && body[j] <= '9' {
			j++
		}
		if j == i+1 {
			continue
		}
		n, err := strconv.Atoi(body[i+1 : j])
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
		found = true
		i = j - 1
	}
	return best, found
}

// Typed declarations. The type parameters fix arity and per-position kind,
// so a call site with the wrong arguments does not compile.

// Snippet0 is a snippet taking no arguments.
type Snippet0 struct{ s *Snippet }

// Define0 declares a snippet taking no arguments.
func Define0(name, body string) Snippet0 {
	return Snippet0{snippets.define(name, body)}
}

// Snippet returns the underlying snippet.
func (d Snippet0) Snippet() *Snippet { return d.s }

// Call issues the snippet through inv.
func (d Snippet0) Call(ctx context.Context, inv *Invoker) (Slot, error) {
	return inv.invoke(ctx, d.s, nil)
}

// Snippet1 is a snippet taking one argument.
type Snippet1[A Arg] struct{ s *Snippet }

// Define1 declares a snippet taking one argument.
func Define1[A Arg](name, body string) Snippet1[A] {
	var a A
	return Snippet1[A]{snippets.define(name, body, a.Kind())}
}

// Snippet returns the underlying snippet.
func (d Snippet1[A]) Snippet() *Snippet { return d.s }

// Call issues the snippet through inv.
func (d Snippet1[A]) Call(ctx context.Context, inv *Invoker, a A) (Slot, error) {
	return inv.invoke(ctx, d.s, []Arg{a})
}

// Snippet2 is a snippet taking two arguments.
type Snippet2[A, B Arg] struct{ s *Snippet }

// Define2 declares a snippet taking two arguments.
func Define2[A, B Arg](name, body string) Snippet2[A, B] {
	var a A
	var b B
	return Snippet2[A, B]{snippets.define(name, body, a.Kind(), b.Kind())}
}

// Snippet returns the underlying snippet.
func (d Snippet2[A, B]) Snippet() *Snippet { return d.s }

// Call issues the snippet through inv.
func (d Snippet2[A, B]) Call(ctx context.Context, inv *Invoker, a A, b B) (Slot, error) {
	return inv.invoke(ctx, d.s, []Arg{a, b})
}

// Snippet3 is a snippet taking three arguments.
type Snippet3[A, B, C Arg] struct{ s *Snippet }

// Define3 declares a snippet taking three arguments.
func Define3[A, B, C Arg](name, body string) Snippet3[A, B, C] {
	var a A
	var b B
	var c C
	return Snippet3[A, B, C]{snippets.define(name, body, a.Kind(), b.Kind(), c.Kind())}
}

// Snippet returns the underlying snippet.
func (d Snippet3[A, B, C]) Snippet() *Snippet { return d.s }

// Call issues the snippet through inv.
func (d Snippet3[A, B, C]) Call(ctx context.Context, inv *Invoker, a A, b B, c C) (Slot, error) {
	return inv.invoke(ctx, d.s, []Arg{a, b, c})
}

// Snippet4 is a snippet taking four arguments.
type Snippet4[A, B, C, D Arg] struct{ s *Snippet }

// Define4 declares a snippet taking four arguments.
func Define4[A, B, C, D Arg](name, body string) Snippet4[A, B, C, D] {
	var a A
	var b B
	var c C
	var d D
	return Snippet4[A, B, C, D]{snippets.define(name, body, a.Kind(), b.Kind(), c.Kind(), d.Kind())}
}

// Snippet returns the underlying snippet.
func (d Snippet4[A, B, C, D]) Snippet() *Snippet { return d.s }

// Call issues the snippet through inv.
func (d Snippet4[A, B, C, D]) Call(ctx context.Context, inv *Invoker, a A, b B, c C, dd D) (Slot, error) {
	return inv.invoke(ctx, d.s, []Arg{a, b, c, dd})
}

// Snippet5 is a snippet taking five arguments.
type Snippet5[A, B, C, D, E Arg] struct{ s *Snippet }

// Define5 declares a snippet taking five arguments.
func Define5[A, B, C, D, E Arg](name, body string) Snippet5[A, B, C, D, E] {
	var a A
	var b B
	var c C
	var d D
	var e E
	return Snippet5[A, B, C, D, E]{snippets.define(name, body, a.Kind(), b.Kind(), c.Kind(), d.Kind(), e.Kind())}
}

// Snippet returns the underlying snippet.
func (d Snippet5[A, B, C, D, E]) Snippet() *Snippet { return d.s }

// Call issues the snippet through inv.
func (d Snippet5[A, B, C, D, E]) Call(ctx context.Context, inv *Invoker, a A, b B, c C, dd D, e E) (Slot, error) {
	return inv.invoke(ctx, d.s, []Arg{a, b, c, dd, e})
}
