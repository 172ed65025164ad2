package gojahost

import (
	"github.com/dop251/goja"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store is the host's localStorage: string keys in insertion order.
type Store struct {
	m *orderedmap.OrderedMap[string, string]
}

func newStore() *Store {
	return &Store{m: orderedmap.New[string, string]()}
}

// Len returns the number of keys.
func (s *Store) Len() int { return s.m.Len() }

// Key returns the key at index i.
func (s *Store) Key(i int) (string, bool) {
	if i < 0 || i >= s.m.Len() {
		return "", false
	}
	pair := s.m.Oldest()
	for ; i > 0; i-- {
		pair = pair.Next()
	}
	return pair.Key, true
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	return s.m.Get(key)
}

// Set stores value under key. A new key goes to the end of the order.
func (s *Store) Set(key, value string) {
	s.m.Set(key, value)
}

// Remove deletes key.
func (s *Store) Remove(key string) {
	s.m.Delete(key)
}

// Clear deletes every key.
func (s *Store) Clear() {
	s.m = orderedmap.New[string, string]()
}

// Keys returns the keys in order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (h *Host) storageObject() *goja.Object {
	st := h.store
	obj := h.vm.NewObject()
	h.getter(obj, "length", func() any { return st.Len() })
	h.method(obj, "key", func(call goja.FunctionCall) goja.Value {
		if k, ok := st.Key(int(call.Argument(0).ToInteger())); ok {
			return h.vm.ToValue(k)
		}
		return goja.Null()
	})
	h.method(obj, "getItem", func(call goja.FunctionCall) goja.Value {
		if v, ok := st.Get(call.Argument(0).String()); ok {
			return h.vm.ToValue(v)
		}
		return goja.Null()
	})
	h.method(obj, "setItem", func(call goja.FunctionCall) goja.Value {
		st.Set(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	h.method(obj, "removeItem", func(call goja.FunctionCall) goja.Value {
		st.Remove(call.Argument(0).String())
		return goja.Undefined()
	})
	h.method(obj, "clear", func(goja.FunctionCall) goja.Value {
		st.Clear()
		return goja.Undefined()
	})
	return obj
}
