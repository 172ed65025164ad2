package gojahost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore(t *testing.T) {
	s := newStore()
	s.Set("b", "1")
	s.Set("a", "2")
	s.Set("b", "3")
	assert.Equal(t, []string{"b", "a"}, s.Keys(), "overwriting keeps the original position")
	assert.Equal(t, 2, s.Len())

	v, ok := s.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	k, ok := s.Key(1)
	assert.True(t, ok)
	assert.Equal(t, "a", k)
	_, ok = s.Key(2)
	assert.False(t, ok)
	_, ok = s.Key(-1)
	assert.False(t, ok)

	s.Remove("b")
	s.Remove("missing")
	assert.Equal(t, []string{"a"}, s.Keys())
	_, ok = s.Get("b")
	assert.False(t, ok)

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Keys())
}

func TestStoreRemoveShiftsIndices(t *testing.T) {
	s := newStore()
	for _, k := range []string{"a", "b", "c", "d"} {
		s.Set(k, k)
	}
	s.Remove("b")

	var got []string
	for i := 0; i < s.Len(); i++ {
		k, ok := s.Key(i)
		assert.True(t, ok)
		got = append(got, k)
	}
	assert.Equal(t, []string{"a", "c", "d"}, got)

	s.Set("b", "again")
	assert.Equal(t, []string{"a", "c", "d", "b"}, s.Keys(), "a removed key comes back at the end")
	k, ok := s.Key(3)
	assert.True(t, ok)
	assert.Equal(t, "b", k)
}

func TestStorageFromScript(t *testing.T) {
	h, _ := newTestHost(t, Options{})
	eval(t, h, `localStorage.setItem('x', 1); localStorage.setItem('y', 'two')`)

	assert.EqualValues(t, 2, eval(t, h, `localStorage.length`))
	assert.Equal(t, "1", eval(t, h, `localStorage.getItem('x')`))
	assert.Equal(t, "y", eval(t, h, `localStorage.key(1)`))
	assert.Nil(t, eval(t, h, `localStorage.key(5)`))
	assert.Nil(t, eval(t, h, `localStorage.getItem('z')`))

	eval(t, h, `localStorage.removeItem('x')`)
	assert.Equal(t, []string{"y"}, h.Storage().Keys())

	eval(t, h, `localStorage.clear()`)
	assert.Zero(t, h.Storage().Len())
}
