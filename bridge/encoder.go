package bridge

import (
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/6over3/webplatform/errors"
)

// ParamKind is the declared kind of a snippet parameter.
type ParamKind uint8

const (
	ParamInt ParamKind = iota + 1
	ParamText
	ParamPtr
)

func (k ParamKind) String() string {
	switch k {
	case ParamInt:
		return "int"
	case ParamText:
		return "text"
	case ParamPtr:
		return "ptr"
	default:
		return fmt.Sprintf("ParamKind(%d)", uint8(k))
	}
}

// Arg is a native argument that can be lowered to a slot. Only the kinds
// defined in this package implement it.
type Arg interface {
	Kind() ParamKind
	lower(a *Arena) (Slot, error)
}

// Int is a signed 32-bit argument, passed through unchanged.
type Int int32

// Kind implements Arg.
func (Int) Kind() ParamKind { return ParamInt }

func (v Int) lower(*Arena) (Slot, error) { return Slot(v), nil }

// Text is a UTF-8 argument. It is copied NUL-terminated into the argument
// arena and passed as the address of the copy.
type Text string

// Kind implements Arg.
func (Text) Kind() ParamKind { return ParamText }

func (v Text) lower(a *Arena) (Slot, error) {
	addr, err := a.AllocCString(string(v))
	if err != nil {
		return 0, err
	}
	return Slot(addr), nil
}

// Ptr is an opaque pointer-sized argument, passed through unchanged.
type Ptr Addr

// Kind implements Arg.
func (Ptr) Kind() ParamKind { return ParamPtr }

func (v Ptr) lower(*Arena) (Slot, error) { return Slot(v), nil }

// encode lowers args into slots. Text buffers are allocated in a; the caller
// owns releasing them.
func encode(a *Arena, s *Snippet, args []Arg) ([]Slot, error) {
	if len(args) != len(s.params) {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(s.name).
			Detail("got %d arguments, snippet takes %d", len(args), len(s.params)).
			Build()
	}
	slots := make([]Slot, len(args))
	for i, arg := range args {
		if arg.Kind() != s.params[i] {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(s.name, "$"+strconv.Itoa(i)).
				Detail("argument is %s, parameter is %s", arg.Kind(), s.params[i]).
				Build()
		}
		slot, err := arg.lower(a)
		if err != nil {
			var e *errors.Error
			if stderrors.As(err, &e) && len(e.Path) == 0 {
				e.Path = []string{s.name, "$" + strconv.Itoa(i)}
			}
			return nil, err
		}
		slots[i] = slot
	}
	return slots, nil
}
