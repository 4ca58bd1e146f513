package vm

import (
	"fmt"

	"github.com/vertexdlt/wasmvm/wasm"
)

// Label is a runtime record of a structured control construct: the
// number of values its body leaves behind on normal exit, and the
// instruction list of the construct it guards. A branch targeting it
// continues after the construct for Block/If and re-enters the body for
// Loop; runBlockBody resolves that without reading body.
type Label struct {
	arity int
	body  wasm.Expr
}

// stackEntryKind distinguishes the two kinds of entry the stack holds.
// Frames are not pushed onto Stack: each call to executeFunc owns its
// own Frame and its own Stack, so there is no frame entry kind here
// (unlike a byte-offset interpreter sharing one stack across calls).
type stackEntryKind int

const (
	entryValue stackEntryKind = iota
	entryLabel
)

type stackEntry struct {
	kind  stackEntryKind
	value Value
	label Label
}

// Stack is a LIFO of Value and Label entries. The top is the most
// recently pushed entry.
type Stack struct {
	entries []stackEntry
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

func (s *Stack) push(e stackEntry) {
	s.entries = append(s.entries, e)
}

func (s *Stack) pop() (stackEntry, bool) {
	if len(s.entries) == 0 {
		return stackEntry{}, false
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// PushValue pushes a Value entry.
func (s *Stack) PushValue(v Value) {
	s.push(stackEntry{kind: entryValue, value: v})
}

// PushI32 pushes an I32 value.
func (s *Stack) PushI32(v int32) { s.PushValue(NewI32(v)) }

// PushI64 pushes an I64 value.
func (s *Stack) PushI64(v int64) { s.PushValue(NewI64(v)) }

// PopValue pops the top entry, failing if it is not a Value.
func (s *Stack) PopValue() (Value, error) {
	e, ok := s.pop()
	if !ok {
		return Value{}, ErrStackUnderflow
	}
	if e.kind != entryValue {
		return Value{}, NewExecError("expected value on stack, found label")
	}
	return e.value, nil
}

// PopAndCheckValue pops one value and fails unless it has type ty.
func (s *Stack) PopAndCheckValue(ty wasm.ValueType) (Value, error) {
	v, err := s.PopValue()
	if err != nil {
		return Value{}, err
	}
	if v.Type != ty {
		return Value{}, fmt.Errorf("vm: popped value of type %s, expected %s", v.Type, ty)
	}
	return v, nil
}

// PopAndCheckValues pops len(types) values in the order given — the top
// of stack corresponds to types[0] — and returns them in that same
// order. Used to gather block results and function return values, which
// must not be silently reversed.
func (s *Stack) PopAndCheckValues(types []wasm.ValueType) ([]Value, error) {
	values := make([]Value, len(types))
	for i, ty := range types {
		v, err := s.PopAndCheckValue(ty)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// PopI32 pops the top entry, failing unless it is an I32 value.
func (s *Stack) PopI32() (int32, error) {
	v, err := s.PopValue()
	if err != nil {
		return 0, err
	}
	if v.Type != wasm.ValueTypeI32 {
		return 0, fmt.Errorf("vm: expected i32 on stack, found %s", v.Type)
	}
	return v.I32, nil
}

// PushLabel pushes a Label entry.
func (s *Stack) PushLabel(l Label) {
	s.push(stackEntry{kind: entryLabel, label: l})
}

// PopLabel pops the top entry, failing if it is not a Label.
func (s *Stack) PopLabel() (Label, error) {
	e, ok := s.pop()
	if !ok {
		return Label{}, ErrStackUnderflow
	}
	if e.kind != entryLabel {
		return Label{}, NewExecError("expected label on stack, found value")
	}
	return e.label, nil
}

// IsEmpty reports whether the stack holds no entries, the post-call
// invariant execute checks after every top-level invocation.
func (s *Stack) IsEmpty() bool {
	return len(s.entries) == 0
}
