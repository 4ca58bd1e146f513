package vm

import "github.com/vertexdlt/wasmvm/wasm"

// Frame holds the locals of one function activation. Locals are
// addressable by LocalIdx and can be read, written, or "teed" (written
// and also left on the stack).
type Frame struct {
	locals []Value
}

// NewFrame builds a frame from a function's argument values followed by
// its declared (zero-initialized) locals, in declaration order.
func NewFrame(args []Value, declaredLocals []wasm.ValueType) *Frame {
	locals := make([]Value, 0, len(args)+len(declaredLocals))
	locals = append(locals, args...)
	for _, vt := range declaredLocals {
		locals = append(locals, zeroValue(vt))
	}
	return &Frame{locals: locals}
}

// GetLocal returns a copy of the value at idx.
func (f *Frame) GetLocal(idx wasm.LocalIdx) (Value, error) {
	if int(idx) >= len(f.locals) {
		return Value{}, NewExecError("local index out of range")
	}
	return f.locals[idx], nil
}

// SetLocal writes value at idx, growing the locals vector with zeroed
// I32 padding if idx falls beyond its current length.
func (f *Frame) SetLocal(idx wasm.LocalIdx, value Value) {
	if int(idx) >= len(f.locals) {
		grown := make([]Value, int(idx)+1)
		copy(grown, f.locals)
		for i := len(f.locals); i < len(grown); i++ {
			grown[i] = NewI32(0)
		}
		f.locals = grown
	}
	f.locals[idx] = value
}
