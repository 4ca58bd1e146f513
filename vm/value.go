package vm

import (
	"fmt"

	"github.com/vertexdlt/wasmvm/wasm"
)

// Value is a tagged union over the four numeric types the interpreter
// operates on. Only the field matching Type is meaningful.
type Value struct {
	Type wasm.ValueType
	I32  int32
	I64  int64
	F32  float32
	F64  float64
}

// NewI32 wraps v as an I32 value.
func NewI32(v int32) Value { return Value{Type: wasm.ValueTypeI32, I32: v} }

// NewI64 wraps v as an I64 value.
func NewI64(v int64) Value { return Value{Type: wasm.ValueTypeI64, I64: v} }

// NewF32 wraps v as an F32 value.
func NewF32(v float32) Value { return Value{Type: wasm.ValueTypeF32, F32: v} }

// NewF64 wraps v as an F64 value.
func NewF64(v float64) Value { return Value{Type: wasm.ValueTypeF64, F64: v} }

// Equal compares two values by variant and payload.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case wasm.ValueTypeI32:
		return v.I32 == o.I32
	case wasm.ValueTypeI64:
		return v.I64 == o.I64
	case wasm.ValueTypeF32:
		return v.F32 == o.F32
	case wasm.ValueTypeF64:
		return v.F64 == o.F64
	}
	return false
}

func (v Value) String() string {
	switch v.Type {
	case wasm.ValueTypeI32:
		return fmt.Sprintf("i32:%d", v.I32)
	case wasm.ValueTypeI64:
		return fmt.Sprintf("i64:%d", v.I64)
	case wasm.ValueTypeF32:
		return fmt.Sprintf("f32:%g", v.F32)
	case wasm.ValueTypeF64:
		return fmt.Sprintf("f64:%g", v.F64)
	default:
		return fmt.Sprintf("value(type 0x%02x)", byte(v.Type))
	}
}

// zeroValue returns the default-initialized Value for a declared local's
// value type, used by NewFrame to seed the locals a function declares
// beyond its parameters (SetLocal pads with I32 zero instead).
func zeroValue(vt wasm.ValueType) Value {
	switch vt {
	case wasm.ValueTypeI32:
		return NewI32(0)
	case wasm.ValueTypeI64:
		return NewI64(0)
	case wasm.ValueTypeF32:
		return NewF32(0)
	case wasm.ValueTypeF64:
		return NewF64(0)
	default:
		return NewI32(0)
	}
}
