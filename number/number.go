// Package number supplies the integer/float width and conversion helpers
// the interpreter needs for min/max clamping and truncating float-to-int
// conversions, independent of where in the VM a value currently lives.
package number

import (
	"math"

	"github.com/chewxy/math32"
)

// Type tags the numeric kinds a conversion can name as a source or
// destination: the four Wasm number types plus the two unsigned views of
// the integer types (the
// VM itself only carries signed i32/i64, but conversions must reason
// about the unsigned interpretation of the same bits).
type Type int

const (
	I32 Type = iota
	I64
	U32
	U64
	F32
	F64
)

// TrapCode classifies why a float-to-int truncation failed.
type TrapCode int

const (
	NoTrap TrapCode = iota
	NanTrap
	ConvertTrap
)

// Min returns the minimum representable value of t, reinterpreted as its
// raw bit pattern in a uint64.
func Min(t Type) uint64 {
	switch t {
	case I32:
		return uint64(uint32(int32(math.MinInt32)))
	case I64:
		return uint64(int64(math.MinInt64))
	case U32, U64:
		return 0
	}
	panic("number: invalid type")
}

// Max returns the maximum representable value of t.
func Max(t Type) uint64 {
	switch t {
	case I32:
		return uint64(math.MaxInt32)
	case I64:
		return uint64(math.MaxInt64)
	case U32:
		return uint64(math.MaxUint32)
	case U64:
		return math.MaxUint64
	}
	panic("number: invalid type")
}

// CanTruncate reports whether value (a float32 or float64, per from) lies
// within the representable range of to, ignoring NaN (callers must check
// NaN separately since it compares false against any range).
func CanTruncate(from, to Type, value interface{}) bool {
	switch {
	case from == F32 && to == I32:
		v := value.(float32)
		return v >= float32(math.MinInt32) && v < float32(math.MaxInt32)+1
	case from == F64 && to == I32:
		v := value.(float64)
		return v > math.MinInt32-1 && v < math.MaxInt32+1
	case from == F32 && to == U32:
		v := value.(float32)
		return v > -1 && v < float32(math.MaxUint32)+1
	case from == F64 && to == U32:
		v := value.(float64)
		return v > -1 && v < math.MaxUint32+1
	case from == F32 && to == I64:
		v := value.(float32)
		return v >= float32(math.MinInt64) && v < float32(math.MaxInt64)+1
	case from == F64 && to == I64:
		v := value.(float64)
		return v >= math.MinInt64 && v < math.MaxInt64+1
	case from == F32 && to == U64:
		v := value.(float32)
		return v > -1 && v < float32(math.MaxUint64)+1
	case from == F64 && to == U64:
		v := value.(float64)
		return v > -1 && v < math.MaxUint64+1
	}
	panic("number: invalid conversion types")
}

// FloatTruncate truncates the float represented by floatBits toward zero
// into the integer type to, returning the appropriate TrapCode when the
// value is NaN or out of range instead of performing the conversion.
func FloatTruncate(from, to Type, floatBits uint64) (uint64, TrapCode) {
	switch from {
	case F32:
		f := math32.Float32frombits(uint32(floatBits))
		if math32.IsNaN(f) {
			return 0, NanTrap
		}
		if !CanTruncate(from, to, f) {
			if math32.Signbit(f) {
				return Min(to), ConvertTrap
			}
			return Max(to), ConvertTrap
		}
		return truncateTo(to, float64(f)), NoTrap
	case F64:
		f := math.Float64frombits(floatBits)
		if math.IsNaN(f) {
			return 0, NanTrap
		}
		if !CanTruncate(from, to, f) {
			if math.Signbit(f) {
				return Min(to), ConvertTrap
			}
			return Max(to), ConvertTrap
		}
		return truncateTo(to, f), NoTrap
	}
	panic("number: from must be a float type")
}

func truncateTo(to Type, f float64) uint64 {
	switch to {
	case I32:
		return uint64(uint32(int32(f)))
	case I64:
		return uint64(int64(f))
	case U32:
		return uint64(uint32(f))
	case U64:
		return uint64(f)
	}
	panic("number: to must be an integer type")
}
