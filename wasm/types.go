// Package wasm decodes the Wasm 1.0 binary module format: value/function/
// limit types, a recursive instruction reader, the 13-kind section
// framing protocol, and top-level module assembly.
package wasm

import "fmt"

// ValueType is the one-byte tag disambiguating num/vec/ref types. A
// single byte-valued type covers all three families here: the binary
// encoding already is the discriminant.
type ValueType byte

// Canonical value type encodings.
const (
	ValueTypeI32       ValueType = 0x7F
	ValueTypeI64       ValueType = 0x7E
	ValueTypeF32       ValueType = 0x7D
	ValueTypeF64       ValueType = 0x7C
	ValueTypeV128      ValueType = 0x7B
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6F
)

// IsNum reports whether v is one of the I32/I64/F32/F64 number types.
func (v ValueType) IsNum() bool {
	switch v {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	}
	return false
}

// IsRef reports whether v is Funcref or Externref.
func (v ValueType) IsRef() bool {
	return v == ValueTypeFuncref || v == ValueTypeExternref
}

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	default:
		return fmt.Sprintf("valuetype(0x%02x)", byte(v))
	}
}

func valueTypeFromByte(b byte) (ValueType, error) {
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64,
		ValueTypeV128, ValueTypeFuncref, ValueTypeExternref:
		return ValueType(b), nil
	}
	return 0, fmt.Errorf("wasm: invalid value type byte 0x%02x", b)
}

func refTypeFromByte(b byte) (ValueType, error) {
	switch ValueType(b) {
	case ValueTypeFuncref, ValueTypeExternref:
		return ValueType(b), nil
	}
	return 0, fmt.Errorf("wasm: invalid reference type byte 0x%02x", b)
}

// FuncType is an ordered parameter list and an ordered result list.
// Equality is structural.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports structural equality of two function types.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Limits is a min/optional-max pair.
type Limits struct {
	Min uint32
	Max uint32
	HasMax bool
}

// MemType is the type of a linear memory: just Limits, counted in pages.
type MemType = Limits

// TableType is a table's element type plus its size limits.
type TableType struct {
	Limits  Limits
	ElemRef ValueType
}

// GlobalType is a global's value type plus its mutability flag.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Index categories. Each is a distinct named type rather than a single
// generic index type so a FuncIdx can never be passed where a TypeIdx is
// expected without an explicit conversion.
type (
	TypeIdx   uint32
	FuncIdx   uint32
	TableIdx  uint32
	MemIdx    uint32
	GlobalIdx uint32
	ElemIdx   uint32
	DataIdx   uint32
	LocalIdx  uint32
	LabelIdx  uint32
)

// Import external kinds.
const (
	ExternalFunc   byte = 0x00
	ExternalTable  byte = 0x01
	ExternalMemory byte = 0x02
	ExternalGlobal byte = 0x03
)

// ImportDesc is the tagged payload of an Import: exactly one of the
// Func/Table/Mem/Global fields is meaningful, selected by Kind.
type ImportDesc struct {
	Kind   byte
	Func   TypeIdx
	Table  TableType
	Mem    MemType
	Global GlobalType
}

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ExportDesc names the kind and index of one exported entity.
type ExportDesc struct {
	Kind byte
	Idx  uint32
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Desc ExportDesc
}

// Global is a global's declared type and constant initializer expression.
type Global struct {
	Type GlobalType
	Init Expr
}

// ElementMode classifies how an element segment initializes a table:
// eagerly at instantiation (active), not at all until explicitly used
// (passive), or never, existing only for validation (declarative).
type ElementMode int

const (
	ElementActive ElementMode = iota
	ElementPassive
	ElementDeclarative
)

// Element is one entry of the element section: a reference type, a
// sequence of initializer expressions, and a mode.
type Element struct {
	RefType  ValueType
	Init     []Expr
	Mode     ElementMode
	TableIdx TableIdx // only meaningful when Mode == ElementActive
	Offset   Expr      // only meaningful when Mode == ElementActive
}

// DataMode classifies how a data segment initializes linear memory.
type DataMode int

const (
	DataActive DataMode = iota
	DataPassive
)

// Data is one entry of the data section.
type Data struct {
	Mode   DataMode
	MemIdx MemIdx
	Offset Expr
	Init   []byte
}

// Func is an assembled function: its declared type index, its locals
// (flattened from the code section's run-length encoding), and its body.
type Func struct {
	TypeIdx TypeIdx
	Locals  []ValueType
	Body    Expr
	Name    string
}
