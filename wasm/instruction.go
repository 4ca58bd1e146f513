package wasm

import (
	"fmt"

	"github.com/vertexdlt/wasmvm/leb128"
)

// BlockType is the result signature of a Block/Loop/If: either a single
// optional value type, or a type index into the module's type section
// for a full function signature.
type BlockType struct {
	// ValType is set when the block returns zero or one value directly.
	// A nil ValType together with IsTypeIdx false means the block
	// returns nothing (the 0x40 empty encoding).
	ValType    *ValueType
	TypeIdx    TypeIdx
	IsTypeIdx  bool
}

// Expr is an ordered instruction sequence.
type Expr []Instruction

// MemArg is the alignment hint and static offset immediate carried by
// every memory load/store instruction.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Instruction is one decoded instruction. Rather than one Go type per Wasm
// opcode, a single flattened struct is used and Opcode selects which
// fields are meaningful — idiomatic for a decoder that immediately
// interprets the tree rather than pattern-matching it through an
// exhaustive type switch at every call site.
type Instruction struct {
	Opcode Opcode

	// Block / Loop / If
	BlockType BlockType
	Body      Expr
	Else      Expr

	// Br / BrIf / BrTable
	LabelIdx   LabelIdx
	LabelIdxs  []LabelIdx
	DefaultIdx LabelIdx

	// Call / CallIndirect
	FuncIdx  FuncIdx
	TypeIdx  TypeIdx
	TableIdx TableIdx

	// Local / global access
	LocalIdx  LocalIdx
	GlobalIdx GlobalIdx

	// SelectT
	SelectTypes []ValueType

	// RefNull
	RefType ValueType

	// Memory load/store, and the MemArg carried by MemoryInit etc.
	MemArg MemArg

	// MemoryInit / DataDrop
	DataIdx DataIdx
	// bulk-memory / table sub-opcode, for TableOp
	TableSub     uint32
	TableImmA    uint32
	TableImmB    uint32
	HasTableImmB bool

	// numeric constants
	I32Value int32
	I64Value int64
	F32Value float32
	F64Value float64

	// normalized integer arithmetic
	Bits  int // 32 or 64
	UnOp  IUnOp
	BinOp IBinOp
	RelOp IRelOp

	// Numeric carries the raw opcode for an opaque numeric placeholder
	// (float arithmetic, conversions): decode fidelity is preserved but
	// execution of these is not implemented.
	Numeric Opcode

	// Vector carries the prefixed opcode (see PrefixedOpcode) of a
	// decoded-but-unexecuted SIMD instruction (0xFD prefix).
	Vector Opcode
}

func readBlockType(r *leb128.Reader) (BlockType, error) {
	b, err := r.PeekByte()
	if err != nil {
		return BlockType{}, err
	}
	if vt, err := valueTypeFromByte(b); err == nil {
		r.ReadByte() // nolint:errcheck — byte already peeked successfully
		return BlockType{ValType: &vt}, nil
	}
	if b == 0x40 {
		r.ReadByte() // nolint:errcheck
		return BlockType{}, nil
	}
	idx, err := r.ReadSigned(33)
	if err != nil {
		return BlockType{}, err
	}
	if idx < 0 {
		return BlockType{}, fmt.Errorf("wasm: negative block type index %d", idx)
	}
	return BlockType{TypeIdx: TypeIdx(idx), IsTypeIdx: true}, nil
}

// readInstructions decodes instructions until it consumes a top-level
// 0x0B (end) terminator. It returns the body and, because `if` permits
// an `else` clause that itself ends at another 0x0B, whether the
// terminator that stopped decoding was an `else` byte.
func readInstructions(r *leb128.Reader) (Expr, bool, error) {
	var body Expr
	for {
		isEnd, err := r.PeekAndConsumeIf(byte(OpEnd))
		if err != nil {
			return nil, false, err
		}
		if isEnd {
			return body, false, nil
		}
		isElse, err := r.PeekAndConsumeIf(byte(OpElse))
		if err != nil {
			return nil, false, err
		}
		if isElse {
			return body, true, nil
		}
		instr, err := readInstruction(r)
		if err != nil {
			return nil, false, err
		}
		body = append(body, instr)
	}
}

func readLabelIdx(r *leb128.Reader) (LabelIdx, error) {
	v, err := r.ReadUint32()
	return LabelIdx(v), err
}

func readMemArg(r *leb128.Reader) (MemArg, error) {
	align, err := r.ReadUint32()
	if err != nil {
		return MemArg{}, err
	}
	offset, err := r.ReadUint32()
	if err != nil {
		return MemArg{}, err
	}
	return MemArg{Align: align, Offset: offset}, nil
}

func expectReservedZero(r *leb128.Reader) error {
	return r.ExpectByte(0x00)
}

// readInstruction decodes a single instruction, recursing into nested
// bodies for Block/Loop/If.
func readInstruction(r *leb128.Reader) (Instruction, error) {
	opByte, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(opByte)

	switch op {
	case OpUnreachable, OpNop, OpReturn, OpDrop, OpSelect, OpRefIsNull:
		return Instruction{Opcode: op}, nil

	case OpBlock, OpLoop:
		bt, err := readBlockType(r)
		if err != nil {
			return Instruction{}, err
		}
		body, _, err := readInstructions(r)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, BlockType: bt, Body: body}, nil

	case OpIf:
		bt, err := readBlockType(r)
		if err != nil {
			return Instruction{}, err
		}
		then, hasElse, err := readInstructions(r)
		if err != nil {
			return Instruction{}, err
		}
		var elseBody Expr
		if hasElse {
			elseBody, _, err = readInstructions(r)
			if err != nil {
				return Instruction{}, err
			}
		}
		return Instruction{Opcode: op, BlockType: bt, Body: then, Else: elseBody}, nil

	case OpBr, OpBrIf:
		idx, err := readLabelIdx(r)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, LabelIdx: idx}, nil

	case OpBrTable:
		n, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		idxs := make([]LabelIdx, n)
		for i := range idxs {
			idxs[i], err = readLabelIdx(r)
			if err != nil {
				return Instruction{}, err
			}
		}
		def, err := readLabelIdx(r)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, LabelIdxs: idxs, DefaultIdx: def}, nil

	case OpCall:
		idx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, FuncIdx: FuncIdx(idx)}, nil

	case OpCallIndirect:
		typeIdx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		tableIdx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, TypeIdx: TypeIdx(typeIdx), TableIdx: TableIdx(tableIdx)}, nil

	case OpRefNull:
		b, err := r.ReadByte()
		if err != nil {
			return Instruction{}, err
		}
		rt, err := refTypeFromByte(b)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, RefType: rt}, nil

	case OpRefFunc:
		idx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, FuncIdx: FuncIdx(idx)}, nil

	case OpSelectT:
		n, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		types := make([]ValueType, n)
		for i := range types {
			b, err := r.ReadByte()
			if err != nil {
				return Instruction{}, err
			}
			types[i], err = valueTypeFromByte(b)
			if err != nil {
				return Instruction{}, err
			}
		}
		return Instruction{Opcode: op, SelectTypes: types}, nil

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, LocalIdx: LocalIdx(idx)}, nil

	case OpGlobalGet, OpGlobalSet:
		idx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, GlobalIdx: GlobalIdx(idx)}, nil

	case OpMemorySize, OpMemoryGrow:
		if err := expectReservedZero(r); err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op}, nil

	case OpI32Const:
		v, err := r.ReadSigned(32)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, I32Value: int32(v)}, nil

	case OpI64Const:
		v, err := r.ReadSigned(64)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, I64Value: v}, nil

	case OpF32Const:
		b, err := r.ReadBytes(4)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, F32Value: decodeFloat32(b)}, nil

	case OpF64Const:
		b, err := r.ReadBytes(8)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, F64Value: decodeFloat64(b)}, nil

	case OpI32Eqz, OpI64Eqz:
		return Instruction{Opcode: op}, nil

	case OpI32Extend8S, OpI32Extend16S, OpI64Extend8S, OpI64Extend16S, OpI64Extend32S:
		return Instruction{Opcode: op}, nil

	case OpI32TruncF32S, OpI32TruncF32U, OpI32TruncF64S, OpI32TruncF64U,
		OpI64TruncF32S, OpI64TruncF32U, OpI64TruncF64S, OpI64TruncF64U:
		return Instruction{Opcode: op}, nil

	case Opcode(PrefixBulkMemory):
		return readBulkMemoryInstruction(r)

	case Opcode(PrefixVector):
		return readVectorInstruction(r)
	}

	if op.IsMemoryAccess() {
		ma, err := readMemArg(r)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, MemArg: ma}, nil
	}

	if kind, ok := op.I32RelOp(); ok {
		return Instruction{Opcode: op, Bits: 32, RelOp: kind}, nil
	}
	if kind, ok := op.I32UnOp(); ok {
		return Instruction{Opcode: op, Bits: 32, UnOp: kind}, nil
	}
	if kind, ok := op.I32BinOp(); ok {
		return Instruction{Opcode: op, Bits: 32, BinOp: kind}, nil
	}
	if kind, ok := op.I64RelOp(); ok {
		return Instruction{Opcode: op, Bits: 64, RelOp: kind}, nil
	}
	if kind, ok := op.I64UnOp(); ok {
		return Instruction{Opcode: op, Bits: 64, UnOp: kind}, nil
	}
	if kind, ok := op.I64BinOp(); ok {
		return Instruction{Opcode: op, Bits: 64, BinOp: kind}, nil
	}
	if op.IsNumericPlaceholder() {
		return Instruction{Opcode: op, Numeric: op}, nil
	}

	return Instruction{}, fmt.Errorf("wasm: unknown opcode 0x%02x", opByte)
}

// readBulkMemoryInstruction decodes the 0xFC-prefixed sub-opcodes: numeric
// conversions (0..7, no immediate — decode fidelity only),
// memory.init/data.drop/memory.copy/memory.fill (8..11), and the table
// sub-opcodes (12..17, parsed but categorized as table instructions).
func readBulkMemoryInstruction(r *leb128.Reader) (Instruction, error) {
	sub, err := r.ReadUint32()
	if err != nil {
		return Instruction{}, err
	}
	op := PrefixedOpcode(PrefixBulkMemory, sub)

	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		return Instruction{Opcode: op, Numeric: op}, nil
	case 8: // memory.init dataidx, reserved memidx
		idx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		if err := expectReservedZero(r); err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, DataIdx: DataIdx(idx)}, nil
	case 9: // data.drop dataidx
		idx, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, DataIdx: DataIdx(idx)}, nil
	case 10: // memory.copy reserved, reserved
		if err := expectReservedZero(r); err != nil {
			return Instruction{}, err
		}
		if err := expectReservedZero(r); err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op}, nil
	case 11: // memory.fill reserved
		if err := expectReservedZero(r); err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op}, nil
	case 12, 14: // table.init elemidx tableidx / table.copy tableidx tableidx
		a, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		b, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, TableSub: sub, TableImmA: a, TableImmB: b, HasTableImmB: true}, nil
	case 13, 15, 16, 17: // elem.drop / table.grow / table.size / table.fill
		a, err := r.ReadUint32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, TableSub: sub, TableImmA: a}, nil
	default:
		return Instruction{}, fmt.Errorf("wasm: invalid bulk-memory/table sub-opcode %d", sub)
	}
}

// readVectorInstruction decodes a 0xFD-prefixed SIMD instruction far
// enough to preserve the exact immediate bytes; execution of vector
// instructions is not implemented.
func readVectorInstruction(r *leb128.Reader) (Instruction, error) {
	sub, err := r.ReadUint32()
	if err != nil {
		return Instruction{}, err
	}
	op := PrefixedOpcode(PrefixVector, sub)

	switch {
	case sub == 12 || sub == 13: // v128.const literal / i8x16.shuffle lane indices: 16 bytes
		if _, err := r.ReadBytes(16); err != nil {
			return Instruction{}, err
		}
	case sub <= 11 || (sub >= 84 && sub <= 93): // loads/stores, lane loads/stores, load_zero
		if _, err := readMemArg(r); err != nil {
			return Instruction{}, err
		}
		if sub >= 84 && sub <= 91 {
			if _, err := r.ReadUint32(); err != nil {
				return Instruction{}, err
			}
		}
	case sub >= 21 && sub <= 34: // lane-indexed extract/replace ops
		if _, err := r.ReadUint32(); err != nil {
			return Instruction{}, err
		}
	}
	return Instruction{Opcode: op, Vector: op}, nil
}
