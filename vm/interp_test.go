package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertexdlt/wasmvm/wasm"
)

// buildModule assembles a minimal *wasm.Module from a single function
// with the given signature and body, exported under "main".
func buildModule(params, results []wasm.ValueType, locals []wasm.ValueType, body wasm.Expr) *wasm.Module {
	return &wasm.Module{
		TypeSec: []wasm.FuncType{{Params: params, Results: results}},
		FuncSec: []wasm.TypeIdx{0},
		CodeSec: []wasm.Code{{Locals: locals, Body: body}},
		ExportSec: []wasm.Export{
			{Name: "main", Desc: wasm.ExportDesc{Kind: wasm.ExternalFunc, Idx: 0}},
		},
		Funcs: []wasm.Func{{TypeIdx: 0, Locals: locals, Body: body}},
	}
}

func i32Const(v int32) wasm.Instruction { return wasm.Instruction{Opcode: wasm.OpI32Const, I32Value: v} }

func i32Add() wasm.Instruction {
	return wasm.Instruction{Opcode: 0x6A, BinOp: wasm.IAdd}
}

func localGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, LocalIdx: wasm.LocalIdx(i)}
}

func localSet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, LocalIdx: wasm.LocalIdx(i)}
}

func localTee(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalTee, LocalIdx: wasm.LocalIdx(i)}
}

func i32ValType() *wasm.ValueType {
	v := wasm.ValueTypeI32
	return &v
}

func TestConstAdd(t *testing.T) {
	body := wasm.Expr{i32Const(1), i32Const(2), i32Add()}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(3), results[0].I32)
}

func TestArgsAdd(t *testing.T) {
	body := wasm.Expr{localGet(0), localGet(1), i32Add()}
	m := buildModule([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", []Value{NewI32(4), NewI32(7)})
	require.NoError(t, err)
	assert.Equal(t, int32(11), results[0].I32)
}

func TestBlock(t *testing.T) {
	inner := wasm.Expr{i32Const(12), i32Const(23), i32Add()}
	block := wasm.Instruction{Opcode: wasm.OpBlock, BlockType: wasm.BlockType{ValType: i32ValType()}, Body: inner}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, wasm.Expr{block})

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(35), results[0].I32)
}

// TestCountedLoop sums 1..n via a Loop with BrIf, matching the literal
// "counted loop" scenario: locals are [n, sum, i].
func TestCountedLoop(t *testing.T) {
	const (
		localN   = 0
		localSum = 1
		localI   = 2
	)
	loopBody := wasm.Expr{
		localGet(localI),
		i32Const(1),
		i32Add(),
		localTee(localI),
		localGet(localSum),
		i32Add(),
		localSet(localSum),
		localGet(localI),
		localGet(localN),
		wasm.Instruction{Opcode: 0x49, RelOp: wasm.ILtU}, // i32.lt_u
		wasm.Instruction{Opcode: wasm.OpBrIf, LabelIdx: 0},
	}
	loop := wasm.Instruction{Opcode: wasm.OpLoop, BlockType: wasm.BlockType{}, Body: loopBody}
	body := wasm.Expr{loop, localGet(localSum)}

	m := buildModule([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32},
		[]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", []Value{NewI32(10)})
	require.NoError(t, err)
	assert.Equal(t, int32(55), results[0].I32)
}

func TestIfElse(t *testing.T) {
	ifInstr := wasm.Instruction{
		Opcode:    wasm.OpIf,
		BlockType: wasm.BlockType{ValType: i32ValType()},
		Body:      wasm.Expr{i32Const(42)},
		Else:      wasm.Expr{i32Const(24)},
	}
	body := wasm.Expr{localGet(0), ifInstr}
	m := buildModule([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", []Value{NewI32(1)})
	require.NoError(t, err)
	assert.Equal(t, int32(42), results[0].I32)

	results, err = store.Invoke("main", []Value{NewI32(0)})
	require.NoError(t, err)
	assert.Equal(t, int32(24), results[0].I32)
}

func TestBranchOutOfNestedBlock(t *testing.T) {
	innerIf := wasm.Instruction{
		Opcode:    wasm.OpIf,
		BlockType: wasm.BlockType{ValType: i32ValType()},
		Body:      wasm.Expr{i32Const(12), wasm.Instruction{Opcode: wasm.OpBr, LabelIdx: 1}},
		Else:      wasm.Expr{i32Const(12)},
	}
	outerBody := wasm.Expr{
		i32Const(1),
		innerIf,
		i32Const(42),
		i32Add(),
	}
	block := wasm.Instruction{Opcode: wasm.OpBlock, BlockType: wasm.BlockType{ValType: i32ValType()}, Body: outerBody}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, wasm.Expr{block})

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(12), results[0].I32)
}

// TestRecursiveFibonacci computes fib(n) through a self-call, exercising
// the Call path's argument/result stack convention.
func TestRecursiveFibonacci(t *testing.T) {
	const localN = 0
	callSelf := wasm.Instruction{Opcode: wasm.OpCall, FuncIdx: 0}
	i32Sub := wasm.Instruction{Opcode: 0x6B, BinOp: wasm.ISub}

	elseBody := wasm.Expr{
		localGet(localN), i32Const(1), i32Sub, callSelf,
		localGet(localN), i32Const(2), i32Sub, callSelf,
		i32Add(),
	}

	body := wasm.Expr{
		localGet(localN),
		i32Const(2),
		wasm.Instruction{Opcode: 0x49, RelOp: wasm.ILtU}, // i32.lt_u: n < 2
		wasm.Instruction{
			Opcode:    wasm.OpIf,
			BlockType: wasm.BlockType{ValType: i32ValType()},
			Body:      wasm.Expr{localGet(localN)},
			Else:      elseBody,
		},
	}

	m := buildModule([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", []Value{NewI32(10)})
	require.NoError(t, err)
	assert.Equal(t, int32(55), results[0].I32)
}

func TestDivisionByZeroTraps(t *testing.T) {
	body := wasm.Expr{i32Const(1), i32Const(0), wasm.Instruction{Opcode: 0x6D, BinOp: wasm.IDivS}}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	_, err = store.Invoke("main", nil)
	assert.ErrorIs(t, err, ErrIntegerDivisionByZero)
}

func TestSignedDivisionOverflowTraps(t *testing.T) {
	body := wasm.Expr{
		i32Const(math.MinInt32),
		i32Const(-1),
		wasm.Instruction{Opcode: 0x6D, BinOp: wasm.IDivS},
	}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	_, err = store.Invoke("main", nil)
	assert.ErrorIs(t, err, ErrIntegerOverflow)
}

func TestWrappingAdd(t *testing.T) {
	body := wasm.Expr{i32Const(math.MaxInt32), i32Const(1), i32Add()}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), results[0].I32)
}

func TestUnreachableTraps(t *testing.T) {
	body := wasm.Expr{{Opcode: wasm.OpUnreachable}}
	m := buildModule(nil, nil, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	_, err = store.Invoke("main", nil)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func f32Const(v float32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF32Const, F32Value: v}
}

func f64Const(v float64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF64Const, F64Value: v}
}

func TestTruncF32ToI32(t *testing.T) {
	body := wasm.Expr{f32Const(41.9), {Opcode: wasm.OpI32TruncF32S}}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(41), results[0].I32)
}

func TestTruncF64ToI64(t *testing.T) {
	body := wasm.Expr{f64Const(-12.7), {Opcode: wasm.OpI64TruncF64S}}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI64}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	results, err := store.Invoke("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-12), results[0].I64)
}

func TestTruncNaNTraps(t *testing.T) {
	body := wasm.Expr{f32Const(float32(math.NaN())), {Opcode: wasm.OpI32TruncF32S}}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	_, err = store.Invoke("main", nil)
	assert.ErrorIs(t, err, ErrInvalidConversion)
}

func TestTruncOutOfRangeTraps(t *testing.T) {
	body := wasm.Expr{f64Const(1e20), {Opcode: wasm.OpI32TruncF64S}}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body)

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	_, err = store.Invoke("main", nil)
	assert.ErrorIs(t, err, ErrIntegerOverflow)
}

func TestWrongArgCount(t *testing.T) {
	m := buildModule([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}, nil,
		wasm.Expr{localGet(0)})

	store := NewStore()
	_, err := store.Instantiate(m)
	require.NoError(t, err)

	_, err = store.Invoke("main", nil)
	assert.ErrorIs(t, err, ErrWrongNumberOfArgs)
}
