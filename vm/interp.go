package vm

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/sirupsen/logrus"
	"github.com/vertexdlt/wasmvm/number"
	"github.com/vertexdlt/wasmvm/wasm"
)

// outcomeKind distinguishes the three ways executeLabel can return to its
// caller: falling off the end, branching to an enclosing label, or
// returning from the enclosing function.
type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeBranch
	outcomeReturn
)

type outcome struct {
	kind  outcomeKind
	depth uint32 // meaningful only when kind == outcomeBranch
}

var continueOutcome = outcome{kind: outcomeContinue}
var returnOutcome = outcome{kind: outcomeReturn}

func branchOutcome(depth uint32) outcome {
	return outcome{kind: outcomeBranch, depth: depth}
}

// interpreter runs one top-level invocation: each executeFunc call it
// makes creates its own Stack, and it charges gas against the enclosing
// Store's policy as it dispatches instructions. It is discarded once the
// call returns.
type interpreter struct {
	store *Store
	gas   *Gas
}

// executeFunc runs the function at store address funcAddr with args
// already arity/type-checked by the caller, and returns its result
// values in declaration order.
func (in *interpreter) executeFunc(funcAddr int, args []Value) ([]Value, error) {
	fi := in.store.funcs[funcAddr]
	frame := NewFrame(args, fi.Func.Locals)
	stack := NewStack()

	out, err := in.executeLabel(stack, frame, fi.Func.Body)
	if err != nil {
		return nil, err
	}
	if out.kind == outcomeBranch {
		return nil, NewExecError("branch escaped function body")
	}

	results, err := stack.PopAndCheckValues(fi.Type.Results)
	if err != nil {
		return nil, err
	}
	if !stack.IsEmpty() {
		return nil, ErrStackNotEmpty
	}
	return results, nil
}

// blockArity resolves a BlockType to the number of result values its body
// leaves on the stack on normal completion.
func (in *interpreter) blockArity(bt wasm.BlockType) (int, []wasm.ValueType, error) {
	if !bt.IsTypeIdx {
		if bt.ValType == nil {
			return 0, nil, nil
		}
		return 1, []wasm.ValueType{*bt.ValType}, nil
	}
	if in.store.module == nil || int(bt.TypeIdx) >= len(in.store.module.types) {
		return 0, nil, ErrInvalidBlockType
	}
	results := in.store.module.types[bt.TypeIdx].Results
	return len(results), results, nil
}

// runBlockBody executes one Block/Loop/If body: it pushes a Label,
// recurses, and on exit always removes exactly the label it pushed,
// regardless of how the body finished. On a deeper branch or a return
// the label is taken out from beneath the values still in flight; branch
// depth is resolved purely through the Go call stack of nested
// runBlockBody/executeLabel calls.
func (in *interpreter) runBlockBody(stack *Stack, frame *Frame, isLoop bool, body wasm.Expr, arity int, resultTypes []wasm.ValueType) (outcome, error) {
	for {
		base := len(stack.entries) // position of this level's label
		stack.PushLabel(Label{arity: arity, body: body})
		out, err := in.executeLabel(stack, frame, body)
		if err != nil {
			return outcome{}, err
		}

		switch out.kind {
		case outcomeContinue:
			values, err := stack.PopAndCheckValues(resultTypes)
			if err != nil {
				return outcome{}, err
			}
			if _, err := stack.PopLabel(); err != nil {
				return outcome{}, err
			}
			for i := len(values) - 1; i >= 0; i-- {
				stack.PushValue(values[i])
			}
			return continueOutcome, nil

		case outcomeBranch:
			if out.depth == 0 {
				values, err := stack.PopAndCheckValues(resultTypes)
				if err != nil {
					return outcome{}, err
				}
				stack.entries = stack.entries[:base] // label and any operands left under the results
				for i := len(values) - 1; i >= 0; i-- {
					stack.PushValue(values[i])
				}
				if isLoop {
					continue // re-enter the loop body
				}
				return continueOutcome, nil
			}
			stack.entries = append(stack.entries[:base], stack.entries[base+1:]...)
			return branchOutcome(out.depth - 1), nil

		case outcomeReturn:
			stack.entries = append(stack.entries[:base], stack.entries[base+1:]...)
			return returnOutcome, nil
		}
	}
}

// executeLabel runs instructions sequentially until one of them produces
// a non-Continue outcome (a structured branch or a return), or the list
// is exhausted.
func (in *interpreter) executeLabel(stack *Stack, frame *Frame, instrs wasm.Expr) (outcome, error) {
	for _, instr := range instrs {
		if err := in.gas.charge(in.store.Gas.GetCostForOp(instr.Opcode)); err != nil {
			return outcome{}, err
		}

		out, err := in.step(stack, frame, instr)
		if err != nil {
			logrus.WithField("opcode", fmt.Sprintf("0x%x", instr.Opcode)).Warn("vm: trap")
			return outcome{}, err
		}
		if out.kind != outcomeContinue {
			return out, nil
		}
	}
	return continueOutcome, nil
}

// step executes a single instruction and reports what should happen next.
func (in *interpreter) step(stack *Stack, frame *Frame, instr wasm.Instruction) (outcome, error) {
	switch instr.Opcode {
	case wasm.OpNop:
		return continueOutcome, nil

	case wasm.OpUnreachable:
		return outcome{}, ErrUnreachable

	case wasm.OpBlock:
		arity, resultTypes, err := in.blockArity(instr.BlockType)
		if err != nil {
			return outcome{}, err
		}
		return in.runBlockBody(stack, frame, false, instr.Body, arity, resultTypes)

	case wasm.OpLoop:
		arity, resultTypes, err := in.blockArity(instr.BlockType)
		if err != nil {
			return outcome{}, err
		}
		return in.runBlockBody(stack, frame, true, instr.Body, arity, resultTypes)

	case wasm.OpIf:
		cond, err := stack.PopI32()
		if err != nil {
			return outcome{}, err
		}
		arity, resultTypes, err := in.blockArity(instr.BlockType)
		if err != nil {
			return outcome{}, err
		}
		body := instr.Else
		if cond != 0 {
			body = instr.Body
		}
		return in.runBlockBody(stack, frame, false, body, arity, resultTypes)

	case wasm.OpBr:
		return branchOutcome(uint32(instr.LabelIdx)), nil

	case wasm.OpBrIf:
		cond, err := stack.PopI32()
		if err != nil {
			return outcome{}, err
		}
		if cond != 0 {
			return branchOutcome(uint32(instr.LabelIdx)), nil
		}
		return continueOutcome, nil

	case wasm.OpBrTable:
		idx, err := stack.PopI32()
		if err != nil {
			return outcome{}, err
		}
		if idx >= 0 && int(idx) < len(instr.LabelIdxs) {
			return branchOutcome(uint32(instr.LabelIdxs[idx])), nil
		}
		return branchOutcome(uint32(instr.DefaultIdx)), nil

	case wasm.OpReturn:
		return returnOutcome, nil

	case wasm.OpCall:
		return continueOutcome, in.call(stack, instr.FuncIdx)

	case wasm.OpDrop:
		_, err := stack.PopValue()
		return continueOutcome, err

	case wasm.OpLocalGet:
		v, err := frame.GetLocal(instr.LocalIdx)
		if err != nil {
			return outcome{}, err
		}
		stack.PushValue(v)
		return continueOutcome, nil

	case wasm.OpLocalSet:
		v, err := stack.PopValue()
		if err != nil {
			return outcome{}, err
		}
		frame.SetLocal(instr.LocalIdx, v)
		return continueOutcome, nil

	case wasm.OpLocalTee:
		v, err := stack.PopValue()
		if err != nil {
			return outcome{}, err
		}
		frame.SetLocal(instr.LocalIdx, v)
		stack.PushValue(v)
		return continueOutcome, nil

	case wasm.OpI32Const:
		stack.PushI32(instr.I32Value)
		return continueOutcome, nil

	case wasm.OpI64Const:
		stack.PushI64(instr.I64Value)
		return continueOutcome, nil

	case wasm.OpF32Const:
		stack.PushValue(NewF32(instr.F32Value))
		return continueOutcome, nil

	case wasm.OpF64Const:
		stack.PushValue(NewF64(instr.F64Value))
		return continueOutcome, nil

	case wasm.OpI32Eqz:
		v, err := stack.PopI32()
		if err != nil {
			return outcome{}, err
		}
		stack.PushI32(boolToI32(v == 0))
		return continueOutcome, nil

	case wasm.OpI64Eqz:
		v, err := stack.PopValue()
		if err != nil {
			return outcome{}, err
		}
		stack.PushI32(boolToI32(v.I64 == 0))
		return continueOutcome, nil

	case wasm.OpI32Extend8S:
		v, err := stack.PopI32()
		if err != nil {
			return outcome{}, err
		}
		stack.PushI32(int32(int8(v)))
		return continueOutcome, nil

	case wasm.OpI32Extend16S:
		v, err := stack.PopI32()
		if err != nil {
			return outcome{}, err
		}
		stack.PushI32(int32(int16(v)))
		return continueOutcome, nil
	}

	if relOp, ok := instr.Opcode.I32RelOp(); ok {
		return in.i32RelOp(stack, relOp)
	}
	if unOp, ok := instr.Opcode.I32UnOp(); ok {
		return in.i32UnOp(stack, unOp)
	}
	if binOp, ok := instr.Opcode.I32BinOp(); ok {
		return in.i32BinOp(stack, binOp)
	}
	if relOp, ok := instr.Opcode.I64RelOp(); ok {
		return in.i64RelOp(stack, relOp)
	}
	if unOp, ok := instr.Opcode.I64UnOp(); ok {
		return in.i64UnOp(stack, unOp)
	}
	if binOp, ok := instr.Opcode.I64BinOp(); ok {
		return in.i64BinOp(stack, binOp)
	}

	switch instr.Opcode {
	case wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U,
		wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U:
		return in.trunc(stack, instr.Opcode)

	case wasm.OpI64Extend8S, wasm.OpI64Extend16S, wasm.OpI64Extend32S,
		wasm.OpSelect, wasm.OpSelectT, wasm.OpRefNull, wasm.OpRefIsNull, wasm.OpRefFunc,
		wasm.OpGlobalGet, wasm.OpGlobalSet, wasm.OpMemorySize, wasm.OpMemoryGrow,
		wasm.OpCallIndirect:
		return outcome{}, fmt.Errorf("vm: %w: opcode 0x%x", ErrUnimplemented, instr.Opcode)
	}

	if instr.Opcode.IsMemoryAccess() {
		return outcome{}, fmt.Errorf("vm: %w: memory access opcode 0x%x", ErrUnimplemented, instr.Opcode)
	}
	if instr.Opcode.IsNumericPlaceholder() {
		return outcome{}, fmt.Errorf("vm: %w: numeric opcode 0x%x", ErrUnimplemented, instr.Opcode)
	}
	if instr.Opcode >= wasm.PrefixedOpcode(wasm.PrefixBulkMemory, 0) {
		return outcome{}, fmt.Errorf("vm: %w: prefixed opcode 0x%x", ErrUnimplemented, instr.Opcode)
	}

	return outcome{}, fmt.Errorf("%w: 0x%x", ErrUnknownOpcode, instr.Opcode)
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// call pops a function's parameter values off stack in reverse
// declaration order (so they land left-to-right as the callee's
// locals), type-checks them, runs the callee, and pushes its results
// back so the caller observes the same top-of-stack-is-first-result
// convention PopAndCheckValues relies on everywhere else.
func (in *interpreter) call(stack *Stack, idx wasm.FuncIdx) error {
	if in.store.module == nil || int(idx) >= len(in.store.module.funcAddrs) {
		return ErrFuncNotFound
	}
	funcAddr := in.store.module.funcAddrs[idx]
	fi := in.store.funcs[funcAddr]

	args := make([]Value, len(fi.Type.Params))
	for i := len(fi.Type.Params) - 1; i >= 0; i-- {
		v, err := stack.PopAndCheckValue(fi.Type.Params[i])
		if err != nil {
			return err
		}
		args[i] = v
	}

	results, err := in.executeFunc(funcAddr, args)
	if err != nil {
		return err
	}
	for i := len(results) - 1; i >= 0; i-- {
		stack.PushValue(results[i])
	}
	return nil
}

// trunc pops the float operand a trunc_fXX_Y opcode expects, truncates it
// toward zero into the destination integer type via number.FloatTruncate,
// and traps (without altering the stack beyond the pop) on NaN or
// out-of-range input rather than wrapping or saturating.
func (in *interpreter) trunc(stack *Stack, op wasm.Opcode) (outcome, error) {
	var from number.Type
	var bits uint64
	switch op {
	case wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, wasm.OpI64TruncF32S, wasm.OpI64TruncF32U:
		v, err := stack.PopAndCheckValue(wasm.ValueTypeF32)
		if err != nil {
			return outcome{}, err
		}
		from = number.F32
		bits = uint64(math.Float32bits(v.F32))
	default:
		v, err := stack.PopAndCheckValue(wasm.ValueTypeF64)
		if err != nil {
			return outcome{}, err
		}
		from = number.F64
		bits = math.Float64bits(v.F64)
	}

	var to number.Type
	switch op {
	case wasm.OpI32TruncF32S, wasm.OpI32TruncF64S:
		to = number.I32
	case wasm.OpI32TruncF32U, wasm.OpI32TruncF64U:
		to = number.U32
	case wasm.OpI64TruncF32S, wasm.OpI64TruncF64S:
		to = number.I64
	default:
		to = number.U64
	}

	result, trap := number.FloatTruncate(from, to, bits)
	if trap == number.NanTrap {
		return outcome{}, ErrInvalidConversion
	}
	if trap == number.ConvertTrap {
		return outcome{}, ErrIntegerOverflow
	}

	switch to {
	case number.I32, number.U32:
		stack.PushI32(int32(uint32(result)))
	default:
		stack.PushI64(int64(result))
	}
	return continueOutcome, nil
}

func (in *interpreter) i32RelOp(stack *Stack, op wasm.IRelOp) (outcome, error) {
	v2, err := stack.PopI32()
	if err != nil {
		return outcome{}, err
	}
	v1, err := stack.PopI32()
	if err != nil {
		return outcome{}, err
	}
	var res bool
	switch op {
	case wasm.IEq:
		res = v1 == v2
	case wasm.INe:
		res = v1 != v2
	case wasm.ILtS:
		res = v1 < v2
	case wasm.ILtU:
		res = uint32(v1) < uint32(v2)
	case wasm.IGtS:
		res = v1 > v2
	case wasm.IGtU:
		res = uint32(v1) > uint32(v2)
	case wasm.ILeS:
		res = v1 <= v2
	case wasm.ILeU:
		res = uint32(v1) <= uint32(v2)
	case wasm.IGeS:
		res = v1 >= v2
	case wasm.IGeU:
		res = uint32(v1) >= uint32(v2)
	}
	stack.PushI32(boolToI32(res))
	return continueOutcome, nil
}

func (in *interpreter) i32UnOp(stack *Stack, op wasm.IUnOp) (outcome, error) {
	v, err := stack.PopI32()
	if err != nil {
		return outcome{}, err
	}
	var res int32
	switch op {
	case wasm.IClz:
		res = int32(bits.LeadingZeros32(uint32(v)))
	case wasm.ICtz:
		res = int32(bits.TrailingZeros32(uint32(v)))
	case wasm.IPopcnt:
		res = int32(bits.OnesCount32(uint32(v)))
	}
	stack.PushI32(res)
	return continueOutcome, nil
}

func (in *interpreter) i32BinOp(stack *Stack, op wasm.IBinOp) (outcome, error) {
	v2, err := stack.PopI32()
	if err != nil {
		return outcome{}, err
	}
	v1, err := stack.PopI32()
	if err != nil {
		return outcome{}, err
	}
	var res int32
	switch op {
	case wasm.IAdd:
		res = v1 + v2
	case wasm.ISub:
		res = v1 - v2
	case wasm.IMul:
		res = v1 * v2
	case wasm.IDivS:
		if v2 == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		if v1 == math.MinInt32 && v2 == -1 {
			return outcome{}, ErrIntegerOverflow
		}
		res = v1 / v2
	case wasm.IDivU:
		if v2 == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		res = int32(uint32(v1) / uint32(v2))
	case wasm.IRemS:
		if v2 == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		res = v1 % v2
	case wasm.IRemU:
		if v2 == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		res = int32(uint32(v1) % uint32(v2))
	case wasm.IAnd:
		res = v1 & v2
	case wasm.IOr:
		res = v1 | v2
	case wasm.IXor:
		res = v1 ^ v2
	case wasm.IShl:
		res = v1 << (uint32(v2) % 32)
	case wasm.IShrS:
		res = v1 >> (uint32(v2) % 32)
	case wasm.IShrU:
		res = int32(uint32(v1) >> (uint32(v2) % 32))
	case wasm.IRotl:
		res = int32(bits.RotateLeft32(uint32(v1), int(uint32(v2)%32)))
	case wasm.IRotr:
		res = int32(bits.RotateLeft32(uint32(v1), -int(uint32(v2)%32)))
	}
	stack.PushI32(res)
	return continueOutcome, nil
}

func (in *interpreter) i64RelOp(stack *Stack, op wasm.IRelOp) (outcome, error) {
	v2, err := stack.PopValue()
	if err != nil {
		return outcome{}, err
	}
	v1, err := stack.PopValue()
	if err != nil {
		return outcome{}, err
	}
	a, b := v1.I64, v2.I64
	var res bool
	switch op {
	case wasm.IEq:
		res = a == b
	case wasm.INe:
		res = a != b
	case wasm.ILtS:
		res = a < b
	case wasm.ILtU:
		res = uint64(a) < uint64(b)
	case wasm.IGtS:
		res = a > b
	case wasm.IGtU:
		res = uint64(a) > uint64(b)
	case wasm.ILeS:
		res = a <= b
	case wasm.ILeU:
		res = uint64(a) <= uint64(b)
	case wasm.IGeS:
		res = a >= b
	case wasm.IGeU:
		res = uint64(a) >= uint64(b)
	}
	stack.PushI32(boolToI32(res))
	return continueOutcome, nil
}

func (in *interpreter) i64UnOp(stack *Stack, op wasm.IUnOp) (outcome, error) {
	v, err := stack.PopValue()
	if err != nil {
		return outcome{}, err
	}
	var res int64
	switch op {
	case wasm.IClz:
		res = int64(bits.LeadingZeros64(uint64(v.I64)))
	case wasm.ICtz:
		res = int64(bits.TrailingZeros64(uint64(v.I64)))
	case wasm.IPopcnt:
		res = int64(bits.OnesCount64(uint64(v.I64)))
	}
	stack.PushI64(res)
	return continueOutcome, nil
}

func (in *interpreter) i64BinOp(stack *Stack, op wasm.IBinOp) (outcome, error) {
	v2, err := stack.PopValue()
	if err != nil {
		return outcome{}, err
	}
	v1, err := stack.PopValue()
	if err != nil {
		return outcome{}, err
	}
	a, b := v1.I64, v2.I64
	var res int64
	switch op {
	case wasm.IAdd:
		res = a + b
	case wasm.ISub:
		res = a - b
	case wasm.IMul:
		res = a * b
	case wasm.IDivS:
		if b == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		if a == math.MinInt64 && b == -1 {
			return outcome{}, ErrIntegerOverflow
		}
		res = a / b
	case wasm.IDivU:
		if b == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		res = int64(uint64(a) / uint64(b))
	case wasm.IRemS:
		if b == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		res = a % b
	case wasm.IRemU:
		if b == 0 {
			return outcome{}, ErrIntegerDivisionByZero
		}
		res = int64(uint64(a) % uint64(b))
	case wasm.IAnd:
		res = a & b
	case wasm.IOr:
		res = a | b
	case wasm.IXor:
		res = a ^ b
	case wasm.IShl:
		res = a << (uint64(b) % 64)
	case wasm.IShrS:
		res = a >> (uint64(b) % 64)
	case wasm.IShrU:
		res = int64(uint64(a) >> (uint64(b) % 64))
	case wasm.IRotl:
		res = int64(bits.RotateLeft64(uint64(a), int(uint64(b)%64)))
	case wasm.IRotr:
		res = int64(bits.RotateLeft64(uint64(a), -int(uint64(b)%64)))
	}
	stack.PushI64(res)
	return continueOutcome, nil
}
