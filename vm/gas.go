package vm

import "github.com/vertexdlt/wasmvm/wasm"

// GasPolicy prices one interpreted instruction. executeLabel charges the
// configured Store's policy before dispatching each instruction and
// fails with ErrOutOfGas once the running total exceeds a nonzero Limit.
// A zero Limit disables the check, and Store.Execute starts every call
// with a zero Limit.
type GasPolicy interface {
	GetCostForOp(op wasm.Opcode) uint64
}

// FreeGasPolicy never charges gas; metering is disabled.
type FreeGasPolicy struct{}

// GetCostForOp always returns 0.
func (p *FreeGasPolicy) GetCostForOp(op wasm.Opcode) uint64 {
	return 0
}

// SimpleGasPolicy charges a flat 1 gas per instruction.
type SimpleGasPolicy struct{}

// GetCostForOp always returns 1.
func (p *SimpleGasPolicy) GetCostForOp(op wasm.Opcode) uint64 {
	return 1
}

// Gas tracks consumption against a limit for one invocation.
type Gas struct {
	Used  uint64
	Limit uint64
}

func (g *Gas) charge(cost uint64) error {
	if g.Limit == 0 {
		return nil
	}
	g.Used += cost
	if g.Used > g.Limit {
		return ErrOutOfGas
	}
	return nil
}
