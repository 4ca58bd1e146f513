package vm

import (
	"fmt"

	"github.com/vertexdlt/wasmvm/wasm"
)

// FuncInstance is an owned function body plus a shared handle to its
// declared FuncType.
type FuncInstance struct {
	Type *wasm.FuncType
	Func *wasm.Func
}

// exportEntry is one resolved export: its kind and, for functions, the
// store-global address of the backing FuncInstance.
type exportEntry struct {
	kind     byte
	funcAddr int
}

// ModuleInstance is the post-instantiation view of one decoded module:
// shared function-type handles, the store addresses of its allocated
// functions (in declaration order, indexed by FuncIdx), and its exports.
type ModuleInstance struct {
	types     []*wasm.FuncType
	funcAddrs []int
	exports   map[string]exportEntry
}

// Store is the single owner of every FuncInstance allocated across every
// module it has instantiated, and the export table Invoke looks names up
// in. A Store may host more than one ModuleInstance; this implementation
// only ever instantiates one at a time, mirroring the single-module
// invoke-by-name entry point the command line exposes.
type Store struct {
	funcs  []*FuncInstance
	module *ModuleInstance
	Gas    GasPolicy
}

// NewStore returns an empty store with gas metering disabled.
func NewStore() *Store {
	return &Store{Gas: &FreeGasPolicy{}}
}

// Instantiate allocates a ModuleInstance from m: function instances are
// appended to the store in declaration order, and the module's exports
// are copied into a lookup table keyed by name.
func (s *Store) Instantiate(m *wasm.Module) (*ModuleInstance, error) {
	types := make([]*wasm.FuncType, len(m.TypeSec))
	for i := range m.TypeSec {
		t := m.TypeSec[i]
		types[i] = &t
	}

	inst := &ModuleInstance{types: types, exports: map[string]exportEntry{}}
	for i := range m.Funcs {
		fn := m.Funcs[i]
		if int(fn.TypeIdx) >= len(types) {
			return nil, fmt.Errorf("vm: function %d: type index %d out of range", i, fn.TypeIdx)
		}
		addr := len(s.funcs)
		s.funcs = append(s.funcs, &FuncInstance{Type: types[fn.TypeIdx], Func: &fn})
		inst.funcAddrs = append(inst.funcAddrs, addr)
	}

	for _, exp := range m.ExportSec {
		inst.exports[exp.Name] = exportEntry{kind: exp.Desc.Kind, funcAddr: inst.resolveExportAddr(exp.Desc)}
	}

	s.module = inst
	return inst, nil
}

func (inst *ModuleInstance) resolveExportAddr(desc wasm.ExportDesc) int {
	if desc.Kind != wasm.ExternalFunc {
		return -1
	}
	if int(desc.Idx) >= len(inst.funcAddrs) {
		return -1
	}
	return inst.funcAddrs[desc.Idx]
}

// Invoke looks up name in the current module's export table and, if it
// names a function, executes it with args.
func (s *Store) Invoke(name string, args []Value) ([]Value, error) {
	if s.module == nil {
		return nil, ErrFuncNotFound
	}
	exp, ok := s.module.exports[name]
	if !ok {
		return nil, ErrExportNotFound
	}
	if exp.kind != wasm.ExternalFunc {
		return nil, ErrExportNotFunc
	}
	return s.Execute(exp.funcAddr, args)
}

// ExportFuncType returns the declared signature of the exported function
// name, so a caller can type its argument values before invoking it.
func (s *Store) ExportFuncType(name string) (*wasm.FuncType, error) {
	if s.module == nil {
		return nil, ErrFuncNotFound
	}
	exp, ok := s.module.exports[name]
	if !ok {
		return nil, ErrExportNotFound
	}
	if exp.kind != wasm.ExternalFunc {
		return nil, ErrExportNotFunc
	}
	return s.funcs[exp.funcAddr].Type, nil
}

// Execute runs the function at store address funcAddr with the given
// argument values, checking arity and argument types against its
// declared FuncType and verifying the stack is empty on return.
func (s *Store) Execute(funcAddr int, args []Value) ([]Value, error) {
	if funcAddr < 0 || funcAddr >= len(s.funcs) {
		return nil, ErrFuncNotFound
	}
	fi := s.funcs[funcAddr]
	if len(args) != len(fi.Type.Params) {
		return nil, ErrWrongNumberOfArgs
	}
	for i, p := range fi.Type.Params {
		if args[i].Type != p {
			return nil, fmt.Errorf("vm: argument %d: expected %s, got %s", i, p, args[i].Type)
		}
	}

	interp := &interpreter{store: s, gas: &Gas{}}
	results, err := interp.executeFunc(funcAddr, args)
	if err != nil {
		return nil, err
	}
	return results, nil
}
