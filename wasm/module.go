package wasm

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vertexdlt/wasmvm/leb128"
)

// Magic is the 4-byte Wasm magic number ('\0asm').
const Magic uint32 = 0x6D736100

// Version is the only binary format version this decoder accepts.
const Version uint32 = 0x1

// Section ids.
const (
	secCustom     byte = 0
	secType       byte = 1
	secImport     byte = 2
	secFunction   byte = 3
	secTable      byte = 4
	secMemory     byte = 5
	secGlobal     byte = 6
	secExport     byte = 7
	secStart      byte = 8
	secElement    byte = 9
	secCode       byte = 10
	secData       byte = 11
	secDataCount  byte = 12
)

// Code is one entry of the code section before it is merged with its
// matching function-section type index.
type Code struct {
	Locals []ValueType
	Body   Expr
}

// Module is the fully decoded, immutable module. Fields are populated
// in section order as they are read; FuncSec and CodeSec are merged
// positionally into Funcs once both have been seen.
type Module struct {
	TypeSec   []FuncType
	ImportSec []Import
	FuncSec   []TypeIdx
	TableSec  []TableType
	MemSec    []MemType
	GlobalSec []Global
	ExportSec []Export
	StartSec  *FuncIdx
	ElemSec   []Element
	CodeSec   []Code
	DataSec   []Data
	DataCount *uint32

	// Funcs is FuncSec and CodeSec merged positionally: Funcs[i].TypeIdx
	// comes from FuncSec[i] and Funcs[i].{Locals,Body} from CodeSec[i].
	Funcs []Func
}

// Decode reads a complete binary Wasm module from b.
func Decode(b []byte) (*Module, error) {
	r := leb128.NewReader(b)
	if err := readPreamble(r); err != nil {
		return nil, err
	}

	m := &Module{}
	for r.Len() > 0 {
		if err := readSection(m, r); err != nil {
			return nil, err
		}
	}

	if err := m.assembleFuncs(); err != nil {
		return nil, err
	}
	return m, nil
}

func readPreamble(r *leb128.Reader) error {
	header, err := r.ReadBytes(8)
	if err != nil {
		return fmt.Errorf("wasm: reading preamble: %w", err)
	}
	magic := binary.LittleEndian.Uint32(header[0:4])
	version := binary.LittleEndian.Uint32(header[4:8])
	if magic != Magic {
		return fmt.Errorf("wasm: invalid magic number 0x%08x", magic)
	}
	if version != Version {
		return fmt.Errorf("wasm: unsupported version %d", version)
	}
	return nil
}

// readSection frames one section: a 1-byte tag, a u32 size, and exactly
// that many content bytes, which must be fully consumed by the
// per-section parser. Section ids need not be strictly monotonic;
// custom sections (id 0) are ignored wherever they appear.
func readSection(m *Module, r *leb128.Reader) error {
	id, err := r.ReadByte()
	if err != nil {
		return err
	}
	if id > secDataCount {
		return fmt.Errorf("wasm: unknown section id %d", id)
	}

	size, err := r.ReadUint32()
	if err != nil {
		return err
	}
	sub, err := r.Sub(size)
	if err != nil {
		return err
	}

	switch id {
	case secCustom:
		logrus.WithField("bytes", size).Debug("wasm: skipping custom section")
	case secType:
		err = readTypeSection(m, sub)
	case secImport:
		err = readImportSection(m, sub)
	case secFunction:
		err = readFunctionSection(m, sub)
	case secTable:
		err = readTableSection(m, sub)
	case secMemory:
		err = readMemorySection(m, sub)
	case secGlobal:
		err = readGlobalSection(m, sub)
	case secExport:
		err = readExportSection(m, sub)
	case secStart:
		err = readStartSection(m, sub)
	case secElement:
		err = readElementSection(m, sub)
	case secCode:
		err = readCodeSection(m, sub)
	case secData:
		err = readDataSection(m, sub)
	case secDataCount:
		err = readDataCountSection(m, sub)
	}
	if err != nil {
		return fmt.Errorf("wasm: section %d: %w", id, err)
	}
	if sub.Len() != 0 {
		return fmt.Errorf("wasm: section %d: %d trailing bytes", id, sub.Len())
	}
	return nil
}

func readLimits(r *leb128.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	switch flag {
	case 0x00:
		min, err := r.ReadUint32()
		if err != nil {
			return Limits{}, err
		}
		return Limits{Min: min}, nil
	case 0x01:
		min, err := r.ReadUint32()
		if err != nil {
			return Limits{}, err
		}
		max, err := r.ReadUint32()
		if err != nil {
			return Limits{}, err
		}
		return Limits{Min: min, Max: max, HasMax: true}, nil
	default:
		return Limits{}, fmt.Errorf("wasm: invalid limits flag 0x%02x", flag)
	}
}

func readTableType(r *leb128.Reader) (TableType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	rt, err := refTypeFromByte(b)
	if err != nil {
		return TableType{}, err
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{Limits: limits, ElemRef: rt}, nil
}

func readGlobalType(r *leb128.Reader) (GlobalType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	vt, err := valueTypeFromByte(b)
	if err != nil {
		return GlobalType{}, err
	}
	mb, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mb != 0x00 && mb != 0x01 {
		return GlobalType{}, fmt.Errorf("wasm: invalid mutability flag 0x%02x", mb)
	}
	return GlobalType{ValType: vt, Mutable: mb == 0x01}, nil
}

func readResultType(r *leb128.Reader) ([]ValueType, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	types := make([]ValueType, n)
	for i := range types {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		types[i], err = valueTypeFromByte(b)
		if err != nil {
			return nil, err
		}
	}
	return types, nil
}

func readTypeSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.TypeSec = make([]FuncType, n)
	for i := range m.TypeSec {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("wasm: invalid functype form byte 0x%02x", form)
		}
		params, err := readResultType(r)
		if err != nil {
			return err
		}
		results, err := readResultType(r)
		if err != nil {
			return err
		}
		m.TypeSec[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func readImportSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.ImportSec = make([]Import, n)
	for i := range m.ImportSec {
		moduleName, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		var desc ImportDesc
		desc.Kind = kind
		switch kind {
		case ExternalFunc:
			idx, err := r.ReadUint32()
			if err != nil {
				return err
			}
			desc.Func = TypeIdx(idx)
		case ExternalTable:
			desc.Table, err = readTableType(r)
			if err != nil {
				return err
			}
		case ExternalMemory:
			desc.Mem, err = readLimits(r)
			if err != nil {
				return err
			}
		case ExternalGlobal:
			desc.Global, err = readGlobalType(r)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("wasm: invalid import kind 0x%02x", kind)
		}
		m.ImportSec[i] = Import{Module: moduleName, Name: name, Desc: desc}
	}
	return nil
}

func readFunctionSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.FuncSec = make([]TypeIdx, n)
	for i := range m.FuncSec {
		idx, err := r.ReadUint32()
		if err != nil {
			return err
		}
		m.FuncSec[i] = TypeIdx(idx)
	}
	return nil
}

func readTableSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.TableSec = make([]TableType, n)
	for i := range m.TableSec {
		m.TableSec[i], err = readTableType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func readMemorySection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.MemSec = make([]MemType, n)
	for i := range m.MemSec {
		m.MemSec[i], err = readLimits(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func readGlobalSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.GlobalSec = make([]Global, n)
	for i := range m.GlobalSec {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, _, err := readInstructions(r)
		if err != nil {
			return err
		}
		m.GlobalSec[i] = Global{Type: gt, Init: init}
	}
	return nil
}

func readExportSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.ExportSec = make([]Export, n)
	for i := range m.ExportSec {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > ExternalGlobal {
			return fmt.Errorf("wasm: invalid export kind 0x%02x", kind)
		}
		idx, err := r.ReadUint32()
		if err != nil {
			return err
		}
		m.ExportSec[i] = Export{Name: name, Desc: ExportDesc{Kind: kind, Idx: idx}}
	}
	return nil
}

func readStartSection(m *Module, r *leb128.Reader) error {
	idx, err := r.ReadUint32()
	if err != nil {
		return err
	}
	f := FuncIdx(idx)
	m.StartSec = &f
	return nil
}

func readElementSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.ElemSec = make([]Element, n)
	for i := range m.ElemSec {
		el, err := readElement(r)
		if err != nil {
			return err
		}
		m.ElemSec[i] = el
	}
	return nil
}

// readElement decodes one element segment. The discriminant (0..=7)
// encodes three orthogonal choices: active/passive/declarative mode,
// function-index vs full expression initializers, and implicit funcref
// vs an explicit reftype byte.
func readElement(r *leb128.Reader) (Element, error) {
	kind, err := r.ReadUint32()
	if err != nil {
		return Element{}, err
	}

	readFuncIdxInits := func(n uint32) ([]Expr, error) {
		inits := make([]Expr, n)
		for i := range inits {
			idx, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			inits[i] = Expr{{Opcode: OpRefFunc, FuncIdx: FuncIdx(idx)}}
		}
		return inits, nil
	}
	readExprInits := func(n uint32) ([]Expr, error) {
		inits := make([]Expr, n)
		for i := range inits {
			expr, _, err := readInstructions(r)
			if err != nil {
				return nil, err
			}
			inits[i] = expr
		}
		return inits, nil
	}

	switch kind {
	case 0: // active, table 0 implicit, funcidx*, funcref implicit
		offset, _, err := readInstructions(r)
		if err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readFuncIdxInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: ValueTypeFuncref, Mode: ElementActive, TableIdx: 0, Offset: offset, Init: inits}, nil
	case 1: // passive, elemkind, funcidx*
		if _, err := r.ReadByte(); err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readFuncIdxInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: ValueTypeFuncref, Mode: ElementPassive, Init: inits}, nil
	case 2: // active, explicit tableidx, offset, elemkind, funcidx*
		tableIdx, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		offset, _, err := readInstructions(r)
		if err != nil {
			return Element{}, err
		}
		if _, err := r.ReadByte(); err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readFuncIdxInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: ValueTypeFuncref, Mode: ElementActive, TableIdx: TableIdx(tableIdx), Offset: offset, Init: inits}, nil
	case 3: // declarative, elemkind, funcidx*
		if _, err := r.ReadByte(); err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readFuncIdxInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: ValueTypeFuncref, Mode: ElementDeclarative, Init: inits}, nil
	case 4: // active, table 0 implicit, offset, expr*
		offset, _, err := readInstructions(r)
		if err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readExprInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: ValueTypeFuncref, Mode: ElementActive, Offset: offset, Init: inits}, nil
	case 5: // passive, reftype, expr*
		b, err := r.ReadByte()
		if err != nil {
			return Element{}, err
		}
		rt, err := refTypeFromByte(b)
		if err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readExprInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: rt, Mode: ElementPassive, Init: inits}, nil
	case 6: // active, explicit tableidx, offset, reftype, expr*
		tableIdx, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		offset, _, err := readInstructions(r)
		if err != nil {
			return Element{}, err
		}
		b, err := r.ReadByte()
		if err != nil {
			return Element{}, err
		}
		rt, err := refTypeFromByte(b)
		if err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readExprInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: rt, Mode: ElementActive, TableIdx: TableIdx(tableIdx), Offset: offset, Init: inits}, nil
	case 7: // declarative, reftype, expr*
		b, err := r.ReadByte()
		if err != nil {
			return Element{}, err
		}
		rt, err := refTypeFromByte(b)
		if err != nil {
			return Element{}, err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return Element{}, err
		}
		inits, err := readExprInits(n)
		if err != nil {
			return Element{}, err
		}
		return Element{RefType: rt, Mode: ElementDeclarative, Init: inits}, nil
	default:
		return Element{}, fmt.Errorf("wasm: invalid element segment discriminant %d", kind)
	}
}

func readCodeSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.CodeSec = make([]Code, n)
	for i := range m.CodeSec {
		size, err := r.ReadUint32()
		if err != nil {
			return err
		}
		sub, err := r.Sub(size)
		if err != nil {
			return err
		}
		locals, err := readLocals(sub)
		if err != nil {
			return err
		}
		body, _, err := readInstructions(sub)
		if err != nil {
			return err
		}
		if sub.Len() != 0 {
			return fmt.Errorf("wasm: code entry %d: %d trailing bytes", i, sub.Len())
		}
		m.CodeSec[i] = Code{Locals: locals, Body: body}
	}
	return nil
}

func readLocals(r *leb128.Reader) ([]ValueType, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	var locals []ValueType
	for i := uint32(0); i < n; i++ {
		count, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		vt, err := valueTypeFromByte(b)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < count; j++ {
			locals = append(locals, vt)
		}
	}
	return locals, nil
}

func readDataSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.DataSec = make([]Data, n)
	for i := range m.DataSec {
		kind, err := r.ReadUint32()
		if err != nil {
			return err
		}
		var d Data
		switch kind {
		case 0: // active, memory 0 implicit
			d.Mode = DataActive
			d.Offset, _, err = readInstructions(r)
			if err != nil {
				return err
			}
		case 1: // passive
			d.Mode = DataPassive
		case 2: // active, explicit memory index
			d.Mode = DataActive
			idx, err := r.ReadUint32()
			if err != nil {
				return err
			}
			d.MemIdx = MemIdx(idx)
			d.Offset, _, err = readInstructions(r)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("wasm: invalid data segment discriminant %d", kind)
		}
		size, err := r.ReadUint32()
		if err != nil {
			return err
		}
		d.Init, err = r.ReadBytes(size)
		if err != nil {
			return err
		}
		m.DataSec[i] = d
	}
	return nil
}

func readDataCountSection(m *Module, r *leb128.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.DataCount = &n
	return nil
}

// assembleFuncs merges the function and code sections positionally: the
// i-th code entry fills the i-th function's locals and body, and the two
// sections must agree in length.
func (m *Module) assembleFuncs() error {
	if len(m.FuncSec) != len(m.CodeSec) {
		return fmt.Errorf("wasm: function section has %d entries, code section has %d", len(m.FuncSec), len(m.CodeSec))
	}
	m.Funcs = make([]Func, len(m.FuncSec))
	for i, typeIdx := range m.FuncSec {
		if int(typeIdx) >= len(m.TypeSec) {
			return fmt.Errorf("wasm: function %d: type index %d out of range", i, typeIdx)
		}
		m.Funcs[i] = Func{
			TypeIdx: typeIdx,
			Locals:  m.CodeSec[i].Locals,
			Body:    m.CodeSec[i].Body,
		}
	}
	return nil
}
