package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAddModule hand-assembles the binary encoding of a module exporting
// one function add(i32, i32) -> i32 that sums its two parameters, to
// exercise Decode end-to-end without a separate encoder.
func buildAddModule() []byte {
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00) // magic + version

	// type section: (i32, i32) -> i32
	typeSec := []byte{0x01, 0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F}
	b = append(b, secType, byte(len(typeSec)))
	b = append(b, typeSec...)

	// function section: func 0 has type 0
	funcSec := []byte{0x01, 0x00}
	b = append(b, secFunction, byte(len(funcSec)))
	b = append(b, funcSec...)

	// export section: export func 0 as "add"
	exportSec := []byte{0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00}
	b = append(b, secExport, byte(len(exportSec)))
	b = append(b, exportSec...)

	// code section: one body with no locals, local.get 0, local.get 1, i32.add, end
	body := []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B}
	codeSec := []byte{0x01, byte(len(body))}
	codeSec = append(codeSec, body...)
	b = append(b, secCode, byte(len(codeSec)))
	b = append(b, codeSec...)

	return b
}

func TestDecodeAddModule(t *testing.T) {
	m, err := Decode(buildAddModule())
	require.NoError(t, err)

	require.Len(t, m.TypeSec, 1)
	assert.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32}, m.TypeSec[0].Params)
	assert.Equal(t, []ValueType{ValueTypeI32}, m.TypeSec[0].Results)

	require.Len(t, m.Funcs, 1)
	assert.Equal(t, TypeIdx(0), m.Funcs[0].TypeIdx)
	require.Len(t, m.Funcs[0].Body, 3) // the closing end is consumed, not stored
	assert.Equal(t, OpLocalGet, m.Funcs[0].Body[0].Opcode)
	assert.Equal(t, OpLocalGet, m.Funcs[0].Body[1].Opcode)
	assert.Equal(t, Opcode(0x6A), m.Funcs[0].Body[2].Opcode)

	require.Len(t, m.ExportSec, 1)
	assert.Equal(t, "add", m.ExportSec[0].Name)
	assert.Equal(t, ExternalFunc, m.ExportSec[0].Desc.Kind)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	b := []byte{0x00, 0x61, 0x73, 0x6E, 0x01, 0x00, 0x00, 0x00}
	_, err := Decode(b)
	assert.Error(t, err)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	b := []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}
	_, err := Decode(b)
	assert.Error(t, err)
}

func TestDecodeAllowsOutOfOrderSections(t *testing.T) {
	b := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	// function section (3) before type section (1): not strictly monotonic,
	// but accepted.
	b = append(b, secFunction, 0x02, 0x01, 0x00)
	b = append(b, secType, 0x07, 0x01, 0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F)
	// code section: one empty body, matching the function section's length
	b = append(b, secCode, 0x04, 0x01, 0x02, 0x00, 0x0B)
	m, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, m.TypeSec, 1)
	require.Len(t, m.FuncSec, 1)
}

func TestDecodeCustomSectionsIgnoredAnywhere(t *testing.T) {
	b := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	b = append(b, secType, 0x07, 0x01, 0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F)
	b = append(b, secCustom, 0x05, 'h', 'e', 'l', 'l', 'o')
	b = append(b, secFunction, 0x02, 0x01, 0x00)
	b = append(b, secCustom, 0x05, 'w', 'o', 'r', 'l', 'd')
	// code section: one empty body, matching the function section's length
	b = append(b, secCode, 0x04, 0x01, 0x02, 0x00, 0x0B)
	m, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, m.TypeSec, 1)
	require.Len(t, m.FuncSec, 1)
}
