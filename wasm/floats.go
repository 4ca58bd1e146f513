package wasm

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/sirupsen/logrus"

	"github.com/vertexdlt/wasmvm/number"
)

// decodeFloat32 decodes a little-endian IEEE-754 single-precision float.
// math32 is used here rather than the stdlib math package so that the
// same library the number package uses for float32 NaN/sign inspection
// also owns bit reinterpretation — one float32 authority for the whole
// module. Once decoded, the bits are run through number.FloatTruncate
// against i32 purely for its trap classification: a constant that would
// already trap truncating to the narrowest integer type is logged so
// that a malformed-looking module shows up during decode rather than
// only once something tries to execute against it.
func decodeFloat32(b []byte) float32 {
	bits := binary.LittleEndian.Uint32(b)
	f := math32.Float32frombits(bits)
	if _, trap := number.FloatTruncate(number.F32, number.I32, uint64(bits)); trap != number.NoTrap {
		logrus.WithField("value", f).Debug("wasm: f32 constant would trap truncating to i32")
	}
	return f
}

// decodeFloat64 decodes a little-endian IEEE-754 double-precision float.
// math32 has no float64 counterpart, so this one case uses math directly.
func decodeFloat64(b []byte) float64 {
	bits := binary.LittleEndian.Uint64(b)
	f := math.Float64frombits(bits)
	if _, trap := number.FloatTruncate(number.F64, number.I32, bits); trap != number.NoTrap {
		logrus.WithField("value", f).Debug("wasm: f64 constant would trap truncating to i32")
	}
	return f
}
