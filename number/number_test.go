package number

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestMinMax(t *testing.T) {
	assert.EqualValues(t, math.MaxInt32, Max(I32))
	assert.EqualValues(t, math.MaxUint32, Max(U32))
	assert.EqualValues(t, 0, Min(U32))
}

func TestCanTruncateF64ToI32(t *testing.T) {
	assert.True(t, CanTruncate(F64, I32, float64(2147483647)))
	assert.False(t, CanTruncate(F64, I32, float64(2147483648)))
}

func TestFloatTruncateNaN(t *testing.T) {
	bits := math32.Float32bits(math32.NaN())
	_, trap := FloatTruncate(F32, I32, uint64(bits))
	assert.Equal(t, NanTrap, trap)
}

func TestFloatTruncateOverflow(t *testing.T) {
	bits := math.Float64bits(1e20)
	v, trap := FloatTruncate(F64, I32, bits)
	assert.Equal(t, ConvertTrap, trap)
	assert.Equal(t, Max(I32), v)
}

func TestFloatTruncateInRange(t *testing.T) {
	bits := math.Float64bits(41.9)
	v, trap := FloatTruncate(F64, I32, bits)
	assert.Equal(t, NoTrap, trap)
	assert.Equal(t, int32(41), int32(v))
}
