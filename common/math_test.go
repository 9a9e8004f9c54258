package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMul4Identity tests that multiplying by the identity leaves a matrix
// unchanged.
func TestMul4Identity(t *testing.T) {
	t.Parallel()

	id := make([]float32, 16)
	Identity(id)

	m := []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}

	out := make([]float32, 16)
	Mul4(out, id, m)
	assert.Equal(t, m, out)

	Mul4(out, m, id)
	assert.Equal(t, m, out)
}

// TestInvert4Roundtrip tests that a matrix times its inverse yields identity.
func TestInvert4Roundtrip(t *testing.T) {
	t.Parallel()

	proj := make([]float32, 16)
	Perspective(proj, 1.0, 16.0/9.0, 0.1, 100)

	inv := make([]float32, 16)
	require.True(t, Invert4(inv, proj))

	out := make([]float32, 16)
	Mul4(out, proj, inv)

	id := make([]float32, 16)
	Identity(id)
	for i := range out {
		assert.InDelta(t, id[i], out[i], 1e-4, "element %d", i)
	}
}

// TestTransformPoint tests point transformation against hand-computed values.
func TestTransformPoint(t *testing.T) {
	t.Parallel()

	t.Run("identity passes the point through", func(t *testing.T) {
		t.Parallel()
		id := make([]float32, 16)
		Identity(id)

		x, y, z, w := TransformPoint(id, 1, 2, 3, 1)
		assert.Equal(t, float32(1), x)
		assert.Equal(t, float32(2), y)
		assert.Equal(t, float32(3), z)
		assert.Equal(t, float32(1), w)
	})

	t.Run("translation column applies with w=1", func(t *testing.T) {
		t.Parallel()
		m := make([]float32, 16)
		Identity(m)
		m[12], m[13], m[14] = 10, 20, 30

		x, y, z, w := TransformPoint(m, 1, 1, 1, 1)
		assert.Equal(t, float32(11), x)
		assert.Equal(t, float32(21), y)
		assert.Equal(t, float32(31), z)
		assert.Equal(t, float32(1), w)
	})

	t.Run("translation ignored with w=0", func(t *testing.T) {
		t.Parallel()
		m := make([]float32, 16)
		Identity(m)
		m[12], m[13], m[14] = 10, 20, 30

		x, y, z, _ := TransformPoint(m, 1, 1, 1, 0)
		assert.Equal(t, float32(1), x)
		assert.Equal(t, float32(1), y)
		assert.Equal(t, float32(1), z)
	})
}

// TestClamp tests integer and float clamping at and beyond the bounds.
func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, Clamp(1, 2, 64))
	assert.Equal(t, 64, Clamp(100, 2, 64))
	assert.Equal(t, 32, Clamp(32, 2, 64))
	assert.Equal(t, float32(0), Clamp(float32(-0.5), 0, 1))
	assert.Equal(t, float32(1), Clamp(float32(1.5), 0, 1))
}

// TestCeilDiv tests rounding-up division.
func TestCeilDiv(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, CeilDiv(1, 8))
	assert.Equal(t, 1, CeilDiv(8, 8))
	assert.Equal(t, 2, CeilDiv(9, 8))
	assert.Equal(t, 90, CeilDiv(720, 8))
}

// TestNextMultiple tests rounding up to a multiple.
func TestNextMultiple(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, NextMultiple(1, 8))
	assert.Equal(t, 8, NextMultiple(8, 8))
	assert.Equal(t, 16, NextMultiple(9, 8))
	assert.Equal(t, 0, NextMultiple(0, 8))
}

// TestLerp tests linear interpolation endpoints and midpoint.
func TestLerp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float32(80), Lerp(80, 16, 0))
	assert.Equal(t, float32(16), Lerp(80, 16, 1))
	assert.Equal(t, float32(48), Lerp(80, 16, 0.5))
}
