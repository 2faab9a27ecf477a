package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorDivSignSymmetry(t *testing.T) {
	assert.Equal(t, int32(0), FloorDiv(0, 64))
	assert.Equal(t, int32(-1), FloorDiv(-1, 64))
	assert.Equal(t, int32(-1), FloorDiv(-64, 64))
	assert.Equal(t, int32(-2), FloorDiv(-65, 64))
	assert.Equal(t, int32(1), FloorDiv(64, 64))
}

func TestMMToCellRoundTrip(t *testing.T) {
	for _, mm := range []int32{-200, -64, -1, 0, 1, 63, 64, 200} {
		cell := MMToCell(mm, 64)
		center := CellToMM(cell, 64)
		assert.LessOrEqual(t, math.Abs(float64(center-mm)), 64.0)
	}
}

func TestIdentityApplyIsNoop(t *testing.T) {
	p := Vec3i{100, -200, 300}
	got := Identity().Apply(p)
	assert.Equal(t, p, got)
}

func TestFromFloatTranslation(t *testing.T) {
	m := [16]float64{
		1, 0, 0, 10,
		0, 1, 0, -20,
		0, 0, 1, 30,
		0, 0, 0, 1,
	}
	tr := FromFloat(m)
	got := tr.Apply(Vec3i{0, 0, 0})
	assert.Equal(t, Vec3i{10, -20, 30}, got)
}

func TestMulAssociatesWithApply(t *testing.T) {
	a := FromFloat([16]float64{1, 0, 0, 5, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
	b := FromFloat([16]float64{1, 0, 0, 0, 0, 1, 0, 7, 0, 0, 1, 0, 0, 0, 0, 1})
	combined := Mul(a, b)
	p := Vec3i{1, 2, 3}
	direct := a.Apply(b.Apply(p))
	viaMul := combined.Apply(p)
	assert.InDelta(t, float64(direct.X), float64(viaMul.X), 1)
	assert.InDelta(t, float64(direct.Y), float64(viaMul.Y), 1)
	assert.InDelta(t, float64(direct.Z), float64(viaMul.Z), 1)
}

func TestExpMapZeroIsIdentity(t *testing.T) {
	tr := ExpMap(Vec6{})
	id := FloatIdentity()
	for i := range tr.M {
		assert.InDelta(t, id.M[i], tr.M[i], 1e-9)
	}
}

func TestExpMapSmallAngleCopiesTranslation(t *testing.T) {
	xi := Vec6{Rx: 1e-8, Ry: 0, Rz: 0, Tx: 1, Ty: 2, Tz: 3}
	tr := ExpMap(xi)
	assert.InDelta(t, 1.0, tr.M[3], 1e-9)
	assert.InDelta(t, 2.0, tr.M[7], 1e-9)
	assert.InDelta(t, 3.0, tr.M[11], 1e-9)
}
