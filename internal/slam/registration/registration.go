// Package registration implements scan-to-TSDF Gauss-Newton
// registration: given an initial guess (typically the IMU
// accumulator's reset value) and a local TSDF map, iteratively refine
// a rigid transform that aligns the scan to the map's zero level set.
package registration

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
	"github.com/pahoffmann/fastsense-go/internal/slam/localmap"
)

// Params configures the Gauss-Newton loop (registration.max_iterations,
// it_weight_gradient, epsilon in the config layer).
type Params struct {
	MaxIterations   int
	ItWeightGradient float64
	Epsilon         float64
	MapResolution   int32
}

// DefaultParams returns the reference tuning values.
func DefaultParams() Params {
	return Params{MaxIterations: 30, ItWeightGradient: 0.01, Epsilon: 1e-3, MapResolution: 64}
}

// Result is the outcome of one registration call.
type Result struct {
	T         geom.FloatTransform
	Iterations int
	Converged bool
	// Failed reports a degenerate run (count == 0 on every attempted
	// iteration); T is then the identity transform per spec.
	Failed bool
}

// Register runs Gauss-Newton scan-to-map registration. initial is the
// seed transform (map frame), typically drawn from the IMU
// accumulator. points are scan points already expressed in the map
// frame at the initial guess's reference pose; INVALID_POINT sentinels
// are skipped.
func Register(m *localmap.Map, points []slam.Point, initial geom.FloatTransform, p Params) Result {
	T := initial

	errWindow := make([]float64, 0, 5)
	attemptedAny := false

	for iter := 0; iter < p.MaxIterations; iter++ {
		H := mat.NewDense(6, 6, nil)
		b := mat.NewVecDense(6, nil)
		var errSum float64
		var count int

		fixedT := T.Fixed()

		for _, raw := range points {
			if slam.IsInvalid(raw) {
				continue
			}
			pPrime := fixedT.Apply(raw)
			cx := geom.MMToCell(pPrime.X, p.MapResolution)
			cy := geom.MMToCell(pPrime.Y, p.MapResolution)
			cz := geom.MMToCell(pPrime.Z, p.MapResolution)

			cell, err := m.Value(cx, cy, cz)
			if err != nil || cell.Weight == 0 {
				continue
			}

			grad, ok := gradientAt(m, cx, cy, cz)
			if !ok {
				grad = geom.Vec3{}
			}

			rot := geom.Vec3{X: float64(pPrime.X), Y: float64(pPrime.Y), Z: float64(pPrime.Z)}
			cross := crossProduct(rot, grad)
			J := [6]float64{cross.X, cross.Y, cross.Z, grad.X, grad.Y, grad.Z}

			accumulateNormalEquations(H, b, J, float64(cell.Value))

			errSum += math.Abs(float64(cell.Value))
			count++
		}

		attemptedAny = attemptedAny || count > 0
		if count == 0 {
			if iter == 0 {
				return Result{T: geom.FloatIdentity(), Failed: true}
			}
			break
		}

		alpha := p.ItWeightGradient * float64(iter)
		for i := 0; i < 6; i++ {
			H.Set(i, i, H.At(i, i)+alpha*float64(count))
		}

		var Hinv mat.Dense
		if err := Hinv.Inverse(H); err != nil {
			break
		}
		var xi mat.VecDense
		xi.MulVec(&Hinv, b)
		for i := 0; i < 6; i++ {
			xi.SetVec(i, -xi.AtVec(i))
		}

		delta := geom.ExpMap(geom.Vec6{
			Rx: xi.AtVec(0), Ry: xi.AtVec(1), Rz: xi.AtVec(2),
			Tx: xi.AtVec(3), Ty: xi.AtVec(4), Tz: xi.AtVec(5),
		})
		T = geom.MulFloat(delta, T)

		errWindow = append(errWindow, errSum)
		if len(errWindow) > 5 {
			errWindow = errWindow[len(errWindow)-5:]
		}
		if converged(errWindow, p.Epsilon) {
			return Result{T: T, Iterations: iter + 1, Converged: true}
		}
	}

	if !attemptedAny {
		return Result{T: geom.FloatIdentity(), Failed: true}
	}
	return Result{T: T, Iterations: p.MaxIterations}
}

// converged checks the 4-deep window of previous errors with two
// comparisons: the latest error against the one two iterations back,
// and against the one four iterations back (damps oscillation-triggered
// false stops). window holds the latest error plus the four before it.
func converged(window []float64, eps float64) bool {
	n := len(window)
	if n < 5 {
		return false
	}
	last := window[n-1]
	return math.Abs(last-window[n-3]) < eps && math.Abs(last-window[n-5]) < eps
}

func accumulateNormalEquations(H *mat.Dense, b *mat.VecDense, J [6]float64, residual float64) {
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			H.Set(i, j, H.At(i, j)+J[i]*J[j])
		}
		b.SetVec(i, b.AtVec(i)+J[i]*residual)
	}
}

func crossProduct(a, b geom.Vec3) geom.Vec3 {
	return geom.Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// gradientAt computes the central-difference TSDF gradient at cell
// (x,y,z). A sign change between the two neighbors on an axis marks a
// surface-crossing discontinuity, where a linear gradient estimate is
// unreliable, so that axis is reported as zero instead.
func gradientAt(m *localmap.Map, x, y, z int32) (geom.Vec3, bool) {
	var g geom.Vec3
	any := false

	gx, okx := axisGradient(m, x-1, y, z, x+1, y, z)
	if okx {
		g.X = gx
		any = true
	}
	gy, oky := axisGradient(m, x, y-1, z, x, y+1, z)
	if oky {
		g.Y = gy
		any = true
	}
	gz, okz := axisGradient(m, x, y, z-1, x, y, z+1)
	if okz {
		g.Z = gz
		any = true
	}
	return g, any
}

func axisGradient(m *localmap.Map, x0, y0, z0, x1, y1, z1 int32) (float64, bool) {
	lo, err := m.Value(x0, y0, z0)
	if err != nil || lo.Weight == 0 {
		return 0, false
	}
	hi, err := m.Value(x1, y1, z1)
	if err != nil || hi.Weight == 0 {
		return 0, false
	}
	if (lo.Value < 0) != (hi.Value < 0) && lo.Value != 0 && hi.Value != 0 {
		return 0, false
	}
	return float64(hi.Value-lo.Value) / 2, true
}

// TransformPoints applies T to every point in place, the in-place
// rewrite step callers perform after Register returns so downstream
// consumers see the aligned cloud.
func TransformPoints(points []slam.Point, T geom.FloatTransform) {
	fixedT := T.Fixed()
	for i, p := range points {
		if slam.IsInvalid(p) {
			continue
		}
		points[i] = fixedT.Apply(p)
	}
}
