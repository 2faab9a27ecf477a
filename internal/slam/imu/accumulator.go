// Package imu accumulates angular-rate samples between registration
// calls into a single delta-rotation transform, and exposes variance
// diagnostics over a recent sample window for bring-up/tuning.
package imu

import (
	"math"
	"sync"
	"time"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
)

// Accumulator integrates angular-rate samples into a running
// delta-transform, initialized to identity. All mutations happen under
// one mutex; the lock is held only for the arithmetic itself, never
// across I/O.
type Accumulator struct {
	mu        sync.Mutex
	acc       geom.FloatTransform
	lastTS    time.Time
	firstSeen bool
}

// New returns an Accumulator holding the identity transform.
func New() *Accumulator {
	return &Accumulator{acc: geom.FloatIdentity()}
}

// Update integrates one angular-rate sample at timestamp ts. The very
// first call only records ts as a reference point; it contributes no
// rotation, since there is no previous sample to derive dt from.
func (a *Accumulator) Update(sample slam.ImuSample, ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.firstSeen {
		a.firstSeen = true
		a.lastTS = ts
		return
	}

	dt := ts.Sub(a.lastTS).Seconds()
	a.lastTS = ts
	if dt <= 0 {
		return
	}

	delta := incrementalRotation(sample.AngularRate, dt)
	a.acc = geom.MulFloat(delta, a.acc)
}

// incrementalRotation builds Rx(wx*dt)*Ry(wy*dt)*Rz(wz*dt) as a
// homogeneous 4x4, the composition order the reference integrator
// uses for small per-tick rotations.
func incrementalRotation(omega geom.Vec3, dt float64) geom.FloatTransform {
	rx := rotX(omega.X * dt)
	ry := rotY(omega.Y * dt)
	rz := rotZ(omega.Z * dt)
	return geom.MulFloat(rx, geom.MulFloat(ry, rz))
}

func rotX(theta float64) geom.FloatTransform {
	t := geom.FloatIdentity()
	s, c := math.Sin(theta), math.Cos(theta)
	t.M[5], t.M[6] = c, -s
	t.M[9], t.M[10] = s, c
	return t
}

func rotY(theta float64) geom.FloatTransform {
	t := geom.FloatIdentity()
	s, c := math.Sin(theta), math.Cos(theta)
	t.M[0], t.M[2] = c, s
	t.M[8], t.M[10] = -s, c
	return t
}

func rotZ(theta float64) geom.FloatTransform {
	t := geom.FloatIdentity()
	s, c := math.Sin(theta), math.Cos(theta)
	t.M[0], t.M[1] = c, -s
	t.M[4], t.M[5] = s, c
	return t
}

// Reset atomically returns the current accumulated transform and
// resets the accumulator to identity, ready for the next registration
// cycle.
func (a *Accumulator) Reset() geom.FloatTransform {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur := a.acc
	a.acc = geom.FloatIdentity()
	return cur
}
