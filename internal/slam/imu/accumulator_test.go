package imu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
)

func TestFirstSampleContributesNoRotation(t *testing.T) {
	a := New()
	a.Update(slam.ImuSample{AngularRate: geom.Vec3{X: 1, Y: 1, Z: 1}}, time.Unix(0, 0))
	d := a.Reset()
	want := geom.FloatIdentity()
	require.InDeltaSlice(t, want.M[:], d.M[:], 1e-9)
}

func TestResetReturnsAccumulatedThenIdentity(t *testing.T) {
	a := New()
	t0 := time.Unix(0, 0)
	a.Update(slam.ImuSample{}, t0)
	a.Update(slam.ImuSample{AngularRate: geom.Vec3{Z: 1}}, t0.Add(time.Second))

	d := a.Reset()
	require.NotEqual(t, geom.FloatIdentity(), d)

	d2 := a.Reset()
	require.InDeltaSlice(t, geom.FloatIdentity().M[:], d2.M[:], 1e-9)
}

func TestWindowDiagnosticsVariance(t *testing.T) {
	w := NewWindowDiagnostics(3)
	w.Observe(slam.ImuSample{AngularRate: geom.Vec3{X: 1}})
	w.Observe(slam.ImuSample{AngularRate: geom.Vec3{X: 2}})
	w.Observe(slam.ImuSample{AngularRate: geom.Vec3{X: 3}})
	w.Observe(slam.ImuSample{AngularRate: geom.Vec3{X: 4}}) // evicts the first

	v := w.Variance()
	require.InDelta(t, 3.0, v.MeanX, 1e-9)
	require.Greater(t, v.VarX, 0.0)
}
