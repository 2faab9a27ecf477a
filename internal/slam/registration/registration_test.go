package registration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
	"github.com/pahoffmann/fastsense-go/internal/slam/localmap"
	"github.com/pahoffmann/fastsense-go/internal/slam/store"
)

func newSurfaceMap(t *testing.T) *localmap.Map {
	t.Helper()
	g, err := store.Open(store.Config{Path: ":memory:", DefaultValue: 0, DefaultWeight: 0, CacheCapacity: 64})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })
	m, err := localmap.New(g, localmap.Size{X: 17, Y: 17, Z: 17}, localmap.Vec3i{})
	require.NoError(t, err)
	return m
}

// TestRegisterNoOpAtZeroError exercises spec.md §8: when every scan
// point lands exactly on a zero-valued, weighted surface cell and the
// IMU prior is identity, registration should return (near) identity.
func TestRegisterNoOpAtZeroError(t *testing.T) {
	m := newSurfaceMap(t)
	const S = 64

	surfacePoints := []struct{ x, y, z int32 }{
		{2, 0, 0}, {-2, 0, 0}, {0, 2, 0}, {0, -2, 0},
	}
	for _, sp := range surfacePoints {
		cell, err := m.Value(sp.x, sp.y, sp.z)
		require.NoError(t, err)
		cell.Value, cell.Weight = 0, 100
	}

	points := make([]slam.Point, 0, len(surfacePoints))
	for _, sp := range surfacePoints {
		points = append(points, geom.Vec3i{X: sp.x * S, Y: sp.y * S, Z: sp.z * S})
	}

	res := Register(m, points, geom.FloatIdentity(), Params{MaxIterations: 5, ItWeightGradient: 0.01, Epsilon: 1e-2, MapResolution: S})
	require.False(t, res.Failed)

	id := geom.FloatIdentity()
	for i := range res.T.M {
		require.InDelta(t, id.M[i], res.T.M[i], 0.2)
	}
}

func TestRegisterFailsOnEmptyScan(t *testing.T) {
	m := newSurfaceMap(t)
	res := Register(m, nil, geom.FloatIdentity(), DefaultParams())
	require.True(t, res.Failed)
	require.Equal(t, geom.FloatIdentity(), res.T)
}

func TestRegisterSkipsInvalidPoints(t *testing.T) {
	m := newSurfaceMap(t)
	points := []slam.Point{slam.InvalidPoint, slam.InvalidPoint}
	res := Register(m, points, geom.FloatIdentity(), DefaultParams())
	require.True(t, res.Failed)
}
