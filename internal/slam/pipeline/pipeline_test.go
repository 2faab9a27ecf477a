package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/localmap"
	"github.com/pahoffmann/fastsense-go/internal/slam/registration"
	"github.com/pahoffmann/fastsense-go/internal/slam/store"
	"github.com/pahoffmann/fastsense-go/internal/slam/tsdf"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	g, err := store.Open(store.Config{Path: ":memory:", DefaultValue: 1000, DefaultWeight: 0, CacheCapacity: 64})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	m, err := localmap.New(g, localmap.Size{X: 17, Y: 17, Z: 17}, localmap.Vec3i{})
	require.NoError(t, err)

	cfg := Config{
		Registration:      registration.DefaultParams(),
		TSDF:              tsdf.Params{MapResolution: 64, Tau: 192, MaxWeight: 100},
		PositionThreshold: 1,
		Period:            1,
	}
	return New(m, cfg, 4, 4, 4, 4)
}

func TestPipelineStartStopIsClean(t *testing.T) {
	p := newTestPipeline(t)
	p.Start()
	p.Stop()
}

func TestPipelinePublishesPoseOnCloud(t *testing.T) {
	p := newTestPipeline(t)
	p.Start()
	defer p.Stop()

	cloud := slam.PointCloud{Points: []slam.Point{
		{X: 128, Y: 32, Z: 32},
		{X: 192, Y: 32, Z: 32},
	}, Rings: 1}
	p.CloudIn().Push(slam.NewStamped(cloud, time.Now()))

	stamped, ok := waitPop(t, p.PoseOut(), time.Second)
	require.True(t, ok)
	require.NotNil(t, stamped)
}

func waitPop[T any](t *testing.T, buf interface {
	Pop() (T, bool)
}, timeout time.Duration) (T, bool) {
	t.Helper()
	type result struct {
		v  T
		ok bool
	}
	ch := make(chan result, 1)
	go func() {
		v, ok := buf.Pop()
		ch <- result{v, ok}
	}()
	select {
	case r := <-ch:
		return r.v, r.ok
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
