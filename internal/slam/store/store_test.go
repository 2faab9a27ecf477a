package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/pahoffmann/fastsense-go/internal/slam"
)

func openTestMap(t *testing.T) *GlobalMap {
	t.Helper()
	g, err := Open(Config{Path: ":memory:", DefaultValue: 1000, DefaultWeight: 0, CacheCapacity: 2})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })
	return g
}

func TestGetChunkUnseenReturnsDefault(t *testing.T) {
	g := openTestMap(t)

	c, err := g.GetChunk(ChunkKey{X: 3, Y: -1, Z: 0})
	require.NoError(t, err)
	for _, e := range c.Cells {
		require.Equal(t, int32(1000), e.Value)
		require.Equal(t, int32(0), e.Weight)
	}
}

func TestPutChunkThenGetSameSessionReadsOwnWrite(t *testing.T) {
	g := openTestMap(t)
	key := ChunkKey{X: 1, Y: 2, Z: 3}

	c, err := g.GetChunk(key)
	require.NoError(t, err)
	c.Cells[CellIndex(0, 0, 0)] = slam.TSDFEntry{Value: 42, Weight: 5}
	g.PutChunk(key, c)

	c2, err := g.GetChunk(key)
	require.NoError(t, err)
	require.Equal(t, int32(42), c2.Cells[CellIndex(0, 0, 0)].Value)
	require.Equal(t, int32(5), c2.Cells[CellIndex(0, 0, 0)].Weight)
}

// TestEvictionWriteBackRoundTrips exercises spec.md §8's chunk
// round-trip scenario: touch more distinct chunks than the cache can
// hold (forcing eviction write-back), then read every chunk back and
// confirm every previously written cell matches bit-exact.
func TestEvictionWriteBackRoundTrips(t *testing.T) {
	g := openTestMap(t) // cache capacity 2

	keys := []ChunkKey{{X: 0}, {X: 1}, {X: 2}, {X: 3}, {X: 4}}
	for i, key := range keys {
		c, err := g.GetChunk(key)
		require.NoError(t, err)
		c.Cells[CellIndex(1, 1, 1)] = slam.TSDFEntry{Value: int32(i * 10), Weight: int32(i + 1)}
		g.PutChunk(key, c)
	}
	require.NoError(t, g.WriteBack())

	for i, key := range keys {
		c, err := g.GetChunk(key)
		require.NoError(t, err)
		require.Equal(t, int32(i*10), c.Cells[CellIndex(1, 1, 1)].Value)
		require.Equal(t, int32(i+1), c.Cells[CellIndex(1, 1, 1)].Weight)
	}
}

// TestPutChunkPreservesEveryCell writes a distinct value into every
// cell of a chunk (not just one probed cell) and diffs the entire
// reloaded slice against what was written, to catch any indexing bug
// that a single-cell check would miss.
func TestPutChunkPreservesEveryCell(t *testing.T) {
	g := openTestMap(t)
	key := ChunkKey{X: 5, Y: -2, Z: 7}

	c, err := g.GetChunk(key)
	require.NoError(t, err)
	want := make([]slam.TSDFEntry, len(c.Cells))
	for i := range want {
		want[i] = slam.TSDFEntry{Value: int32(i), Weight: int32(i % 17)}
	}
	copy(c.Cells, want)
	g.PutChunk(key, c)

	got, err := g.GetChunk(key)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got.Cells); diff != "" {
		t.Fatalf("chunk cells mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestChunkOfFloorDivision(t *testing.T) {
	require.Equal(t, ChunkKey{X: -1}, ChunkOf(-1, 0, 0))
	require.Equal(t, ChunkKey{X: -1}, ChunkOf(-16, 0, 0))
	require.Equal(t, ChunkKey{X: 0}, ChunkOf(0, 0, 0))
	require.Equal(t, ChunkKey{X: 0}, ChunkOf(15, 0, 0))
	require.Equal(t, ChunkKey{X: 1}, ChunkOf(16, 0, 0))
}

func TestSavePoseAndHistoryOrdering(t *testing.T) {
	g := openTestMap(t)

	p1 := slam.IdentityPose()
	p1.T.M[3] = 1.5
	p2 := slam.IdentityPose()
	p2.T.M[3] = 2.5

	_, err := g.SavePose(p1)
	require.NoError(t, err)
	_, err = g.SavePose(p2)
	require.NoError(t, err)

	hist, err := g.PoseHistory()
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.InDelta(t, 1.5, hist[0].T.M[3], 1e-9)
	require.InDelta(t, 2.5, hist[1].T.M[3], 1e-9)
}
