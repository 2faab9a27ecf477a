package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/ringbuf"
)

func TestReplayDecodesEveryPacketInOrder(t *testing.T) {
	now := time.Now()
	reader := NewMockPCAPReader([]Packet{
		{Data: []byte{1}, Timestamp: now},
		{Data: []byte{2}, Timestamp: now.Add(time.Millisecond)},
		{Data: []byte{0}, Timestamp: now.Add(2 * time.Millisecond)}, // decoder drops this one
	})

	out := ringbuf.New[slam.Stamped[slam.PointCloud]](8)
	decode := func(payload []byte) (slam.PointCloud, bool) {
		if payload[0] == 0 {
			return slam.PointCloud{}, false
		}
		return slam.PointCloud{Points: []slam.Point{{X: int32(payload[0])}}, Rings: 1}, true
	}

	require.NoError(t, Replay(reader, decode, out))
	require.Equal(t, 2, out.Len())

	c1, ok := out.Pop()
	require.True(t, ok)
	require.Equal(t, int32(1), c1.Value.Points[0].X)

	c2, ok := out.Pop()
	require.True(t, ok)
	require.Equal(t, int32(2), c2.Value.Points[0].X)
}

func TestReplayStopsOnClosedBuffer(t *testing.T) {
	reader := NewMockPCAPReader([]Packet{{Data: []byte{1}}})
	out := ringbuf.New[slam.Stamped[slam.PointCloud]](1)
	out.Close()

	decode := func(payload []byte) (slam.PointCloud, bool) { return slam.PointCloud{}, true }
	require.NoError(t, Replay(reader, decode, out))
}
