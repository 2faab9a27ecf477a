package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pahoffmann/fastsense-go/internal/slam"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := TSDFBridgeMessage{
		Tau: 192, MapResolution: 64,
		SizeX: 3, SizeY: 3, SizeZ: 3,
		CenterX: 10, CenterY: -5, CenterZ: 0,
		OffsetX: 1, OffsetY: 2, OffsetZ: 0,
		Cells: []slam.TSDFEntry{
			{Value: -192, Weight: 0},
			{Value: 0, Weight: 100},
			{Value: 64, Weight: 50},
		},
	}

	encoded := Encode(m)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestDecodeEmptyMessage(t *testing.T) {
	decoded, err := Decode(nil)
	require.NoError(t, err)
	require.Equal(t, TSDFBridgeMessage{}, decoded)
}
