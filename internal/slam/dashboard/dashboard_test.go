package dashboard

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pahoffmann/fastsense-go/internal/slam"
)

func TestRenderProducesNonEmptyHTML(t *testing.T) {
	poses := []slam.Pose{slam.IdentityPose(), slam.IdentityPose()}
	samples := []PoseSample{{Label: "t0", VarX: 0.1, VarY: 0.2, VarZ: 0.3}}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, poses, samples))
	require.Contains(t, buf.String(), "<html")
}
