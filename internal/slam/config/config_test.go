package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
}

func TestLoadAppliesPartialOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slam.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tau": 300, "period": 3}`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int32(300), c.TSDF.Tau)
	require.Equal(t, 3, c.Pipeline.Period)
	// Untouched fields keep their defaults.
	require.Equal(t, Default().MapSizeX, c.MapSizeX)
}

func TestValidateRejectsEvenMapSize(t *testing.T) {
	c := Default()
	c.MapSizeX = 128
	require.Error(t, c.Validate())
}
