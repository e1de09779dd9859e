package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldtrack.yaml")

	orig := DefaultConfig()
	orig.Route.MaxPoints = 321
	orig.Capture.Accuracy = "highest"
	orig.Queue.MaxAge = Duration(36 * time.Hour)
	orig.Geofence.Fences = []FenceConfig{
		{Name: "depot", Lat: 52.52, Lon: 13.405, Radius: Distance(250)},
	}
	require.NoError(t, Save(path, orig))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, orig, loaded)
}

func TestValidateDirect(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Uplink.BaseURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Uplink.LocationEndpoint = "missing-slash"
	assert.Error(t, cfg.Validate())
}
