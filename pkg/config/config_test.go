package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	c, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Port)
	assert.Equal(t, "nats://localhost:4222", c.NATSURL)
	assert.Equal(t, "driving", c.OSRMProfile)
	assert.Equal(t, 8*time.Second, c.RouteUpdateInterval)
	assert.Equal(t, []string{"localhost:3000", "127.0.0.1:3000"}, c.WebSocketOrigins)
	assert.Equal(t, 5, c.SimUnits)
	assert.Nil(t, c.Secret())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.staging"), []byte(
		"PORT=:9090\nOSRM_URL=http://osrm:5000\nROUTE_UPDATE_INTERVAL=3s\nSIGNING_SECRET=from-file\n",
	), 0o600))
	t.Setenv("SIGNING_SECRET", "from-env")
	t.Setenv("LOG_PRETTY", "true")

	c, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.Port)
	assert.Equal(t, "http://osrm:5000", c.OSRMURL)
	assert.Equal(t, 3*time.Second, c.RouteUpdateInterval)
	assert.Equal(t, []byte("from-env"), c.Secret())
	assert.True(t, c.LogPretty)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("ROUTE_UPDATE_INTERVAL", "0s")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
