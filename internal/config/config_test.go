package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "fiscalgw.db", cfg.DBPath)
	assert.Equal(t, 1*time.Second, cfg.JobPollInterval)
	assert.Equal(t, 15*time.Second, cfg.JobTimeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, "localhost", cfg.MQTT.Host)
	assert.EqualValues(t, 1, cfg.MQTT.QoS)
}

func TestLoadHonoursEnvOverride(t *testing.T) {
	t.Setenv("FISCALGW_PORT", "9090")
	t.Setenv("FISCALGW_DRY_RUN", "true")
	t.Setenv("FISCALGW_MQTT_HOST", "broker.internal")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "broker.internal", cfg.MQTT.Host)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/gatewayd.yaml"
	require.NoError(t, os.WriteFile(path, []byte("host: 127.0.0.1\nport: 9999\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
}
