package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "backups", cfg.Backup.Dir)
	assert.Equal(t, "admin@agency.local", cfg.Seed.Email)
	assert.False(t, cfg.Deal.RequireLostReason)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRM_SERVER_PORT", "9090")
	t.Setenv("CRM_STORE_DRIVER", "sqlite")
	t.Setenv("CRM_DEAL_REQUIRE_LOST_REASON", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.Deal.RequireLostReason)
}

func TestTimeoutAccessors(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, float64(120), cfg.Backup.DumpTimeout().Seconds())
	assert.Equal(t, float64(300), cfg.Backup.RestoreTimeout().Seconds())
	assert.Equal(t, float64(720*60), cfg.Auth.TokenTTL().Seconds())
}
