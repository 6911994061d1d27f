package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoConfigFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, int64(32768), cfg.ReadLimit)
	require.Equal(t, 5*time.Second, cfg.EndCallGrace)
	require.Equal(t, time.Hour, cfg.CallMaxAge)
	require.Equal(t, 5*time.Minute, cfg.SweepInterval)
}
