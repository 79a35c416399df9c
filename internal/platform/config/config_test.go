package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("VERISTAT_MASTER_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 5, cfg.KThreshold)
	assert.Equal(t, 0.1, cfg.Epsilon)
	assert.Equal(t, 1.0, cfg.EpsilonCap)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VERISTAT_MASTER_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("VERISTAT_ADDR", ":9090")
	t.Setenv("VERISTAT_K_THRESHOLD", "10")
	t.Setenv("VERISTAT_EPSILON", "0.05")
	t.Setenv("VERISTAT_EPSILON_CAP", "0.5")
	t.Setenv("VERISTAT_CACHE_TTL", "5m")
	t.Setenv("VERISTAT_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 10, cfg.KThreshold)
	assert.Equal(t, 0.05, cfg.Epsilon)
	assert.Equal(t, 0.5, cfg.EpsilonCap)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestFromEnvRequiresMasterKey(t *testing.T) {
	t.Setenv("VERISTAT_MASTER_KEY", "")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("VERISTAT_MASTER_KEY", "0123456789abcdef0123456789abcdef")

	t.Setenv("VERISTAT_K_THRESHOLD", "1")
	_, err := FromEnv()
	require.Error(t, err)
	t.Setenv("VERISTAT_K_THRESHOLD", "")

	t.Setenv("VERISTAT_EPSILON_CAP", "-0.1")
	_, err = FromEnv()
	require.Error(t, err)
	t.Setenv("VERISTAT_EPSILON_CAP", "")

	t.Setenv("VERISTAT_EPSILON", "-0.1")
	_, err = FromEnv()
	require.Error(t, err)
	t.Setenv("VERISTAT_EPSILON", "")

	// The per-pass epsilon must leave budget for later passes.
	t.Setenv("VERISTAT_EPSILON", "1.0")
	t.Setenv("VERISTAT_EPSILON_CAP", "1.0")
	_, err = FromEnv()
	require.Error(t, err)
	t.Setenv("VERISTAT_EPSILON", "")
	t.Setenv("VERISTAT_EPSILON_CAP", "")

	t.Setenv("VERISTAT_CACHE_TTL", "soon")
	_, err = FromEnv()
	require.Error(t, err)
}
