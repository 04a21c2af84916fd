package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, 10, cfg.CheckoutLimit)
	assert.Equal(t, 30*time.Minute, cfg.QueueExpiry)
	assert.Equal(t, 10*time.Minute, cfg.CheckoutExpiry)
	assert.Equal(t, 5*time.Minute, cfg.QueueCooldown)
	assert.Equal(t, 15*time.Second, cfg.ReaperInterval)
	assert.Equal(t, 2*time.Second, cfg.PositionUpdateInterval)
	assert.Equal(t, "auto", cfg.SettlementProvider)
	assert.Equal(t, 15*time.Second, cfg.SettlementTimeout)
	assert.True(t, cfg.EnableMetrics)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CHECKOUT_LIMIT", "25")
	t.Setenv("QUEUE_EXPIRY", "1h")
	t.Setenv("QUEUE_COOLDOWN", "90s")
	t.Setenv("SETTLEMENT_PROVIDER", "gateway")
	t.Setenv("ENABLE_METRICS", "false")

	cfg := LoadConfig()

	assert.Equal(t, 25, cfg.CheckoutLimit)
	assert.Equal(t, time.Hour, cfg.QueueExpiry)
	assert.Equal(t, 90*time.Second, cfg.QueueCooldown)
	assert.Equal(t, "gateway", cfg.SettlementProvider)
	assert.False(t, cfg.EnableMetrics)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("QUEUE_EXPIRY", "not-a-duration")

	cfg := LoadConfig()
	assert.Equal(t, 30*time.Minute, cfg.QueueExpiry)
}
