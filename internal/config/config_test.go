package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 99, cfg.Store.CartMaxQuantity)
	assert.Equal(t, 10, cfg.Store.ClaimCodeLength)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("NOTIFY_TIMEOUT", "750ms")
	t.Setenv("CART_MAX_QUANTITY", "20")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Store.NotifyTimeout)
	assert.Equal(t, 20, cfg.Store.CartMaxQuantity)
}

func TestLoadRejectsShortClaimCodes(t *testing.T) {
	t.Setenv("CLAIM_CODE_LENGTH", "6")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero cart max", "CART_MAX_QUANTITY", "0"},
		{"cart max beyond int range", "CART_MAX_QUANTITY", "3000000000"},
		{"zero notify timeout", "NOTIFY_TIMEOUT", "0s"},
		{"negative notify timeout", "NOTIFY_TIMEOUT", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}
