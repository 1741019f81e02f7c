package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORAGE_MODE", "PMS_MODE", "KAFKA_BROKERS", "KAFKA_INTAKE_TOPIC", "EXECUTION_LOCK_TTL", "RETRY_BACKOFF", "PMS_BATCH_SIZE", "AUTO_APPROVE_LOW_RISK"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageMode)
	assert.Equal(t, PMSMemory, cfg.PMSMode)
	assert.Equal(t, 1, cfg.PMSBatchSize)
	assert.Equal(t, 2*time.Minute, cfg.ExecutionLockTTL)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.False(t, cfg.AutoApproveLowRisk)
	assert.Equal(t, "proposals.generated.v1", cfg.KafkaIntakeTopic)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_MODE", "Mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("PMS_MODE", "http")
	t.Setenv("PMS_BASE_URL", "http://pms.local")
	t.Setenv("PMS_RATE_PER_SEC", "2.5")
	t.Setenv("PMS_BATCH_SIZE", "4")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("KAFKA_INTAKE_TOPIC", "pricing.proposals")
	t.Setenv("AUTO_APPROVE_LOW_RISK", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMongo, cfg.StorageMode)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2.5, cfg.PMSRatePerS)
	assert.Equal(t, 4, cfg.PMSBatchSize)
	assert.True(t, cfg.AutoApproveLowRisk)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"mongo without uri":    {"STORAGE_MODE": "mongo", "MONGO_URI": ""},
		"unknown storage":      {"STORAGE_MODE": "sqlite"},
		"http pms without url": {"PMS_MODE": "http", "PMS_BASE_URL": ""},
		"zero batch":           {"PMS_BATCH_SIZE": "0"},
		"bad duration":         {"EXECUTION_TIMEOUT": "soon"},
		"bad bool":             {"AUTO_APPROVE_LOW_RISK": "maybe"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
