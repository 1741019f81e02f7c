package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"

	PMSMemory = "memory"
	PMSHTTP   = "http"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	StorageMode string
	MongoURI    string
	MongoDB     string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	KafkaIntakeTopic   string
	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	PMSMode      string
	PMSBaseURL   string
	PMSAPIKey    string
	PMSTimeout   time.Duration
	PMSRatePerS  float64
	PMSBatchSize int

	ExecutionTimeout time.Duration
	ExecutionLockTTL time.Duration
	RedisAddr        string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	AutoApproveLowRisk bool
	PolicyFile         string
	PricingPolicy      string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StorageMode:      strings.ToLower(getEnv("STORAGE_MODE", StorageMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "rateguard"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "rateguard"),
		KafkaIntakeTopic: getEnv("KAFKA_INTAKE_TOPIC", "proposals.generated.v1"),
		PMSMode:          strings.ToLower(getEnv("PMS_MODE", PMSMemory)),
		PMSBaseURL:       os.Getenv("PMS_BASE_URL"),
		PMSAPIKey:        os.Getenv("PMS_API_KEY"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "rateguard-receipts"),
		PolicyFile:       os.Getenv("POLICY_FILE"),
		PricingPolicy:    os.Getenv("PRICING_POLICY"),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 168*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.PMSTimeout, err = parseDurationEnv("PMS_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ExecutionTimeout, err = parseDurationEnv("EXECUTION_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ExecutionLockTTL, err = parseDurationEnv("EXECUTION_LOCK_TTL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.PMSRatePerS, err = parseFloatEnv("PMS_RATE_PER_SEC", 0); err != nil {
		return Config{}, err
	}
	if cfg.PMSBatchSize, err = parseIntEnv("PMS_BATCH_SIZE", 1); err != nil {
		return Config{}, err
	}
	if cfg.PMSBatchSize < 1 {
		return Config{}, fmt.Errorf("PMS_BATCH_SIZE must be positive, got %d", cfg.PMSBatchSize)
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.AutoApproveLowRisk, err = parseBoolEnv("AUTO_APPROVE_LOW_RISK", false); err != nil {
		return Config{}, err
	}

	switch cfg.StorageMode {
	case StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORAGE_MODE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_MODE %q", cfg.StorageMode)
	}
	switch cfg.PMSMode {
	case PMSMemory:
	case PMSHTTP:
		if cfg.PMSBaseURL == "" {
			return Config{}, fmt.Errorf("PMS_BASE_URL is required when PMS_MODE=http")
		}
	default:
		return Config{}, fmt.Errorf("unknown PMS_MODE %q", cfg.PMSMode)
	}
	return cfg, nil
}

// KafkaEnabled reports whether outbox events are published and intake consumed.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s rate: %q", key, raw)
	}
	return v, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
