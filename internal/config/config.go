package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "KasaiPay"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultHistoryPort     = "8081"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultEventStream     = "wallet-events"
	defaultPartitions      = 8
	defaultConsumerGroup   = "history-service"
	defaultPublishTimeout  = 5 * time.Second
	defaultPollBlock       = 2 * time.Second
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	publishTimeoutEnvVar   = "PUBLISH_TIMEOUT"
	partitionsEnvVar       = "STREAM_PARTITIONS"
)

// Config captures application runtime configuration loaded from environment variables.
// Both the wallet API and the history projector share it; each reads the
// fields relevant to its role.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	HistoryPort    string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Event stream settings.
	EventStream      string
	StreamPartitions int
	PublishTimeout   time.Duration

	// Consumer settings (projector only).
	ConsumerGroup      string
	ConsumerName       string
	ConsumerPartitions []int
	PollBlock          time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		HistoryPort:      getEnv("HISTORY_PORT", defaultHistoryPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		EventStream:      getEnv("EVENT_STREAM", defaultEventStream),
		StreamPartitions: defaultPartitions,
		PublishTimeout:   defaultPublishTimeout,
		ConsumerGroup:    getEnv("CONSUMER_GROUP", defaultConsumerGroup),
		ConsumerName:     getEnv("CONSUMER_NAME", defaultConsumerName()),
		PollBlock:        defaultPollBlock,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv(publishTimeoutEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", publishTimeoutEnvVar, err)
		}
		cfg.PublishTimeout = d
	}

	if v := os.Getenv(partitionsEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", partitionsEnvVar, v)
		}
		cfg.StreamPartitions = n
	}

	partitions, err := parsePartitions(os.Getenv("CONSUMER_PARTITIONS"), cfg.StreamPartitions)
	if err != nil {
		return Config{}, err
	}
	cfg.ConsumerPartitions = partitions

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	return listenAddress(c.Port)
}

// HistoryAddress returns the projector's listen address.
func (c Config) HistoryAddress() string {
	return listenAddress(c.HistoryPort)
}

func listenAddress(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// parsePartitions interprets CONSUMER_PARTITIONS as a comma-separated list of
// partition indexes. Empty means all partitions, the single-instance case.
func parsePartitions(v string, total int) ([]int, error) {
	if v == "" {
		all := make([]int, total)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid CONSUMER_PARTITIONS entry %q: %w", p, err)
		}
		if n < 0 || n >= total {
			return nil, fmt.Errorf("CONSUMER_PARTITIONS entry %d outside [0,%d)", n, total)
		}
		out = append(out, n)
	}
	return out, nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "projector-1"
	}
	return host
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
