package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	RelationshipBackendRedis    = "redis"
	RelationshipBackendPostgres = "postgres"
)

// Config holds runtime configuration for the replicator service.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	KafkaBrokers      []string `yaml:"kafka_brokers"`
	KafkaGroupID      string   `yaml:"kafka_group_id"`
	KafkaTopicJobs    string   `yaml:"kafka_topic_jobs"`
	KafkaTopicResults string   `yaml:"kafka_topic_results"`

	JobKeyPrefix          string `yaml:"job_key_prefix"`
	RelationshipKeyPrefix string `yaml:"relationship_key_prefix"`
	RelationshipBackend   string `yaml:"relationship_backend"`
	PostgresDSN           string `yaml:"postgres_dsn"`

	AccountsBaseURL  string        `yaml:"accounts_base_url"`
	ExecutionBaseURL string        `yaml:"execution_base_url"`
	ServiceToken     string        `yaml:"service_token"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`

	FollowerTimeout        time.Duration `yaml:"follower_timeout"`
	MaxConcurrentFollowers int           `yaml:"max_concurrent_followers"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		HTTPAddr: ":8080",
		LogLevel: "info",

		RedisAddr: "localhost:6379",

		KafkaBrokers:      []string{"localhost:9092"},
		KafkaGroupID:      "replicator",
		KafkaTopicJobs:    "replication_jobs",
		KafkaTopicResults: "replication_results",

		JobKeyPrefix:          "replicator:jobs",
		RelationshipKeyPrefix: "replicator:relationships",
		RelationshipBackend:   RelationshipBackendRedis,

		AccountsBaseURL:  "http://localhost:8081",
		ExecutionBaseURL: "http://localhost:8082",
		HTTPTimeout:      10 * time.Second,

		FollowerTimeout: 15 * time.Second,
	}
}

// envOrDefault returns the value of an environment variable or a default.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	if raw := os.Getenv(key); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return val, nil
	}

	return def, nil
}

func envDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	if raw := os.Getenv(key); raw != "" {
		val, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return val, nil
	}
	return def, nil
}

func envCSVOrDefault(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, and environment variables, in that order. A .env file
// in the working directory is loaded first when present.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	var err error
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.RedisAddr = envOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	if cfg.RedisDB, err = envIntOrDefault("REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, err
	}

	cfg.KafkaBrokers = envCSVOrDefault("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaGroupID = envOrDefault("KAFKA_GROUP_ID_REPLICATOR", cfg.KafkaGroupID)
	cfg.KafkaTopicJobs = envOrDefault("KAFKA_TOPIC_REPLICATION_JOBS", cfg.KafkaTopicJobs)
	cfg.KafkaTopicResults = envOrDefault("KAFKA_TOPIC_REPLICATION_RESULTS", cfg.KafkaTopicResults)

	cfg.JobKeyPrefix = envOrDefault("JOB_KEY_PREFIX", cfg.JobKeyPrefix)
	cfg.RelationshipKeyPrefix = envOrDefault("RELATIONSHIP_KEY_PREFIX", cfg.RelationshipKeyPrefix)
	cfg.RelationshipBackend = strings.ToLower(envOrDefault("RELATIONSHIP_BACKEND", cfg.RelationshipBackend))
	cfg.PostgresDSN = envOrDefault("POSTGRES_DSN", cfg.PostgresDSN)

	cfg.AccountsBaseURL = envOrDefault("ACCOUNTS_BASE_URL", cfg.AccountsBaseURL)
	cfg.ExecutionBaseURL = envOrDefault("EXECUTION_BASE_URL", cfg.ExecutionBaseURL)
	cfg.ServiceToken = envOrDefault("SERVICE_TOKEN", cfg.ServiceToken)
	if cfg.HTTPTimeout, err = envDurationOrDefault("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}

	if cfg.FollowerTimeout, err = envDurationOrDefault("FOLLOWER_TIMEOUT", cfg.FollowerTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentFollowers, err = envIntOrDefault("MAX_CONCURRENT_FOLLOWERS", cfg.MaxConcurrentFollowers); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var missing []string
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if len(c.KafkaBrokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}
	if c.AccountsBaseURL == "" {
		missing = append(missing, "ACCOUNTS_BASE_URL")
	}
	if c.ExecutionBaseURL == "" {
		missing = append(missing, "EXECUTION_BASE_URL")
	}
	switch c.RelationshipBackend {
	case RelationshipBackendRedis:
	case RelationshipBackendPostgres:
		if c.PostgresDSN == "" {
			missing = append(missing, "POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("invalid RELATIONSHIP_BACKEND %q: use redis or postgres", c.RelationshipBackend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ","))
	}
	if c.FollowerTimeout <= 0 {
		return errors.New("FOLLOWER_TIMEOUT must be positive")
	}
	if c.MaxConcurrentFollowers < 0 {
		return errors.New("MAX_CONCURRENT_FOLLOWERS must not be negative")
	}
	return nil
}
