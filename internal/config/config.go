package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

type Config struct {
	HTTPPort       int           `env:"LEDGER_HTTP_PORT"`
	Store          string        `env:"LEDGER_STORE"`
	LogLevel       string        `env:"LOG_LEVEL"`
	RequestTimeout time.Duration `env:"LEDGER_REQUEST_TIMEOUT"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS"`

	DBConfig struct {
		Host           string        `env:"LEDGER_DB_HOST"`
		Port           int           `env:"LEDGER_DB_PORT"`
		User           string        `env:"LEDGER_DB_USER"`
		Password       string        `env:"LEDGER_DB_PASSWORD"`
		Name           string        `env:"LEDGER_DB_NAME"`
		SSLMode        string        `env:"LEDGER_DB_SSLMODE"`
		MigrationsDir  string        `env:"LEDGER_DB_MIGRATIONS_DIR"`
		ConnectRetries int           `env:"LEDGER_DB_CONNECT_RETRIES"`
		RetryDelay     time.Duration `env:"LEDGER_DB_RETRY_DELAY"`
	}

	RedisConfig struct {
		Addr          string `env:"REDIS_ADDR"`
		Password      string `env:"REDIS_PASSWORD"`
		DB            int    `env:"REDIS_DB"`
		KeyPrefix     string `env:"REDIS_KEY_PREFIX"`
		MaxTxAttempts int    `env:"REDIS_MAX_TX_ATTEMPTS"`
	}

	DynamoDBConfig struct {
		Table         string `env:"DYNAMODB_TABLE"`
		Switch        string `env:"DYNAMODB_SWITCH"`
		LocalEndpoint string `env:"LOCAL_DYNAMODB_ENDPOINT"`
		Region        string `env:"REGION"`
	}

	BreakerConfig struct {
		Enabled             bool          `env:"BREAKER_ENABLED"`
		ConsecutiveFailures int           `env:"BREAKER_CONSECUTIVE_FAILURES"`
		Timeout             time.Duration `env:"BREAKER_TIMEOUT"`
	}

	KafkaEnabled          bool   `env:"KAFKA_ENABLED"`
	KafkaBrokerURL        string `env:"KAFKA_BROKER_URL"`
	KafkaAdjustmentsTopic string `env:"KAFKA_ADJUSTMENTS_TOPIC"`
	KafkaResultsTopic     string `env:"KAFKA_RESULTS_TOPIC"`
	KafkaConsumerGroup    string `env:"KAFKA_CONSUMER_GROUP"`
	// KafkaHandlerAttempts bounds how often one message is handled before it
	// is logged and skipped.
	KafkaHandlerAttempts int `env:"KAFKA_HANDLER_ATTEMPTS"`
}

// LoadConfig reads the environment. Unparseable numbers, durations and
// booleans are reported together rather than replaced by defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	l := &envLoader{}

	cfg.HTTPPort = l.getEnvAsInt("LEDGER_HTTP_PORT", 8080)
	cfg.Store = strings.ToLower(getEnvOrDefault("LEDGER_STORE", StoreMemory))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.RequestTimeout = l.getEnvAsDuration("LEDGER_REQUEST_TIMEOUT", 30*time.Second)
	cfg.AllowedOrigins = splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", ""))

	cfg.DBConfig.Host = getEnvOrDefault("LEDGER_DB_HOST", "localhost")
	cfg.DBConfig.Port = l.getEnvAsInt("LEDGER_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("LEDGER_DB_USER", "postgres")
	cfg.DBConfig.Password = getEnvOrDefault("LEDGER_DB_PASSWORD", "postgres")
	cfg.DBConfig.Name = getEnvOrDefault("LEDGER_DB_NAME", "ledger_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("LEDGER_DB_SSLMODE", "disable")
	cfg.DBConfig.MigrationsDir = getEnvOrDefault("LEDGER_DB_MIGRATIONS_DIR", "migrations")
	cfg.DBConfig.ConnectRetries = l.getEnvAsInt("LEDGER_DB_CONNECT_RETRIES", 10)
	cfg.DBConfig.RetryDelay = l.getEnvAsDuration("LEDGER_DB_RETRY_DELAY", 5*time.Second)

	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisConfig.DB = l.getEnvAsInt("REDIS_DB", 0)
	cfg.RedisConfig.KeyPrefix = getEnvOrDefault("REDIS_KEY_PREFIX", "account:")
	cfg.RedisConfig.MaxTxAttempts = l.getEnvAsInt("REDIS_MAX_TX_ATTEMPTS", 16)

	cfg.DynamoDBConfig.Table = getEnvOrDefault("DYNAMODB_TABLE", "Accounts")
	cfg.DynamoDBConfig.Switch = getEnvOrDefault("DYNAMODB_SWITCH", "")
	cfg.DynamoDBConfig.LocalEndpoint = getEnvOrDefault("LOCAL_DYNAMODB_ENDPOINT", "")
	cfg.DynamoDBConfig.Region = getEnvOrDefault("REGION", "us-east-1")

	cfg.BreakerConfig.Enabled = l.getEnvAsBool("BREAKER_ENABLED", true)
	cfg.BreakerConfig.ConsecutiveFailures = l.getEnvAsInt("BREAKER_CONSECUTIVE_FAILURES", 5)
	cfg.BreakerConfig.Timeout = l.getEnvAsDuration("BREAKER_TIMEOUT", 30*time.Second)

	cfg.KafkaEnabled = l.getEnvAsBool("KAFKA_ENABLED", false)
	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaAdjustmentsTopic = getEnvOrDefault("KAFKA_ADJUSTMENTS_TOPIC", "ledger_adjustments")
	cfg.KafkaResultsTopic = getEnvOrDefault("KAFKA_RESULTS_TOPIC", "ledger_adjustment_results")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "ledger-service-group")
	cfg.KafkaHandlerAttempts = l.getEnvAsInt("KAFKA_HANDLER_ATTEMPTS", 5)

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres, StoreRedis, StoreDynamoDB:
	default:
		return fmt.Errorf("unsupported LEDGER_STORE %q", c.Store)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("LEDGER_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.RedisConfig.MaxTxAttempts < 1 {
		return fmt.Errorf("REDIS_MAX_TX_ATTEMPTS must be positive: %d", c.RedisConfig.MaxTxAttempts)
	}
	if c.BreakerConfig.ConsecutiveFailures < 1 {
		return fmt.Errorf("BREAKER_CONSECUTIVE_FAILURES must be positive: %d", c.BreakerConfig.ConsecutiveFailures)
	}
	if c.KafkaHandlerAttempts < 1 {
		return fmt.Errorf("KAFKA_HANDLER_ATTEMPTS must be positive: %d", c.KafkaHandlerAttempts)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseLocalDynamoDB reports whether DYNAMODB_SWITCH selects dynamodb-local.
func (c *Config) UseLocalDynamoDB() bool {
	return strings.EqualFold(c.DynamoDBConfig.Switch, "LOCAL")
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokerURL)
}

type envLoader struct {
	errs []error
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func (l *envLoader) getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, valueStr, err))
		return defaultValue
	}
	return value
}

func (l *envLoader) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, valueStr, err))
		return defaultValue
	}
	return value
}

func (l *envLoader) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, valueStr, err))
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
