package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

type Config struct {
	HTTPAddr string `validate:"required"`
	GRPCAddr string `validate:"required"`

	DBDriver string `validate:"oneof=mysql sqlite"`
	DBDSN    string `validate:"required"`

	// RedisAddr empty disables Idempotency-Key support.
	RedisAddr string

	KafkaBrokers         []string `validate:"required,min=1,dive,required"`
	KafkaGroupID         string   `validate:"required"`
	KafkaProcessingTopic string   `validate:"required"`
	KafkaCreationTopic   string   `validate:"required"`
	KafkaBatchSize       int      `validate:"gt=0"`
	KafkaPollInterval    time.Duration

	Publisher   string `validate:"oneof=kafka sqs"`
	SQSQueueURL string `validate:"required_if=Publisher sqs"`
	AWSRegion   string

	OTLPEndpoint string
	ServiceName  string `validate:"required"`
	LogLevel     slog.Level
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	batchSize, err := getEnvInt("KAFKA_BATCH_SIZE", 10)
	if err != nil {
		return Config{}, err
	}
	pollMs, err := getEnvInt("KAFKA_POLL_INTERVAL_MS", 500)
	if err != nil {
		return Config{}, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:             getEnv("GRPC_ADDR", ":50051"),
		DBDriver:             getEnv("DB_DRIVER", "mysql"),
		DBDSN:                getEnv("DB_DSN", "root:root@tcp(localhost:3306)/orders?parseTime=true"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		KafkaBrokers:         splitList(getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "order-service"),
		KafkaProcessingTopic: getEnv("KAFKA_PROCESSING_TOPIC", "order-processing"),
		KafkaCreationTopic:   getEnv("KAFKA_CREATION_TOPIC", "order-creation"),
		KafkaBatchSize:       batchSize,
		KafkaPollInterval:    time.Duration(pollMs) * time.Millisecond,
		Publisher:            getEnv("PUBLISHER", "kafka"),
		SQSQueueURL:          os.Getenv("SQS_QUEUE_URL"),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:          getEnv("OTEL_SERVICE_NAME", "order-service"),
		LogLevel:             level,
	}

	if err := validatorv10.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	// an in-memory sqlite database vanishes with its only connection
	if cfg.DBDriver == "sqlite" && strings.Contains(cfg.DBDSN, ":memory:") {
		return Config{}, fmt.Errorf("invalid config: DB_DSN %q: sqlite needs a file path", cfg.DBDSN)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
