package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ConsumerConfig configures the rider-positions consumer.
type ConsumerConfig struct {
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
	KafkaGroup    string   `yaml:"kafka_group"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisGeoKey   string   `yaml:"redis_geo_key"`
	MetricsAddr   string   `yaml:"metrics_addr"`
	LogLevel      string   `yaml:"log_level"`
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "rider-positions",
		KafkaGroup:   "rider-positions-consumer",
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "riders_geo",
		MetricsAddr:  ":2112",
		LogLevel:     "info",
	}
}

func LoadConsumerConfig(path string) (ConsumerConfig, error) {
	cfg := defaultConsumerConfig()
	if err := loadFileLayers(path, &cfg); err != nil {
		return cfg, err
	}
	setListFromEnv(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_RIDER_GEO_KEY")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	var errs []error
	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required"))
	}
	if cfg.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("KAFKA_TOPIC is required"))
	}
	return cfg, errors.Join(errs...)
}

// DevServerConfig configures the local stand-in backend.
type DevServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	PoolCapacity   int           `yaml:"pool_capacity"`
	MatchingWindow time.Duration `yaml:"matching_window"`
	AcceptDelay    time.Duration `yaml:"accept_delay"`
	BaseFare       float64       `yaml:"base_fare"`
	PerKmFare      float64       `yaml:"per_km_fare"`
	GazetteerPath  string        `yaml:"gazetteer_path"`
	JWTSecret      string        `yaml:"jwt_secret"`

	LogLevel string `yaml:"log_level"`
}

func defaultDevServerConfig() DevServerConfig {
	return DevServerConfig{
		HTTPAddr:        ":4000",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		PoolCapacity:    4,
		MatchingWindow:  10 * time.Minute,
		AcceptDelay:     5 * time.Second,
		BaseFare:        30,
		PerKmFare:       12,
		LogLevel:        "info",
	}
}

func LoadDevServerConfig(path string) (DevServerConfig, error) {
	cfg := defaultDevServerConfig()
	if err := loadFileLayers(path, &cfg); err != nil {
		return cfg, err
	}
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	setIntFromEnv(&cfg.PoolCapacity, "POOL_CAPACITY", &errs)
	setDurationFromEnv(&cfg.MatchingWindow, "MATCHING_WINDOW", &errs)
	setDurationFromEnv(&cfg.AcceptDelay, "ACCEPT_DELAY", &errs)
	setFloatFromEnv(&cfg.BaseFare, "BASE_FARE", &errs)
	setFloatFromEnv(&cfg.PerKmFare, "PER_KM_FARE", &errs)
	setStringFromEnv(&cfg.GazetteerPath, "GAZETTEER_PATH")
	setStringFromEnv(&cfg.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.PoolCapacity <= 0 {
		errs = append(errs, fmt.Errorf("POOL_CAPACITY must be > 0"))
	}
	requirePositive(&errs, "MATCHING_WINDOW", cfg.MatchingWindow)
	requirePositive(&errs, "ACCEPT_DELAY", cfg.AcceptDelay)
	return cfg, errors.Join(errs...)
}
