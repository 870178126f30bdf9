// Package config loads the process environment described in §6 through
// Viper: automatic env binding plus an optional config file, type-safe
// getters, sensible defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	KafkaBootstrapServers   string
	DatabaseURL             string
	RedisURL                string
	LogLevel                string
	HTTPAddr                string
	StopTimeout             time.Duration
	PollTimeout             time.Duration
	InspectorTimeout        time.Duration
}

// Load reads environment variables (and, if present, a "consumerd"
// config file on the current path) into a Config.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("consumerd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("kafka_bootstrap_servers", "localhost:9092")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("stop_timeout_seconds", 30)
	v.SetDefault("poll_timeout_ms", 1000)
	v.SetDefault("inspector_timeout_seconds", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	stopSeconds := v.GetInt("stop_timeout_seconds")
	if stopSeconds <= 0 {
		return nil, fmt.Errorf("config: STOP_TIMEOUT_SECONDS must be positive, got %d", stopSeconds)
	}
	pollMS := v.GetInt("poll_timeout_ms")
	if pollMS <= 0 {
		return nil, fmt.Errorf("config: POLL_TIMEOUT_MS must be positive, got %d", pollMS)
	}
	inspectorSeconds := v.GetInt("inspector_timeout_seconds")
	if inspectorSeconds <= 0 {
		return nil, fmt.Errorf("config: INSPECTOR_TIMEOUT_SECONDS must be positive, got %d", inspectorSeconds)
	}

	return &Config{
		KafkaBootstrapServers: v.GetString("kafka_bootstrap_servers"),
		DatabaseURL:           v.GetString("database_url"),
		RedisURL:              v.GetString("redis_url"),
		LogLevel:              strings.ToUpper(v.GetString("log_level")),
		HTTPAddr:              v.GetString("http_addr"),
		StopTimeout:           time.Duration(stopSeconds) * time.Second,
		PollTimeout:           time.Duration(pollMS) * time.Millisecond,
		InspectorTimeout:      time.Duration(inspectorSeconds) * time.Second,
	}, nil
}
