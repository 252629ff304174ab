package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RelayConfig controls the outbox relay to the message broker.
type RelayConfig struct {
	Schedule   string `yaml:"schedule"`
	BatchSize  int    `yaml:"batch_size"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// Config holds billing tuning.
type Config struct {
	MaxParallelCustomers int           `yaml:"max_parallel_customers"`
	BillNumberPrefix     string        `yaml:"bill_number_prefix"`
	SurchargeCacheSize   int           `yaml:"surcharge_cache_size"`
	SurchargeCacheTTL    time.Duration `yaml:"surcharge_cache_ttl"`
	Timezone             string        `yaml:"timezone"`
	Relay                RelayConfig   `yaml:"relay"`
}

// DefaultConfig returns the built-in billing configuration.
func DefaultConfig() Config {
	return Config{
		MaxParallelCustomers: 8,
		BillNumberPrefix:     "FACT",
		SurchargeCacheSize:   256,
		SurchargeCacheTTL:    5 * time.Minute,
		Timezone:             "Europe/Paris",
		Relay: RelayConfig{
			Schedule:   "@every 30s",
			BatchSize:  50,
			Exchange:   "billing_events",
			RoutingKey: "billing",
		},
	}
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if value := getenvIntDefault("BILLING_MAX_PARALLEL_CUSTOMERS", 0); value > 0 {
		cfg.MaxParallelCustomers = value
	}
	if value := os.Getenv("BILLING_RELAY_SCHEDULE"); value != "" {
		cfg.Relay.Schedule = value
	}
	if value := os.Getenv("BILLING_EXCHANGE"); value != "" {
		cfg.Relay.Exchange = value
	}
	if value := os.Getenv("BILLING_TIMEZONE"); value != "" {
		cfg.Timezone = value
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxParallelCustomers < 0 {
		return errors.New("billing config: max_parallel_customers must not be negative")
	}
	if c.SurchargeCacheSize < 0 {
		return errors.New("billing config: surcharge_cache_size must not be negative")
	}
	if c.Relay.Exchange == "" {
		return errors.New("billing config: relay exchange required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone care days and surcharges are evaluated in.
// An empty timezone means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("billing config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
