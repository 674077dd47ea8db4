// Copyright 2026 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/united-manufacturing-hub/umh-utils/env"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Lock backends.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Schema change strategies.
const (
	ChangeStrategyAlter    = "alter"
	ChangeStrategyRecreate = "recreate"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Lock    LockConfig    `yaml:"lock"`
	Schema  SchemaConfig  `yaml:"schema"`
	XRef    XRefConfig    `yaml:"xref"`

	SentryDSN   string `yaml:"sentryDsn,omitempty"`
	MetricsAddr string `yaml:"metricsAddr"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LockConfig struct {
	Backend        string `yaml:"backend"`
	RedisAddr      string `yaml:"redisAddr,omitempty"`
	RedisPassword  string `yaml:"redisPassword,omitempty"`
	RedisDB        int    `yaml:"redisDb,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	TTLSeconds     int    `yaml:"ttlSeconds"`
}

type SchemaConfig struct {
	ChangeStrategy string `yaml:"changeStrategy"`
}

type XRefConfig struct {
	// ExpirationSeconds of 0 keeps entries until they are explicitly replaced or removed.
	ExpirationSeconds int `yaml:"expirationSeconds"`
}

// LockTimeout is the bounded wait used for every lock acquisition.
func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutSeconds) * time.Second
}

// LockTTL is how long a shared lock survives a crashed holder.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

// XRefExpiration returns the cross-reference cache expiration, zero meaning never.
func (c Config) XRefExpiration() time.Duration {
	return time.Duration(c.XRef.ExpirationSeconds) * time.Second
}

// Load reads the configuration from the environment and overlays the YAML
// file named by DATARECORD_CONFIG, if any.
func Load() (Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}

	path, err := env.GetAsString("DATARECORD_CONFIG", false, "")
	if err != nil {
		return Config{}, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if cfg, err = Overlay(cfg, data); err != nil {
			return Config{}, err
		}
	}

	return cfg, cfg.Validate()
}

// FromEnv builds a configuration purely from environment variables.
func FromEnv() (Config, error) {
	var (
		cfg Config
		err error
	)

	if cfg.Storage.Driver, err = env.GetAsString("STORAGE_DRIVER", false, DriverSQLite); err != nil {
		return Config{}, err
	}
	if cfg.Storage.DSN, err = env.GetAsString("STORAGE_DSN", false, "datarecord.db"); err != nil {
		return Config{}, err
	}
	if cfg.Lock.Backend, err = env.GetAsString("LOCK_BACKEND", false, LockBackendLocal); err != nil {
		return Config{}, err
	}
	if cfg.Lock.RedisAddr, err = env.GetAsString("REDIS_ADDR", false, "localhost:6379"); err != nil {
		return Config{}, err
	}
	if cfg.Lock.RedisPassword, err = env.GetAsString("REDIS_PASSWORD", false, ""); err != nil {
		return Config{}, err
	}
	if cfg.Lock.RedisDB, err = env.GetAsInt("REDIS_DB", false, 0); err != nil {
		return Config{}, err
	}
	if cfg.Lock.TimeoutSeconds, err = env.GetAsInt("LOCK_TIMEOUT_SECONDS", false, 10); err != nil {
		return Config{}, err
	}
	if cfg.Lock.TTLSeconds, err = env.GetAsInt("LOCK_TTL_SECONDS", false, 300); err != nil {
		return Config{}, err
	}
	if cfg.Schema.ChangeStrategy, err = env.GetAsString("SCHEMA_CHANGE_STRATEGY", false, ChangeStrategyAlter); err != nil {
		return Config{}, err
	}
	if cfg.XRef.ExpirationSeconds, err = env.GetAsInt("XREF_EXPIRATION_SECONDS", false, 0); err != nil {
		return Config{}, err
	}
	if cfg.SentryDSN, err = env.GetAsString("SENTRY_DSN", false, ""); err != nil {
		return Config{}, err
	}
	if cfg.MetricsAddr, err = env.GetAsString("METRICS_ADDR", false, ":2112"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Overlay decodes YAML on top of cfg. Keys absent from the document keep their current value.
func Overlay(cfg Config, data []byte) (Config, error) {
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage dsn must not be empty"))
	}

	switch c.Lock.Backend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("redis lock backend requires an address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock backend %q", c.Lock.Backend))
	}

	if c.Lock.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("lock timeout must be positive"))
	}

	if c.Lock.TTLSeconds < c.Lock.TimeoutSeconds {
		errs = append(errs, errors.New("lock ttl must not be shorter than the lock timeout"))
	}

	switch c.Schema.ChangeStrategy {
	case ChangeStrategyAlter, ChangeStrategyRecreate:
	default:
		errs = append(errs, fmt.Errorf("unknown schema change strategy %q", c.Schema.ChangeStrategy))
	}

	if c.XRef.ExpirationSeconds < 0 {
		errs = append(errs, errors.New("xref expiration must not be negative"))
	}

	return errors.Join(errs...)
}
