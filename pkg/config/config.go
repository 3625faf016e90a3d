// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration of the wallet service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger/rpc"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger/txcache"
	"github.com/postfiatorg/postfiat-wallet/pkg/taskcache"
)

// Defaults of the PostFiat network.
const (
	DefaultAddress   = "127.0.0.1:8000"
	DefaultTaskNode  = "r4yc85M1hwsegVGZ1pawpZPwj65SVs8PzD"
	DefaultPFTIssuer = "rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW"
)

// Config is the wallet service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Ledger LedgerConfig `yaml:"ledger"`
	Nodes  NodesConfig  `yaml:"nodes"`
	Cache  CacheConfig  `yaml:"cache"`
	// Redis enables the shared transaction cache when set.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address    string `yaml:"address"`
	UnixSocket bool   `yaml:"unix_socket,omitempty"`
}

// LedgerConfig configures the JSON-RPC transaction source.
type LedgerConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	PageSize          int           `yaml:"page_size"`
	MaxRetries        uint          `yaml:"max_retries"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
}

// NodesConfig names the accounts the wallet talks to.
type NodesConfig struct {
	TaskNode string `yaml:"task_node"`
	// Remembrancer is optional; without it memo conversations are not read.
	Remembrancer string `yaml:"remembrancer,omitempty"`
	PFTIssuer    string `yaml:"pft_issuer"`
}

// CacheConfig configures the per-account task cache.
type CacheConfig struct {
	EarliestLedger int64         `yaml:"earliest_ledger"`
	GraceDelay     time.Duration `yaml:"grace_delay"`
	ActiveInterval time.Duration `yaml:"active_interval"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffCap     time.Duration `yaml:"backoff_cap"`
	IdleTTL        time.Duration `yaml:"idle_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// RedisConfig configures the shared transaction cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Username  string        `yaml:"username,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	DB        int           `yaml:"db,omitempty"`
	KeyPrefix string        `yaml:"key_prefix,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

// getConfigPath returns the default config location; replaced in tests.
var getConfigPath = func() (string, error) {
	return xdg.ConfigFile("postfiat-wallet/config.yaml")
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	cache := taskcache.DefaultConfig()
	return Config{
		Server: ServerConfig{Address: DefaultAddress},
		Ledger: LedgerConfig{
			Endpoint:          rpc.DefaultEndpoint,
			RequestsPerSecond: 5,
			Burst:             5,
			PageSize:          200,
			MaxRetries:        3,
			RetryInterval:     500 * time.Millisecond,
		},
		Nodes: NodesConfig{
			TaskNode:  DefaultTaskNode,
			PFTIssuer: DefaultPFTIssuer,
		},
		Cache: CacheConfig{
			EarliestLedger: cache.EarliestLedger,
			GraceDelay:     cache.GraceDelay,
			ActiveInterval: cache.ActiveInterval,
			BackoffBase:    cache.BackoffBase,
			BackoffCap:     cache.BackoffCap,
			IdleTTL:        cache.IdleTTL,
			SweepInterval:  cache.SweepInterval,
		},
	}
}

// LoadOrCreateConfig reads the configuration at path, or at the default
// location if path is empty. Missing fields keep their defaults. A missing
// default file is created with the defaults.
func LoadOrCreateConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = getConfigPath()
		if err != nil {
			return nil, fmt.Errorf("unable to fetch config path: %w", err)
		}
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		if err := cfg.save(path); err != nil {
			return nil, err
		}
		return &cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error serializing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Ledger.Endpoint == "" {
		return fmt.Errorf("ledger.endpoint is required")
	}
	if c.Ledger.PageSize <= 0 {
		return fmt.Errorf("ledger.page_size must be positive")
	}
	if err := ledger.ValidateAddress(c.Nodes.TaskNode); err != nil {
		return fmt.Errorf("nodes.task_node: %w", err)
	}
	if c.Nodes.Remembrancer != "" {
		if err := ledger.ValidateAddress(c.Nodes.Remembrancer); err != nil {
			return fmt.Errorf("nodes.remembrancer: %w", err)
		}
		if c.Nodes.Remembrancer == c.Nodes.TaskNode {
			return fmt.Errorf("nodes.remembrancer must differ from nodes.task_node")
		}
	}
	if err := ledger.ValidateAddress(c.Nodes.PFTIssuer); err != nil {
		return fmt.Errorf("nodes.pft_issuer: %w", err)
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is configured")
	}
	if err := c.TaskCache().Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// TaskCache returns the task cache settings.
func (c *Config) TaskCache() taskcache.Config {
	return taskcache.Config{
		EarliestLedger: c.Cache.EarliestLedger,
		GraceDelay:     c.Cache.GraceDelay,
		ActiveInterval: c.Cache.ActiveInterval,
		BackoffBase:    c.Cache.BackoffBase,
		BackoffCap:     c.Cache.BackoffCap,
		IdleTTL:        c.Cache.IdleTTL,
		SweepInterval:  c.Cache.SweepInterval,
	}
}

// RPCOptions returns the JSON-RPC client options.
func (c *Config) RPCOptions() []rpc.Option {
	return []rpc.Option{
		rpc.WithRateLimit(c.Ledger.RequestsPerSecond, c.Ledger.Burst),
		rpc.WithPageSize(c.Ledger.PageSize),
		rpc.WithRetry(c.Ledger.MaxRetries, c.Ledger.RetryInterval),
	}
}

// TxCache returns the transaction cache settings, or nil if Redis is not
// configured.
func (c *Config) TxCache() *txcache.Config {
	if c.Redis == nil {
		return nil
	}
	return &txcache.Config{
		Addr:      c.Redis.Addr,
		Username:  c.Redis.Username,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		KeyPrefix: c.Redis.KeyPrefix,
		TTL:       c.Redis.TTL,
	}
}
