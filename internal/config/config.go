// Package config loads process configuration from an optional YAML file and
// HOOKRELAY_* environment variables. Environment values win over the file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "HOOKRELAY_"

// Config holds all application configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	GRPCAddr   string `yaml:"grpc_addr"`
	LogLevel   string `yaml:"log_level"`

	Auth AuthConfig `yaml:"auth"`

	// EncryptionKey is a base64 encoded 32-byte key. Empty disables envelope encryption.
	EncryptionKey string `yaml:"encryption_key"`

	DB    DBConfig    `yaml:"db"`
	Cache CacheConfig `yaml:"cache"`
	Rate  RateConfig  `yaml:"rate"`

	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For is honoured.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	// SigningKey is a base64 ed25519 seed or keypair. Empty means generate one at startup.
	SigningKey string `yaml:"signing_key"`
}

type DBConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

type RateConfig struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr: ":8071",
		LogLevel:   "info",
		Auth:       AuthConfig{Issuer: "hookrelay"},
		DB: DBConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Cache: CacheConfig{Size: 1024, TTL: 30 * time.Second},
		Rate:  RateConfig{Burst: 100, PerSecond: 50},
	}
}

// Load reads HOOKRELAY_CONFIG (if set), applies environment overrides and validates.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.GRPCAddr, "GRPC_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setSecret(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.Issuer, "JWT_ISSUER")
	setString(&cfg.Auth.SigningKey, "SIGNING_KEY")
	setString(&cfg.EncryptionKey, "ENCRYPTION_KEY")
	setString(&cfg.DB.DSN, "PG_DSN")
	if v, ok := os.LookupEnv(envPrefix + "TRUSTED_PROXIES"); ok {
		cfg.TrustedProxies = splitList(v)
	}

	for _, f := range []struct {
		dst *int
		key string
	}{
		{&cfg.DB.MaxOpenConns, "PG_MAX_OPEN_CONNS"},
		{&cfg.DB.MaxIdleConns, "PG_MAX_IDLE_CONNS"},
		{&cfg.Cache.Size, "APP_CACHE_SIZE"},
		{&cfg.Rate.Burst, "RATE_BURST"},
		{&cfg.Rate.PerSecond, "RATE_PER_SECOND"},
	} {
		if err := setInt(f.dst, f.key); err != nil {
			return err
		}
	}
	if err := setDuration(&cfg.DB.ConnMaxLifetime, "PG_CONN_MAX_LIFETIME"); err != nil {
		return err
	}
	return setDuration(&cfg.Cache.TTL, "APP_CACHE_TTL")
}

// Validate checks required values and key shapes.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		return errors.New("auth.issuer is required")
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.GRPCAddr != "" && c.GRPCAddr == c.ListenAddr {
		return errors.New("grpc_addr and listen_addr must be different")
	}
	if c.EncryptionKey != "" {
		raw, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
		if err != nil {
			return errors.New("encryption_key is not valid base64")
		}
		if len(raw) != 32 {
			return fmt.Errorf("encryption_key must decode to 32 bytes, got %d", len(raw))
		}
	}
	if c.Rate.Burst <= 0 || c.Rate.PerSecond <= 0 {
		return errors.New("rate.burst and rate.per_second must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = strings.TrimSpace(v)
	}
}

// setSecret keeps the value byte for byte; a secret read from the file is
// never trimmed either, so both sources yield the same signing key.
func setSecret(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
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

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = d
	return nil
}
