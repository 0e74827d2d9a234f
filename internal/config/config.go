// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Config is the top-level Inquest configuration.
type Config struct {
	Server  ServerConfig            `mapstructure:"server"`
	Auth    AuthConfig              `mapstructure:"auth"`
	Engines map[string]EngineConfig `mapstructure:"engines"`
	Models  ModelsConfig            `mapstructure:"models"`
	Loop    LoopConfig              `mapstructure:"loop"`
	Tools   ToolsConfig             `mapstructure:"tools"`
	Storage StorageConfig           `mapstructure:"storage"`
}

// ServerConfig controls how the gateway listens for connections.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig controls app token validation.
type AuthConfig struct {
	// JWTSecret is the HS256 secret for the local check. Supports
	// keyring:// and env:// references.
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowedApps restricts which app IDs may call the gateway. Empty
	// means any authenticated app.
	AllowedApps []string `mapstructure:"allowed_apps"`
	// IntrospectionURL is the identity provider's introspection endpoint
	// for opaque tokens.
	IntrospectionURL string      `mapstructure:"introspection_url"`
	Cache            CacheConfig `mapstructure:"cache"`
}

// CacheConfig selects where validation verdicts are cached.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
}

// EngineConfig holds credentials and endpoint for one reasoning engine.
type EngineConfig struct {
	// APIKey supports keyring:// and env:// references.
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls engine and model selection.
type ModelsConfig struct {
	// Default is the engine and model used when a request names none,
	// in "engine/model" format.
	Default     string  `mapstructure:"default"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// LoopConfig bounds the investigation loop.
type LoopConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
}

// ToolsConfig points the built-in tools at their backends.
type ToolsConfig struct {
	DatasetPath   string `mapstructure:"dataset_path"`
	IndexPath     string `mapstructure:"index_path"`
	CodeSearchURL string `mapstructure:"code_search_url"`
}

// StorageConfig selects the conversation store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix INQUEST_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:18990")
	v.SetDefault("auth.cache.backend", "memory")
	v.SetDefault("auth.cache.ttl", "5m")
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("models.max_tokens", 4096)
	v.SetDefault("loop.max_iterations", 10)
	v.SetDefault("loop.tool_timeout", "30s")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "inquest.db")

	// Environment
	v.SetEnvPrefix("INQUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, inqerr.Errorf(inqerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateLoop()...)
	errs = append(errs, c.validateStorage()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 0 || port > 65535 {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 0 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error

	validBackends := map[string]bool{"memory": true, "redis": true}
	if !validBackends[c.Auth.Cache.Backend] {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: auth.cache.backend must be one of [memory, redis], got %q",
			c.Auth.Cache.Backend,
		))
	}
	if c.Auth.Cache.Backend == "redis" && c.Auth.Cache.RedisAddr == "" {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: auth.cache.redis_addr is required when auth.cache.backend is redis"))
	}
	if c.Auth.Cache.TTL <= 0 {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: auth.cache.ttl must be greater than 0, got %s", c.Auth.Cache.TTL))
	}
	if c.Auth.JWTSecret == "" && c.Auth.IntrospectionURL == "" {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: at least one of auth.jwt_secret and auth.introspection_url must be set"))
	}

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue, "config: models.default must not be empty"))
	} else if !strings.Contains(c.Models.Default, "/") {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: models.default must be in \"engine/model\" format, got %q",
			c.Models.Default,
		))
	} else if c.Engines != nil {
		// Only cross-reference engines when the engines section exists in
		// config. A nil map means defaults only, which is valid.
		engineName := engineFromModel(c.Models.Default)
		if _, ok := c.Engines[engineName]; !ok {
			errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
				"config: models.default %q references engine %q which is not configured",
				c.Models.Default, engineName,
			))
		}
	}

	if c.Models.MaxTokens <= 0 {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: models.max_tokens must be greater than 0, got %d", c.Models.MaxTokens))
	}

	return errs
}

func (c *Config) validateLoop() []error {
	var errs []error

	if c.Loop.MaxIterations <= 0 {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: loop.max_iterations must be greater than 0, got %d", c.Loop.MaxIterations))
	}
	if c.Loop.ToolTimeout <= 0 {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: loop.tool_timeout must be greater than 0, got %s", c.Loop.ToolTimeout))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend,
		))
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"config: storage.path is required when storage.backend is sqlite"))
	}

	return errs
}

// engineFromModel extracts the engine prefix from an "engine/model" string.
func engineFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
