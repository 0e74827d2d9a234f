// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inquest-dev/inquest/internal/agent"
	"github.com/inquest-dev/inquest/internal/auth"
	"github.com/inquest-dev/inquest/internal/config"
	"github.com/inquest-dev/inquest/internal/conversation"
	"github.com/inquest-dev/inquest/internal/engine"
	"github.com/inquest-dev/inquest/internal/engine/anthropic"
	"github.com/inquest-dev/inquest/internal/engine/google"
	"github.com/inquest-dev/inquest/internal/engine/openai"
	"github.com/inquest-dev/inquest/internal/gateway"
	"github.com/inquest-dev/inquest/internal/secrets"
	"github.com/inquest-dev/inquest/internal/tool"
	"github.com/inquest-dev/inquest/internal/tool/builtin"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inquest gateway",
		Long:  "Load configuration, initialize engines, tools, and auth, and serve the gateway until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	config.WarnInsecurePermissions(cfgPath)

	if listen := viper.GetString("server.listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	store, err := conversation.NewStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	secretStore := secrets.NewKeyringStore()

	engines, err := buildEngines(cfg, secretStore)
	if err != nil {
		return err
	}

	dispatcher, closeTools, err := buildTools(cfg)
	if err != nil {
		return err
	}
	defer closeTools()

	loop, err := agent.NewLoop(agent.Config{
		Engines:       engines,
		Dispatcher:    dispatcher,
		Store:         store,
		MaxIterations: cfg.Loop.MaxIterations,
		System:        cfg.Loop.SystemPrompt,
		MaxTokens:     cfg.Models.MaxTokens,
		Temperature:   cfg.Models.Temperature,
	})
	if err != nil {
		return err
	}

	validator, closeCache, err := buildValidator(cfg, secretStore)
	if err != nil {
		return err
	}
	defer closeCache()

	srv, err := gateway.New(gateway.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, validator, dispatcher, loop)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("inquest gateway listening", "addr", cfg.Server.Listen)
	return srv.Start(ctx)
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				cfgPath = defaultPath
			} else if written := config.BootstrapConfig(); written != "" {
				cfgPath = written
			}
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

// buildEngines constructs every configured reasoning engine. An engine
// whose credential cannot be resolved is skipped with a warning so one
// missing key does not take the whole gateway down.
func buildEngines(cfg *config.Config, secretStore secrets.Store) (*engine.Registry, error) {
	registry := engine.NewRegistry(cfg.Models.Default)

	for name, ec := range cfg.Engines {
		apiKey, err := secrets.Resolve(secretStore, ec.APIKey)
		if err != nil {
			slog.Warn("skipping engine, credential unresolved", "engine", name, "error", err)
			continue
		}

		var eng engine.Engine
		switch name {
		case "anthropic":
			eng, err = anthropic.New(anthropic.Config{APIKey: apiKey, BaseURL: ec.Endpoint})
		case "openai":
			eng, err = openai.New(openai.Config{APIKey: apiKey, BaseURL: ec.Endpoint})
		case "google":
			eng, err = google.New(google.Config{APIKey: apiKey})
		default:
			slog.Warn("skipping unknown engine", "engine", name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := registry.Register(eng); err != nil {
			return nil, err
		}
	}

	if len(registry.Names()) == 0 {
		return nil, inqerr.New(inqerr.CodeConfigValidateInvalidValue,
			"no reasoning engine could be configured; check the engines section")
	}
	return registry, nil
}

// buildTools registers each built-in tool that has a configured backend.
func buildTools(cfg *config.Config) (*tool.Dispatcher, func(), error) {
	registry := tool.NewRegistry()
	var closers []func()
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	if cfg.Tools.DatasetPath != "" {
		db, err := builtin.OpenDataset(cfg.Tools.DatasetPath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := registry.Register(builtin.DatasetQuery(db)); err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	if cfg.Tools.IndexPath != "" {
		idx, err := builtin.NewSemanticIndex(cfg.Tools.IndexPath, nil, 0)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = idx.Close() })
		if err := registry.Register(builtin.SemanticSearch(idx)); err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	if cfg.Tools.CodeSearchURL != "" {
		def := builtin.CodeSearch(builtin.CodeSearchConfig{BaseURL: cfg.Tools.CodeSearchURL})
		if err := registry.Register(def); err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	dispatcher, err := tool.NewDispatcher(registry, cfg.Loop.ToolTimeout)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return dispatcher, closeAll, nil
}

func buildValidator(cfg *config.Config, secretStore secrets.Store) (*auth.Validator, func(), error) {
	closeCache := func() {}

	jwtSecret, err := secrets.Resolve(secretStore, cfg.Auth.JWTSecret)
	if err != nil {
		return nil, nil, err
	}

	var cache auth.VerdictCache
	if cfg.Auth.Cache.Backend == "redis" {
		redisCache := auth.NewRedisVerdictCache(cfg.Auth.Cache.RedisAddr, "", cfg.Auth.Cache.RedisDB)
		closeCache = func() { _ = redisCache.Close() }
		cache = redisCache
	}

	var introspector auth.Introspector
	if cfg.Auth.IntrospectionURL != "" {
		introspector = auth.NewIntrospectionClient(cfg.Auth.IntrospectionURL, &http.Client{Timeout: 10 * time.Second})
	}

	validator := auth.NewValidator(auth.ValidatorConfig{
		Verifier:     auth.NewJWTVerifier([]byte(jwtSecret)),
		AllowedApps:  cfg.Auth.AllowedApps,
		Introspector: introspector,
		Cache:        cache,
		CacheTTL:     cfg.Auth.Cache.TTL,
	})
	return validator, closeCache, nil
}
