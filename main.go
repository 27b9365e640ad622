package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/tripwise/server/internal/agent/graph"
	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/agent/repo"
	"github.com/tripwise/server/internal/cache"
	"github.com/tripwise/server/internal/core"
	"github.com/tripwise/server/internal/interrupt"
	"github.com/tripwise/server/internal/server"
	"github.com/tripwise/server/internal/travel"
	logx "github.com/tripwise/server/pkg/logger"
	pkgredis "github.com/tripwise/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure. Redis is optional: without a URL the service runs on
	// in-memory state and cache.
	Redis  pkgredis.Config
	Server server.Config

	// LLM provider. A missing key degrades routing to keyword
	// classification instead of failing startup.
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Pipeline configs
	Router       model.RouterModelConfig
	Conversation model.ConversationConfig
	Defaults     model.RouteDefaults

	// Travel providers
	Provider travel.Config
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	env := core.ParseEnvironment(envCfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", envCfg.Conversation.TTL).Msg("Invalid CONVERSATION_TTL")
	}
	cacheTTL, err := time.ParseDuration(envCfg.Provider.CacheTTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", envCfg.Provider.CacheTTL).Msg("Invalid PROVIDER_CACHE_TTL")
	}

	var (
		states repo.StateRepository
		store  cache.Store
		rdb    = tryRedis(envCfg.Redis)
	)
	if rdb != nil {
		defer rdb.Close()
		states = repo.NewRedisStateRepository(rdb, ttl)
		store = cache.NewRedis(rdb, cacheTTL)
	} else {
		states = repo.NewMemoryStateRepository()
		store = cache.NewMemory(cacheTTL)
	}

	registry := interrupt.NewRegistry()
	travelClient := travel.NewClient(envCfg.Provider, store)

	runner, err := graph.BuildPipeline(ctx, graph.Config{
		APIKey:       envCfg.APIKey,
		BaseURL:      envCfg.BaseURL,
		RouterModel:  envCfg.Router,
		Conversation: envCfg.Conversation,
		Defaults:     envCfg.Defaults,
		States:       states,
		Travel:       travelClient,
		Interrupts:   registry,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	srvOpts := server.Options{
		Runner:     runner,
		States:     states,
		Interrupts: registry,
		Config:     envCfg.Server,
		Env:        env,
	}
	if rdb != nil {
		// Assign only when connected so the health probe sees a nil
		// interface, not a typed nil pointer.
		srvOpts.RDB = rdb
	}
	srv, err := server.New(srvOpts)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build server")
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(runCtx); err != nil {
		logx.Fatal().Err(err).Msg("Server failed")
	}
	logx.Info().Msg("Server stopped")
}

// tryRedis connects when a URL is configured; any failure falls back to
// in-memory mode rather than refusing to start.
func tryRedis(cfg pkgredis.Config) *redis.Client {
	if cfg.URL == "" {
		logx.Info().Msg("No REDIS_URL configured, using in-memory state")
		return nil
	}
	rdb, err := cfg.New()
	if err != nil {
		logx.Warn().Err(err).Msg("Redis unavailable, using in-memory state")
		return nil
	}
	logx.Info().Msg("Connected to Redis")
	return rdb
}
