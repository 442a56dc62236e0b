// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Alterya/agents-sub000/internal/config"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
	aiAdapters "github.com/Alterya/agents-sub000/internal/infra/adapters/ai"
	"github.com/Alterya/agents-sub000/internal/infra/api"
	pg "github.com/Alterya/agents-sub000/internal/infra/db/postgres"
	"github.com/Alterya/agents-sub000/internal/infra/guard"
	"github.com/Alterya/agents-sub000/internal/infra/jobs"
	"github.com/Alterya/agents-sub000/internal/infra/logging"
	red "github.com/Alterya/agents-sub000/internal/infra/redis"
	"github.com/Alterya/agents-sub000/internal/infra/worker"
	"github.com/Alterya/agents-sub000/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop provider fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis (optional; only the redis queue and limiter need it) ----
	var redisClient red.RedisClient
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		redisClient = rc
	}

	// ---- Repositories ----
	convRepo := pg.NewConversationRepo(pool)
	reportRepo := pg.NewRunReportRepo(pool)
	pricingRepo := pg.NewModelPricingRepo(pool)

	// ---- Guardrails ----
	enforcer := guard.NewEnforcer(cfg.Guard)
	var limiter guard.RateLimiter = guard.NopRateLimiter{}
	if cfg.Guard.RateLimitOn() {
		if redisClient != nil {
			limiter = red.NewRateLimiter(redisClient, cfg.Guard.RateLimitRPM)
		} else {
			limiter = guard.NewMemoryRateLimiter(cfg.Guard.RateLimitRPM)
		}
	}

	// ---- AI providers ----
	multi := aiAdapters.NewMultiAdapter(defaultProvider(cfg))
	registered := 0
	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
		multi.Register("openai", a)
		registered++
	}
	if cfg.AI.OpenRouterKey != "" {
		a, err := aiAdapters.NewOpenRouterAdapter(cfg.AI.OpenRouterKey, cfg.AI.OpenRouterSite, cfg.AI.DefaultModel)
		if err != nil {
			log.Fatalf("openrouter adapter: %v", err)
		}
		multi.Register("openrouter", a)
		registered++
	}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.Guard.MaxTokensPerCall)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
		multi.Register("gemini", a)
		registered++
	}
	if registered == 0 {
		if !cfg.Runtime.Dev {
			log.Fatalf("no AI provider configured: set ai.openai_key, ai.openrouter_key or ai.gemini_key in %s", *cfgPath)
		}
		logger.Warn().Msg("no provider keys set, using noop provider")
		multi.Register("noop", aiAdapters.NewNoopAdapter())
	}
	var ai adapter.ChatAdapter = multi
	ai = aiAdapters.NewGuardedAI(ai, enforcer, limiter, logger)
	ai = aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit)

	// ---- Use cases ----
	pricingUC := usecase.NewPricingUseCase(pricingRepo, logger)
	battleUC := usecase.NewBattleUseCase(ai, convRepo, pricingUC, cfg.Guard.MaxUSDPerConv, logger)
	summarizer := usecase.NewSummarizer(ai, cfg.AI.SummarizerModel, logger)
	scaleUC := usecase.NewScaleUseCase(battleUC, convRepo, reportRepo, pricingUC, summarizer, ai, cfg.Jobs.MaxScaleRuns, logger)

	// ---- Jobs ----
	registry := jobs.NewRegistry(cfg.Jobs.EvictTTL)
	var dispatcher jobs.Dispatcher
	switch strings.ToLower(cfg.Jobs.Queue) {
	case "redis":
		rd := jobs.NewRedisDispatcher(registry, battleUC, scaleUC, redisClient, cfg.Jobs.RedisQueueName, cfg.Jobs.OwnerCap, cfg.Jobs.RequestTimeout, logger)
		rd.Start(ctx, cfg.Jobs.Workers)
		defer rd.Stop()
		dispatcher = rd
	default:
		wp := worker.NewPool(cfg.Jobs.Workers, logger)
		wp.Start(ctx)
		defer wp.Stop()
		dispatcher = jobs.NewInprocDispatcher(registry, battleUC, scaleUC, wp, cfg.Jobs.OwnerCap, cfg.Jobs.RequestTimeout, logger)
	}

	// ---- HTTP ----
	// Submission routes share the provider-call limiter implementation but
	// use their own instance so API admission and provider pacing stay
	// independent.
	apiLimiter := guard.RateLimiter(guard.NopRateLimiter{})
	if cfg.Guard.RateLimitOn() {
		apiLimiter = guard.NewMemoryRateLimiter(cfg.Guard.RateLimitRPM)
	}
	srv := api.NewServer(dispatcher, registry, reportRepo, scaleUC, ai, apiLimiter, cfg.Jobs, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}

func defaultProvider(cfg *config.Config) string {
	switch {
	case cfg.AI.OpenAIKey != "":
		return "openai"
	case cfg.AI.OpenRouterKey != "":
		return "openrouter"
	case cfg.AI.GeminiKey != "":
		return "gemini"
	}
	return "noop"
}
