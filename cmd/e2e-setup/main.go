package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/Alterya/agents-sub000/internal/config"
	pg "github.com/Alterya/agents-sub000/internal/infra/db/postgres"
	"github.com/Alterya/agents-sub000/internal/infra/redis"
	"github.com/Alterya/agents-sub000/internal/usecase"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    agent_id TEXT NOT NULL,
    run_id TEXT,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    system_prompt TEXT,
    goal TEXT,
    goal_reached BOOLEAN NOT NULL DEFAULT FALSE,
    ended_reason TEXT,
    message_limit INT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    tokens_in INT NOT NULL DEFAULT 0,
    tokens_out INT NOT NULL DEFAULT 0,
    cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS run_reports (
    run_id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    model TEXT NOT NULL,
    system_prompt TEXT,
    run_count INT NOT NULL,
    failures JSONB NOT NULL DEFAULT '[]',
    summary TEXT NOT NULL DEFAULT '',
    revised_prompt TEXT NOT NULL DEFAULT '',
    stats JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS model_pricing (
    id UUID PRIMARY KEY,
    provider TEXT NOT NULL,
    model_name TEXT NOT NULL,
    input_usd_per_1k DOUBLE PRECISION NOT NULL,
    output_usd_per_1k DOUBLE PRECISION NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (provider, model_name)
);
`

// This script sets up a clean, predictable database state for manual
// end-to-end testing: schema applied, tables wiped, pricing reseeded.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clear Redis so no stale rate-limit counters or queued jobs survive.
	if cfg.Redis.URL != "" {
		log.Println("[1/4] Wiping Redis...")
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("failed to flush redis: %v", err)
		}
		_ = redisClient.Close()
	} else {
		log.Println("[1/4] Redis not configured; skipping.")
	}

	// 2. Apply the schema so the tool also works against an empty database.
	log.Println("[2/4] Applying schema...")
	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	// 3. Wipe all run data.
	log.Println("[3/4] Wiping all existing data...")
	if _, err := pool.Exec(ctx, `
		TRUNCATE conversations, messages, run_reports, model_pricing
		RESTART IDENTITY CASCADE;
	`); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 4. Reseed default pricing.
	log.Println("[4/4] Seeding default model pricing...")
	if err := usecase.SeedDefaults(ctx, pg.NewModelPricingRepo(pool)); err != nil {
		log.Fatalf("failed to seed pricing: %v", err)
	}

	log.Println("--- ✅ E2E Environment Setup Complete ---")
}
