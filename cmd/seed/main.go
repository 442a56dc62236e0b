package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Alterya/agents-sub000/internal/config"
	pg "github.com/Alterya/agents-sub000/internal/infra/db/postgres"
	"github.com/Alterya/agents-sub000/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	pricingRepo := pg.NewModelPricingRepo(pool)

	// If any pricing rows exist, do nothing
	rows, err := pricingRepo.ListActive(ctx)
	if err != nil {
		log.Fatalf("list pricing: %v", err)
	}
	if len(rows) > 0 {
		fmt.Printf("%d pricing rows already present. No changes.\n", len(rows))
		for _, p := range rows {
			fmt.Printf("  - %s/%s (in=$%.4f out=$%.4f per 1K)\n", p.Provider, p.ModelName, p.InputUSDPer1K, p.OutputUSDPer1K)
		}
		return
	}

	if err := usecase.SeedDefaults(ctx, pricingRepo); err != nil {
		log.Fatalf("seed pricing: %v", err)
	}
	fmt.Println("✅ Seeding complete.")
}
