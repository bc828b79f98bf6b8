package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/manzil-bh/manzil-backend/internal/config"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/manzil-bh/manzil-backend/internal/marketplace"
	"github.com/manzil-bh/manzil-backend/internal/search"
)

// reindex rebuilds the marketplace search index once, outside the
// server's schedule. Useful after a bulk import or a Meilisearch reset.
func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if cfg.DatabaseURL == "" || !cfg.SearchEnabled() {
		log.Error("DATABASE_URL and MEILI_HOST must both be set")
		os.Exit(2)
	}

	gdb, err := db.Connect(db.Options{DSN: cfg.DatabaseURL, Logger: log})
	if err != nil {
		log.Error("connect", logging.Err(err))
		os.Exit(1)
	}

	idx := search.NewMeiliIndex(cfg.Meili.Host, cfg.Meili.APIKey, cfg.Meili.Index)
	if err := idx.Bootstrap(); err != nil {
		log.Error("bootstrap index", logging.Err(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	n, err := search.NewReindexer(marketplace.NewGormStore(gdb), idx, log).Run(ctx)
	if err != nil {
		log.Error("reindex", logging.Err(err))
		os.Exit(1)
	}
	fmt.Printf("Indexed %d listings into %q\n", n, cfg.Meili.Index)
}
