package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/manzil-bh/manzil-backend/internal/parcelimport"
)

func main() {
	_ = godotenv.Load(".env.local")

	var (
		path   = flag.String("file", "", "path to a GeoJSON FeatureCollection of parcels (WGS-84)")
		dbURL  = flag.String("db", os.Getenv("DATABASE_URL"), "DATABASE_URL")
		dryRun = flag.Bool("dry-run", false, "parse and validate only")
	)
	flag.Parse()

	if *path == "" || (*dbURL == "" && !*dryRun) {
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL")})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := parcelimport.Config{
		Path:        *path,
		DatabaseURL: *dbURL,
		DryRun:      *dryRun,
		Logger:      log,
	}
	if _, err := parcelimport.Run(ctx, cfg); err != nil {
		log.Error("parcel import failed", logging.Err(err))
		os.Exit(1)
	}
}
