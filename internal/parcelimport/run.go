package parcelimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/firmproperties"
	"gorm.io/gorm"
)

type Config struct {
	Path        string
	DatabaseURL string
	DryRun      bool
	Logger      *slog.Logger
}

type Summary struct {
	Parsed   int
	Skipped  int
	Upserted int
}

var upsertSQL = fmt.Sprintf(`
	INSERT INTO properties (parcel_no, block_no, area_namee, min_min_go, shape_area, geom, updated_at)
	VALUES (?, ?, ?, ?, ?, ST_Multi(ST_Transform(ST_SetSRID(ST_GeomFromGeoJSON(?), 4326), %d)), now())
	ON CONFLICT (parcel_no) DO UPDATE SET
		block_no   = EXCLUDED.block_no,
		area_namee = EXCLUDED.area_namee,
		min_min_go = EXCLUDED.min_min_go,
		shape_area = EXCLUDED.shape_area,
		geom       = EXCLUDED.geom,
		updated_at = now()`, firmproperties.SourceSRID)

// Upsert writes parcels in one transaction; any failure rolls back the
// whole file.
func Upsert(ctx context.Context, d *gorm.DB, parcels []Parcel) (int, error) {
	n := 0
	err := d.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range parcels {
			if err := tx.Exec(upsertSQL,
				p.ParcelNo, p.BlockNo, p.AreaNameE, p.Zoning, p.ShapeArea, p.GeoJSON,
			).Error; err != nil {
				return fmt.Errorf("upsert parcel %s: %w", p.ParcelNo, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func Run(ctx context.Context, cfg Config) (Summary, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Path == "" {
		return Summary{}, errors.New("no input file")
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	parcels, skips, err := Parse(f)
	if err != nil {
		return Summary{}, err
	}
	for _, s := range skips {
		log.Warn("feature skipped", "index", s.Index, "reason", s.Reason)
	}
	sum := Summary{Parsed: len(parcels), Skipped: len(skips)}

	if cfg.DryRun {
		log.Info("dry run, nothing written", "parcels", sum.Parsed, "skipped", sum.Skipped)
		return sum, nil
	}

	gdb, err := db.Connect(db.Options{DSN: cfg.DatabaseURL, Logger: log})
	if err != nil {
		return sum, err
	}
	if err := firmproperties.Init(gdb); err != nil {
		return sum, err
	}
	sum.Upserted, err = Upsert(ctx, gdb, parcels)
	if err != nil {
		return sum, err
	}
	log.Info("parcels imported", "upserted", sum.Upserted, "skipped", sum.Skipped)
	return sum, nil
}
