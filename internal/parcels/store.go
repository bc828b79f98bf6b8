package parcels

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/manzil-bh/manzil-backend/internal/firmproperties"
	"github.com/manzil-bh/manzil-backend/internal/sqlfilter"
	"gorm.io/gorm"
)

// Row is one parcel with its outline already reprojected to WGS-84.
type Row struct {
	ParcelNo  string
	BlockNo   string
	AreaNameE string
	Zoning    string
	ShapeArea *float64
	GeoJSON   string
	FirmSaved bool
}

// BBox is minLon, minLat, maxLon, maxLat in WGS-84.
type BBox [4]float64

type Filters struct {
	BlockNo        string
	AreaNameE      string
	Zoning         string
	BBox           *BBox
	ExcludedZoning []string
	Limit          int
}

type Store interface {
	Parcels(ctx context.Context, firmID string, f Filters) ([]Row, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

func filterBuilder(f Filters) *sqlfilter.Builder {
	b := sqlfilter.New("p.geom IS NOT NULL")
	if len(f.ExcludedZoning) > 0 {
		b.Raw("COALESCE(p.min_min_go, '') <> ALL(?)", pq.Array(f.ExcludedZoning))
	}
	if f.BlockNo != "" {
		b.Eq("p.block_no", f.BlockNo)
	}
	if f.AreaNameE != "" {
		b.EqFold("p.area_namee", f.AreaNameE)
	}
	if f.Zoning != "" {
		b.EqFold("p.min_min_go", f.Zoning)
	}
	if f.BBox != nil {
		b.Raw(fmt.Sprintf("p.geom && ST_Transform(ST_MakeEnvelope(?, ?, ?, ?, 4326), %d)", firmproperties.SourceSRID),
			f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3])
	}
	return b
}

func (s *GormStore) Parcels(ctx context.Context, firmID string, f Filters) ([]Row, error) {
	where, args := filterBuilder(f).Where()
	q := `
		SELECT
			p.parcel_no,
			COALESCE(p.block_no, '')   AS block_no,
			COALESCE(p.area_namee, '') AS area_name_e,
			COALESCE(p.min_min_go, '') AS zoning,
			COALESCE(p.shape_area, ST_Area(ST_Transform(p.geom, 4326)::geography)) AS shape_area,
			ST_AsGeoJSON(ST_Transform(p.geom, 4326), 6) AS geo_json,
			EXISTS (
				SELECT 1 FROM firm_properties fp
				WHERE fp.property_id = p.parcel_no AND fp.firm_id = ?
			) AS firm_saved
		FROM properties p
		` + where + `
		ORDER BY p.parcel_no
		LIMIT ?`

	// Callers without a firm see firm_saved = false everywhere.
	var firm any
	if firmID != "" {
		firm = firmID
	}
	all := append([]any{firm}, args...)
	all = append(all, f.Limit)

	out := []Row{}
	if err := s.db.WithContext(ctx).Raw(q, all...).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("query parcels: %w", err)
	}
	return out, nil
}
