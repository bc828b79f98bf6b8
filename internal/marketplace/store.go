package marketplace

import (
	"context"
	"fmt"
	"strings"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/firmproperties"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/sqlfilter"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultLimit = 60
	maxLimit     = 200
)

type Store interface {
	List(ctx context.Context, f Filters) ([]Listing, error)
	Options(ctx context.Context, types []listing.PropertyType) (*Options, error)
	Get(ctx context.Context, types []listing.PropertyType, id int64, withGeometry bool) (*Listing, error)
	GetMany(ctx context.Context, ids []int64) ([]Listing, error)
	Contact(ctx context.Context, id int64) (*Contact, error)
	Nearby(ctx context.Context, lat, lon, radiusM float64, types []listing.PropertyType, limit int) ([]Listing, error)
	// ListAfter pages through every visible listing in id order.
	ListAfter(ctx context.Context, afterID int64, limit int) ([]Listing, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

// Visible is the marketplace predicate: a publicly visible status and one
// of the given property types. Every public query starts from it.
func Visible(types []listing.PropertyType) *sqlfilter.Builder {
	ts := make([]string, len(types))
	for i, t := range types {
		ts[i] = string(t)
	}
	return sqlfilter.New().
		Any("lower(fp.status)", listing.PublicStatuses()).
		Any("fp.property_type", ts)
}

const coverImageExpr = `(SELECT i.url FROM firm_property_images i
	WHERE i.firm_property_id = fp.id ORDER BY i.position, i.id LIMIT 1)`

const geometryExpr = "CASE WHEN fp.property_type = 'land' THEN ST_AsGeoJSON(ST_Transform(p.geom, 4326), 6) END"

const pointExpr = "ST_SetSRID(ST_MakePoint(" + firmproperties.LonExpr + ", " + firmproperties.LatExpr + "), 4326)::geography"

func publicColumns(withGeometry bool) string {
	cols := []string{
		"fp.id", "fp.firm_id", "f.name AS firm_name",
		"fp.property_type", "fp.listing_type", "fp.status",
		"fp.property_id AS parcel_no", "fp.title", "fp.description",
		"fp.asking_price", "fp.rent_price",
		"fp.bedrooms", "fp.bathrooms", "fp.furnished",
		firmproperties.AreaExpr + " AS area_name",
		firmproperties.BlockExpr + " AS block_no",
		"p.min_min_go AS zoning",
		firmproperties.SizeExpr + " AS size_sqm",
		firmproperties.LatExpr + " AS lat",
		firmproperties.LonExpr + " AS lon",
		firmproperties.AmenitiesExpr + " AS amenities",
		coverImageExpr + " AS cover_image",
		"fp.created_at", "fp.updated_at",
	}
	if withGeometry {
		cols = append(cols, geometryExpr+" AS geometry")
	}
	return strings.Join(cols, ",\n\t")
}

const fromPublic = firmproperties.FromJoined + `
LEFT JOIN app_auth.firms f ON f.firm_id = fp.firm_id`

func filterBuilder(f Filters) *sqlfilter.Builder {
	b := Visible(f.Types)
	if f.ListingType != "" {
		b.Eq("fp.listing_type", f.ListingType)
	}
	if f.Bedrooms != nil {
		b.Eq("fp.bedrooms", *f.Bedrooms)
	}
	if f.Bathrooms != nil {
		b.Eq("fp.bathrooms", *f.Bathrooms)
	}
	b.IntRange("fp.bedrooms", f.MinBedrooms, nil)
	if f.Area != "" {
		b.ILike(firmproperties.AreaExpr, f.Area)
	}
	if f.FirmID != "" {
		b.Eq("fp.firm_id", f.FirmID)
	}
	if f.Furnished != nil {
		b.Eq("fp.furnished", *f.Furnished)
	}
	b.Range(firmproperties.PriceExpr, f.MinPrice, f.MaxPrice)
	return b
}

func clamp(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}

func (s *GormStore) scan(ctx context.Context, q string, args []any) ([]Listing, error) {
	out := []Listing{}
	if err := s.db.WithContext(ctx).Raw(q, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	for i := range out {
		out[i].finish()
	}
	return out, nil
}

func (s *GormStore) List(ctx context.Context, f Filters) ([]Listing, error) {
	where, args := filterBuilder(f).Where()
	args = append(args, clamp(f.Limit), max(f.Offset, 0))
	q := "SELECT " + publicColumns(f.WithGeometry) + fromPublic + "\n" + where +
		"\nORDER BY fp.updated_at DESC, fp.id DESC LIMIT ? OFFSET ?"

	out, err := s.scan(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("list marketplace: %w", err)
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, types []listing.PropertyType, id int64, withGeometry bool) (*Listing, error) {
	where, args := Visible(types).Eq("fp.id", id).Where()
	out, err := s.scan(ctx, "SELECT "+publicColumns(withGeometry)+fromPublic+"\n"+where, args)
	if err != nil {
		return nil, fmt.Errorf("get marketplace listing %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, db.ErrNotFound
	}
	return &out[0], nil
}

// GetMany returns the visible listings among ids, in the order given.
func (s *GormStore) GetMany(ctx context.Context, ids []int64) ([]Listing, error) {
	if len(ids) == 0 {
		return []Listing{}, nil
	}
	where, args := Visible(listing.PropertyTypes).AnyInt("fp.id", ids).Where()
	rows, err := s.scan(ctx, "SELECT "+publicColumns(false)+fromPublic+"\n"+where, args)
	if err != nil {
		return nil, fmt.Errorf("get marketplace listings: %w", err)
	}

	byID := make(map[int64]Listing, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]Listing, 0, len(rows))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *GormStore) Contact(ctx context.Context, id int64) (*Contact, error) {
	var out []Contact
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COALESCE(cu.full_name, '') AS agent_name,
			COALESCE(cu.email, '')     AS agent_email,
			COALESCE(cu.phone, '')     AS agent_phone,
			COALESCE(f.name, '')       AS firm_name,
			COALESCE(f.phone, '')      AS firm_phone,
			COALESCE(f.email, '')      AS firm_email,
			COALESCE(f.logo_url, '')   AS firm_logo_url
		FROM firm_properties fp
		LEFT JOIN app_auth.users cu ON cu.user_id = fp.created_by
		LEFT JOIN app_auth.firms f ON f.firm_id = fp.firm_id
		WHERE fp.id = ?`, id).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing contact %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, db.ErrNotFound
	}
	return &out[0], nil
}

func (s *GormStore) Nearby(ctx context.Context, lat, lon, radiusM float64, types []listing.PropertyType, limit int) ([]Listing, error) {
	where, args := Visible(types).
		Raw("ST_DWithin("+pointExpr+", ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?)", lon, lat, radiusM).
		Where()

	q := "SELECT " + publicColumns(false) +
		",\n\tST_Distance(" + pointExpr + ", ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography) AS distance_m" +
		fromPublic + "\n" + where + "\nORDER BY distance_m LIMIT ?"

	all := append([]any{lon, lat}, args...)
	all = append(all, clamp(limit))
	out, err := s.scan(ctx, q, all)
	if err != nil {
		return nil, fmt.Errorf("nearby listings: %w", err)
	}
	return out, nil
}

func (s *GormStore) ListAfter(ctx context.Context, afterID int64, limit int) ([]Listing, error) {
	where, args := Visible(listing.PropertyTypes).Raw("fp.id > ?", afterID).Where()
	args = append(args, limit)
	out, err := s.scan(ctx, "SELECT "+publicColumns(false)+fromPublic+"\n"+where+"\nORDER BY fp.id LIMIT ?", args)
	if err != nil {
		return nil, fmt.Errorf("page visible listings: %w", err)
	}
	return out, nil
}

// Options runs one DISTINCT query per option set, in parallel.
func (s *GormStore) Options(ctx context.Context, types []listing.PropertyType) (*Options, error) {
	base := Visible(types)
	o := &Options{Bedrooms: []int{}, Bathrooms: []int{}, Areas: []string{}, Types: []string{}, ListingTypes: []string{}}

	distinct := func(ctx context.Context, expr string, dst any) error {
		where, args := base.Clone().Raw(expr + " IS NOT NULL").Where()
		q := "SELECT DISTINCT " + expr + " AS v" + firmproperties.FromStubs + "\n" + where + "\nORDER BY v"
		if err := s.db.WithContext(ctx).Raw(q, args...).Scan(dst).Error; err != nil {
			return fmt.Errorf("options %s: %w", expr, err)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return distinct(gctx, "fp.bedrooms", &o.Bedrooms) })
	g.Go(func() error { return distinct(gctx, "fp.bathrooms", &o.Bathrooms) })
	g.Go(func() error { return distinct(gctx, firmproperties.AreaExpr, &o.Areas) })
	g.Go(func() error { return distinct(gctx, "fp.property_type", &o.Types) })
	g.Go(func() error { return distinct(gctx, "fp.listing_type", &o.ListingTypes) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return o, nil
}
