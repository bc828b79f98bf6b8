package firmproperties

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/sqlfilter"
	"github.com/mmcloughlin/geohash"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GeohashPrecision 9 cells are roughly 5m across: one building.
const GeohashPrecision = 9

const (
	defaultLimit = 200
	maxLimit     = 500
)

// Store is the firm-scoped ledger. Every method takes the caller's firm id;
// rows of other firms behave as if they did not exist.
type Store interface {
	Create(ctx context.Context, firmID, userID string, nl *listing.NewListing) (int64, error)
	List(ctx context.Context, firmID string, f ListFilters) ([]Listing, error)
	Get(ctx context.Context, firmID string, id int64) (*Listing, error)
	ListByParcel(ctx context.Context, firmID, parcelNo string) ([]Listing, error)
	Update(ctx context.Context, firmID string, id int64, p *listing.Patch) (*Listing, error)
	Delete(ctx context.Context, firmID string, id int64) (*FirmProperty, error)
}

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d, now: time.Now}
}

func (s *GormStore) Create(ctx context.Context, firmID, userID string, nl *listing.NewListing) (int64, error) {
	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loc := nl.Locator
		if nl.Stub != nil {
			stubID, err := upsertStub(tx, nl.Type, nl.Stub)
			if err != nil {
				return fmt.Errorf("insert %s stub: %w", nl.Type, err)
			}
			if nl.Type == listing.TypeApartment {
				loc, err = listing.ApartmentLocator(stubID)
			} else {
				loc, err = listing.HouseLocator(stubID)
			}
			if err != nil {
				return err
			}
		}

		parcelNo, unitID, houseID := loc.Columns()
		now := s.now().UTC()
		row := FirmProperty{
			FirmID:       firmID,
			CreatedBy:    userID,
			PropertyType: string(nl.Type),
			Status:       string(nl.Status),
			PropertyID:   parcelNo,
			UnitID:       unitID,
			HouseID:      houseID,
			Title:        nl.Title,
			Description:  nl.Description,
			AskingPrice:  nl.AskingPrice,
			RentPrice:    nl.RentPrice,
			Bedrooms:     nl.Bedrooms,
			Bathrooms:    nl.Bathrooms,
			Furnished:    nl.Furnished,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if nl.ListingType != "" {
			lt := string(nl.ListingType)
			row.ListingType = &lt
		}
		if nl.Status == listing.StatusSold {
			row.SoldAt = &now
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert ledger row: %w", translate(err))
		}

		if len(nl.Amenities) > 0 {
			stubID := derefInt64(unitID, houseID)
			if err := upsertAmenities(tx, nl.Type, stubID, nl.Amenities); err != nil {
				return fmt.Errorf("upsert amenities: %w", err)
			}
		}

		id = row.ID
		return nil
	})
	return id, err
}

// upsertStub inserts a new unit or house. Stubs with coordinates collapse
// onto an existing row in the same geohash cell with the same number.
func upsertStub(tx *gorm.DB, t listing.PropertyType, st *listing.NewStub) (int64, error) {
	var gh *string
	if st.HasCoordinates() {
		h := geohash.EncodeWithPrecision(*st.Lat, *st.Lon, GeohashPrecision)
		gh = &h
	}
	number := strings.TrimSpace(st.Number)

	var id int64
	var err error
	switch t {
	case listing.TypeApartment:
		err = tx.Raw(`
			INSERT INTO unit_properties
				(building_name, flat_no, floor, block_no, area_name, address, size_sqm, lat, lon, geohash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, now())
			ON CONFLICT (geohash, flat_no) WHERE geohash IS NOT NULL DO UPDATE SET
				building_name = COALESCE(NULLIF(unit_properties.building_name, ''), EXCLUDED.building_name),
				address       = COALESCE(NULLIF(unit_properties.address, ''), EXCLUDED.address),
				size_sqm      = COALESCE(unit_properties.size_sqm, EXCLUDED.size_sqm)
			RETURNING id`,
			strings.TrimSpace(st.BuildingName), number, st.Floor,
			strings.TrimSpace(st.BlockNo), strings.TrimSpace(st.AreaName), strings.TrimSpace(st.Address),
			st.SizeSqm, st.Lat, st.Lon, gh,
		).Scan(&id).Error
	case listing.TypeHouse:
		err = tx.Raw(`
			INSERT INTO house_properties
				(house_no, block_no, area_name, address, size_sqm, lat, lon, geohash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, now())
			ON CONFLICT (geohash, house_no) WHERE geohash IS NOT NULL DO UPDATE SET
				address  = COALESCE(NULLIF(house_properties.address, ''), EXCLUDED.address),
				size_sqm = COALESCE(house_properties.size_sqm, EXCLUDED.size_sqm)
			RETURNING id`,
			number, strings.TrimSpace(st.BlockNo), strings.TrimSpace(st.AreaName), strings.TrimSpace(st.Address),
			st.SizeSqm, st.Lat, st.Lon, gh,
		).Scan(&id).Error
	default:
		return 0, fmt.Errorf("%s listings have no stub table", t)
	}
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("stub insert returned no id")
	}
	return id, nil
}

// upsertAmenities records amenities on the stub's shared row. A flag once
// set stays set: a later listing of the same unit by any firm can add
// amenities but never clear another listing's. names must already be
// normalised against the catalogue; they are used as column names.
func upsertAmenities(tx *gorm.DB, t listing.PropertyType, stubID int64, names []string) error {
	table, key := "rental_amenities", "unit_id"
	if t == listing.TypeHouse {
		table, key = "house_amenities", "house_id"
	}
	catalogue := listing.AmenityCatalogue(t)

	on := make(map[string]bool, len(names))
	for _, n := range names {
		on[n] = true
	}

	cols := []string{key}
	marks := []string{"?"}
	sets := make([]string, 0, len(catalogue))
	args := []any{stubID}
	for _, c := range catalogue {
		cols = append(cols, c)
		marks = append(marks, "?")
		sets = append(sets, fmt.Sprintf("%s = %s.%s OR EXCLUDED.%s", c, table, c, c))
		args = append(args, on[c])
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "), key, strings.Join(sets, ", "))
	return tx.Exec(q, args...).Error
}

func derefInt64(ps ...*int64) int64 {
	for _, p := range ps {
		if p != nil {
			return *p
		}
	}
	return 0
}

// translate turns constraint violations the caller can fix into validation
// errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503":
		switch pgErr.ConstraintName {
		case "firm_properties_parcel_fk":
			return &listing.ValidationError{Field: "parcel_no", Msg: "no such parcel"}
		case "firm_properties_unit_fk":
			return &listing.ValidationError{Field: "unit_id", Msg: "no such unit"}
		case "firm_properties_house_fk":
			return &listing.ValidationError{Field: "house_id", Msg: "no such house"}
		}
	case "23514":
		return &listing.ValidationError{Field: "locator", Msg: listing.ErrLocator.Error()}
	}
	return err
}

func listFilter(firmID string, f ListFilters) *sqlfilter.Builder {
	b := sqlfilter.New().Eq("fp.firm_id", firmID)
	if f.Status != "" {
		b.EqFold("fp.status", f.Status)
	}
	if f.PropertyType != "" {
		b.Eq("fp.property_type", f.PropertyType)
	}
	if f.ListingType != "" {
		b.Eq("fp.listing_type", f.ListingType)
	}
	if f.Area != "" {
		b.ILike(AreaExpr, f.Area)
	}
	if f.Block != "" {
		b.Eq(BlockExpr, f.Block)
	}
	b.Range(PriceExpr, f.MinPrice, f.MaxPrice)
	return b
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}

func (s *GormStore) List(ctx context.Context, firmID string, f ListFilters) ([]Listing, error) {
	where, args := listFilter(firmID, f).Where()
	args = append(args, clampLimit(f.Limit), max(f.Offset, 0))

	q := "SELECT " + ListingColumns + FromJoined + "\n" + where +
		"\nORDER BY fp.updated_at DESC, fp.id DESC LIMIT ? OFFSET ?"

	out := []Listing{}
	if err := s.db.WithContext(ctx).Raw(q, args...).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list firm properties: %w", err)
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, firmID string, id int64) (*Listing, error) {
	where, args := sqlfilter.New().Eq("fp.id", id).Eq("fp.firm_id", firmID).Where()

	var out []Listing
	if err := s.db.WithContext(ctx).Raw("SELECT "+ListingColumns+FromJoined+"\n"+where, args...).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("get firm property %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, db.ErrNotFound
	}
	return &out[0], nil
}

func (s *GormStore) ListByParcel(ctx context.Context, firmID, parcelNo string) ([]Listing, error) {
	where, args := sqlfilter.New().Eq("fp.property_id", parcelNo).Eq("fp.firm_id", firmID).Where()

	out := []Listing{}
	q := "SELECT " + ListingColumns + FromJoined + "\n" + where + "\nORDER BY fp.updated_at DESC, fp.id DESC"
	if err := s.db.WithContext(ctx).Raw(q, args...).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list firm properties for parcel %s: %w", parcelNo, err)
	}
	return out, nil
}

func (s *GormStore) Update(ctx context.Context, firmID string, id int64, p *listing.Patch) (*Listing, error) {
	cols := p.Columns()
	now := s.now().UTC()
	cols["updated_at"] = now
	if p.Status != nil && *p.Status == listing.StatusSold {
		cols["sold_at"] = gorm.Expr("COALESCE(sold_at, ?)", now)
	} else if p.ClearsSoldAt() {
		cols["sold_at"] = nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur FirmProperty
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND firm_id = ?", id, firmID).
			Take(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := p.CheckMerged(cur.stored()); err != nil {
			return err
		}
		return tx.Model(&FirmProperty{}).
			Where("id = ? AND firm_id = ?", id, firmID).
			Updates(cols).Error
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || listing.IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update firm property %d: %w", id, translate(err))
	}
	return s.Get(ctx, firmID, id)
}

func (s *GormStore) Delete(ctx context.Context, firmID string, id int64) (*FirmProperty, error) {
	var rows []FirmProperty
	res := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ? AND firm_id = ?", id, firmID).
		Delete(&rows)
	if res.Error != nil {
		return nil, fmt.Errorf("delete firm property %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 || len(rows) == 0 {
		return nil, db.ErrNotFound
	}
	return &rows[0], nil
}
