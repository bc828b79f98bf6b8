package firmproperties

import (
	"fmt"
	"strings"

	"github.com/manzil-bh/manzil-backend/internal/listing"
)

// Column expressions shared by the ledger, marketplace and search queries.
// Each coalesces across the three stub tables joined in FromJoined.
const (
	AreaExpr  = "COALESCE(p.area_namee, u.area_name, h.area_name)"
	BlockExpr = "COALESCE(p.block_no, u.block_no, h.block_no)"
	PriceExpr = "COALESCE(fp.asking_price, fp.rent_price)"
	LatExpr   = "COALESCE(ST_Y(ST_Transform(ST_PointOnSurface(p.geom), 4326)), u.lat, h.lat)"
	LonExpr   = "COALESCE(ST_X(ST_Transform(ST_PointOnSurface(p.geom), 4326)), u.lon, h.lon)"
	// Parcels without a surveyed shape_area fall back to the geodesic area
	// of the polygon.
	SizeExpr = "COALESCE(p.shape_area, ST_Area(ST_Transform(p.geom, 4326)::geography), u.size_sqm, h.size_sqm)"
)

// FromStubs joins a ledger row to its stub. Aliases: fp, p, u, h.
const FromStubs = `
FROM firm_properties fp
LEFT JOIN properties p ON p.parcel_no = fp.property_id
LEFT JOIN unit_properties u ON u.id = fp.unit_id
LEFT JOIN house_properties h ON h.id = fp.house_id`

// FromJoined adds the amenity rows (ra, ha) to FromStubs.
const FromJoined = FromStubs + `
LEFT JOIN rental_amenities ra ON ra.unit_id = fp.unit_id
LEFT JOIN house_amenities ha ON ha.house_id = fp.house_id`

// AmenitiesExpr pivots the boolean amenity columns into a text[] of the
// names that are set.
var AmenitiesExpr = fmt.Sprintf(
	"COALESCE(CASE WHEN fp.unit_id IS NOT NULL THEN %s WHEN fp.house_id IS NOT NULL THEN %s END, '{}')::text[]",
	pivot("ra", listing.RentalAmenities),
	pivot("ha", listing.HouseAmenities),
)

func pivot(alias string, names []string) string {
	rows := make([]string, len(names))
	for i, n := range names {
		rows[i] = fmt.Sprintf("('%s', %s.%s)", n, alias, n)
	}
	return "ARRAY(SELECT v.name FROM (VALUES " + strings.Join(rows, ", ") + ") AS v(name, enabled) WHERE v.enabled)"
}

// ListingColumns selects every field of Listing.
var ListingColumns = strings.Join([]string{
	"fp.id", "fp.firm_id", "fp.created_by", "fp.property_type", "fp.listing_type", "fp.status",
	"fp.property_id AS parcel_no", "fp.unit_id", "fp.house_id",
	"fp.title", "fp.description",
	"fp.asking_price", "fp.rent_price", "fp.sold_price",
	"fp.bedrooms", "fp.bathrooms", "fp.furnished",
	AreaExpr + " AS area_name",
	BlockExpr + " AS block_no",
	"p.min_min_go AS zoning",
	SizeExpr + " AS size_sqm",
	LatExpr + " AS lat",
	LonExpr + " AS lon",
	AmenitiesExpr + " AS amenities",
	"fp.sold_at", "fp.created_at", "fp.updated_at",
}, ",\n\t")
