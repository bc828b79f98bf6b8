package marketplace

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/manzil-bh/manzil-backend/internal/images"
	"github.com/manzil-bh/manzil-backend/internal/listing"
)

// Listing is the public projection of a ledger row. Internal fields such
// as sold_price and created_by are not selected.
type Listing struct {
	ID           int64           `json:"id"`
	FirmID       string          `json:"firm_id"`
	FirmName     *string         `json:"firm_name"`
	PropertyType string          `json:"property_type"`
	ListingType  *string         `json:"listing_type"`
	Status       string          `json:"status"`
	ParcelNo     *string         `json:"parcel_no,omitempty"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	AskingPrice  *float64        `json:"asking_price"`
	RentPrice    *float64        `json:"rent_price"`
	Bedrooms     *int            `json:"bedrooms"`
	Bathrooms    *int            `json:"bathrooms"`
	Furnished    *bool           `json:"furnished"`
	AreaName     *string         `json:"area_name"`
	BlockNo      *string         `json:"block_no"`
	Zoning       *string         `json:"zoning,omitempty"`
	SizeSqm      *float64        `json:"size_sqm"`
	Lat          *float64        `json:"lat"`
	Lon          *float64        `json:"lon"`
	Amenities    pq.StringArray  `gorm:"type:text[]" json:"amenities"`
	CoverImage   *string         `json:"cover_image"`
	DistanceM    *float64        `json:"distance_m,omitempty"`
	GeometryJSON *string         `gorm:"column:geometry" json:"-"`
	Geometry     json.RawMessage `gorm:"-" json:"geometry,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (l *Listing) finish() {
	if l.GeometryJSON != nil {
		l.Geometry = json.RawMessage(*l.GeometryJSON)
	}
	if l.Amenities == nil {
		l.Amenities = pq.StringArray{}
	}
}

type Contact struct {
	AgentName   string `json:"agent_name"`
	AgentEmail  string `json:"agent_email"`
	AgentPhone  string `json:"agent_phone"`
	FirmName    string `json:"firm_name"`
	FirmPhone   string `json:"firm_phone"`
	FirmEmail   string `json:"firm_email"`
	FirmLogoURL string `json:"firm_logo_url"`
}

type Detail struct {
	Listing
	Contact Contact        `json:"contact"`
	Images  []images.Image `json:"images"`
}

// Options are the distinct filter values across the whole visible
// catalogue of a route, ignoring the caller's filters.
type Options struct {
	Bedrooms     []int    `json:"bedrooms"`
	Bathrooms    []int    `json:"bathrooms"`
	Areas        []string `json:"areas"`
	Types        []string `json:"types"`
	ListingTypes []string `json:"listing_types"`
}

type Filters struct {
	Types        []listing.PropertyType
	ListingType  string
	Bedrooms     *int
	Bathrooms    *int
	MinBedrooms  *int
	Area         string
	MinPrice     *float64
	MaxPrice     *float64
	FirmID       string
	Furnished    *bool
	Limit        int
	Offset       int
	WithGeometry bool
}

// Catalogue is one public route family, e.g. /residential.
type Catalogue struct {
	Path     string
	Types    []listing.PropertyType
	Geometry bool
}

var Catalogues = []Catalogue{
	{Path: "residential", Types: []listing.PropertyType{listing.TypeApartment, listing.TypeHouse}},
	{Path: "apartment", Types: []listing.PropertyType{listing.TypeApartment}},
	{Path: "house", Types: []listing.PropertyType{listing.TypeHouse}},
	{Path: "land", Types: []listing.PropertyType{listing.TypeLand}, Geometry: true},
}
