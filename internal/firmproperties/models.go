package firmproperties

import (
	"time"

	"github.com/lib/pq"
	"github.com/manzil-bh/manzil-backend/internal/listing"
)

// SourceSRID is the projected reference system parcel polygons are stored
// in (Ain el Abd / UTM 39N). Queries reproject to 4326.
const SourceSRID = 20439

// Parcel is a land stub. Rows come from the cadastral import, never from
// the API.
type Parcel struct {
	ParcelNo  string   `gorm:"primaryKey;column:parcel_no" json:"parcel_no"`
	BlockNo   string   `gorm:"column:block_no;index" json:"block_no"`
	AreaNameE string   `gorm:"column:area_namee;index" json:"area_namee"`
	Zoning    string   `gorm:"column:min_min_go;index" json:"min_min_go"`
	ShapeArea *float64 `gorm:"column:shape_area" json:"shape_area,omitempty"`
	Geom      string   `gorm:"column:geom;type:geometry(MultiPolygon,20439);->" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UnitProperty struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	BuildingName string    `gorm:"not null;default:''" json:"building_name"`
	FlatNo       string    `gorm:"not null;default:''" json:"flat_no"`
	Floor        *int      `json:"floor,omitempty"`
	BlockNo      string    `gorm:"not null;default:''" json:"block_no"`
	AreaName     string    `gorm:"not null;default:'';index" json:"area_name"`
	Address      string    `gorm:"not null;default:''" json:"address"`
	SizeSqm      *float64  `json:"size_sqm,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`
	Geohash      *string   `gorm:"size:12" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type HouseProperty struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	HouseNo   string    `gorm:"not null;default:''" json:"house_no"`
	BlockNo   string    `gorm:"not null;default:''" json:"block_no"`
	AreaName  string    `gorm:"not null;default:'';index" json:"area_name"`
	Address   string    `gorm:"not null;default:''" json:"address"`
	SizeSqm   *float64  `json:"size_sqm,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Geohash   *string   `gorm:"size:12" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// FirmProperty is a ledger row. Exactly one of PropertyID, UnitID and
// HouseID is set, matching PropertyType.
type FirmProperty struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	FirmID       string     `gorm:"type:uuid;not null;index" json:"firm_id"`
	CreatedBy    string     `gorm:"type:uuid;not null" json:"created_by"`
	PropertyType string     `gorm:"not null" json:"property_type"`
	ListingType  *string    `json:"listing_type"`
	Status       string     `gorm:"not null;default:'saved';index" json:"status"`
	PropertyID   *string    `gorm:"column:property_id;index" json:"parcel_no"`
	UnitID       *int64     `gorm:"index" json:"unit_id"`
	HouseID      *int64     `gorm:"index" json:"house_id"`
	Title        string     `gorm:"not null;default:''" json:"title"`
	Description  string     `gorm:"not null;default:''" json:"description"`
	AskingPrice  *float64   `json:"asking_price"`
	RentPrice    *float64   `json:"rent_price"`
	SoldPrice    *float64   `json:"sold_price"`
	Bedrooms     *int       `json:"bedrooms"`
	Bathrooms    *int       `json:"bathrooms"`
	Furnished    *bool      `json:"furnished"`
	SoldAt       *time.Time `json:"sold_at"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"index" json:"updated_at"`
}

func (fp *FirmProperty) stored() listing.Stored {
	cur := listing.Stored{
		Status:      listing.Status(fp.Status),
		AskingPrice: fp.AskingPrice,
		RentPrice:   fp.RentPrice,
	}
	if fp.ListingType != nil {
		cur.ListingType = listing.ListingType(*fp.ListingType)
	}
	return cur
}

func (fp *FirmProperty) Locator() (listing.Locator, error) {
	return listing.LocatorFromColumns(listing.PropertyType(fp.PropertyType), fp.PropertyID, fp.UnitID, fp.HouseID)
}

// RentalAmenity has one boolean column per listing.RentalAmenities entry.
type RentalAmenity struct {
	UnitID      int64 `gorm:"primaryKey;autoIncrement:false"`
	Balcony     bool  `gorm:"not null;default:false"`
	CentralAC   bool  `gorm:"column:central_ac;not null;default:false"`
	Elevator    bool  `gorm:"not null;default:false"`
	Gym         bool  `gorm:"not null;default:false"`
	MaidRoom    bool  `gorm:"not null;default:false"`
	Parking     bool  `gorm:"not null;default:false"`
	PetsAllowed bool  `gorm:"not null;default:false"`
	Pool        bool  `gorm:"not null;default:false"`
	SeaView     bool  `gorm:"not null;default:false"`
	Security    bool  `gorm:"not null;default:false"`
}

// HouseAmenity has one boolean column per listing.HouseAmenities entry.
type HouseAmenity struct {
	HouseID     int64 `gorm:"primaryKey;autoIncrement:false"`
	CentralAC   bool  `gorm:"column:central_ac;not null;default:false"`
	Garage      bool  `gorm:"not null;default:false"`
	Garden      bool  `gorm:"not null;default:false"`
	MaidRoom    bool  `gorm:"not null;default:false"`
	Majlis      bool  `gorm:"not null;default:false"`
	PrivatePool bool  `gorm:"not null;default:false"`
	RoofTerrace bool  `gorm:"not null;default:false"`
	Security    bool  `gorm:"not null;default:false"`
	SolarPanels bool  `gorm:"not null;default:false"`
	Storage     bool  `gorm:"not null;default:false"`
}

func (Parcel) TableName() string        { return "properties" }
func (UnitProperty) TableName() string  { return "unit_properties" }
func (HouseProperty) TableName() string { return "house_properties" }
func (FirmProperty) TableName() string  { return "firm_properties" }
func (RentalAmenity) TableName() string { return "rental_amenities" }
func (HouseAmenity) TableName() string  { return "house_amenities" }

// Listing is a ledger row joined with its stub: the shape every read
// endpoint returns.
type Listing struct {
	ID           int64          `json:"id"`
	FirmID       string         `json:"firm_id"`
	CreatedBy    string         `json:"created_by"`
	PropertyType string         `json:"property_type"`
	ListingType  *string        `json:"listing_type"`
	Status       string         `json:"status"`
	ParcelNo     *string        `json:"parcel_no"`
	UnitID       *int64         `json:"unit_id"`
	HouseID      *int64         `json:"house_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	AskingPrice  *float64       `json:"asking_price"`
	RentPrice    *float64       `json:"rent_price"`
	SoldPrice    *float64       `json:"sold_price"`
	Bedrooms     *int           `json:"bedrooms"`
	Bathrooms    *int           `json:"bathrooms"`
	Furnished    *bool          `json:"furnished"`
	AreaName     *string        `json:"area_name"`
	BlockNo      *string        `json:"block_no"`
	Zoning       *string        `json:"zoning,omitempty"`
	SizeSqm      *float64       `json:"size_sqm"`
	Lat          *float64       `json:"lat"`
	Lon          *float64       `json:"lon"`
	Amenities    pq.StringArray `gorm:"type:text[]" json:"amenities"`
	SoldAt       *time.Time     `json:"sold_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ListFilters narrows a firm's ledger. Zero values are ignored.
type ListFilters struct {
	Status       string
	PropertyType string
	ListingType  string
	Area         string
	Block        string
	MinPrice     *float64
	MaxPrice     *float64
	Limit        int
	Offset       int
}
