package listing

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is returned for any request the caller can fix. Handlers
// map it to 400.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewStub describes a unit or house that is not yet in the stub tables.
type NewStub struct {
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	Address      string   `json:"address,omitempty"`
	AreaName     string   `json:"area_name,omitempty"`
	BlockNo      string   `json:"block_no,omitempty"`
	Number       string   `json:"number,omitempty"`
	BuildingName string   `json:"building_name,omitempty"`
	Floor        *int     `json:"floor,omitempty"`
	SizeSqm      *float64 `json:"size_sqm,omitempty"`
}

func (s *NewStub) HasCoordinates() bool {
	return s.Lat != nil && s.Lon != nil
}

type CreateRequest struct {
	PropertyType string   `json:"property_type"`
	ListingType  string   `json:"listing_type,omitempty"`
	Status       string   `json:"status,omitempty"`
	ParcelNo     *string  `json:"parcel_no,omitempty"`
	UnitID       *int64   `json:"unit_id,omitempty"`
	HouseID      *int64   `json:"house_id,omitempty"`
	NewStub      *NewStub `json:"new_stub,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	AskingPrice  *float64 `json:"asking_price,omitempty"`
	RentPrice    *float64 `json:"rent_price,omitempty"`
	Bedrooms     *int     `json:"bedrooms,omitempty"`
	Bathrooms    *int     `json:"bathrooms,omitempty"`
	Furnished    *bool    `json:"furnished,omitempty"`
	Amenities    []string `json:"amenities,omitempty"`
}

// NewListing is a CreateRequest that passed ValidateCreate. Exactly one of
// Locator and Stub is set.
type NewListing struct {
	Type        PropertyType
	ListingType ListingType
	Status      Status
	Locator     Locator
	Stub        *NewStub
	Title       string
	Description string
	AskingPrice *float64
	RentPrice   *float64
	Bedrooms    *int
	Bathrooms   *int
	Furnished   *bool
	Amenities   []string
}

func ValidateCreate(req CreateRequest) (*NewListing, error) {
	pt, err := ParsePropertyType(req.PropertyType)
	if err != nil {
		return nil, invalid("property_type", "must be one of land, apartment, house")
	}

	out := &NewListing{
		Type:        pt,
		Status:      StatusSaved,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		AskingPrice: req.AskingPrice,
		RentPrice:   req.RentPrice,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		Furnished:   req.Furnished,
	}

	if strings.TrimSpace(req.Status) != "" {
		if out.Status, err = ParseStatus(req.Status); err != nil {
			return nil, invalid("status", "%q is not a recognised status", req.Status)
		}
	}

	if err := resolveLocator(pt, req, out); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.ListingType) != "" {
		if out.ListingType, err = ParseListingType(req.ListingType); err != nil {
			return nil, invalid("listing_type", "must be sale or rent")
		}
	} else if out.Status != StatusSaved {
		return nil, invalid("listing_type", "is required unless status is saved")
	}

	if err := checkPrices(out.ListingType, out.AskingPrice, out.RentPrice); err != nil {
		return nil, err
	}

	if err := checkRooms(pt, out.Bedrooms, out.Bathrooms); err != nil {
		return nil, err
	}

	if out.Amenities, err = NormalizeAmenities(pt, req.Amenities); err != nil {
		return nil, invalid("amenities", "%s", err.Error())
	}

	return out, nil
}

func resolveLocator(pt PropertyType, req CreateRequest, out *NewListing) error {
	refs := 0
	for _, set := range []bool{req.ParcelNo != nil, req.UnitID != nil, req.HouseID != nil, req.NewStub != nil} {
		if set {
			refs++
		}
	}
	if refs != 1 {
		return invalid("locator", "provide exactly one of parcel_no, unit_id, house_id or new_stub")
	}

	var err error
	switch pt {
	case TypeLand:
		if req.ParcelNo == nil {
			return invalid("parcel_no", "is required for land")
		}
		out.Locator, err = LandLocator(*req.ParcelNo)
	case TypeApartment:
		switch {
		case req.UnitID != nil:
			out.Locator, err = ApartmentLocator(*req.UnitID)
		case req.NewStub != nil:
			return checkStub(req.NewStub, out)
		default:
			return invalid("unit_id", "is required for an apartment")
		}
	case TypeHouse:
		switch {
		case req.HouseID != nil:
			out.Locator, err = HouseLocator(*req.HouseID)
		case req.NewStub != nil:
			return checkStub(req.NewStub, out)
		default:
			return invalid("house_id", "is required for a house")
		}
	}
	if err != nil {
		return invalid("locator", "%s", err.Error())
	}
	return nil
}

func checkStub(s *NewStub, out *NewListing) error {
	if !s.HasCoordinates() && strings.TrimSpace(s.Address) == "" {
		return invalid("new_stub", "needs lat/lon or an address")
	}
	if s.HasCoordinates() {
		if *s.Lat < -90 || *s.Lat > 90 || *s.Lon < -180 || *s.Lon > 180 {
			return invalid("new_stub", "coordinates out of range")
		}
	}
	if s.SizeSqm != nil && *s.SizeSqm <= 0 {
		return invalid("new_stub.size_sqm", "must be positive")
	}
	out.Stub = s
	return nil
}

func checkPrices(lt ListingType, asking, rent *float64) error {
	if asking != nil && *asking <= 0 {
		return invalid("asking_price", "must be positive")
	}
	if rent != nil && *rent <= 0 {
		return invalid("rent_price", "must be positive")
	}
	switch lt {
	case ListingSale:
		if asking == nil {
			return invalid("asking_price", "is required for a sale listing")
		}
	case ListingRent:
		if rent == nil {
			return invalid("rent_price", "is required for a rent listing")
		}
	}
	return nil
}

func checkRooms(pt PropertyType, bedrooms, bathrooms *int) error {
	if pt == TypeLand && (bedrooms != nil || bathrooms != nil) {
		return invalid("bedrooms", "land listings have no rooms")
	}
	if bedrooms != nil && *bedrooms <= 0 {
		return invalid("bedrooms", "must be positive")
	}
	if bathrooms != nil && *bathrooms <= 0 {
		return invalid("bathrooms", "must be positive")
	}
	return nil
}

type UpdateRequest struct {
	Status      *string  `json:"status,omitempty"`
	ListingType *string  `json:"listing_type,omitempty"`
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	AskingPrice *float64 `json:"asking_price,omitempty"`
	RentPrice   *float64 `json:"rent_price,omitempty"`
	SoldPrice   *float64 `json:"sold_price,omitempty"`
}

// Patch is the whitelisted set of column changes derived from an
// UpdateRequest.
type Patch struct {
	Status      *Status
	ListingType *ListingType
	Title       *string
	Description *string
	AskingPrice *float64
	RentPrice   *float64
	SoldPrice   *float64
}

// Columns returns the column/value pairs to write. updated_at is added by the
// store.
func (p *Patch) Columns() map[string]any {
	cols := map[string]any{}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.ListingType != nil {
		cols["listing_type"] = string(*p.ListingType)
	}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.AskingPrice != nil {
		cols["asking_price"] = *p.AskingPrice
	}
	if p.RentPrice != nil {
		cols["rent_price"] = *p.RentPrice
	}
	if p.SoldPrice != nil {
		cols["sold_price"] = *p.SoldPrice
	}
	return cols
}

func ValidateUpdate(req UpdateRequest) (*Patch, error) {
	p := &Patch{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Status != nil {
		s, err := ParseStatus(*req.Status)
		if err != nil {
			return nil, invalid("status", "%q is not a recognised status", *req.Status)
		}
		p.Status = &s
	}
	if req.ListingType != nil {
		lt, err := ParseListingType(*req.ListingType)
		if err != nil {
			return nil, invalid("listing_type", "must be sale or rent")
		}
		p.ListingType = &lt
	}
	for field, v := range map[string]*float64{
		"asking_price": req.AskingPrice,
		"rent_price":   req.RentPrice,
		"sold_price":   req.SoldPrice,
	} {
		if v != nil && *v <= 0 {
			return nil, invalid(field, "must be positive")
		}
	}
	p.AskingPrice, p.RentPrice, p.SoldPrice = req.AskingPrice, req.RentPrice, req.SoldPrice

	if len(p.Columns()) == 0 {
		return nil, invalid("", "no updatable fields in request")
	}
	return p, nil
}

// Stored is the persisted state of a listing that a Patch is applied to.
type Stored struct {
	Status      Status
	ListingType ListingType
	AskingPrice *float64
	RentPrice   *float64
}

// CheckMerged applies p over cur and re-runs the listing_type and price
// rules ValidateCreate enforces, so a patch cannot move a listing into a
// state a create would have rejected.
func (p *Patch) CheckMerged(cur Stored) error {
	m := cur
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.ListingType != nil {
		m.ListingType = *p.ListingType
	}
	if p.AskingPrice != nil {
		m.AskingPrice = p.AskingPrice
	}
	if p.RentPrice != nil {
		m.RentPrice = p.RentPrice
	}
	if m.ListingType == "" && m.Status != StatusSaved {
		return invalid("listing_type", "is required unless status is saved")
	}
	return checkPrices(m.ListingType, m.AskingPrice, m.RentPrice)
}

// ClearsSoldAt reports whether the patch moves a listing off sold.
func (p *Patch) ClearsSoldAt() bool {
	return p.Status != nil && *p.Status != StatusSold
}
