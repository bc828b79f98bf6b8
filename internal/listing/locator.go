package listing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrLocator = errors.New("listing must reference exactly one parcel, unit or house")

// Locator identifies the physical property behind a ledger row. The zero
// value is invalid; build one with LandLocator, ApartmentLocator,
// HouseLocator or LocatorFromColumns.
type Locator struct {
	kind     PropertyType
	parcelNo string
	id       int64
}

func LandLocator(parcelNo string) (Locator, error) {
	parcelNo = strings.TrimSpace(parcelNo)
	if parcelNo == "" {
		return Locator{}, fmt.Errorf("%w: empty parcel number", ErrLocator)
	}
	return Locator{kind: TypeLand, parcelNo: parcelNo}, nil
}

func ApartmentLocator(unitID int64) (Locator, error) {
	if unitID <= 0 {
		return Locator{}, fmt.Errorf("%w: invalid unit id %d", ErrLocator, unitID)
	}
	return Locator{kind: TypeApartment, id: unitID}, nil
}

func HouseLocator(houseID int64) (Locator, error) {
	if houseID <= 0 {
		return Locator{}, fmt.Errorf("%w: invalid house id %d", ErrLocator, houseID)
	}
	return Locator{kind: TypeHouse, id: houseID}, nil
}

// LocatorFromColumns rebuilds a Locator from the three nullable foreign key
// columns of a ledger row, rejecting rows where the populated column does
// not agree with the declared property type.
func LocatorFromColumns(t PropertyType, parcelNo *string, unitID, houseID *int64) (Locator, error) {
	set := 0
	if parcelNo != nil {
		set++
	}
	if unitID != nil {
		set++
	}
	if houseID != nil {
		set++
	}
	if set != 1 {
		return Locator{}, fmt.Errorf("%w: %d columns set", ErrLocator, set)
	}

	switch {
	case parcelNo != nil && t == TypeLand:
		return LandLocator(*parcelNo)
	case unitID != nil && t == TypeApartment:
		return ApartmentLocator(*unitID)
	case houseID != nil && t == TypeHouse:
		return HouseLocator(*houseID)
	}
	return Locator{}, fmt.Errorf("%w: column does not match property type %q", ErrLocator, t)
}

func (l Locator) Type() PropertyType { return l.kind }

func (l Locator) IsZero() bool { return l.kind == "" }

func (l Locator) ParcelNo() (string, bool) { return l.parcelNo, l.kind == TypeLand }

func (l Locator) UnitID() (int64, bool) { return l.id, l.kind == TypeApartment }

func (l Locator) HouseID() (int64, bool) { return l.id, l.kind == TypeHouse }

// Columns returns the values for property_id, unit_id and house_id, exactly
// one of which is non-nil.
func (l Locator) Columns() (parcelNo *string, unitID, houseID *int64) {
	switch l.kind {
	case TypeLand:
		p := l.parcelNo
		return &p, nil, nil
	case TypeApartment:
		id := l.id
		return nil, &id, nil
	case TypeHouse:
		id := l.id
		return nil, nil, &id
	}
	return nil, nil, nil
}

func (l Locator) String() string {
	switch l.kind {
	case TypeLand:
		return "land:" + l.parcelNo
	case TypeApartment, TypeHouse:
		return string(l.kind) + ":" + strconv.FormatInt(l.id, 10)
	}
	return "invalid"
}
