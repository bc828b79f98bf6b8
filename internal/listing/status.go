package listing

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Status is the pipeline stage of a ledger row.
type Status string

const (
	StatusSaved          Status = "saved"
	StatusListed         Status = "listed"
	StatusAvailable      Status = "available"
	StatusPotentialBuyer Status = "potential buyer"
	StatusClosingDeal    Status = "closing deal"
	StatusPaperwork      Status = "paperwork"
	StatusReserved       Status = "reserved"
	StatusLeased         Status = "leased"
	StatusSold           Status = "sold"
	StatusDraft          Status = "draft"
)

// Statuses lists every recognised status in pipeline order.
var Statuses = []Status{
	StatusSaved,
	StatusDraft,
	StatusListed,
	StatusAvailable,
	StatusPotentialBuyer,
	StatusClosingDeal,
	StatusPaperwork,
	StatusReserved,
	StatusLeased,
	StatusSold,
}

// publicStatuses is the only place marketplace visibility is decided.
var publicStatuses = map[Status]struct{}{
	StatusAvailable: {},
	StatusListed:    {},
}

// IsPubliclyVisible reports whether a listing in status s appears on the
// public marketplace. It applies to every property type.
func IsPubliclyVisible(s Status) bool {
	_, ok := publicStatuses[s]
	return ok
}

// PublicStatuses returns the visible statuses as plain strings, in a stable
// order, for use as a bound SQL array.
func PublicStatuses() []string {
	out := make([]string, 0, len(publicStatuses))
	for _, s := range Statuses {
		if IsPubliclyVisible(s) {
			out = append(out, string(s))
		}
	}
	return out
}

// normalize folds case, trims, and treats '_' and '-' as spaces so that
// "Potential_Buyer" and "closing-deal" parse.
func normalize(s string) string {
	// Casers are stateful; build one per call.
	s = cases.Fold().String(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func ParseStatus(s string) (Status, error) {
	n := Status(normalize(s))
	for _, known := range Statuses {
		if n == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// PropertyType selects which stub table a ledger row points at.
type PropertyType string

const (
	TypeLand      PropertyType = "land"
	TypeApartment PropertyType = "apartment"
	TypeHouse     PropertyType = "house"
)

var PropertyTypes = []PropertyType{TypeLand, TypeApartment, TypeHouse}

func ParsePropertyType(s string) (PropertyType, error) {
	switch n := PropertyType(normalize(s)); n {
	case TypeLand, TypeApartment, TypeHouse:
		return n, nil
	case "flat", "unit":
		return TypeApartment, nil
	case "villa":
		return TypeHouse, nil
	}
	return "", fmt.Errorf("unknown property type %q", s)
}

// Residential reports whether t is a unit or a house.
func (t PropertyType) Residential() bool {
	return t == TypeApartment || t == TypeHouse
}

type ListingType string

const (
	ListingSale ListingType = "sale"
	ListingRent ListingType = "rent"
)

func ParseListingType(s string) (ListingType, error) {
	switch n := ListingType(normalize(s)); n {
	case ListingSale, ListingRent:
		return n, nil
	case "for sale", "buy":
		return ListingSale, nil
	case "for rent", "lease":
		return ListingRent, nil
	}
	return "", fmt.Errorf("unknown listing type %q", s)
}
