package listing

import (
	"fmt"
	"sort"
	"strings"
)

// Amenity names double as boolean column names on the amenity side tables.
var RentalAmenities = []string{
	"balcony",
	"central_ac",
	"elevator",
	"gym",
	"maid_room",
	"parking",
	"pets_allowed",
	"pool",
	"sea_view",
	"security",
}

var HouseAmenities = []string{
	"central_ac",
	"garage",
	"garden",
	"maid_room",
	"majlis",
	"private_pool",
	"roof_terrace",
	"security",
	"solar_panels",
	"storage",
}

// AmenityCatalogue returns the amenities a property type may carry. Land has
// none.
func AmenityCatalogue(t PropertyType) []string {
	switch t {
	case TypeApartment:
		return RentalAmenities
	case TypeHouse:
		return HouseAmenities
	}
	return nil
}

// NormalizeAmenities folds names to catalogue form, drops duplicates and
// returns them sorted. Names outside the catalogue are an error.
func NormalizeAmenities(t PropertyType, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	catalogue := AmenityCatalogue(t)
	if catalogue == nil {
		return nil, fmt.Errorf("%s listings have no amenities", t)
	}
	known := make(map[string]struct{}, len(catalogue))
	for _, a := range catalogue {
		known[a] = struct{}{}
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(names))
	for _, raw := range names {
		n := strings.ReplaceAll(normalize(raw), " ", "_")
		if n == "" {
			continue
		}
		if _, ok := known[n]; !ok {
			return nil, fmt.Errorf("unknown %s amenity %q", t, raw)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}
