// Package search keeps a Meilisearch index of visible marketplace listings
// and answers keyword queries with listing ids.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/manzil-bh/manzil-backend/internal/marketplace"
)

// Document is the indexed shape of a visible listing.
type Document struct {
	ID           int64    `json:"id"`
	PropertyType string   `json:"property_type"`
	ListingType  string   `json:"listing_type"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	AreaName     string   `json:"area_name"`
	BlockNo      string   `json:"block_no"`
	FirmName     string   `json:"firm_name"`
	Amenities    []string `json:"amenities"`
	Price        *float64 `json:"price"`
	UpdatedAt    int64    `json:"updated_at"`
}

type Index interface {
	// ReplaceAll swaps the index contents for docs.
	ReplaceAll(ctx context.Context, docs []Document) error
	SearchIDs(ctx context.Context, q string, types []string, limit, offset int) ([]int64, int64, error)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func DocumentFor(l marketplace.Listing) Document {
	price := l.AskingPrice
	if price == nil {
		price = l.RentPrice
	}
	return Document{
		ID:           l.ID,
		PropertyType: l.PropertyType,
		ListingType:  deref(l.ListingType),
		Title:        l.Title,
		Description:  l.Description,
		AreaName:     deref(l.AreaName),
		BlockNo:      deref(l.BlockNo),
		FirmName:     deref(l.FirmName),
		Amenities:    []string(l.Amenities),
		Price:        price,
		UpdatedAt:    l.UpdatedAt.Unix(),
	}
}

// typeFilter renders a Meilisearch filter restricting property_type.
func typeFilter(types []string) string {
	if len(types) == 0 {
		return ""
	}
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return "property_type IN [" + strings.Join(quoted, ", ") + "]"
}

// Disabled satisfies marketplace.Searcher when no index is configured.
type Disabled struct{}

func (Disabled) SearchIDs(context.Context, string, []string, int, int) ([]int64, int64, error) {
	return nil, 0, marketplace.ErrSearchDisabled
}
