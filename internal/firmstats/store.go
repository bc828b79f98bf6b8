package firmstats

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/manzil-bh/manzil-backend/internal/firmproperties"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/sqlfilter"
	"gorm.io/gorm"
)

// PriceKind selects which price a median is taken over.
type PriceKind int

const (
	// Asking medians cover visible sale listings created in the window.
	Asking PriceKind = iota
	// Sold medians cover sales closed in the window.
	Sold
)

type Store interface {
	MedianPricePerSqft(ctx context.Context, firmID string, kind PriceKind, w Window) (*float64, error)
	PipelineCounts(ctx context.Context, firmID string, w Window) (map[string]int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

func (s *GormStore) MedianPricePerSqft(ctx context.Context, firmID string, kind PriceKind, w Window) (*float64, error) {
	b := sqlfilter.New().
		Eq("fp.firm_id", firmID).
		Eq("fp.listing_type", string(listing.ListingSale)).
		Raw(firmproperties.SizeExpr + " > 0")

	var price string
	switch kind {
	case Asking:
		price = "fp.asking_price"
		b.Any("lower(fp.status)", listing.PublicStatuses()).
			Raw("fp.created_at >= ? AND fp.created_at < ?", w.Start, w.End)
	case Sold:
		price = "COALESCE(fp.sold_price, fp.asking_price)"
		b.Eq("lower(fp.status)", string(listing.StatusSold)).
			Raw("fp.sold_at >= ? AND fp.sold_at < ?", w.Start, w.End)
	default:
		return nil, fmt.Errorf("unknown price kind %d", kind)
	}
	b.Raw(price + " IS NOT NULL")

	where, args := b.Where()
	q := fmt.Sprintf(
		"SELECT percentile_cont(0.5) WITHIN GROUP (ORDER BY %s / (%s * %v))%s\n%s",
		price, firmproperties.SizeExpr, SqftPerSqm, firmproperties.FromStubs, where,
	)

	var median sql.NullFloat64
	if err := s.db.WithContext(ctx).Raw(q, args...).Row().Scan(&median); err != nil {
		return nil, fmt.Errorf("median price per sqft: %w", err)
	}
	if !median.Valid {
		return nil, nil
	}
	return &median.Float64, nil
}

// PipelineCounts counts the firm's rows by status, attributing each row to
// the window in which it was last updated.
func (s *GormStore) PipelineCounts(ctx context.Context, firmID string, w Window) (map[string]int64, error) {
	where, args := sqlfilter.New().
		Eq("fp.firm_id", firmID).
		Raw("fp.updated_at >= ? AND fp.updated_at < ?", w.Start, w.End).
		Where()

	var rows []struct {
		Status string
		N      int64
	}
	q := "SELECT lower(fp.status) AS status, COUNT(*) AS n FROM firm_properties fp\n" + where + "\nGROUP BY lower(fp.status)"
	if err := s.db.WithContext(ctx).Raw(q, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("pipeline counts: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
