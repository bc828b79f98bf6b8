package images

import (
	"context"
	"fmt"
	"time"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Image is one attachment of a ledger row. Ownership follows
// firm_properties.firm_id; rows are removed with their listing by
// PurgeListing, not by a foreign key.
type Image struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	FirmPropertyID int64     `gorm:"not null;uniqueIndex:firm_property_images_slot" json:"firm_property_id"`
	ObjectKey      string    `gorm:"not null;uniqueIndex" json:"-"`
	Filename       string    `gorm:"not null" json:"filename"`
	ContentType    string    `gorm:"not null" json:"content_type"`
	SizeBytes      int64     `gorm:"not null" json:"size_bytes"`
	URL            string    `gorm:"not null" json:"url"`
	Position       int       `gorm:"not null;default:0;uniqueIndex:firm_property_images_slot" json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Image) TableName() string { return "firm_property_images" }

func Init(d *gorm.DB) error {
	if err := d.AutoMigrate(&Image{}); err != nil {
		return fmt.Errorf("auto-migrate image table: %w", err)
	}
	return nil
}

type Store interface {
	// OwnsListing reports whether listingID belongs to firmID.
	OwnsListing(ctx context.Context, firmID string, listingID int64) (bool, error)
	// Insert stores img in the next free position of its listing and sets
	// img.Position.
	Insert(ctx context.Context, img *Image) error
	ListForListing(ctx context.Context, listingID int64) ([]Image, error)
	// Delete removes one image row of a listing and returns it.
	Delete(ctx context.Context, listingID, imageID int64) (*Image, error)
	DeleteForListing(ctx context.Context, listingID int64) ([]Image, error)
	// DeleteOrphans removes rows whose listing no longer exists.
	DeleteOrphans(ctx context.Context) ([]Image, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

func (s *GormStore) OwnsListing(ctx context.Context, firmID string, listingID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Table("firm_properties").
		Where("id = ? AND firm_id = ?", listingID, firmID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check listing owner: %w", err)
	}
	return n > 0, nil
}

func (s *GormStore) Insert(ctx context.Context, img *Image) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the listing row serialises uploads to the same listing
		err := tx.Exec("SELECT 1 FROM firm_properties WHERE id = ? FOR NO KEY UPDATE", img.FirmPropertyID).Error
		if err != nil {
			return err
		}
		err = tx.Raw("SELECT COALESCE(MAX(position) + 1, 0) FROM firm_property_images WHERE firm_property_id = ?", img.FirmPropertyID).
			Row().Scan(&img.Position)
		if err != nil {
			return err
		}
		return tx.Create(img).Error
	})
	if err != nil {
		return fmt.Errorf("insert image row: %w", err)
	}
	return nil
}

func (s *GormStore) ListForListing(ctx context.Context, listingID int64) ([]Image, error) {
	out := []Image{}
	err := s.db.WithContext(ctx).
		Where("firm_property_id = ?", listingID).
		Order("position, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, listingID, imageID int64) (*Image, error) {
	var rows []Image
	res := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ? AND firm_property_id = ?", imageID, listingID).
		Delete(&rows)
	if res.Error != nil {
		return nil, fmt.Errorf("delete image %d: %w", imageID, res.Error)
	}
	if len(rows) == 0 {
		return nil, db.ErrNotFound
	}
	return &rows[0], nil
}

func (s *GormStore) DeleteForListing(ctx context.Context, listingID int64) ([]Image, error) {
	var rows []Image
	err := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("firm_property_id = ?", listingID).
		Delete(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("delete images of listing %d: %w", listingID, err)
	}
	return rows, nil
}

func (s *GormStore) DeleteOrphans(ctx context.Context) ([]Image, error) {
	var rows []Image
	err := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("NOT EXISTS (SELECT 1 FROM firm_properties fp WHERE fp.id = firm_property_images.firm_property_id)").
		Delete(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("delete orphaned images: %w", err)
	}
	return rows, nil
}
