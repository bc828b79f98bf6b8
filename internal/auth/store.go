package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, userID string) (*User, error)
	FindFirm(ctx context.Context, firmID string) (*Firm, error)
	// ReplaceChallenge stores c and drops any earlier challenge for the
	// same user.
	ReplaceChallenge(ctx context.Context, c *OTPChallenge) error
	// ClaimAttempt spends one guess on a live challenge and returns it.
	// Exhausted, expired and unknown challenges are db.ErrNotFound.
	ClaimAttempt(ctx context.Context, challengeID string, maxAttempts int, now time.Time) (*OTPChallenge, error)
	DeleteChallenge(ctx context.Context, challengeID string) error
	PurgeExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.ErrNotFound
	}
	return err
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).
		First(&u, "lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *GormStore) FindUserByID(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *GormStore) FindFirm(ctx context.Context, firmID string) (*Firm, error) {
	var f Firm
	if err := s.db.WithContext(ctx).First(&f, "firm_id = ?", firmID).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// FindPrincipalByUserID implements middleware.PrincipalFetcher.
func (s *GormStore) FindPrincipalByUserID(ctx context.Context, userID string) (utils.Principal, error) {
	u, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return utils.Principal{}, err
	}
	return principalOf(u), nil
}

func principalOf(u *User) utils.Principal {
	p := utils.Principal{
		UserID: u.UserID,
		Role:   u.Role,
		Email:  u.Email,
	}
	if u.FirmID != nil {
		p.FirmID = *u.FirmID
	}
	return p
}

func (s *GormStore) ReplaceChallenge(ctx context.Context, c *OTPChallenge) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", c.UserID).Delete(&OTPChallenge{}).Error; err != nil {
			return err
		}
		return tx.Create(c).Error
	})
}

func (s *GormStore) ClaimAttempt(ctx context.Context, challengeID string, maxAttempts int, now time.Time) (*OTPChallenge, error) {
	var rows []OTPChallenge
	err := s.db.WithContext(ctx).Model(&rows).
		Clauses(clause.Returning{}).
		Where("challenge_id = ? AND attempts < ? AND expires_at > ?", challengeID, maxAttempts, now).
		Update("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, db.ErrNotFound
	}
	return &rows[0], nil
}

func (s *GormStore) DeleteChallenge(ctx context.Context, challengeID string) error {
	return s.db.WithContext(ctx).Where("challenge_id = ?", challengeID).Delete(&OTPChallenge{}).Error
}

func (s *GormStore) PurgeExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&OTPChallenge{})
	return res.RowsAffected, res.Error
}
