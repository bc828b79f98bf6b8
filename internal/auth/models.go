package auth

import "time"

type Firm struct {
	FirmID    string    `gorm:"primaryKey;type:uuid" json:"firm_id"`
	Name      string    `gorm:"not null" json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	LogoURL   string    `json:"logo_url"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	UserID         string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	Email          string    `gorm:"not null" json:"email"`
	FullName       string    `json:"full_name"`
	Phone          string    `json:"phone"`
	HashedPassword string    `gorm:"not null" json:"-"`
	Role           string    `gorm:"not null;default:'agent'" json:"role"`
	FirmID         *string   `gorm:"type:uuid;index" json:"firm_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// OTPChallenge is the second login step. The code is stored bcrypt-hashed
// and the row id travels in the otp_challenge cookie.
type OTPChallenge struct {
	ChallengeID string    `gorm:"primaryKey;type:uuid"`
	UserID      string    `gorm:"type:uuid;not null;index"`
	CodeHash    string    `gorm:"not null"`
	Attempts    int       `gorm:"not null;default:0"`
	ExpiresAt   time.Time `gorm:"not null;index"`
	CreatedAt   time.Time
}

func (Firm) TableName() string         { return "app_auth.firms" }
func (User) TableName() string         { return "app_auth.users" }
func (OTPChallenge) TableName() string { return "app_auth.otp_challenges" }
