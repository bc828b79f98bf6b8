package auth

import (
	"fmt"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"gorm.io/gorm"
)

func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "app_auth"); err != nil {
		return fmt.Errorf("ensure schema app_auth: %w", err)
	}

	if err := d.AutoMigrate(&Firm{}, &User{}, &OTPChallenge{}); err != nil {
		return fmt.Errorf("auto-migrate auth tables: %w", err)
	}

	// Logins look users up case-insensitively.
	if err := d.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS users_email_ci_unique
		ON app_auth.users (LOWER(email));
	`).Error; err != nil {
		return fmt.Errorf("create users_email_ci_unique: %w", err)
	}
	return nil
}
