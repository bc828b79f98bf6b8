package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Counts struct {
	Firms int64
	Users int64
}

func countAll(ctx context.Context, tx *sql.Tx) (Counts, error) {
	var c Counts
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM app_auth.firms`).Scan(&c.Firms); err != nil {
		return c, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM app_auth.users`).Scan(&c.Users); err != nil {
		return c, err
	}
	return c, nil
}

func upsertFirms(ctx context.Context, tx *sql.Tx, firms []FirmRow) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO app_auth.firms (firm_id, name, phone, email, logo_url, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (firm_id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			logo_url = EXCLUDED.logo_url`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range firms {
		if _, err := stmt.ExecContext(ctx, f.ID, f.Name, f.Phone, f.Email, f.LogoURL); err != nil {
			return fmt.Errorf("upsert firm %q: %w", f.Key, err)
		}
	}
	return nil
}

// upsertUsers matches existing accounts by email, so a user created through
// another path keeps its id and gets the seeded password and firm.
func upsertUsers(ctx context.Context, tx *sql.Tx, users []UserRow, firmIDs map[string]uuid.UUID, cost int) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO app_auth.users (user_id, email, full_name, phone, hashed_password, role, firm_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT ((lower(email))) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			hashed_password = EXCLUDED.hashed_password,
			role = EXCLUDED.role,
			firm_id = EXCLUDED.firm_id`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range users {
		hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", u.Email, err)
		}
		var firm any
		if u.FirmKey != "" {
			firm = firmIDs[u.FirmKey]
		}
		if _, err := stmt.ExecContext(ctx, u.ID, u.Email, u.FullName, u.Phone, string(hashed), u.Role, firm); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.Email, err)
		}
	}
	return nil
}
