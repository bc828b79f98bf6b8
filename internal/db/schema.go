package db

import "gorm.io/gorm"

func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}

// EnsureExtension enables a Postgres extension such as postgis.
func EnsureExtension(d *gorm.DB, name string) error {
	return d.Exec(`CREATE EXTENSION IF NOT EXISTS "` + name + `"`).Error
}

// ExecAll runs idempotent DDL statements in order, stopping at the first
// failure.
func ExecAll(d *gorm.DB, stmts ...string) error {
	for _, s := range stmts {
		if err := d.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
