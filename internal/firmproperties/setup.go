package firmproperties

import (
	"fmt"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"gorm.io/gorm"
)

func Init(d *gorm.DB) error {
	if err := db.EnsureExtension(d, "postgis"); err != nil {
		return fmt.Errorf("enable postgis: %w", err)
	}

	if err := d.AutoMigrate(
		&Parcel{},
		&UnitProperty{},
		&HouseProperty{},
		&FirmProperty{},
		&RentalAmenity{},
		&HouseAmenity{},
	); err != nil {
		return fmt.Errorf("auto-migrate firm property tables: %w", err)
	}

	err := db.ExecAll(d,
		`CREATE INDEX IF NOT EXISTS properties_geom_gist ON properties USING GIST (geom)`,

		// New stubs dedupe on (geohash, number) so concurrent creates for the
		// same building converge on one row.
		`CREATE UNIQUE INDEX IF NOT EXISTS unit_properties_geohash_flat
		 ON unit_properties (geohash, flat_no) WHERE geohash IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS house_properties_geohash_house
		 ON house_properties (geohash, house_no) WHERE geohash IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS firm_properties_status_lower
		 ON firm_properties (lower(status))`,

		`DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'firm_properties_one_locator') THEN
				ALTER TABLE firm_properties ADD CONSTRAINT firm_properties_one_locator CHECK (
					(property_type = 'land' AND property_id IS NOT NULL AND unit_id IS NULL AND house_id IS NULL) OR
					(property_type = 'apartment' AND unit_id IS NOT NULL AND property_id IS NULL AND house_id IS NULL) OR
					(property_type = 'house' AND house_id IS NOT NULL AND property_id IS NULL AND unit_id IS NULL)
				);
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'firm_properties_parcel_fk') THEN
				ALTER TABLE firm_properties ADD CONSTRAINT firm_properties_parcel_fk
					FOREIGN KEY (property_id) REFERENCES properties (parcel_no);
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'firm_properties_unit_fk') THEN
				ALTER TABLE firm_properties ADD CONSTRAINT firm_properties_unit_fk
					FOREIGN KEY (unit_id) REFERENCES unit_properties (id);
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'firm_properties_house_fk') THEN
				ALTER TABLE firm_properties ADD CONSTRAINT firm_properties_house_fk
					FOREIGN KEY (house_id) REFERENCES house_properties (id);
			END IF;
		END $$`,
	)
	if err != nil {
		return fmt.Errorf("create firm property constraints: %w", err)
	}
	return nil
}
