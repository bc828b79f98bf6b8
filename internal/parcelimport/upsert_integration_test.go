package parcelimport

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/firmproperties"
	"gorm.io/gorm"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env.local")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("DATABASE_URL not set, skipping integration tests")
		os.Exit(m.Run())
	}
	d, err := db.Connect(db.Options{DSN: databaseURL})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(m.Run())
	}
	if err := firmproperties.Init(d); err != nil {
		fmt.Printf("Failed to migrate: %v\n", err)
		os.Exit(1)
	}
	testDB = d
	os.Exit(m.Run())
}

func TestUpsertReprojectsAndUpdates(t *testing.T) {
	if testDB == nil {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	no := "IMP-" + fmt.Sprint(os.Getpid())
	t.Cleanup(func() { testDB.Exec("DELETE FROM properties WHERE parcel_no = ?", no) })

	square := `{"type":"MultiPolygon","coordinates":[[[[50.58,26.23],[50.5808,26.23],[50.5808,26.2307],[50.58,26.2307],[50.58,26.23]]]]}`
	if _, err := Upsert(ctx, testDB, []Parcel{{ParcelNo: no, BlockNo: "338", Zoning: "RA", GeoJSON: square}}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := Upsert(ctx, testDB, []Parcel{{ParcelNo: no, BlockNo: "339", Zoning: "RB", GeoJSON: square}}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var row struct {
		BlockNo string
		SRID    int
		Count   int
	}
	err := testDB.Raw(`
		SELECT max(block_no) AS block_no, max(ST_SRID(geom)) AS srid, count(*) AS count
		FROM properties WHERE parcel_no = ?`, no).Scan(&row).Error
	if err != nil {
		t.Fatal(err)
	}
	if row.Count != 1 || row.BlockNo != "339" || row.SRID != firmproperties.SourceSRID {
		t.Errorf("row = %+v", row)
	}
}

func TestUpsertRollsBackOnBadGeometry(t *testing.T) {
	if testDB == nil {
		t.Skip("DATABASE_URL not set")
	}
	no := "IMP-RB-" + fmt.Sprint(os.Getpid())
	t.Cleanup(func() { testDB.Exec("DELETE FROM properties WHERE parcel_no = ?", no) })

	good := `{"type":"MultiPolygon","coordinates":[[[[50.58,26.23],[50.5808,26.23],[50.5808,26.2307],[50.58,26.23]]]]}`
	_, err := Upsert(context.Background(), testDB, []Parcel{
		{ParcelNo: no, GeoJSON: good},
		{ParcelNo: no + "-x", GeoJSON: `{"type":"Nonsense"}`},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var n int64
	testDB.Raw("SELECT count(*) FROM properties WHERE parcel_no = ?", no).Scan(&n)
	if n != 0 {
		t.Errorf("first parcel committed despite rollback")
	}
}
