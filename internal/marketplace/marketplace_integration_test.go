package marketplace_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/manzil-bh/manzil-backend/internal/auth"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/firmproperties"
	"github.com/manzil-bh/manzil-backend/internal/images"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/marketplace"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

// dbAvailable tracks whether the database connection was established.
var dbAvailable bool

var testDB *gorm.DB

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env.local")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("DATABASE_URL not set, skipping integration tests")
		os.Exit(m.Run())
	}

	var err error
	testDB, err = db.Connect(db.Options{DSN: databaseURL})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(m.Run())
	}
	for _, initFn := range []func(*gorm.DB) error{auth.Init, firmproperties.Init, images.Init} {
		if err := initFn(testDB); err != nil {
			fmt.Printf("Failed to migrate: %v\n", err)
			os.Exit(1)
		}
	}
	dbAvailable = true
	os.Exit(m.Run())
}

func requireDB(t *testing.T) {
	t.Helper()
	if !dbAvailable {
		t.Skip("DATABASE_URL not set")
	}
}

var testParcel = orb.MultiPolygon{{{
	{50.5801, 26.2301}, {50.5809, 26.2301}, {50.5809, 26.2307}, {50.5801, 26.2307}, {50.5801, 26.2301},
}}}

func seedFirm(t *testing.T) (firmID, userID string) {
	t.Helper()
	firmID, userID = uuid.NewString(), uuid.NewString()
	if err := testDB.Create(&auth.Firm{FirmID: firmID, Name: "Test Realty " + firmID[:8]}).Error; err != nil {
		t.Fatalf("create firm: %v", err)
	}
	fid := firmID
	u := auth.User{UserID: userID, Email: userID + "@example.bh", FullName: "Agent", HashedPassword: "x", FirmID: &fid}
	if err := testDB.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		testDB.Exec("DELETE FROM firm_properties WHERE firm_id = ?", firmID)
		testDB.Exec("DELETE FROM app_auth.users WHERE user_id = ?", userID)
		testDB.Exec("DELETE FROM app_auth.firms WHERE firm_id = ?", firmID)
	})
	return firmID, userID
}

func seedParcel(t *testing.T) string {
	t.Helper()
	parcelNo := "T" + uuid.NewString()[:8]
	raw, err := geojson.NewGeometry(testParcel).MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	err = testDB.Exec(`
		INSERT INTO properties (parcel_no, block_no, area_namee, min_min_go, geom, updated_at)
		VALUES (?, '338', 'Adliya', 'RA', ST_Multi(ST_Transform(ST_SetSRID(ST_GeomFromGeoJSON(?), 4326), ?)), now())`,
		parcelNo, string(raw), firmproperties.SourceSRID).Error
	if err != nil {
		t.Fatalf("insert parcel: %v", err)
	}
	t.Cleanup(func() {
		testDB.Exec("DELETE FROM firm_properties WHERE property_id = ?", parcelNo)
		testDB.Exec("DELETE FROM properties WHERE parcel_no = ?", parcelNo)
	})
	return parcelNo
}

func create(t *testing.T, store firmproperties.Store, firmID, userID string, req listing.CreateRequest) int64 {
	t.Helper()
	nl, err := listing.ValidateCreate(req)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	id, err := store.Create(context.Background(), firmID, userID, nl)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func ptr[T any](v T) *T { return &v }

func TestMarketplaceShowsOnlyVisibleStatuses(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	firmID, userID := seedFirm(t)
	parcelNo := seedParcel(t)
	fps := firmproperties.NewGormStore(testDB)

	ids := map[string]int64{}
	for _, st := range []string{"saved", "draft", "listed", "available", "sold"} {
		req := listing.CreateRequest{PropertyType: "land", ParcelNo: ptr(parcelNo), Status: st}
		if st != "saved" {
			req.ListingType, req.AskingPrice = "sale", ptr(95000.0)
		}
		ids[st] = create(t, fps, firmID, userID, req)
	}

	mp := marketplace.NewGormStore(testDB)
	rows, err := mp.List(ctx, marketplace.Filters{Types: []listing.PropertyType{listing.TypeLand}, FirmID: firmID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := map[int64]bool{}
	for _, r := range rows {
		got[r.ID] = true
	}
	if len(rows) != 2 || !got[ids["listed"]] || !got[ids["available"]] {
		t.Errorf("visible rows = %+v", rows)
	}

	for _, hidden := range []string{"saved", "draft", "sold"} {
		if _, err := mp.Get(ctx, []listing.PropertyType{listing.TypeLand}, ids[hidden], true); err != db.ErrNotFound {
			t.Errorf("%s listing: expected ErrNotFound, got %v", hidden, err)
		}
	}
}

func TestLandGeometryRoundTrip(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	firmID, userID := seedFirm(t)
	parcelNo := seedParcel(t)
	fps := firmproperties.NewGormStore(testDB)

	id := create(t, fps, firmID, userID, listing.CreateRequest{
		PropertyType: "land", ParcelNo: ptr(parcelNo), Status: "listed",
		ListingType: "sale", AskingPrice: ptr(120000.0),
	})

	l, err := marketplace.NewGormStore(testDB).Get(ctx, []listing.PropertyType{listing.TypeLand}, id, true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.Geometry == nil {
		t.Fatal("land listing has no geometry")
	}
	g, err := geojson.UnmarshalGeometry(l.Geometry)
	if err != nil {
		t.Fatalf("parse geometry: %v", err)
	}
	mp, ok := g.Geometry().(orb.MultiPolygon)
	if !ok {
		t.Fatalf("geometry is %T", g.Geometry())
	}
	for i, p := range testParcel[0][0] {
		q := mp[0][0][i]
		if math.Abs(p[0]-q[0]) > 1e-5 || math.Abs(p[1]-q[1]) > 1e-5 {
			t.Errorf("vertex %d: got %v, want %v", i, q, p)
		}
	}
	if l.SizeSqm == nil || *l.SizeSqm < 4000 || *l.SizeSqm > 6000 {
		t.Errorf("geography area fallback = %v", l.SizeSqm)
	}
}

func TestConcurrentStubCreationConverges(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	firmID, userID := seedFirm(t)
	fps := firmproperties.NewGormStore(testDB)

	lat, lon := 26.2201+float64(os.Getpid()%1000)*1e-6, 50.5852
	req := listing.CreateRequest{
		PropertyType: "apartment",
		NewStub:      &listing.NewStub{Lat: &lat, Lon: &lon, Number: "1402", BuildingName: "Seef Tower"},
		Amenities:    []string{"pool"},
	}

	var wg sync.WaitGroup
	ids := make([]int64, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nl, _ := listing.ValidateCreate(req)
			id, err := fps.Create(ctx, firmID, userID, nl)
			if err != nil {
				t.Errorf("create %d: %v", i, err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	units := map[int64]bool{}
	for _, id := range ids {
		l, err := fps.Get(ctx, firmID, id)
		if err != nil {
			t.Fatalf("Get %d: %v", id, err)
		}
		units[*l.UnitID] = true
		if len(l.Amenities) != 1 || l.Amenities[0] != "pool" {
			t.Errorf("amenities = %v", l.Amenities)
		}
	}
	if len(units) != 1 {
		t.Errorf("concurrent creates produced %d stubs, want 1", len(units))
	}
	for u := range units {
		t.Cleanup(func() {
			testDB.Exec("DELETE FROM firm_properties WHERE unit_id = ?", u)
			testDB.Exec("DELETE FROM rental_amenities WHERE unit_id = ?", u)
			testDB.Exec("DELETE FROM unit_properties WHERE id = ?", u)
		})
	}
}
