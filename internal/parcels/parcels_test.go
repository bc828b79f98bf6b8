package parcels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type fakeStore struct {
	rows    []Row
	gotFirm string
	got     Filters
}

func (f *fakeStore) Parcels(_ context.Context, firmID string, fl Filters) ([]Row, error) {
	f.gotFirm, f.got = firmID, fl
	if fl.Limit < len(f.rows) {
		return f.rows[:fl.Limit], nil
	}
	return f.rows, nil
}

const square = `{"type":"MultiPolygon","coordinates":[[[[50.58,26.23],[50.581,26.23],[50.581,26.231],[50.58,26.231],[50.58,26.23]]]]}`

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := utils.WithPrincipal(r.Context(), utils.Principal{UserID: "u", FirmID: "firm-1"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	rec := httptest.NewRecorder()
	SetupRoutes(h, auth).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestCoordinatesFeatureCollection(t *testing.T) {
	area := 1234.5
	store := &fakeStore{rows: []Row{
		{ParcelNo: "10010001", BlockNo: "338", AreaNameE: "Adliya", Zoning: "RA", ShapeArea: &area, GeoJSON: square, FirmSaved: true},
		{ParcelNo: "10010002", BlockNo: "338", AreaNameE: "Adliya", Zoning: "RB", GeoJSON: square},
		{ParcelNo: "broken", GeoJSON: "not json"},
	}}
	h := NewHandler(store, []string{"GB", "RD"}, 10)

	rec := serve(h, "/?block_no=338&area_namee=Adliya")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("content type = %q", ct)
	}
	if store.gotFirm != "firm-1" || store.got.BlockNo != "338" || store.got.AreaNameE != "Adliya" {
		t.Errorf("store called with firm=%q filters=%+v", store.gotFirm, store.got)
	}
	if strings.Join(store.got.ExcludedZoning, ",") != "GB,RD" {
		t.Errorf("excluded zoning = %v", store.got.ExcludedZoning)
	}

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("response is not a FeatureCollection: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("features = %d, want 2 (unreadable geometry skipped)", len(fc.Features))
	}
	first := fc.Features[0]
	if _, ok := first.Geometry.(orb.MultiPolygon); !ok {
		t.Errorf("geometry is %T", first.Geometry)
	}
	if first.Properties.MustBool("firm_saved") != true || fc.Features[1].Properties.MustBool("firm_saved") != false {
		t.Error("firm_saved not propagated")
	}
	if first.Properties.MustString("parcel_no") != "10010001" {
		t.Errorf("parcel_no = %v", first.Properties["parcel_no"])
	}
}

func TestCoordinatesTruncates(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		store.rows = append(store.rows, Row{ParcelNo: string(rune('a' + i)), GeoJSON: square})
	}
	rec := serve(NewHandler(store, nil, 3), "/")
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 3 || rec.Header().Get("X-Truncated") != "true" {
		t.Errorf("features = %d, truncated = %q", len(fc.Features), rec.Header().Get("X-Truncated"))
	}
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("50.4, 25.9, 50.7, 26.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *b != (BBox{50.4, 25.9, 50.7, 26.3}) {
		t.Errorf("bbox = %v", *b)
	}
	for _, bad := range []string{"1,2,3", "a,b,c,d", "50.7,25.9,50.4,26.3", "-200,0,10,10"} {
		if _, err := ParseBBox(bad); !listing.IsValidation(err) {
			t.Errorf("%q: expected validation error, got %v", bad, err)
		}
	}
}

func TestBadBBoxIs400(t *testing.T) {
	if rec := serve(NewHandler(&fakeStore{}, nil, 10), "/?bbox=1,2"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFilterBuilderExcludesZoning(t *testing.T) {
	where, args := filterBuilder(Filters{ExcludedZoning: []string{"GB"}, Zoning: "ra", BBox: &BBox{50, 26, 51, 27}}).Where()
	for _, want := range []string{"p.geom IS NOT NULL", "COALESCE(p.min_min_go, '') <> ALL(?)", "lower(p.min_min_go) = lower(?)", "ST_MakeEnvelope(?, ?, ?, ?, 4326), 20439)"} {
		if !strings.Contains(where, want) {
			t.Errorf("where %q missing %q", where, want)
		}
	}
	if len(args) != 6 {
		t.Errorf("args = %v", args)
	}
}
