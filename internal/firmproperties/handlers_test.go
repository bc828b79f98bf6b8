package firmproperties

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/geocoding"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/utils"
)

const (
	firmA = "11111111-1111-1111-1111-111111111111"
	firmB = "22222222-2222-2222-2222-222222222222"
	userA = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
)

type memStore struct {
	mu      sync.Mutex
	next    int64
	rows    map[int64]*Listing
	created []*listing.NewListing
}

func newMemStore() *memStore {
	return &memStore{rows: map[int64]*Listing{}}
}

func (m *memStore) Create(_ context.Context, firmID, userID string, nl *listing.NewListing) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	row := &Listing{
		ID:           m.next,
		FirmID:       firmID,
		CreatedBy:    userID,
		PropertyType: string(nl.Type),
		Status:       string(nl.Status),
		Title:        nl.Title,
		AskingPrice:  nl.AskingPrice,
		RentPrice:    nl.RentPrice,
	}
	if nl.ListingType != "" {
		lt := string(nl.ListingType)
		row.ListingType = &lt
	}
	if p, ok := nl.Locator.ParcelNo(); ok {
		row.ParcelNo = &p
	}
	m.rows[row.ID] = row
	m.created = append(m.created, nl)
	return row.ID, nil
}

func (m *memStore) List(_ context.Context, firmID string, f ListFilters) ([]Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Listing{}
	for _, r := range m.rows {
		if r.FirmID == firmID && (f.Status == "" || r.Status == f.Status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, firmID string, id int64) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.FirmID != firmID {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListByParcel(_ context.Context, firmID, parcelNo string) ([]Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Listing{}
	for _, r := range m.rows {
		if r.FirmID == firmID && r.ParcelNo != nil && *r.ParcelNo == parcelNo {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) Update(ctx context.Context, firmID string, id int64, p *listing.Patch) (*Listing, error) {
	m.mu.Lock()
	r, ok := m.rows[id]
	if !ok || r.FirmID != firmID {
		m.mu.Unlock()
		return nil, db.ErrNotFound
	}
	cur := listing.Stored{Status: listing.Status(r.Status), AskingPrice: r.AskingPrice, RentPrice: r.RentPrice}
	if r.ListingType != nil {
		cur.ListingType = listing.ListingType(*r.ListingType)
	}
	if err := p.CheckMerged(cur); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if p.Status != nil {
		r.Status = string(*p.Status)
		if *p.Status == listing.StatusSold && r.SoldAt == nil {
			now := time.Now()
			r.SoldAt = &now
		} else if p.ClearsSoldAt() {
			r.SoldAt = nil
		}
	}
	if p.ListingType != nil {
		lt := string(*p.ListingType)
		r.ListingType = &lt
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.AskingPrice != nil {
		r.AskingPrice = p.AskingPrice
	}
	if p.RentPrice != nil {
		r.RentPrice = p.RentPrice
	}
	m.mu.Unlock()
	return m.Get(ctx, firmID, id)
}

func (m *memStore) Delete(_ context.Context, firmID string, id int64) (*FirmProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.FirmID != firmID {
		return nil, db.ErrNotFound
	}
	delete(m.rows, id)
	return &FirmProperty{ID: r.ID, FirmID: r.FirmID, Status: r.Status}, nil
}

type fakeGeocoder struct{ calls int }

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (*geocoding.Result, error) {
	g.calls++
	return &geocoding.Result{Formatted: address, Area: "Seef", Block: "428", Lat: 26.235, Lng: 50.540}, nil
}

type recordingPurger struct{ purged []int64 }

func (p *recordingPurger) PurgeListing(_ context.Context, id int64) error {
	p.purged = append(p.purged, id)
	return nil
}

// testAuth stands in for RequireAuth: the X-Firm header selects the
// caller's firm, and its absence is a 401.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firm := r.Header.Get("X-Firm")
		if firm == "" {
			http.Error(w, "Couldn't find token", http.StatusUnauthorized)
			return
		}
		ctx := utils.WithPrincipal(r.Context(), utils.Principal{UserID: userA, FirmID: firm, Role: "agent"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type fixture struct {
	store  *memStore
	geo    *fakeGeocoder
	purger *recordingPurger
	srv    http.Handler
}

func newFixture() *fixture {
	f := &fixture{store: newMemStore(), geo: &fakeGeocoder{}, purger: &recordingPurger{}}
	f.srv = SetupRoutes(NewHandler(f.store, f.geo, f.purger), testAuth)
	return f
}

func (f *fixture) do(t *testing.T, method, path, firm, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if firm != "" {
		req.Header.Set("X-Firm", firm)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) create(t *testing.T, firm, body string) int64 {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/", firm, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.ID
}

func TestCreateRequiresAuth(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/", "", `{"property_type":"land","parcel_no":"1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"sale without asking price", `{"property_type":"land","parcel_no":"100","listing_type":"sale","status":"listed"}`},
		{"rent without rent price", `{"property_type":"apartment","unit_id":4,"listing_type":"rent","status":"available"}`},
		{"two locators", `{"property_type":"apartment","unit_id":4,"parcel_no":"100"}`},
		{"no locator", `{"property_type":"house"}`},
		{"land with bedrooms", `{"property_type":"land","parcel_no":"100","bedrooms":3}`},
		{"zero bathrooms", `{"property_type":"house","house_id":2,"bathrooms":0}`},
		{"unknown field", `{"property_type":"land","parcel_no":"100","firm_id":"` + firmB + `"}`},
		{"listed without listing type", `{"property_type":"land","parcel_no":"100","status":"listed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, http.MethodPost, "/", firmA, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			if len(f.store.created) != 0 {
				t.Error("store was called for an invalid request")
			}
		})
	}
}

func TestCreateSavedParcel(t *testing.T) {
	f := newFixture()
	id := f.create(t, firmA, `{"property_type":"land","parcel_no":"10012345"}`)

	rec := f.do(t, http.MethodGet, "/parcel/10012345", firmA, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var rows []Listing
	json.NewDecoder(rec.Body).Decode(&rows)
	if len(rows) != 1 || rows[0].ID != id || rows[0].Status != "saved" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestCreateGeocodesAddressOnlyStub(t *testing.T) {
	f := newFixture()
	f.create(t, firmA, `{
		"property_type": "apartment",
		"listing_type": "rent",
		"status": "listed",
		"rent_price": 450,
		"new_stub": {"address": "Building 2504, Road 2832, Seef", "number": "21"},
		"amenities": ["Pool", "gym", "pool"]
	}`)

	if f.geo.calls != 1 {
		t.Fatalf("geocoder calls = %d, want 1", f.geo.calls)
	}
	nl := f.store.created[0]
	if nl.Stub == nil || !nl.Stub.HasCoordinates() {
		t.Fatal("stub was not given coordinates")
	}
	if nl.Stub.AreaName != "Seef" || nl.Stub.BlockNo != "428" {
		t.Errorf("area/block = %q/%q", nl.Stub.AreaName, nl.Stub.BlockNo)
	}
	if strings.Join(nl.Amenities, ",") != "gym,pool" {
		t.Errorf("amenities = %v", nl.Amenities)
	}
}

func TestCrossFirmAccessIsNotFound(t *testing.T) {
	f := newFixture()
	id := f.create(t, firmA, `{"property_type":"land","parcel_no":"100"}`)
	path := "/" + itoa(id)

	if rec := f.do(t, http.MethodPatch, path, firmB, `{"status":"listed"}`); rec.Code != http.StatusNotFound {
		t.Errorf("cross-firm PATCH status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, path, firmB, ""); rec.Code != http.StatusNotFound {
		t.Errorf("cross-firm GET status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, path, firmB, ""); rec.Code != http.StatusNotFound {
		t.Errorf("cross-firm DELETE status = %d, want 404", rec.Code)
	}

	got, _ := f.store.Get(context.Background(), firmA, id)
	if got == nil || got.Status != "saved" {
		t.Errorf("row changed by another firm: %+v", got)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture()
	id := f.create(t, firmA, `{"property_type":"land","parcel_no":"100","listing_type":"sale","asking_price":85000}`)
	path := "/" + itoa(id)

	rec := f.do(t, http.MethodPatch, path, firmA, `{"status":"Potential_Buyer","title":"Corner plot"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var row Listing
	json.NewDecoder(rec.Body).Decode(&row)
	if row.Status != "potential buyer" || row.Title != "Corner plot" {
		t.Errorf("row = %+v", row)
	}

	for _, body := range []string{`{}`, `{"status":"gone"}`, `{"asking_price":-5}`, `{"firm_id":"x"}`} {
		if rec := f.do(t, http.MethodPatch, path, firmA, body); rec.Code != http.StatusBadRequest {
			t.Errorf("PATCH %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestUpdateRechecksListingType(t *testing.T) {
	f := newFixture()
	id := f.create(t, firmA, `{"property_type":"land","parcel_no":"100"}`)
	path := "/" + itoa(id)

	for _, body := range []string{
		`{"status":"listed"}`,
		`{"status":"available","asking_price":90000}`,
		`{"status":"listed","listing_type":"rent"}`,
	} {
		rec := f.do(t, http.MethodPatch, path, firmA, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("PATCH %s: status = %d, want 400", body, rec.Code)
		}
	}
	got, _ := f.store.Get(context.Background(), firmA, id)
	if got.Status != "saved" || got.ListingType != nil {
		t.Fatalf("rejected patch was applied: %+v", got)
	}

	rec := f.do(t, http.MethodPatch, path, firmA, `{"status":"listed","listing_type":"sale","asking_price":90000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("typed patch: status = %d body %s", rec.Code, rec.Body.String())
	}
	var row Listing
	json.NewDecoder(rec.Body).Decode(&row)
	if row.Status != "listed" || row.ListingType == nil || *row.ListingType != "sale" {
		t.Errorf("row = %+v", row)
	}

	if rec := f.do(t, http.MethodPatch, path, firmA, `{"listing_type":"rent"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("switch to rent without rent_price: status = %d, want 400", rec.Code)
	}
}

func TestUpdateLeavingSoldClearsSoldAt(t *testing.T) {
	f := newFixture()
	id := f.create(t, firmA, `{"property_type":"land","parcel_no":"100","listing_type":"sale","asking_price":85000,"status":"listed"}`)
	path := "/" + itoa(id)

	var row Listing
	rec := f.do(t, http.MethodPatch, path, firmA, `{"status":"sold","sold_price":84000}`)
	json.NewDecoder(rec.Body).Decode(&row)
	if row.SoldAt == nil {
		t.Fatalf("sold_at not set: %+v", row)
	}

	rec = f.do(t, http.MethodPatch, path, firmA, `{"status":"listed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	row = Listing{}
	json.NewDecoder(rec.Body).Decode(&row)
	if row.SoldAt != nil {
		t.Errorf("sold_at = %v after leaving sold, want null", row.SoldAt)
	}
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	f := newFixture()
	id := f.create(t, firmA, `{"property_type":"house","house_id":9}`)
	path := "/" + itoa(id)

	rec := f.do(t, http.MethodDelete, path, firmA, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var deleted FirmProperty
	json.NewDecoder(rec.Body).Decode(&deleted)
	if deleted.ID != id {
		t.Errorf("deleted id = %d, want %d", deleted.ID, id)
	}
	if len(f.purger.purged) != 1 || f.purger.purged[0] != id {
		t.Errorf("purged = %v", f.purger.purged)
	}

	if rec := f.do(t, http.MethodGet, path, firmA, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, path, firmA, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestBadPathID(t *testing.T) {
	f := newFixture()
	if rec := f.do(t, http.MethodGet, "/abc", firmA, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListFiltersFromQuery(t *testing.T) {
	q := url.Values{
		"status":       {"Closing-Deal"},
		"type":         {"villa"},
		"listing_type": {"for sale"},
		"area":         {" Riffa "},
		"min_price":    {"50000"},
		"max_price":    {"90000"},
		"limit":        {"20"},
	}
	f, err := ListFiltersFromQuery(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Status != "closing deal" || f.PropertyType != "house" || f.ListingType != "sale" || f.Area != "Riffa" {
		t.Errorf("filters = %+v", f)
	}
	if *f.MinPrice != 50000 || *f.MaxPrice != 90000 || f.Limit != 20 {
		t.Errorf("numeric filters = %+v", f)
	}

	bad := []url.Values{
		{"status": {"archived"}},
		{"min_price": {"cheap"}},
		{"min_price": {"10"}, "max_price": {"5"}},
		{"limit": {"-1"}},
	}
	for _, q := range bad {
		if _, err := ListFiltersFromQuery(q); !listing.IsValidation(err) {
			t.Errorf("%v: expected validation error, got %v", q, err)
		}
	}
}

func TestListFilterBuildsScopedWhere(t *testing.T) {
	min := 1000.0
	where, args := listFilter(firmA, ListFilters{Status: "listed", Area: "Juffair", MinPrice: &min}).Where()
	for _, want := range []string{"fp.firm_id = ?", "lower(fp.status) = lower(?)", AreaExpr + " ILIKE ?", PriceExpr + " >= ?"} {
		if !strings.Contains(where, want) {
			t.Errorf("where %q missing %q", where, want)
		}
	}
	if len(args) != 4 || args[0] != firmA {
		t.Errorf("args = %v", args)
	}
}

func TestAmenitiesExprCoversCatalogue(t *testing.T) {
	for _, n := range append(append([]string{}, listing.RentalAmenities...), listing.HouseAmenities...) {
		if !strings.Contains(AmenitiesExpr, "'"+n+"'") {
			t.Errorf("amenity %q missing from pivot", n)
		}
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
