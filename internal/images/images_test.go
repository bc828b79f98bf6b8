package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/utils"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
	info map[string]ObjectInfo
}

func newMemObjects() *memObjects {
	return &memObjects{data: map[string][]byte{}, info: map[string]ObjectInfo{}}
}

func (m *memObjects) Put(_ context.Context, key, filename, ct string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	m.info[key] = ObjectInfo{Filename: filename, ContentType: ct, Size: int64(len(b))}
	return nil
}

func (m *memObjects) Open(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), m.info[key], nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type memMeta struct {
	mu     sync.Mutex
	owners map[int64]string
	rows   []Image
	next   int64
}

func (m *memMeta) OwnsListing(_ context.Context, firmID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[id] == firmID, nil
}

func (m *memMeta) Insert(_ context.Context, img *Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img.Position = 0
	for _, r := range m.rows {
		if r.FirmPropertyID == img.FirmPropertyID && r.Position >= img.Position {
			img.Position = r.Position + 1
		}
	}
	m.next++
	img.ID = m.next
	m.rows = append(m.rows, *img)
	return nil
}

func (m *memMeta) ListForListing(_ context.Context, id int64) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Image{}
	for _, r := range m.rows {
		if r.FirmPropertyID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMeta) take(keep func(Image) bool) []Image {
	var kept, gone []Image
	for _, r := range m.rows {
		if keep(r) {
			kept = append(kept, r)
		} else {
			gone = append(gone, r)
		}
	}
	m.rows = kept
	return gone
}

func (m *memMeta) Delete(_ context.Context, listingID, imageID int64) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gone := m.take(func(r Image) bool { return r.ID != imageID || r.FirmPropertyID != listingID })
	if len(gone) == 0 {
		return nil, db.ErrNotFound
	}
	return &gone[0], nil
}

func (m *memMeta) DeleteForListing(_ context.Context, id int64) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.take(func(r Image) bool { return r.FirmPropertyID != id }), nil
}

func (m *memMeta) DeleteOrphans(_ context.Context) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.take(func(r Image) bool { _, ok := m.owners[r.FirmPropertyID]; return ok }), nil
}

type fixture struct {
	meta    *memMeta
	objects *memObjects
	svc     *Service
	router  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		meta:    &memMeta{owners: map[int64]string{7: "firm-a", 8: "firm-b"}},
		objects: newMemObjects(),
	}
	f.svc = NewService(f.meta, f.objects, "https://api.example.bh/", Limits{
		MaxFileBytes: 1 << 20,
		MaxFiles:     3,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
	})
	h := NewHandler(f.svc)

	r := chi.NewRouter()
	r.Route("/firm-properties", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := utils.WithPrincipal(req.Context(), utils.Principal{UserID: "u", FirmID: req.Header.Get("X-Firm")})
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		h.ListingRoutes(r)
	})
	r.Mount("/media", MediaRoutes(h))
	f.router = r
	return f
}

func multipartBody(t *testing.T, files map[string][]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(FormField, name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, firm string, listingID int64, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/firm-properties/%d/images", listingID), body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Firm", firm)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadListAndServe(t *testing.T) {
	f := newFixture()
	rec := f.upload(t, "firm-a", 7, map[string][]byte{"front.png": pngBytes})
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body %s", rec.Code, rec.Body.String())
	}
	var imgs []Image
	json.NewDecoder(rec.Body).Decode(&imgs)
	if len(imgs) != 1 || imgs[0].ContentType != "image/png" || imgs[0].Filename != "front.png" {
		t.Fatalf("imgs = %+v", imgs)
	}
	if !strings.HasPrefix(imgs[0].URL, "https://api.example.bh/media/") || !strings.HasSuffix(imgs[0].URL, ".png") {
		t.Errorf("url = %q", imgs[0].URL)
	}

	req := httptest.NewRequest(http.MethodGet, "/firm-properties/7/images", nil)
	req.Header.Set("X-Firm", "firm-a")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "front.png") {
		t.Errorf("list status = %d body %s", rec.Code, rec.Body.String())
	}

	mediaPath := strings.TrimPrefix(imgs[0].URL, "https://api.example.bh")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, mediaPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("media status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/png" || !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Error("media response does not match upload")
	}
}

func TestUploadPositionsIncrease(t *testing.T) {
	f := newFixture()
	f.upload(t, "firm-a", 7, map[string][]byte{"a.png": pngBytes})
	f.upload(t, "firm-a", 7, map[string][]byte{"b.png": pngBytes})
	rows, _ := f.meta.ListForListing(context.Background(), 7)
	if len(rows) != 2 || rows[0].Position != 0 || rows[1].Position != 1 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestConcurrentUploadsGetDistinctPositions(t *testing.T) {
	f := newFixture()
	const n = 12
	reqs := make([]*http.Request, n)
	for i := range reqs {
		body, ct := multipartBody(t, map[string][]byte{fmt.Sprintf("%d.png", i): pngBytes})
		reqs[i] = httptest.NewRequest(http.MethodPost, "/firm-properties/7/images", body)
		reqs[i].Header.Set("Content-Type", ct)
		reqs[i].Header.Set("X-Firm", "firm-a")
	}

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req *http.Request) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusCreated {
				t.Errorf("upload status = %d", rec.Code)
			}
		}(req)
	}
	wg.Wait()

	rows, _ := f.meta.ListForListing(context.Background(), 7)
	seen := map[int]bool{}
	for _, r := range rows {
		if seen[r.Position] {
			t.Errorf("position %d assigned twice", r.Position)
		}
		seen[r.Position] = true
	}
	if len(rows) != n || len(seen) != n {
		t.Errorf("rows = %d, distinct positions = %d, want %d", len(rows), len(seen), n)
	}
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		firm     string
		listing  int64
		files    map[string][]byte
		wantCode int
	}{
		{"text file", "firm-a", 7, map[string][]byte{"notes.txt": []byte("just some words")}, http.StatusBadRequest},
		{"other firm", "firm-b", 7, map[string][]byte{"a.png": pngBytes}, http.StatusNotFound},
		{"unknown listing", "firm-a", 99, map[string][]byte{"a.png": pngBytes}, http.StatusNotFound},
		{"too many files", "firm-a", 7, map[string][]byte{"1.png": pngBytes, "2.png": pngBytes, "3.png": pngBytes, "4.png": pngBytes}, http.StatusBadRequest},
		{"no files", "firm-a", 7, map[string][]byte{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if rec := f.upload(t, tt.firm, tt.listing, tt.files); rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if len(f.objects.data) != 0 {
				t.Error("objects were stored for a rejected upload")
			}
		})
	}
}

func TestDeleteImage(t *testing.T) {
	f := newFixture()
	f.upload(t, "firm-a", 7, map[string][]byte{"a.png": pngBytes})
	img := f.meta.rows[0]

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/firm-properties/7/images/%d", img.ID), nil)
	req.Header.Set("X-Firm", "firm-b")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-firm delete = %d, want 404", rec.Code)
	}

	req.Header.Set("X-Firm", "firm-a")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if _, ok := f.objects.data[img.ObjectKey]; ok {
		t.Error("object not removed")
	}
}

func TestPurgeListingAndOrphans(t *testing.T) {
	f := newFixture()
	f.upload(t, "firm-a", 7, map[string][]byte{"a.png": pngBytes, "b.png": pngBytes})
	f.upload(t, "firm-b", 8, map[string][]byte{"c.png": pngBytes})

	if err := f.svc.PurgeListing(context.Background(), 7); err != nil {
		t.Fatalf("PurgeListing: %v", err)
	}
	if len(f.objects.data) != 1 || len(f.meta.rows) != 1 {
		t.Errorf("after purge: %d objects, %d rows", len(f.objects.data), len(f.meta.rows))
	}

	delete(f.meta.owners, 8)
	n, err := f.svc.PurgeOrphans(context.Background())
	if err != nil || n != 1 {
		t.Errorf("PurgeOrphans = %d, %v", n, err)
	}
	if len(f.objects.data) != 0 {
		t.Error("orphaned object left behind")
	}
}

func TestMediaRejectsBadKeys(t *testing.T) {
	f := newFixture()
	for _, p := range []string{"/media/../../etc/passwd", "/media/abc.png", "/media/00000000-0000-0000-0000-000000000000.png"} {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", p, rec.Code)
		}
	}
}
