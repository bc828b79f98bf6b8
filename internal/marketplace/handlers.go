package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/manzil-bh/manzil-backend/internal/httputil"
	"github.com/manzil-bh/manzil-backend/internal/images"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"golang.org/x/sync/errgroup"
)

// ErrSearchDisabled is returned by Searcher implementations that have no
// backing index.
var ErrSearchDisabled = errors.New("search is not configured")

type ImageLister interface {
	ListPublic(ctx context.Context, listingID int64) ([]images.Image, error)
}

// Searcher finds listing ids for a keyword query, best match first.
type Searcher interface {
	SearchIDs(ctx context.Context, q string, types []string, limit, offset int) (ids []int64, total int64, err error)
}

const maxRadiusM = 50_000

type Handler struct {
	store  Store
	images ImageLister
	search Searcher
}

// NewHandler wires the public marketplace. images and search may be nil.
func NewHandler(store Store, images ImageLister, search Searcher) *Handler {
	return &Handler{store: store, images: images, search: search}
}

func invalid(field, msg string) error {
	return &listing.ValidationError{Field: field, Msg: msg}
}

func optInt(q url.Values, name string) (*int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	// "5+" is how the front end spells the last bucket.
	n, err := strconv.Atoi(strings.TrimSuffix(v, "+"))
	if err != nil || n < 0 {
		return nil, invalid(name, "must be a non-negative integer")
	}
	return &n, nil
}

func optFloat(q url.Values, name string) (*float64, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return nil, invalid(name, "must be a non-negative number")
	}
	return &f, nil
}

// FiltersFromQuery parses the caller filters of a catalogue route. ?type=
// may only narrow the route's own property types.
func FiltersFromQuery(q url.Values, c Catalogue) (Filters, error) {
	f := Filters{Types: c.Types, WithGeometry: c.Geometry}

	if v := strings.TrimSpace(q.Get("type")); v != "" {
		t, err := listing.ParsePropertyType(v)
		if err != nil || !slices.Contains(c.Types, t) {
			return f, invalid("type", "not available on this route")
		}
		f.Types = []listing.PropertyType{t}
	}
	if v := strings.TrimSpace(q.Get("listing_type")); v != "" {
		lt, err := listing.ParseListingType(v)
		if err != nil {
			return f, invalid("listing_type", "must be sale or rent")
		}
		f.ListingType = string(lt)
	}

	var err error
	if v := strings.TrimSpace(q.Get("bedrooms")); strings.HasSuffix(v, "+") {
		f.MinBedrooms, err = optInt(q, "bedrooms")
	} else {
		f.Bedrooms, err = optInt(q, "bedrooms")
	}
	if err != nil {
		return f, err
	}
	if f.Bathrooms, err = optInt(q, "bathrooms"); err != nil {
		return f, err
	}
	if f.MinPrice, err = optFloat(q, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optFloat(q, "max_price"); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, invalid("min_price", "must not exceed max_price")
	}

	f.Area = strings.TrimSpace(q.Get("area"))
	if v := strings.TrimSpace(q.Get("firm_id")); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return f, invalid("firm_id", "must be a UUID")
		}
		f.FirmID = v
	}
	if v := strings.TrimSpace(q.Get("furnished")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, invalid("furnished", "must be true or false")
		}
		f.Furnished = &b
	}

	limit, err := optInt(q, "limit")
	if err != nil {
		return f, err
	}
	offset, err := optInt(q, "offset")
	if err != nil {
		return f, err
	}
	if limit != nil {
		f.Limit = *limit
	}
	if offset != nil {
		f.Offset = *offset
	}
	return f, nil
}

type listResponse struct {
	Listings []Listing `json:"listings"`
	Options  *Options  `json:"options"`
}

func (h *Handler) List(c Catalogue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := FiltersFromQuery(r.URL.Query(), c)
		if err != nil {
			httputil.Fail(w, r, err)
			return
		}

		var resp listResponse
		start := time.Now()
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() (err error) {
			resp.Listings, err = h.store.List(ctx, f)
			return err
		})
		g.Go(func() (err error) {
			resp.Options, err = h.store.Options(ctx, c.Types)
			return err
		})
		if err := g.Wait(); err != nil {
			httputil.Fail(w, r, err)
			return
		}

		httputil.ServerTiming(w, httputil.Timing{Name: "db", Dur: time.Since(start)})
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) Detail(c Catalogue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httputil.Fail(w, r, invalid("id", "must be a positive integer"))
			return
		}

		l, err := h.store.Get(r.Context(), c.Types, id, true)
		if err != nil {
			httputil.Fail(w, r, err)
			return
		}

		d := Detail{Listing: *l, Images: []images.Image{}}
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			contact, err := h.store.Contact(ctx, id)
			if err != nil {
				return err
			}
			d.Contact = *contact
			return nil
		})
		if h.images != nil {
			g.Go(func() (err error) {
				d.Images, err = h.images.ListPublic(ctx, id)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			httputil.Fail(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, d)
	}
}

// Nearby lists visible listings within radius_m metres of lat/lon,
// nearest first.
func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		httputil.Fail(w, r, invalid("lat", "lat and lon are required coordinates"))
		return
	}

	radius := 2000.0
	if v := q.Get("radius_m"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > maxRadiusM {
			httputil.Fail(w, r, invalid("radius_m", "must be between 0 and 50000"))
			return
		}
		radius = f
	}

	types := listing.PropertyTypes
	if v := q.Get("type"); v != "" {
		t, err := listing.ParsePropertyType(v)
		if err != nil {
			httputil.Fail(w, r, invalid("type", err.Error()))
			return
		}
		types = []listing.PropertyType{t}
	}

	limit, err := optInt(q, "limit")
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	rows, err := h.store.Nearby(r.Context(), lat, lon, radius, types, n)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"listings": rows})
}

// Search runs a keyword query against the search index and hydrates the
// hits from the database, so stale index entries never leak.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, ErrSearchDisabled.Error())
		return
	}

	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		httputil.Fail(w, r, invalid("q", "is required"))
		return
	}

	var types []string
	if v := q.Get("type"); v != "" {
		t, err := listing.ParsePropertyType(v)
		if err != nil {
			httputil.Fail(w, r, invalid("type", err.Error()))
			return
		}
		types = []string{string(t)}
	}
	limit, err := optInt(q, "limit")
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	offset, err := optInt(q, "offset")
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	n, off := defaultLimit, 0
	if limit != nil {
		n = clamp(*limit)
	}
	if offset != nil {
		off = *offset
	}

	ids, total, err := h.search.SearchIDs(r.Context(), text, types, n, off)
	if err != nil {
		if errors.Is(err, ErrSearchDisabled) {
			httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httputil.Fail(w, r, err)
		return
	}
	rows, err := h.store.GetMany(r.Context(), ids)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"listings":        rows,
		"estimated_total": total,
	})
}
