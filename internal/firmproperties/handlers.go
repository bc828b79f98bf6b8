package firmproperties

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/manzil-bh/manzil-backend/internal/contracts"
	"github.com/manzil-bh/manzil-backend/internal/geocoding"
	"github.com/manzil-bh/manzil-backend/internal/httputil"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/manzil-bh/manzil-backend/internal/utils"
)

const maxBodyBytes = 1 << 20

type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocoding.Result, error)
}

// ImagePurger removes the attachments of a deleted ledger row.
type ImagePurger interface {
	PurgeListing(ctx context.Context, listingID int64) error
}

type Handler struct {
	store    Store
	geocoder Geocoder
	images   ImagePurger
}

// NewHandler wires the ledger endpoints. geocoder and images may be nil.
func NewHandler(store Store, geocoder Geocoder, images ImagePurger) *Handler {
	return &Handler{store: store, geocoder: geocoder, images: images}
}

func principal(r *http.Request) utils.Principal {
	p, _ := utils.GetPrincipalFromContext(r.Context())
	return p
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &listing.ValidationError{Field: "id", Msg: "must be a positive integer"}
	}
	return id, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &listing.ValidationError{Msg: "request body too large"}
		}
		return nil, err
	}
	return raw, nil
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	raw, err := readBody(w, r)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	if err := contracts.Validate(contracts.FirmPropertyCreate, raw); err != nil {
		httputil.Fail(w, r, err)
		return
	}

	var req listing.CreateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		httputil.Fail(w, r, &listing.ValidationError{Msg: "invalid JSON body: " + err.Error()})
		return
	}

	nl, err := listing.ValidateCreate(req)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	if nl.Stub != nil && !nl.Stub.HasCoordinates() {
		h.resolveStub(r.Context(), nl.Stub)
	}

	id, err := h.store.Create(r.Context(), p.FirmID, p.UserID, nl)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("firm property created",
		"id", id, "firm_id", p.FirmID, "type", nl.Type, "status", nl.Status)
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// resolveStub fills coordinates, area and block from the address. Failures
// leave the stub as given; it is stored without a dedupe key.
func (h *Handler) resolveStub(ctx context.Context, st *listing.NewStub) {
	if h.geocoder == nil || strings.TrimSpace(st.Address) == "" {
		return
	}
	res, err := h.geocoder.Geocode(ctx, st.Address)
	if err != nil {
		if !errors.Is(err, geocoding.ErrNoResult) {
			logging.FromContext(ctx).Warn("geocoding new stub failed", "address", st.Address, logging.Err(err))
		}
		return
	}
	lat, lon := res.Lat, res.Lng
	st.Lat, st.Lon = &lat, &lon
	if st.AreaName == "" {
		st.AreaName = res.Area
	}
	if st.BlockNo == "" {
		st.BlockNo = res.Block
	}
}

// ListFiltersFromQuery parses ?status=&type=&listing_type=&area=&block=
// &min_price=&max_price=&limit=&offset=.
func ListFiltersFromQuery(q url.Values) (ListFilters, error) {
	var f ListFilters

	if v := strings.TrimSpace(q.Get("status")); v != "" {
		s, err := listing.ParseStatus(v)
		if err != nil {
			return f, &listing.ValidationError{Field: "status", Msg: err.Error()}
		}
		f.Status = string(s)
	}
	if v := strings.TrimSpace(q.Get("type")); v != "" {
		t, err := listing.ParsePropertyType(v)
		if err != nil {
			return f, &listing.ValidationError{Field: "type", Msg: err.Error()}
		}
		f.PropertyType = string(t)
	}
	if v := strings.TrimSpace(q.Get("listing_type")); v != "" {
		lt, err := listing.ParseListingType(v)
		if err != nil {
			return f, &listing.ValidationError{Field: "listing_type", Msg: err.Error()}
		}
		f.ListingType = string(lt)
	}
	f.Area = strings.TrimSpace(q.Get("area"))
	f.Block = strings.TrimSpace(q.Get("block"))

	var err error
	if f.MinPrice, err = floatParam(q, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = floatParam(q, "max_price"); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, &listing.ValidationError{Field: "min_price", Msg: "must not exceed max_price"}
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return nil, &listing.ValidationError{Field: name, Msg: "must be a non-negative number"}
	}
	return &f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &listing.ValidationError{Field: name, Msg: "must be a non-negative integer"}
	}
	return n, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f, err := ListFiltersFromQuery(r.URL.Query())
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	rows, err := h.store.List(r.Context(), principal(r).FirmID, f)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	row, err := h.store.Get(r.Context(), principal(r).FirmID, id)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) ListByParcel(w http.ResponseWriter, r *http.Request) {
	parcelNo := strings.TrimSpace(chi.URLParam(r, "parcelNo"))
	if parcelNo == "" {
		httputil.Fail(w, r, &listing.ValidationError{Field: "parcelNo", Msg: "is required"})
		return
	}
	rows, err := h.store.ListByParcel(r.Context(), principal(r).FirmID, parcelNo)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	raw, err := readBody(w, r)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	if err := contracts.Validate(contracts.FirmPropertyUpdate, raw); err != nil {
		httputil.Fail(w, r, err)
		return
	}

	var req listing.UpdateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		httputil.Fail(w, r, &listing.ValidationError{Msg: "invalid JSON body: " + err.Error()})
		return
	}
	patch, err := listing.ValidateUpdate(req)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	row, err := h.store.Update(r.Context(), principal(r).FirmID, id, patch)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	row, err := h.store.Delete(r.Context(), principal(r).FirmID, id)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	if h.images != nil {
		// Leftovers are swept by the scheduled orphan purge.
		if err := h.images.PurgeListing(r.Context(), id); err != nil {
			logging.FromContext(r.Context()).Warn("purging images of deleted listing", "id", id, logging.Err(err))
		}
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}
