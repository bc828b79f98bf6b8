package parcels

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/manzil-bh/manzil-backend/internal/httputil"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/manzil-bh/manzil-backend/internal/utils"
	"github.com/paulmach/orb/geojson"
)

type Handler struct {
	store       Store
	excluded    []string
	maxFeatures int
}

// NewHandler serves /coordinates. Parcels zoned as any of excluded are
// never returned.
func NewHandler(store Store, excluded []string, maxFeatures int) *Handler {
	if maxFeatures <= 0 {
		maxFeatures = 5000
	}
	return &Handler{store: store, excluded: excluded, maxFeatures: maxFeatures}
}

func ParseBBox(s string) (*BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, &listing.ValidationError{Field: "bbox", Msg: "expected minLon,minLat,maxLon,maxLat"}
	}
	var b BBox
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, &listing.ValidationError{Field: "bbox", Msg: fmt.Sprintf("%q is not a number", p)}
		}
		b[i] = v
	}
	if b[0] >= b[2] || b[1] >= b[3] || b[0] < -180 || b[2] > 180 || b[1] < -90 || b[3] > 90 {
		return nil, &listing.ValidationError{Field: "bbox", Msg: "not a valid WGS-84 box"}
	}
	return &b, nil
}

// Coordinates returns eligible parcels as a GeoJSON FeatureCollection.
// Each feature carries firm_saved: whether the caller's firm has a ledger
// row for it.
func (h *Handler) Coordinates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filters{
		BlockNo:        strings.TrimSpace(q.Get("block_no")),
		AreaNameE:      strings.TrimSpace(q.Get("area_namee")),
		Zoning:         strings.TrimSpace(q.Get("min_min_go")),
		ExcludedZoning: h.excluded,
		Limit:          h.maxFeatures + 1,
	}
	if v := q.Get("bbox"); v != "" {
		b, err := ParseBBox(v)
		if err != nil {
			httputil.Fail(w, r, err)
			return
		}
		f.BBox = b
	}

	p, _ := utils.GetPrincipalFromContext(r.Context())
	rows, err := h.store.Parcels(r.Context(), p.FirmID, f)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	if len(rows) > h.maxFeatures {
		rows = rows[:h.maxFeatures]
		w.Header().Set("X-Truncated", "true")
	}

	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		g, err := geojson.UnmarshalGeometry([]byte(row.GeoJSON))
		if err != nil {
			logging.FromContext(r.Context()).Warn("skipping parcel with unreadable geometry",
				"parcel_no", row.ParcelNo, logging.Err(err))
			continue
		}
		feat := geojson.NewFeature(g.Geometry())
		feat.ID = row.ParcelNo
		feat.Properties["parcel_no"] = row.ParcelNo
		feat.Properties["block_no"] = row.BlockNo
		feat.Properties["area_namee"] = row.AreaNameE
		feat.Properties["min_min_go"] = row.Zoning
		feat.Properties["shape_area"] = row.ShapeArea
		feat.Properties["firm_saved"] = row.FirmSaved
		fc.Append(feat)
	}

	w.Header().Set("Content-Type", "application/geo+json")
	body, err := fc.MarshalJSON()
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
