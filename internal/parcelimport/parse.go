// Package parcelimport loads cadastral land parcels from a GeoJSON
// FeatureCollection into the properties table.
package parcelimport

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Parcel is one feature ready for insert. GeoJSON is a WGS-84 MultiPolygon.
type Parcel struct {
	ParcelNo  string
	BlockNo   string
	AreaNameE string
	Zoning    string
	ShapeArea *float64
	GeoJSON   string
}

// Skip records a feature that was not imported.
type Skip struct {
	Index  int
	Reason string
}

// property names accepted for each column, matched case-insensitively.
var aliases = map[string][]string{
	"parcel_no":  {"parcel_no", "parcelno", "parcel"},
	"block_no":   {"block_no", "blockno", "block"},
	"area_namee": {"area_namee", "area_name_e", "area_name", "area"},
	"min_min_go": {"min_min_go", "zoning"},
	"shape_area": {"shape_area", "shape_area_m2", "area_sqm"},
}

func lookup(props geojson.Properties, col string) (any, bool) {
	lower := make(map[string]any, len(props))
	for k, v := range props {
		lower[strings.ToLower(k)] = v
	}
	for _, a := range aliases[col] {
		if v, ok := lower[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// text renders string or numeric property values; cadastral exports
// often carry parcel and block numbers as numbers.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func number(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func multiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch t := g.(type) {
	case orb.MultiPolygon:
		return t, len(t) > 0
	case orb.Polygon:
		return orb.MultiPolygon{t}, len(t) > 0
	}
	return nil, false
}

func inWGS84(mp orb.MultiPolygon) bool {
	b := mp.Bound()
	return b.Min.Lon() >= -180 && b.Max.Lon() <= 180 && b.Min.Lat() >= -90 && b.Max.Lat() <= 90
}

// Parse reads a FeatureCollection. Features without a parcel number or a
// polygonal WGS-84 geometry are skipped. When a parcel number repeats, the
// later feature wins.
func Parse(r io.Reader) ([]Parcel, []Skip, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse feature collection: %w", err)
	}

	var skips []Skip
	pos := map[string]int{}
	out := make([]Parcel, 0, len(fc.Features))
	for i, f := range fc.Features {
		v, ok := lookup(f.Properties, "parcel_no")
		no := text(v)
		if !ok || no == "" {
			skips = append(skips, Skip{Index: i, Reason: "no parcel number"})
			continue
		}
		mp, ok := multiPolygon(f.Geometry)
		if !ok {
			skips = append(skips, Skip{Index: i, Reason: fmt.Sprintf("parcel %s: geometry is not a polygon", no)})
			continue
		}
		if !inWGS84(mp) {
			skips = append(skips, Skip{Index: i, Reason: fmt.Sprintf("parcel %s: coordinates are not WGS-84", no)})
			continue
		}
		gj, err := geojson.NewGeometry(mp).MarshalJSON()
		if err != nil {
			return nil, nil, fmt.Errorf("parcel %s: %w", no, err)
		}

		p := Parcel{ParcelNo: no, GeoJSON: string(gj)}
		if v, ok := lookup(f.Properties, "block_no"); ok {
			p.BlockNo = text(v)
		}
		if v, ok := lookup(f.Properties, "area_namee"); ok {
			p.AreaNameE = text(v)
		}
		if v, ok := lookup(f.Properties, "min_min_go"); ok {
			p.Zoning = strings.ToUpper(text(v))
		}
		if v, ok := lookup(f.Properties, "shape_area"); ok {
			p.ShapeArea = number(v)
		}

		if j, dup := pos[no]; dup {
			skips = append(skips, Skip{Index: i, Reason: fmt.Sprintf("parcel %s: duplicate, replaces earlier feature", no)})
			out[j] = p
			continue
		}
		pos[no] = len(out)
		out = append(out, p)
	}
	return out, skips, nil
}
