package earthengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Administrative boundary tables used to resolve place names.
const (
	GAULCountries = "FAO/GAUL/2015/level0"
	GAULStates    = "FAO/GAUL/2015/level1"
	GAULDistricts = "FAO/GAUL/2015/level2"
)

// RegionKind tells how a Region was specified.
type RegionKind string

const (
	RegionBBox    RegionKind = "bbox"
	RegionGeoJSON RegionKind = "geojson"
	RegionPlace   RegionKind = "place"
)

// Region is a caller-supplied area of interest.
type Region struct {
	Kind    RegionKind     `json:"kind"`
	BBox    []float64      `json:"bbox,omitempty"`
	GeoJSON map[string]any `json:"geojson,omitempty"`
	Place   string         `json:"place,omitempty"`
}

// ErrEmptyRegion is returned when no region was supplied.
var ErrEmptyRegion = errors.New("region is required")

// ParseRegion accepts a JSON string (place name or "west,south,east,north") or a
// GeoJSON object (Polygon, MultiPolygon, Point, or a Feature wrapping one).
func ParseRegion(raw json.RawMessage) (Region, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == `""` {
		return Region{}, ErrEmptyRegion
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Region{}, fmt.Errorf("invalid GeoJSON region: %w", err)
		}
		return regionFromGeoJSON(obj)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Region{}, fmt.Errorf("region must be a string or GeoJSON object: %w", err)
	}
	return ParseRegionString(s)
}

// ParseRegionString parses the string forms of a region.
func ParseRegionString(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Region{}, ErrEmptyRegion
	}
	if strings.HasPrefix(s, "{") {
		return ParseRegion(json.RawMessage(s))
	}
	if bbox, ok := parseBBox(s); ok {
		if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
			return Region{}, fmt.Errorf("invalid bbox %q: want west,south,east,north", s)
		}
		if bbox[1] < -90 || bbox[3] > 90 || bbox[0] < -180 || bbox[2] > 180 {
			return Region{}, fmt.Errorf("bbox %q outside valid longitude/latitude range", s)
		}
		return Region{Kind: RegionBBox, BBox: bbox}, nil
	}
	return Region{Kind: RegionPlace, Place: s}, nil
}

func parseBBox(s string) ([]float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, false
	}
	out := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func regionFromGeoJSON(obj map[string]any) (Region, error) {
	if t, _ := obj["type"].(string); t == "Feature" {
		geom, ok := obj["geometry"].(map[string]any)
		if !ok {
			return Region{}, errors.New("GeoJSON feature has no geometry")
		}
		obj = geom
	}
	switch t, _ := obj["type"].(string); t {
	case "Polygon", "MultiPolygon", "Point":
		if _, ok := obj["coordinates"].([]any); !ok {
			return Region{}, fmt.Errorf("GeoJSON %s has no coordinates", t)
		}
		return Region{Kind: RegionGeoJSON, GeoJSON: obj}, nil
	default:
		return Region{}, fmt.Errorf("unsupported GeoJSON type %q", t)
	}
}

// Geometry builds the Earth Engine geometry for the region. Place names are
// matched against the country, state and district boundary tables.
func (r Region) Geometry() Geometry {
	switch r.Kind {
	case RegionBBox:
		return Geometry{Call("GeometryConstructors.Rectangle", map[string]any{
			"coordinates": r.BBox,
			"geodesic":    false,
		})}
	case RegionGeoJSON:
		t, _ := r.GeoJSON["type"].(string)
		args := map[string]any{"coordinates": r.GeoJSON["coordinates"]}
		if t != "Point" {
			args["geodesic"] = false
		}
		return Geometry{Call("GeometryConstructors."+t, args)}
	default:
		return PlaceBoundaries(r.Place).Geometry()
	}
}

// PlaceBoundaries returns the administrative units whose name equals place.
func PlaceBoundaries(place string) FeatureCollection {
	countries := LoadTable(GAULCountries).Filter(EqualsFilter("ADM0_NAME", place))
	states := LoadTable(GAULStates).Filter(EqualsFilter("ADM1_NAME", place))
	districts := LoadTable(GAULDistricts).Filter(EqualsFilter("ADM2_NAME", place))
	return districts.Merge(states).Merge(countries)
}

// Point builds a point geometry.
func Point(lon, lat float64) Geometry {
	return Geometry{Call("GeometryConstructors.Point", map[string]any{
		"coordinates": []float64{lon, lat},
	})}
}

// String is a short human-readable descriptor.
func (r Region) String() string {
	switch r.Kind {
	case RegionBBox:
		return fmt.Sprintf("bbox(%g,%g,%g,%g)", r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3])
	case RegionGeoJSON:
		t, _ := r.GeoJSON["type"].(string)
		return "geojson:" + t
	default:
		return r.Place
	}
}

// Center returns an approximate center for map viewports, if it can be computed
// locally.
func (r Region) Center() ([2]float64, bool) {
	switch r.Kind {
	case RegionBBox:
		return [2]float64{(r.BBox[0] + r.BBox[2]) / 2, (r.BBox[1] + r.BBox[3]) / 2}, true
	case RegionGeoJSON:
		var sumLon, sumLat float64
		var n int
		walkCoordinates(r.GeoJSON["coordinates"], func(lon, lat float64) {
			sumLon += lon
			sumLat += lat
			n++
		})
		if n == 0 {
			return [2]float64{}, false
		}
		return [2]float64{sumLon / float64(n), sumLat / float64(n)}, true
	default:
		return [2]float64{}, false
	}
}

// Bounds returns west, south, east, north if computable locally.
func (r Region) Bounds() ([4]float64, bool) {
	switch r.Kind {
	case RegionBBox:
		return [4]float64{r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3]}, true
	case RegionGeoJSON:
		b := [4]float64{180, 90, -180, -90}
		n := 0
		walkCoordinates(r.GeoJSON["coordinates"], func(lon, lat float64) {
			b[0] = min(b[0], lon)
			b[1] = min(b[1], lat)
			b[2] = max(b[2], lon)
			b[3] = max(b[3], lat)
			n++
		})
		return b, n > 0
	default:
		return [4]float64{}, false
	}
}

func walkCoordinates(v any, fn func(lon, lat float64)) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return
	}
	if lon, ok := arr[0].(float64); ok && len(arr) >= 2 {
		if lat, ok := arr[1].(float64); ok {
			fn(lon, lat)
		}
		return
	}
	for _, item := range arr {
		walkCoordinates(item, fn)
	}
}
