package types

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// GeoPointValue is the typed value of a geopoint field.
type GeoPointValue struct {
	Lon float64
	Lat float64
}

func (p GeoPointValue) String() string {
	return fmt.Sprintf("%s, %s",
		strconv.FormatFloat(p.Lon, 'f', -1, 64), strconv.FormatFloat(p.Lat, 'f', -1, 64))
}

// MarshalJSON encodes the point as [lon, lat].
func (p GeoPointValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{p.Lon, p.Lat})
}

func castGeoPoint(format string, raw any) (any, error) {
	if p, ok := raw.(GeoPointValue); ok {
		return checkPoint(format, raw, p.Lon, p.Lat)
	}

	switch format {
	case DefaultFormat:
		s, ok := trimmed(raw)
		if !ok {
			return fail(GeoPoint, format, raw, "unsupported value type %T", raw)
		}
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return fail(GeoPoint, format, raw, `expected "lon, lat"`)
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return fail(GeoPoint, format, raw, "coordinates are not numbers")
		}
		return checkPoint(format, raw, lon, lat)

	case "array":
		arr, err := decodeJSON[[]any](raw)
		if err != nil || len(arr) != 2 {
			return fail(GeoPoint, format, raw, "expected [lon, lat]")
		}
		lon, ok1 := toFloat(arr[0])
		lat, ok2 := toFloat(arr[1])
		if !ok1 || !ok2 {
			return fail(GeoPoint, format, raw, "coordinates are not numbers")
		}
		return checkPoint(format, raw, lon, lat)

	case "object":
		obj, err := decodeJSON[map[string]any](raw)
		if err != nil || len(obj) != 2 {
			return fail(GeoPoint, format, raw, `expected {"lon": .., "lat": ..}`)
		}
		lon, ok1 := toFloat(obj["lon"])
		lat, ok2 := toFloat(obj["lat"])
		if !ok1 || !ok2 {
			return fail(GeoPoint, format, raw, "coordinates are not numbers")
		}
		return checkPoint(format, raw, lon, lat)
	}
	return fail(GeoPoint, format, raw, "unknown format")
}

func checkPoint(format string, raw any, lon, lat float64) (any, error) {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fail(GeoPoint, format, raw, "coordinates out of range")
	}
	return GeoPointValue{Lon: lon, Lat: lat}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var geoJSONTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
	"Feature":            true,
	"FeatureCollection":  true,
}

func castGeoJSON(format string, raw any) (any, error) {
	obj, err := decodeJSON[map[string]any](raw)
	if err != nil {
		return fail(GeoJSON, format, raw, "not a JSON object")
	}
	typ, _ := obj["type"].(string)

	switch format {
	case "topojson":
		if typ != "Topology" {
			return fail(GeoJSON, format, raw, `type must be "Topology"`)
		}
		if _, ok := obj["objects"].(map[string]any); !ok {
			return fail(GeoJSON, format, raw, "missing objects")
		}
	default:
		if !geoJSONTypes[typ] {
			return fail(GeoJSON, format, raw, "unknown GeoJSON type %q", typ)
		}
		if typ == "Feature" {
			if _, ok := obj["geometry"]; !ok {
				return fail(GeoJSON, format, raw, "feature without geometry")
			}
		}
	}
	return obj, nil
}
