package core

import (
	"encoding/json"
	"fmt"
)

type (
	// GeoJSONGeometry is the geometry member of a GeoJSON Feature as delivered
	// by a drawing surface. Coordinates stay raw until a Geometry is built from
	// them, so arbitrary nesting (Point through MultiPolygon) passes through.
	GeoJSONGeometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}

	// GeoJSONFeature is the interchange payload emitted by drawing surfaces on
	// created/edited/deleted events.
	GeoJSONFeature struct {
		Type       string          `json:"type"`
		Geometry   GeoJSONGeometry `json:"geometry"`
		Properties map[string]any  `json:"properties,omitempty"`
	}

	// GeoJSONFeatureCollection is the standard aggregate wire form.
	GeoJSONFeatureCollection struct {
		Type     string           `json:"type"`
		Features []GeoJSONFeature `json:"features"`
	}
)

// DecodeGeoJSONFeature parses a raw event payload into a GeoJSONFeature.
func DecodeGeoJSONFeature(data []byte) (GeoJSONFeature, error) {
	var f GeoJSONFeature
	if err := json.Unmarshal(data, &f); err != nil {
		return GeoJSONFeature{}, fmt.Errorf("invalid geojson payload: %w", err)
	}
	return f, nil
}
