package core

import (
	"encoding/json"
	"fmt"
	"reflect"
)

type (
	// Geometry is an opaque spatial shape. It is only ever constructed from an
	// interchange payload and compared structurally, never by identity, since
	// drawing surfaces re-deliver fresh payloads for the same shape.
	Geometry struct {
		Type        string
		Coordinates any
	}

	// Feature pairs a Geometry with an optional property set. Properties are
	// nil when none were ever assigned.
	Feature struct {
		Geometry   Geometry
		Properties map[string]any
	}

	// FeatureCollection is the ordered aggregate of features derived from a
	// draw control.
	FeatureCollection struct {
		Features []Feature
	}
)

// GeometryFromFeature converts an interchange payload into a Geometry.
// A payload without a geometry type or coordinates is malformed; the failure
// is fatal for the event that carried it, not for the caller's state.
func GeometryFromFeature(f GeoJSONFeature) (Geometry, error) {
	if f.Geometry.Type == "" {
		return Geometry{}, fmt.Errorf("geojson feature has no geometry type")
	}
	if len(f.Geometry.Coordinates) == 0 {
		return Geometry{}, fmt.Errorf("geojson geometry %q has no coordinates", f.Geometry.Type)
	}
	var coords any
	if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
		return Geometry{}, fmt.Errorf("invalid coordinates for geometry %q: %w", f.Geometry.Type, err)
	}
	return Geometry{Type: f.Geometry.Type, Coordinates: coords}, nil
}

// Equal reports structural equality of two geometries.
func (g Geometry) Equal(other Geometry) bool {
	return g.Type == other.Type && reflect.DeepEqual(g.Coordinates, other.Coordinates)
}

// GeoJSON renders the geometry back into its interchange form.
func (g Geometry) GeoJSON() (GeoJSONGeometry, error) {
	coords, err := json.Marshal(g.Coordinates)
	if err != nil {
		return GeoJSONGeometry{}, fmt.Errorf("marshal coordinates: %w", err)
	}
	return GeoJSONGeometry{Type: g.Type, Coordinates: coords}, nil
}

// Equal reports whether two features have equal geometry and properties.
func (f Feature) Equal(other Feature) bool {
	return f.Geometry.Equal(other.Geometry) && reflect.DeepEqual(f.Properties, other.Properties)
}

// MarshalJSON renders the feature as a standard GeoJSON Feature.
func (f Feature) MarshalJSON() ([]byte, error) {
	geom, err := f.Geometry.GeoJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(GeoJSONFeature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: f.Properties,
	})
}

// UnmarshalJSON rebuilds a feature from its GeoJSON form.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var in GeoJSONFeature
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("invalid feature: %w", err)
	}
	geom, err := GeometryFromFeature(in)
	if err != nil {
		return err
	}
	f.Geometry = geom
	f.Properties = in.Properties
	return nil
}

// Equal reports whether two collections hold equal features in the same order.
func (fc FeatureCollection) Equal(other FeatureCollection) bool {
	if len(fc.Features) != len(other.Features) {
		return false
	}
	for i, f := range fc.Features {
		if !f.Equal(other.Features[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the collection as standard GeoJSON.
func (fc FeatureCollection) MarshalJSON() ([]byte, error) {
	out := GeoJSONFeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]GeoJSONFeature, 0, len(fc.Features)),
	}
	for _, f := range fc.Features {
		geom, err := f.Geometry.GeoJSON()
		if err != nil {
			return nil, err
		}
		out.Features = append(out.Features, GeoJSONFeature{
			Type:       "Feature",
			Geometry:   geom,
			Properties: f.Properties,
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a collection from standard GeoJSON, so persisted
// snapshots round-trip into the same feature sequence they were derived from.
func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	var in GeoJSONFeatureCollection
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("invalid feature collection: %w", err)
	}
	features := make([]Feature, 0, len(in.Features))
	for _, payload := range in.Features {
		geom, err := GeometryFromFeature(payload)
		if err != nil {
			return err
		}
		features = append(features, Feature{Geometry: geom, Properties: payload.Properties})
	}
	fc.Features = features
	return nil
}
