package core

import (
	"encoding/json"
	"testing"
)

const pointFeatureJSON = `{
	"type": "Feature",
	"geometry": {"type": "Point", "coordinates": [-67.1, 46.2]},
	"properties": {"name": "somewhere"}
}`

const polygonFeatureJSON = `{
	"type": "Feature",
	"geometry": {
		"type": "Polygon",
		"coordinates": [[[0, 1], [0, -1], [1, -1], [1, 1], [0, 1]]]
	}
}`

func TestDecodeGeoJSONFeature(t *testing.T) {
	feature, err := DecodeGeoJSONFeature([]byte(pointFeatureJSON))
	if err != nil {
		t.Fatalf("DecodeGeoJSONFeature() failed: %v", err)
	}
	if feature.Geometry.Type != "Point" {
		t.Errorf("geometry type = %q, want Point", feature.Geometry.Type)
	}
	if feature.Properties["name"] != "somewhere" {
		t.Errorf("properties = %v, want name=somewhere", feature.Properties)
	}
}

func TestDecodeGeoJSONFeature_Invalid(t *testing.T) {
	if _, err := DecodeGeoJSONFeature([]byte(`{"type": `)); err == nil {
		t.Fatal("DecodeGeoJSONFeature() accepted truncated JSON")
	}
}

func TestGeometryFromFeature_StructuralEquality(t *testing.T) {
	// The same payload parsed twice yields equal geometries even though the
	// values are distinct.
	first, err := GeometryFromFeature(mustDecode(t, polygonFeatureJSON))
	if err != nil {
		t.Fatalf("GeometryFromFeature() failed: %v", err)
	}
	second, err := GeometryFromFeature(mustDecode(t, polygonFeatureJSON))
	if err != nil {
		t.Fatalf("GeometryFromFeature() failed: %v", err)
	}
	if !first.Equal(second) {
		t.Error("re-parsed geometries are not equal")
	}
}

func TestGeometryFromFeature_DifferentShapesDiffer(t *testing.T) {
	point, err := GeometryFromFeature(mustDecode(t, pointFeatureJSON))
	if err != nil {
		t.Fatalf("GeometryFromFeature() failed: %v", err)
	}
	polygon, err := GeometryFromFeature(mustDecode(t, polygonFeatureJSON))
	if err != nil {
		t.Fatalf("GeometryFromFeature() failed: %v", err)
	}
	if point.Equal(polygon) {
		t.Error("point and polygon compare equal")
	}
}

func TestGeometryFromFeature_MissingGeometryType(t *testing.T) {
	_, err := GeometryFromFeature(GeoJSONFeature{Type: "Feature"})
	if err == nil {
		t.Fatal("GeometryFromFeature() accepted a payload without a geometry type")
	}
}

func TestGeometryFromFeature_MissingCoordinates(t *testing.T) {
	_, err := GeometryFromFeature(GeoJSONFeature{
		Type:     "Feature",
		Geometry: GeoJSONGeometry{Type: "Point"},
	})
	if err == nil {
		t.Fatal("GeometryFromFeature() accepted a geometry without coordinates")
	}
}

func TestFeatureCollectionRoundTrip(t *testing.T) {
	point, err := GeometryFromFeature(mustDecode(t, pointFeatureJSON))
	if err != nil {
		t.Fatalf("GeometryFromFeature() failed: %v", err)
	}
	polygon, err := GeometryFromFeature(mustDecode(t, polygonFeatureJSON))
	if err != nil {
		t.Fatalf("GeometryFromFeature() failed: %v", err)
	}

	original := FeatureCollection{Features: []Feature{
		{Geometry: point, Properties: map[string]any{"zone": "a"}},
		{Geometry: polygon},
	}}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal collection: %v", err)
	}

	var decoded FeatureCollection
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal collection: %v", err)
	}
	if !decoded.Equal(original) {
		t.Errorf("round-tripped collection differs:\n got %v\nwant %v", decoded, original)
	}
}

func TestFeatureCollection_UnmarshalInvalidFeature(t *testing.T) {
	var fc FeatureCollection
	err := json.Unmarshal([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature"}]}`), &fc)
	if err == nil {
		t.Fatal("UnmarshalJSON() accepted a feature without geometry")
	}
}

func mustDecode(t *testing.T, raw string) GeoJSONFeature {
	t.Helper()
	feature, err := DecodeGeoJSONFeature([]byte(raw))
	if err != nil {
		t.Fatalf("decode feature: %v", err)
	}
	return feature
}
