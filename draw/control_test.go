package draw

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"geodraw/core"
)

const nullIslandJSON = `{
	"type": "Feature",
	"geometry": {
		"type": "Polygon",
		"coordinates": [[[0, 1], [0, -1], [1, -1], [1, 1], [0, 1]]]
	},
	"properties": {"name": "Null Island"}
}`

const nullIsland2xJSON = `{
	"type": "Feature",
	"geometry": {
		"type": "Polygon",
		"coordinates": [[[0, 2], [0, -2], [2, -2], [2, 2], [0, 2]]]
	},
	"properties": {"name": "Null Island 2x"}
}`

// fakeSurface mimics a host drawing surface: it keeps the payloads of the
// visible shapes and drives the bound control the way a real surface would.
type fakeSurface struct {
	handler   func(kind EventKind, payload core.GeoJSONFeature) error
	payloads  []core.GeoJSONFeature
	bound     bool
	removeErr error
}

func (s *fakeSurface) Bind(handler func(kind EventKind, payload core.GeoJSONFeature) error) error {
	s.handler = handler
	s.bound = true
	return nil
}

func (s *fakeSurface) Current() ([]core.GeoJSONFeature, error) {
	out := make([]core.GeoJSONFeature, len(s.payloads))
	copy(out, s.payloads)
	return out, nil
}

func (s *fakeSurface) RemoveAt(index int) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.payloads = append(s.payloads[:index], s.payloads[index+1:]...)
	return nil
}

func (s *fakeSurface) Clear() error {
	s.payloads = nil
	return nil
}

// create draws a new shape on the surface and delivers the created event.
func (s *fakeSurface) create(t *testing.T, payload core.GeoJSONFeature) {
	t.Helper()
	s.payloads = append(s.payloads, payload)
	if err := s.handler(EventCreated, payload); err != nil {
		t.Fatalf("created event failed: %v", err)
	}
}

// edit replaces the shape at index and delivers the edited event.
func (s *fakeSurface) edit(t *testing.T, index int, payload core.GeoJSONFeature) {
	t.Helper()
	s.payloads[index] = payload
	if err := s.handler(EventEdited, payload); err != nil {
		t.Fatalf("edited event failed: %v", err)
	}
}

// remove deletes the shape at index and delivers the deleted event.
func (s *fakeSurface) remove(t *testing.T, index int) {
	t.Helper()
	payload := s.payloads[index]
	s.payloads = append(s.payloads[:index], s.payloads[index+1:]...)
	if err := s.handler(EventDeleted, payload); err != nil {
		t.Fatalf("deleted event failed: %v", err)
	}
}

func mustPayload(t *testing.T, raw string) core.GeoJSONFeature {
	t.Helper()
	payload, err := core.DecodeGeoJSONFeature([]byte(raw))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload
}

func mustGeometry(t *testing.T, raw string) core.Geometry {
	t.Helper()
	geometry, err := core.GeometryFromFeature(mustPayload(t, raw))
	if err != nil {
		t.Fatalf("parse geometry: %v", err)
	}
	return geometry
}

func newTestControl(t *testing.T) (*Control, *fakeSurface) {
	t.Helper()
	surface := &fakeSurface{}
	control, err := NewControl(surface)
	if err != nil {
		t.Fatalf("NewControl() failed: %v", err)
	}
	return control, surface
}

func TestNewControl_NilSurface(t *testing.T) {
	control, err := NewControl(nil)
	if err == nil {
		t.Fatal("NewControl(nil) did not fail")
	}
	if control != nil {
		t.Error("NewControl(nil) returned a control")
	}
	if !strings.Contains(err.Error(), "drawing surface") {
		t.Errorf("error %q does not mention the drawing surface", err)
	}
}

func TestNewControl_BindsToSurface(t *testing.T) {
	_, surface := newTestControl(t)
	if !surface.bound {
		t.Error("control did not bind to the surface")
	}
}

func TestInitialState(t *testing.T) {
	control, _ := newTestControl(t)

	if got := control.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	if got := len(control.Geometries()); got != 0 {
		t.Errorf("Geometries() has %d entries, want 0", got)
	}
	if got := len(control.Properties()); got != 0 {
		t.Errorf("Properties() has %d entries, want 0", got)
	}
	if got := len(control.Features()); got != 0 {
		t.Errorf("Features() has %d entries, want 0", got)
	}
	if got := len(control.Collection().Features); got != 0 {
		t.Errorf("Collection() has %d features, want 0", got)
	}
	if control.LastGeometry() != nil {
		t.Error("LastGeometry() is set before any mutation")
	}
	if control.LastFeature() != nil {
		t.Error("LastFeature() is set before any mutation")
	}
	if got := control.LastAction(); got != ActionNone {
		t.Errorf("LastAction() = %v, want ActionNone", got)
	}
}

func TestHandleCreated(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))

	want := mustGeometry(t, nullIslandJSON)
	geometries := control.Geometries()
	if len(geometries) != 1 || !geometries[0].Equal(want) {
		t.Errorf("Geometries() = %v, want [%v]", geometries, want)
	}
}

func TestHandleCreated_Duplicate(t *testing.T) {
	control, surface := newTestControl(t)
	payload := mustPayload(t, nullIslandJSON)
	surface.create(t, payload)

	if err := control.HandleCreated(payload); err == nil {
		t.Fatal("creating a duplicate geometry did not fail")
	}
	if got := control.Count(); got != 1 {
		t.Errorf("Count() = %d after rejected duplicate, want 1", got)
	}
}

func TestHandleCreated_MalformedPayload(t *testing.T) {
	control, _ := newTestControl(t)

	err := control.HandleCreated(core.GeoJSONFeature{Type: "Feature"})
	if err == nil {
		t.Fatal("malformed payload did not fail")
	}
	if got := control.Count(); got != 0 {
		t.Errorf("Count() = %d after failed event, want 0", got)
	}
	if got := control.LastAction(); got != ActionNone {
		t.Errorf("LastAction() = %v after failed event, want ActionNone", got)
	}
}

func TestHandleDeleted(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	if got := control.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}

	surface.remove(t, 0)
	if got := control.Count(); got != 0 {
		t.Errorf("Count() = %d after delete, want 0", got)
	}
}

func TestHandleDeleted_OnlyEntryIsUndo(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	removed := mustGeometry(t, nullIslandJSON)

	surface.remove(t, 0)

	if got := control.LastAction(); got != ActionRemovedLast {
		t.Errorf("LastAction() = %v, want ActionRemovedLast", got)
	}
	if last := control.LastGeometry(); last == nil || !last.Equal(removed) {
		t.Errorf("LastGeometry() = %v, want the removed geometry", last)
	}
}

func TestHandleDeleted_UnknownGeometry(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))

	if err := control.HandleDeleted(mustPayload(t, nullIsland2xJSON)); err == nil {
		t.Fatal("deleting an unknown geometry did not fail")
	}
	if got := control.Count(); got != 1 {
		t.Errorf("Count() = %d after failed delete, want 1", got)
	}
}

func TestHandleEdited(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))

	surface.edit(t, 0, mustPayload(t, nullIsland2xJSON))

	geometries := control.Geometries()
	want := mustGeometry(t, nullIsland2xJSON)
	if len(geometries) != 1 {
		t.Fatalf("Geometries() has %d entries after edit, want 1", len(geometries))
	}
	if !geometries[0].Equal(want) {
		t.Errorf("Geometries()[0] = %v, want the edited geometry", geometries[0])
	}
	if got := control.LastAction(); got != ActionEdited {
		t.Errorf("LastAction() = %v, want ActionEdited", got)
	}
	if last := control.LastGeometry(); last == nil || !last.Equal(want) {
		t.Errorf("LastGeometry() = %v, want the edited geometry", last)
	}
}

func TestHandleEdited_PreservesProperties(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))

	geometry := control.Geometries()[0]
	if err := control.SetProperties(geometry, map[string]any{"zone": "a"}); err != nil {
		t.Fatalf("SetProperties() failed: %v", err)
	}

	surface.edit(t, 0, mustPayload(t, nullIsland2xJSON))

	edited := control.Geometries()[0]
	props := control.GetProperties(edited)
	if props == nil || props["zone"] != "a" {
		t.Errorf("GetProperties() after edit = %v, want the original properties", props)
	}
}

func TestHandleEdited_CollidingGeometryRejected(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	surface.create(t, mustPayload(t, nullIsland2xJSON))

	second := mustGeometry(t, nullIsland2xJSON)
	if err := control.SetProperties(second, map[string]any{"zone": "b"}); err != nil {
		t.Fatalf("SetProperties() failed: %v", err)
	}

	// Edit the second shape so it becomes equal to the first.
	surface.payloads[1] = mustPayload(t, nullIslandJSON)
	err := control.HandleEdited(surface.payloads[1])
	if err == nil {
		t.Fatal("HandleEdited() accepted an edit that duplicates an existing geometry")
	}
	if !strings.Contains(err.Error(), "equals an existing geometry") {
		t.Errorf("HandleEdited() error = %v, want a duplicate-geometry error", err)
	}

	// The store is untouched: both geometries remain distinct and the second
	// entry's properties stay reachable.
	geometries := control.Geometries()
	if len(geometries) != 2 {
		t.Fatalf("Geometries() has %d entries, want 2", len(geometries))
	}
	if geometries[0].Equal(geometries[1]) {
		t.Error("store holds two equal geometries after a rejected edit")
	}
	if props := control.GetProperties(second); props == nil || props["zone"] != "b" {
		t.Errorf("GetProperties() = %v, want the second entry's properties", props)
	}
}

func TestRemoveGeometry_SurfaceFailureKeepsStore(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))

	geometry := control.Geometries()[0]
	surface.removeErr = fmt.Errorf("surface unavailable")

	if err := control.RemoveGeometry(geometry); err == nil {
		t.Fatal("RemoveGeometry() succeeded despite a surface failure")
	}

	if got := control.Count(); got != 1 {
		t.Errorf("Count() = %d after failed removal, want 1", got)
	}
	if got := control.LastAction(); got != ActionCreated {
		t.Errorf("LastAction() = %v after failed removal, want ActionCreated", got)
	}
}

func TestViewAccessors(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	geometry := mustGeometry(t, nullIslandJSON)

	if got := control.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	properties := control.Properties()
	if len(properties) != 1 || properties[0] != nil {
		t.Errorf("Properties() = %v, want [nil]", properties)
	}

	if last := control.LastGeometry(); last == nil || !last.Equal(geometry) {
		t.Errorf("LastGeometry() = %v, want the created geometry", last)
	}
	if got := control.LastAction(); got != ActionCreated {
		t.Errorf("LastAction() = %v, want ActionCreated", got)
	}

	features := control.Features()
	wantFeature := core.Feature{Geometry: geometry}
	if len(features) != 1 || !features[0].Equal(wantFeature) {
		t.Errorf("Features() = %v, want [%v]", features, wantFeature)
	}

	collection := control.Collection()
	if !collection.Equal(core.FeatureCollection{Features: []core.Feature{wantFeature}}) {
		t.Errorf("Collection() = %v, want the single created feature", collection)
	}

	if last := control.LastFeature(); last == nil || !last.Equal(wantFeature) {
		t.Errorf("LastFeature() = %v, want %v", last, wantFeature)
	}
}

func TestPropertyAccess(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	geometry := control.Geometries()[0]

	if props := control.GetProperties(geometry); props != nil {
		t.Errorf("GetProperties() = %v before assignment, want nil", props)
	}

	if err := control.SetProperties(geometry, map[string]any{"test": 1}); err != nil {
		t.Fatalf("SetProperties() failed: %v", err)
	}

	props := control.GetProperties(geometry)
	if props == nil || props["test"] != 1 {
		t.Errorf("GetProperties() = %v, want map with test=1", props)
	}

	features := control.Features()
	if len(features) != 1 || features[0].Properties["test"] != 1 {
		t.Errorf("Features() = %v, want properties reflected", features)
	}
}

func TestSetProperties_UnknownGeometry(t *testing.T) {
	control, _ := newTestControl(t)

	err := control.SetProperties(mustGeometry(t, nullIslandJSON), map[string]any{"test": 1})
	if err == nil {
		t.Fatal("SetProperties() for an unknown geometry did not fail")
	}
}

func TestReset_ClearsSurface(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))

	if err := control.Reset(true); err != nil {
		t.Fatalf("Reset(true) failed: %v", err)
	}
	if got := control.Count(); got != 0 {
		t.Errorf("Count() = %d after reset, want 0", got)
	}
	if got := len(surface.payloads); got != 0 {
		t.Errorf("surface has %d payloads after hard reset, want 0", got)
	}
}

func TestReset_SoftKeepsSurface(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))

	if err := control.Reset(false); err != nil {
		t.Fatalf("Reset(false) failed: %v", err)
	}
	if got := control.Count(); got != 0 {
		t.Errorf("Count() = %d after soft reset, want 0", got)
	}
	if got := len(surface.payloads); got != 1 {
		t.Errorf("surface has %d payloads after soft reset, want 1", got)
	}
}

func TestRemoveGeometry_LastIsUndo(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	surface.create(t, mustPayload(t, nullIsland2xJSON))
	geometry1 := control.Geometries()[0]
	geometry2 := control.Geometries()[1]

	if got := control.LastAction(); got != ActionCreated {
		t.Fatalf("LastAction() = %v, want ActionCreated", got)
	}
	if last := control.LastGeometry(); last == nil || !last.Equal(geometry2) {
		t.Fatalf("LastGeometry() = %v, want the second geometry", last)
	}

	if err := control.RemoveGeometry(geometry2); err != nil {
		t.Fatalf("RemoveGeometry() failed: %v", err)
	}
	if got := control.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
	if got := len(control.Properties()); got != 1 {
		t.Errorf("Properties() has %d entries, want 1", got)
	}
	if got := control.LastAction(); got != ActionRemovedLast {
		t.Errorf("LastAction() = %v, want ActionRemovedLast", got)
	}
	if last := control.LastGeometry(); last == nil || !last.Equal(geometry1) {
		t.Errorf("LastGeometry() = %v, want the surviving geometry", last)
	}
}

func TestRemoveGeometry_OnlyEntry(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	geometry := control.Geometries()[0]

	if err := control.RemoveGeometry(geometry); err != nil {
		t.Fatalf("RemoveGeometry() failed: %v", err)
	}
	if got := control.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	if got := control.LastAction(); got != ActionRemovedLast {
		t.Errorf("LastAction() = %v, want ActionRemovedLast", got)
	}
	if last := control.LastGeometry(); last == nil || !last.Equal(geometry) {
		t.Errorf("LastGeometry() = %v, want the removed geometry", last)
	}
}

func TestRemoveGeometry_FirstIsPlainDelete(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	surface.create(t, mustPayload(t, nullIsland2xJSON))
	geometry1 := control.Geometries()[0]
	geometry2 := control.Geometries()[1]

	if err := control.RemoveGeometry(geometry1); err != nil {
		t.Fatalf("RemoveGeometry() failed: %v", err)
	}
	if got := control.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
	if got := control.LastAction(); got != ActionDeleted {
		t.Errorf("LastAction() = %v, want ActionDeleted", got)
	}
	if last := control.LastGeometry(); last == nil || !last.Equal(geometry1) {
		t.Errorf("LastGeometry() = %v, want the removed geometry", last)
	}
	remaining := control.Geometries()
	if len(remaining) != 1 || !remaining[0].Equal(geometry2) {
		t.Errorf("Geometries() = %v, want only the second geometry", remaining)
	}
}

func TestRemoveGeometry_InstructsSurface(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	surface.create(t, mustPayload(t, nullIsland2xJSON))

	if err := control.RemoveGeometry(control.Geometries()[0]); err != nil {
		t.Fatalf("RemoveGeometry() failed: %v", err)
	}
	if got := len(surface.payloads); got != 1 {
		t.Fatalf("surface has %d payloads, want 1", got)
	}
	want := mustGeometry(t, nullIsland2xJSON)
	got, err := core.GeometryFromFeature(surface.payloads[0])
	if err != nil {
		t.Fatalf("parse surface payload: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("surface kept %v, want the second geometry", got)
	}
}

func TestRemoveGeometry_UnknownGeometry(t *testing.T) {
	control, _ := newTestControl(t)

	if err := control.RemoveGeometry(mustGeometry(t, nullIslandJSON)); err == nil {
		t.Fatal("RemoveGeometry() for an unknown geometry did not fail")
	}
}

func TestParallelCollectionsStayAligned(t *testing.T) {
	control, surface := newTestControl(t)

	check := func(step string) {
		t.Helper()
		n := control.Count()
		if got := len(control.Geometries()); got != n {
			t.Errorf("%s: Geometries() has %d entries, Count() is %d", step, got, n)
		}
		if got := len(control.Properties()); got != n {
			t.Errorf("%s: Properties() has %d entries, Count() is %d", step, got, n)
		}
		if got := len(control.Features()); got != n {
			t.Errorf("%s: Features() has %d entries, Count() is %d", step, got, n)
		}
	}

	check("initial")
	surface.create(t, mustPayload(t, nullIslandJSON))
	check("after first create")
	surface.create(t, mustPayload(t, nullIsland2xJSON))
	check("after second create")
	surface.edit(t, 1, mustPayload(t, nullIsland2xJSON))
	check("after edit")
	surface.remove(t, 0)
	check("after delete")
}

func TestCollectionRoundTrip(t *testing.T) {
	control, surface := newTestControl(t)
	surface.create(t, mustPayload(t, nullIslandJSON))
	surface.create(t, mustPayload(t, nullIsland2xJSON))
	if err := control.SetProperties(control.Geometries()[0], map[string]any{"zone": "a"}); err != nil {
		t.Fatalf("SetProperties() failed: %v", err)
	}

	collection := control.Collection()
	data, err := json.Marshal(collection)
	if err != nil {
		t.Fatalf("marshal collection: %v", err)
	}

	var decoded core.FeatureCollection
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal collection: %v", err)
	}
	if !decoded.Equal(collection) {
		t.Errorf("round-tripped collection differs:\n got %v\nwant %v", decoded, collection)
	}
}

func TestParseEventKind(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want EventKind
	}{
		{"created", EventCreated},
		{"edited", EventEdited},
		{"deleted", EventDeleted},
	} {
		got, err := ParseEventKind(tc.in)
		if err != nil {
			t.Errorf("ParseEventKind(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseEventKind(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseEventKind_Unknown(t *testing.T) {
	if _, err := ParseEventKind("drawstart"); err == nil {
		t.Fatal("ParseEventKind() accepted an unknown event")
	}
}

func TestHandleEvent_UnknownKind(t *testing.T) {
	control, _ := newTestControl(t)
	if err := control.HandleEvent(EventKind(42), mustPayload(t, nullIslandJSON)); err == nil {
		t.Fatal("HandleEvent() accepted an unknown kind")
	}
}
