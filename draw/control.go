package draw

import (
	"fmt"

	"geodraw/core"
)

type (
	// Surface is the capability a host drawing environment must provide. The
	// control never learns how shapes are rendered; it only needs the surface's
	// current payloads for edit reconciliation and a way to remove or clear
	// shapes it forgets.
	//
	// RemoveAt and Clear must not re-deliver deleted events into the control:
	// the control has already spliced its own state when it calls them.
	Surface interface {
		// Bind attaches the control's event handler. Surfaces deliver events
		// one at a time; the control is not safe for concurrent mutation.
		Bind(handler func(kind EventKind, payload core.GeoJSONFeature) error) error

		// Current returns the payloads of all currently visible shapes, in
		// draw order.
		Current() ([]core.GeoJSONFeature, error)

		// RemoveAt removes the visible shape at the given position.
		RemoveAt(index int) error

		// Clear removes all visible shapes.
		Clear() error
	}

	// entry keeps a geometry and its properties in one record so the
	// "parallel, equal-length collections" invariant holds by construction.
	entry struct {
		geometry   core.Geometry
		properties map[string]any
	}

	// Control is the draw-geometry store: an ordered list of drawn geometries
	// with optional property sets, fed by surface events. All views are
	// derived fresh from the entry list.
	//
	// A Control is single-writer: mutations happen synchronously in event
	// callbacks and callers must serialize them.
	Control struct {
		surface Surface

		entries      []entry
		lastGeometry *core.Geometry
		lastAction   Action
	}
)

// NewControl attaches a control to a drawing surface. The surface is
// mandatory; a control is never created half-initialized.
func NewControl(surface Surface) (*Control, error) {
	if surface == nil {
		return nil, fmt.Errorf("draw: a valid drawing surface is required")
	}
	c := &Control{surface: surface}
	if err := surface.Bind(c.HandleEvent); err != nil {
		return nil, fmt.Errorf("draw: bind to surface: %w", err)
	}
	return c, nil
}

// HandleEvent dispatches a surface event to the matching handler.
func (c *Control) HandleEvent(kind EventKind, payload core.GeoJSONFeature) error {
	switch kind {
	case EventCreated:
		return c.HandleCreated(payload)
	case EventEdited:
		return c.HandleEdited(payload)
	case EventDeleted:
		return c.HandleDeleted(payload)
	default:
		return fmt.Errorf("draw: unknown event kind %d", int(kind))
	}
}

// HandleCreated appends a newly drawn geometry with no properties.
func (c *Control) HandleCreated(payload core.GeoJSONFeature) error {
	geometry, err := core.GeometryFromFeature(payload)
	if err != nil {
		return err
	}
	if c.indexOf(geometry) >= 0 {
		return fmt.Errorf("draw: geometry already present")
	}
	c.entries = append(c.entries, entry{geometry: geometry})
	c.lastGeometry = &geometry
	c.lastAction = ActionCreated
	return nil
}

// HandleEdited re-derives the geometry list from the surface, which is the
// source of truth for all currently visible shapes. Properties stay attached
// to their position, so an edited shape keeps the properties it had.
func (c *Control) HandleEdited(payload core.GeoJSONFeature) error {
	geometry, err := core.GeometryFromFeature(payload)
	if err != nil {
		return err
	}
	if err := c.syncFromSurface(); err != nil {
		return err
	}
	c.lastGeometry = &geometry
	c.lastAction = ActionEdited
	return nil
}

// HandleDeleted removes the entry matching the deleted payload's geometry.
// Removing the most recently drawn geometry classifies as an undo.
func (c *Control) HandleDeleted(payload core.GeoJSONFeature) error {
	geometry, err := core.GeometryFromFeature(payload)
	if err != nil {
		return err
	}
	index := c.indexOf(geometry)
	if index < 0 {
		return fmt.Errorf("draw: deleted geometry not found")
	}
	c.removeAt(index)
	return nil
}

// RemoveGeometry removes a geometry programmatically, with the same
// classification as a surface delete. The surface is instructed to drop the
// matching shape first, so a surface failure leaves the store untouched.
// The geometry must come from this control's views.
func (c *Control) RemoveGeometry(geometry core.Geometry) error {
	index := c.indexOf(geometry)
	if index < 0 {
		return fmt.Errorf("draw: geometry not found")
	}
	if err := c.surface.RemoveAt(index); err != nil {
		return fmt.Errorf("draw: remove from surface: %w", err)
	}
	c.removeAt(index)
	return nil
}

// GetProperties returns the property set of a stored geometry, or nil when
// the geometry is unknown or has never been assigned properties.
func (c *Control) GetProperties(geometry core.Geometry) map[string]any {
	index := c.indexOf(geometry)
	if index < 0 {
		return nil
	}
	return c.entries[index].properties
}

// SetProperties replaces the property set of a stored geometry.
func (c *Control) SetProperties(geometry core.Geometry, properties map[string]any) error {
	index := c.indexOf(geometry)
	if index < 0 {
		return fmt.Errorf("draw: geometry not found")
	}
	c.entries[index].properties = properties
	return nil
}

// Reset forgets all geometries and properties. When clearSurface is true the
// surface drops its visible shapes too; when false the surface keeps them,
// which is the one place store and surface intentionally diverge.
func (c *Control) Reset(clearSurface bool) error {
	c.entries = nil
	if clearSurface {
		return c.surface.Clear()
	}
	return nil
}

// Geometries returns the stored geometries in draw order.
func (c *Control) Geometries() []core.Geometry {
	out := make([]core.Geometry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.geometry
	}
	return out
}

// Properties returns the property sets parallel to Geometries. Entries with
// no properties are nil.
func (c *Control) Properties() []map[string]any {
	out := make([]map[string]any, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.properties
	}
	return out
}

// Features pairs every stored geometry with its properties, in draw order.
func (c *Control) Features() []core.Feature {
	out := make([]core.Feature, len(c.entries))
	for i, e := range c.entries {
		out[i] = core.Feature{Geometry: e.geometry, Properties: e.properties}
	}
	return out
}

// Collection aggregates the current features.
func (c *Control) Collection() core.FeatureCollection {
	return core.FeatureCollection{Features: c.Features()}
}

// Count returns the number of stored geometries.
func (c *Control) Count() int {
	return len(c.entries)
}

// LastAction reports the classification of the most recent mutation, or
// ActionNone before any mutation.
func (c *Control) LastAction() Action {
	return c.lastAction
}

// LastGeometry returns the geometry most recently affected by a create, edit
// or undo-like removal, or nil if none.
func (c *Control) LastGeometry() *core.Geometry {
	if c.lastGeometry == nil {
		return nil
	}
	g := *c.lastGeometry
	return &g
}

// LastFeature pairs LastGeometry with its current properties, or nil.
func (c *Control) LastFeature() *core.Feature {
	if c.lastGeometry == nil {
		return nil
	}
	return &core.Feature{
		Geometry:   *c.lastGeometry,
		Properties: c.GetProperties(*c.lastGeometry),
	}
}

func (c *Control) indexOf(geometry core.Geometry) int {
	for i, e := range c.entries {
		if e.geometry.Equal(geometry) {
			return i
		}
	}
	return -1
}

// removeAt splices out the entry at index and classifies the removal.
// Equality-based and index-based removal share this path so both produce
// identical classifications.
func (c *Control) removeAt(index int) {
	removed := c.entries[index].geometry
	c.entries = append(c.entries[:index:index], c.entries[index+1:]...)

	switch {
	case index == len(c.entries) && len(c.entries) > 0:
		// The most recently drawn geometry was removed: treat as an undo and
		// fall back to the geometry now at the end.
		last := c.entries[len(c.entries)-1].geometry
		c.lastGeometry = &last
		c.lastAction = ActionRemovedLast
	case len(c.entries) == 0:
		// Store is empty; nothing to fall back to.
		c.lastGeometry = &removed
		c.lastAction = ActionRemovedLast
	default:
		c.lastGeometry = &removed
		c.lastAction = ActionDeleted
	}
}

// syncFromSurface walks the surface's current payloads against the stored
// geometries positionally, replacing the first mismatch at each step. The
// properties list is untouched, so surviving geometries keep their properties
// by position. A replacement that would equal another stored geometry is
// rejected before it is applied: no two entries may ever hold equal
// geometries, and a collision would leave the second entry unreachable.
func (c *Control) syncFromSurface() error {
	if len(c.entries) == 0 {
		return nil
	}
	payloads, err := c.surface.Current()
	if err != nil {
		return fmt.Errorf("draw: fetch surface payloads: %w", err)
	}

	i := 0
	for i < len(c.entries) && i < len(payloads) {
		var replacement *core.Geometry
		for i < len(c.entries) && i < len(payloads) {
			geometry, err := core.GeometryFromFeature(payloads[i])
			if err != nil {
				return err
			}
			if geometry.Equal(c.entries[i].geometry) {
				i++
				continue
			}
			replacement = &geometry
			break
		}
		if i < len(c.entries) && replacement != nil {
			for j := range c.entries {
				if j != i && c.entries[j].geometry.Equal(*replacement) {
					return fmt.Errorf("draw: edited geometry equals an existing geometry")
				}
			}
			c.entries[i].geometry = *replacement
		}
		i++
	}
	return nil
}
