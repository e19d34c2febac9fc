// Package draw reconciles drawing-surface events into an ordered store of
// geometries with per-geometry properties, and classifies every mutation so
// downstream consumers (property panels, undo handling) can react to it.
package draw

import "fmt"

// Action classifies the most recent mutation of a Control.
type Action int

const (
	// ActionNone is the zero value before any mutation has happened.
	ActionNone Action = iota
	ActionCreated
	ActionEdited
	ActionDeleted
	// ActionRemovedLast marks the removal of the most recently drawn geometry,
	// which consumers treat as an undo.
	ActionRemovedLast
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return ""
	case ActionCreated:
		return "created"
	case ActionEdited:
		return "edited"
	case ActionDeleted:
		return "deleted"
	case ActionRemovedLast:
		return "removed-last"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// EventKind identifies a drawing-surface event.
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventEdited
	EventDeleted
)

// ParseEventKind maps the wire strings drawing surfaces emit onto event kinds.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "created":
		return EventCreated, nil
	case "edited":
		return EventEdited, nil
	case "deleted":
		return EventDeleted, nil
	}
	return 0, fmt.Errorf("unknown draw event %q", s)
}

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventEdited:
		return "edited"
	case EventDeleted:
		return "deleted"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}
