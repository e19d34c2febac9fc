package core

import (
	"bytes"
	"context"
	"time"
)

type (
	// Document is an anonymously shared feature-collection snapshot. Data holds
	// the GeoJSON bytes exactly as posted.
	Document struct {
		Data bytes.Buffer
	}

	DocumentStore interface {
		FindID(ctx context.Context, id string) (*Document, error)
		Create(ctx context.Context, document *Document) (string, error)
	}

	// Session is a user-owned named drawing session: the feature collection a
	// draw control held, plus the basemap it was drawn over.
	Session struct {
		ID        string    `json:"id"`
		UserID    string    `json:"-"` // Not exposed in JSON responses, used internally.
		Name      string    `json:"name"`
		Basemap   string    `json:"basemap,omitempty"`
		Data      []byte    `json:"data,omitempty"` // The GeoJSON collection, not included in list views.
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// SessionStore defines the persistence layer for user-owned sessions.
	// All operations are scoped to a specific user.
	SessionStore interface {
		// List returns metadata for all sessions owned by a user, without the
		// Data field to keep responses light.
		List(ctx context.Context, userID string) ([]*Session, error)

		// Get returns a single session by ID, ensuring it belongs to the user.
		Get(ctx context.Context, userID, id string) (*Session, error)

		// Save creates or updates a session for a user.
		Save(ctx context.Context, session *Session) error

		// Delete removes a session, ensuring it belongs to the user.
		Delete(ctx context.Context, userID, id string) error
	}

	// Room identifies a collaborative drawing room seen by the server.
	Room struct {
		ID         string
		LastActive int64
	}

	// RoomRegistry records room activity across restarts. Implemented by the
	// memory and sqlite stores.
	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
		DeleteRoom(ctx context.Context, roomID string) error
	}
)
