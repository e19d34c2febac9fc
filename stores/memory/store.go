package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"geodraw/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements DocumentStore, SessionStore and RoomRegistry in memory.
type memStore struct {
	mu        sync.RWMutex
	documents map[string]core.Document
	// sessions is keyed by userID, then by session ID.
	sessions map[string]map[string]*core.Session
	rooms    map[string]int64
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		documents: make(map[string]core.Document),
		sessions:  make(map[string]map[string]*core.Session),
		rooms:     make(map[string]int64),
	}
}

// FindID retrieves a shared document by its ID.
func (s *memStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithField("document_id", id)
	if doc, ok := s.documents[id]; ok {
		log.Info("Document retrieved successfully")
		return &doc, nil
	}
	log.WithField("error", "document not found").Warn("Document with specified ID not found")
	return nil, fmt.Errorf("document with id %s not found", id)
}

// Create stores a new shared document.
func (s *memStore) Create(ctx context.Context, document *core.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ulid.Make().String()
	s.documents[id] = *document
	logrus.WithFields(logrus.Fields{
		"document_id": id,
		"data_length": len(document.Data.Bytes()),
	}).Info("Document created successfully")

	return id, nil
}

// List returns metadata for all sessions owned by a user.
func (s *memStore) List(ctx context.Context, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userSessions, ok := s.sessions[userID]
	if !ok {
		return []*core.Session{}, nil
	}

	sessions := make([]*core.Session, 0, len(userSessions))
	for _, session := range userSessions {
		// Copy without the Data blob for the list view.
		sessions = append(sessions, &core.Session{
			ID:        session.ID,
			UserID:    session.UserID,
			Name:      session.Name,
			Basemap:   session.Basemap,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		})
	}

	logrus.WithField("user_id", userID).Infof("Listed %d sessions", len(sessions))
	return sessions, nil
}

// Get returns a single session by its ID, ensuring it belongs to the user.
func (s *memStore) Get(ctx context.Context, userID, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "session_id": id})

	userSessions, ok := s.sessions[userID]
	if !ok {
		log.Warn("User has no sessions")
		return nil, fmt.Errorf("session with id %s not found for user %s", id, userID)
	}

	session, ok := userSessions[id]
	if !ok {
		log.Warn("Session not found for user")
		return nil, fmt.Errorf("session with id %s not found for user %s", id, userID)
	}

	log.Info("Session retrieved successfully")
	return session, nil
}

// Save creates or updates a session for a user.
func (s *memStore) Save(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.UserID == "" {
		return fmt.Errorf("session user id cannot be empty")
	}
	if session.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	userSessions, ok := s.sessions[session.UserID]
	if !ok {
		userSessions = make(map[string]*core.Session)
		s.sessions[session.UserID] = userSessions
	}

	now := time.Now()
	if existing, exists := userSessions[session.ID]; exists {
		session.CreatedAt = existing.CreatedAt
	} else {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	userSessions[session.ID] = session
	logrus.WithFields(logrus.Fields{"user_id": session.UserID, "session_id": session.ID}).
		Info("Session saved successfully")
	return nil
}

// Delete removes a session, ensuring it belongs to the user.
func (s *memStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "session_id": id})

	userSessions, ok := s.sessions[userID]
	if !ok {
		log.Warn("User has no sessions to delete from")
		return fmt.Errorf("user %s has no sessions", userID)
	}
	if _, ok := userSessions[id]; !ok {
		log.Warn("Session not found for deletion")
		return fmt.Errorf("session with id %s not found for user %s", id, userID)
	}

	delete(userSessions, id)
	log.Info("Session deleted successfully")
	return nil
}

// TouchRoom records room activity. Part of the RoomRegistry interface.
func (s *memStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	s.rooms[roomID] = time.Now().UnixMilli()
	s.mu.Unlock()

	return nil
}

// ListRooms returns known rooms ordered by most recent activity.
func (s *memStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, core.Room{ID: id, LastActive: last})
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}

// DeleteRoom forgets a room.
func (s *memStore) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	return nil
}
