package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"geodraw/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	// Anonymous shared feature collections.
	docTableStmt := `CREATE TABLE IF NOT EXISTS documents (id TEXT PRIMARY KEY, data BLOB);`
	if _, err = db.Exec(docTableStmt); err != nil {
		log.Fatalf("failed to create documents table: %v", err)
	}

	// User-owned drawing sessions.
	sessionTableStmt := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT,
		basemap TEXT,
		data BLOB,
		created_at DATETIME,
		updated_at DATETIME,
		PRIMARY KEY (user_id, id)
	);`
	if _, err = db.Exec(sessionTableStmt); err != nil {
		log.Fatalf("failed to create sessions table: %v", err)
	}

	// Collaboration rooms seen by the server.
	roomTableStmt := `CREATE TABLE IF NOT EXISTS rooms (id TEXT PRIMARY KEY, last_active INTEGER NOT NULL);`
	if _, err = db.Exec(roomTableStmt); err != nil {
		log.Fatalf("failed to create rooms table: %v", err)
	}

	return &sqliteStore{db}
}

// DocumentStore implementation
func (s *sqliteStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM documents WHERE id = ?", id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, fmt.Errorf("document with id %s not found", id)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, err
	}
	document := core.Document{
		Data: *bytes.NewBuffer(data),
	}
	log.Info("Document retrieved successfully")
	return &document, nil
}

func (s *sqliteStore) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	data := document.Data.Bytes()
	log := logrus.WithFields(logrus.Fields{
		"document_id": id,
		"data_length": len(data),
	})

	_, err := s.db.ExecContext(ctx, "INSERT INTO documents (id, data) VALUES (?, ?)", id, data)
	if err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", err
	}
	log.Info("Document created successfully")
	return id, nil
}

// SessionStore implementation
func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, basemap, created_at, updated_at FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		var session core.Session
		session.UserID = userID
		if err := rows.Scan(&session.ID, &session.Name, &session.Basemap, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, userID, id string) (*core.Session, error) {
	var session core.Session
	session.UserID = userID
	session.ID = id
	err := s.db.QueryRowContext(ctx,
		"SELECT name, basemap, data, created_at, updated_at FROM sessions WHERE user_id = ? AND id = ?",
		userID, id).Scan(&session.Name, &session.Basemap, &session.Data, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found")
		}
		return nil, err
	}
	return &session, nil
}

func (s *sqliteStore) Save(ctx context.Context, session *core.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Rollback on any error

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE user_id = ? AND id = ?", session.UserID, session.ID).Scan(&exists)

	now := time.Now()
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if exists {
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET name = ?, basemap = ?, data = ?, updated_at = ? WHERE user_id = ? AND id = ?",
			session.Name, session.Basemap, session.Data, now, session.UserID, session.ID)
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO sessions (id, user_id, name, basemap, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			session.ID, session.UserID, session.Name, session.Basemap, session.Data, now, now)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, userID, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ? AND id = ?", userID, id)
	return err
}

// RoomRegistry implementation
func (s *sqliteStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, last_active) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active",
		roomID, time.Now().UnixMilli())
	return err
}

func (s *sqliteStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_active FROM rooms ORDER BY last_active DESC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []core.Room
	for rows.Next() {
		var room core.Room
		if err := rows.Scan(&room.ID, &room.LastActive); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *sqliteStore) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", roomID)
	return err
}
