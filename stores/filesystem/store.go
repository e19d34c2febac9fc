package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geodraw/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

// DocumentStore implementation for anonymous sharing
func (s *fsStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	filePath := filepath.Join(s.basePath, id)
	log := logrus.WithField("document_id", id)

	log.WithField("file_path", filePath).Info("Retrieving document by ID")
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
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

func (s *fsStore) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	filePath := filepath.Join(s.basePath, id)
	log := logrus.WithFields(logrus.Fields{
		"document_id": id,
		"file_path":   filePath,
	})
	log.Info("Creating new document")

	if err := os.WriteFile(filePath, document.Data.Bytes(), 0644); err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", err
	}

	log.Info("Document created successfully")
	return id, nil
}

// SessionStore implementation for user-owned sessions
func (s *fsStore) getUserSessionPath(userID string) string {
	return filepath.Join(s.basePath, userID)
}

func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Session, error) {
	userPath := s.getUserSessionPath(userID)
	log := logrus.WithField("user_id", userID).WithField("path", userPath)

	files, err := os.ReadDir(userPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("User directory does not exist, returning empty list.")
			return []*core.Session{}, nil
		}
		log.WithError(err).Error("Failed to read user directory")
		return nil, err
	}

	sessions := make([]*core.Session, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		filePath := filepath.Join(userPath, file.Name())
		fileInfo, err := file.Info()
		if err != nil {
			log.WithError(err).Warnf("Failed to get file info for %s, skipping", file.Name())
			continue
		}

		data, err := os.ReadFile(filePath)
		if err != nil {
			log.WithError(err).Warnf("Failed to read session file %s, skipping", file.Name())
			continue
		}

		var session core.Session
		if err := json.Unmarshal(data, &session); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal session file %s, skipping", file.Name())
			continue
		}

		// The list view does not need the GeoJSON blob. Filesystems do not
		// store creation time, so the mod time stands in for UpdatedAt.
		session.Data = nil
		session.UserID = userID
		session.UpdatedAt = fileInfo.ModTime()
		sessions = append(sessions, &session)
	}

	log.Infof("Listed %d sessions", len(sessions))
	return sessions, nil
}

func (s *fsStore) Get(ctx context.Context, userID, id string) (*core.Session, error) {
	userPath := s.getUserSessionPath(userID)
	filePath := filepath.Join(userPath, id)
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "session_id": id, "path": filePath})

	// Reject ids that escape the user's directory.
	absUserPath, err := filepath.Abs(userPath)
	if err != nil {
		return nil, err
	}
	absFilePath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(absFilePath, absUserPath) {
		return nil, fmt.Errorf("invalid path: access denied")
	}

	data, err := os.ReadFile(absFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Session file not found")
			return nil, fmt.Errorf("session %s not found", id)
		}
		log.WithError(err).Error("Failed to read session file")
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		log.WithError(err).Error("Failed to get file stats")
		return nil, err
	}

	var session core.Session
	if err := json.Unmarshal(data, &session); err != nil {
		log.WithError(err).Error("Failed to unmarshal session data")
		return nil, err
	}
	session.UserID = userID
	session.UpdatedAt = info.ModTime()

	log.Info("Session retrieved successfully")
	return &session, nil
}

func (s *fsStore) Save(ctx context.Context, session *core.Session) error {
	userPath := s.getUserSessionPath(session.UserID)
	filePath := filepath.Join(userPath, session.ID)
	log := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "session_id": session.ID, "path": filePath})

	if err := os.MkdirAll(userPath, 0755); err != nil {
		log.WithError(err).Error("Failed to create user directory")
		return err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		session.CreatedAt = time.Now()
	} else if err == nil {
		session.CreatedAt = info.ModTime()
	}
	session.UpdatedAt = time.Now()

	log.Info("Saving session")
	data, err := json.Marshal(session)
	if err != nil {
		log.WithError(err).Error("Failed to marshal session for saving")
		return err
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write session file")
		return err
	}

	log.Info("Session saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, userID, id string) error {
	userPath := s.getUserSessionPath(userID)
	filePath := filepath.Join(userPath, id)
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "session_id": id, "path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Session file not found for deletion")
			return fmt.Errorf("session %s not found", id)
		}
		log.WithError(err).Error("Failed to delete session file")
		return err
	}

	log.Info("Session deleted successfully")
	return nil
}
