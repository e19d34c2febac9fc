package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"time"

	"geodraw/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// s3Store keeps anonymous documents under their ULID and user sessions under
// "<userID>/<sessionID>". Session objects hold the JSON-encoded core.Session,
// so timestamps travel with the object instead of relying on S3 metadata.
type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

// DocumentStore implementation for anonymous sharing
func (s *s3Store) FindID(ctx context.Context, id string) (*core.Document, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("document with id %s not found", id)
		}
		return nil, fmt.Errorf("failed to get document with id %s: %v", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document data: %v", err)
	}

	return &core.Document{Data: *bytes.NewBuffer(data)}, nil
}

func (s *s3Store) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
		Body:   bytes.NewReader(document.Data.Bytes()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"document_id": id,
		"bucket":      s.bucket,
	}).Info("Document uploaded")
	return id, nil
}

// SessionStore implementation for user-owned sessions
func (s *s3Store) getSessionKey(userID, sessionID string) (string, error) {
	// A session id must be a simple name, not a path.
	if sessionID == "" || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id: must not be empty or a dot directory")
	}
	if path.Base(sessionID) != sessionID {
		return "", fmt.Errorf("invalid session id: must not be a path")
	}
	return path.Join(userID, sessionID), nil
}

func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	log := logrus.WithField("user_id", userID)

	sessions := make([]*core.Session, 0)
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(userID + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions for user %s: %v", userID, err)
		}
		for _, object := range page.Contents {
			session, err := s.readSessionObject(ctx, *object.Key)
			if err != nil {
				log.WithError(err).Warnf("Skipping unreadable session object %s", *object.Key)
				continue
			}

			// The list view does not need the GeoJSON blob.
			session.Data = nil
			session.UserID = userID
			sessions = append(sessions, session)
		}
	}

	// Most recently touched sessions first, id as the tie breaker.
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})

	log.Infof("Listed %d sessions", len(sessions))
	return sessions, nil
}

func (s *s3Store) readSessionObject(ctx context.Context, key string) (*core.Session, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var session core.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *s3Store) Get(ctx context.Context, userID, id string) (*core.Session, error) {
	key, err := s.getSessionKey(userID, id)
	if err != nil {
		return nil, err
	}

	session, err := s.readSessionObject(ctx, key)
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("session %s not found", id)
		}
		return nil, fmt.Errorf("failed to get session %s: %v", id, err)
	}
	session.UserID = userID

	return session, nil
}

func (s *s3Store) Save(ctx context.Context, session *core.Session) error {
	if session.UserID == "" {
		return fmt.Errorf("session user id is required")
	}
	key, err := s.getSessionKey(session.UserID, session.ID)
	if err != nil {
		return err
	}
	if session.Name == "" {
		session.Name = session.ID
	}

	// Preserve CreatedAt on update; a fresh session gets the current time.
	if existing, err := s.Get(ctx, session.UserID, session.ID); err == nil && !existing.CreatedAt.IsZero() {
		session.CreatedAt = existing.CreatedAt
	} else {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = time.Now()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save session %s: %v", session.ID, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    session.UserID,
		"session_id": session.ID,
		"basemap":    session.Basemap,
	}).Info("Session saved")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, userID, id string) error {
	key, err := s.getSessionKey(userID, id)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %v", id, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": id,
	}).Info("Session deleted")
	return nil
}
