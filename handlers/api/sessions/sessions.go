package sessions

import (
	"encoding/json"
	"io"
	"net/http"

	"geodraw/core"
	"geodraw/handlers/auth"
	"geodraw/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

func claimsFrom(r *http.Request) (*auth.AppClaims, bool) {
	claims, ok := r.Context().Value(middleware.ClaimsContextKey).(*auth.AppClaims)
	return claims, ok
}

// HandleList returns session metadata for the authenticated user.
func HandleList(store core.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		sessions, err := store.List(r.Context(), claims.Subject)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": claims.Subject,
			}).Error("Failed to list sessions")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list sessions"})
			return
		}

		// Return an empty slice instead of null when the user has no sessions.
		if sessions == nil {
			sessions = []*core.Session{}
		}

		render.JSON(w, r, sessions)
	}
}

// HandleGet returns the stored GeoJSON for one session.
func HandleGet(store core.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Session id is required"})
			return
		}

		session, err := store.Get(r.Context(), claims.Subject, id)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":      err,
				"userID":     claims.Subject,
				"session_id": id,
			}).Warn("Failed to get session")
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Session not found"})
			return
		}

		// The session data is returned as raw GeoJSON bytes.
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write(session.Data)
	}
}

// HandleSave stores the request body as a session's GeoJSON. Name and
// basemap are read from the body when present, else defaulted.
func HandleSave(store core.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Session id is required"})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":      err,
				"session_id": id,
			}).Error("Failed to read request body")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}
		defer r.Body.Close()

		var meta struct {
			Properties struct {
				Name    string `json:"name"`
				Basemap string `json:"basemap"`
			} `json:"properties"`
		}

		name := id
		var basemap string
		if err := json.Unmarshal(body, &meta); err == nil {
			if meta.Properties.Name != "" {
				name = meta.Properties.Name
			}
			basemap = meta.Properties.Basemap
		}

		session := &core.Session{
			ID:      id,
			UserID:  claims.Subject,
			Name:    name,
			Basemap: basemap,
			Data:    body,
		}

		if err := store.Save(r.Context(), session); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":      err,
				"userID":     claims.Subject,
				"session_id": id,
			}).Error("Failed to save session")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save session"})
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"id": id})
	}
}

// HandleDelete removes one of the user's sessions.
func HandleDelete(store core.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Session id is required"})
			return
		}

		if err := store.Delete(r.Context(), claims.Subject, id); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":      err,
				"userID":     claims.Subject,
				"session_id": id,
			}).Error("Failed to delete session")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to delete session"})
			return
		}

		render.Status(r, http.StatusOK)
	}
}
