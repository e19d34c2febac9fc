package documents

import (
	"bytes"
	"io"
	"net/http"

	"geodraw/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// DocumentCreateResponse is returned after a snapshot is stored.
type DocumentCreateResponse struct {
	ID string `json:"id"`
}

// HandleCreate stores the raw request body as an anonymous shared
// snapshot and returns its generated ID.
func HandleCreate(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			logrus.WithError(err).Error("Failed to read request body")
			http.Error(w, "Failed to read request body", http.StatusInternalServerError)
			return
		}
		defer r.Body.Close()

		document := core.Document{
			Data: *bytes.NewBuffer(data),
		}
		id, err := store.Create(r.Context(), &document)
		if err != nil {
			logrus.WithError(err).Error("Failed to save snapshot")
			http.Error(w, "Failed to save snapshot", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, DocumentCreateResponse{ID: id})
	}
}

// HandleGet returns a stored snapshot verbatim.
func HandleGet(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		document, err := store.FindID(r.Context(), id)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"document_id": id,
				"error":       err,
			}).Warn("Snapshot not found")
			http.Error(w, "Snapshot not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(document.Data.Bytes())
	}
}
