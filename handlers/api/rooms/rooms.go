package rooms

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"geodraw/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Room is the view a collaboration room exposes to the REST API.
type Room interface {
	Collection() core.FeatureCollection
	Features() []core.Feature
	State() (count int, lastAction string, lastFeature *core.Feature)
	SetPropertiesAt(index int, properties map[string]any) error
	RemoveFeatureAt(index int) error
	Reset(clearSurface bool) error
}

// Lookup resolves a room ID to a live room, or nil when no client has
// joined it.
type Lookup func(roomID string) Room

// Census reports connected-user counts per room.
type Census func() map[string]int

type roomEntry struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	LastActive *int64 `json:"lastActive,omitempty"`
}

// HandleList merges the live census with the room registry and returns the
// result ordered by users, then recency.
func HandleList(census Census, registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomMap := make(map[string]*roomEntry)
		for id, count := range census() {
			roomMap[id] = &roomEntry{ID: id, Users: count}
		}

		if registry != nil {
			if storedRooms, err := registry.ListRooms(r.Context()); err != nil {
				logrus.WithError(err).Warn("failed to list rooms from registry")
			} else {
				for _, room := range storedRooms {
					entry, exists := roomMap[room.ID]
					if !exists {
						entry = &roomEntry{ID: room.ID}
						roomMap[room.ID] = entry
					}
					if room.LastActive > 0 {
						lastActive := room.LastActive
						entry.LastActive = &lastActive
					}
				}
			}
		}

		roomList := make([]roomEntry, 0, len(roomMap))
		for _, entry := range roomMap {
			roomList = append(roomList, *entry)
		}

		sort.Slice(roomList, func(i, j int) bool {
			if roomList[i].Users == roomList[j].Users {
				li := int64(0)
				if roomList[i].LastActive != nil {
					li = *roomList[i].LastActive
				}
				lj := int64(0)
				if roomList[j].LastActive != nil {
					lj = *roomList[j].LastActive
				}
				if li == lj {
					return roomList[i].ID < roomList[j].ID
				}
				return li > lj
			}
			return roomList[i].Users > roomList[j].Users
		})

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(roomList); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

func resolveRoom(lookup Lookup, w http.ResponseWriter, r *http.Request) (Room, bool) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Room id is required"})
		return nil, false
	}
	room := lookup(roomID)
	if room == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Room not found"})
		return nil, false
	}
	return room, true
}

func resolveIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid feature index"})
		return 0, false
	}
	return index, true
}

// HandleFeatures returns the room's features in draw order.
func HandleFeatures(lookup Lookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := resolveRoom(lookup, w, r)
		if !ok {
			return
		}
		features := room.Features()
		if features == nil {
			features = []core.Feature{}
		}
		render.JSON(w, r, features)
	}
}

// HandleCollection returns the room's features as GeoJSON.
func HandleCollection(lookup Lookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := resolveRoom(lookup, w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(room.Collection()); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

type roomState struct {
	Count       int           `json:"count"`
	LastAction  string        `json:"lastAction"`
	LastFeature *core.Feature `json:"lastFeature,omitempty"`
}

// HandleState returns the room's count and last-mutation classification.
func HandleState(lookup Lookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := resolveRoom(lookup, w, r)
		if !ok {
			return
		}
		count, lastAction, lastFeature := room.State()
		render.JSON(w, r, roomState{
			Count:       count,
			LastAction:  lastAction,
			LastFeature: lastFeature,
		})
	}
}

// HandleSetProperties replaces the property set of the feature at a given
// position.
func HandleSetProperties(lookup Lookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := resolveRoom(lookup, w, r)
		if !ok {
			return
		}
		index, ok := resolveIndex(w, r)
		if !ok {
			return
		}

		var properties map[string]any
		if err := json.NewDecoder(r.Body).Decode(&properties); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Request body must be a JSON object"})
			return
		}
		defer r.Body.Close()

		if err := room.SetPropertiesAt(index, properties); err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}

// HandleDeleteFeature removes the feature at a given position from the store
// and from every connected client.
func HandleDeleteFeature(lookup Lookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := resolveRoom(lookup, w, r)
		if !ok {
			return
		}
		index, ok := resolveIndex(w, r)
		if !ok {
			return
		}

		if err := room.RemoveFeatureAt(index); err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}

// HandleReset forgets the room's geometries. The clear_surface query
// parameter (default true) controls whether clients drop their shapes too.
func HandleReset(lookup Lookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := resolveRoom(lookup, w, r)
		if !ok {
			return
		}

		clearSurface := true
		if v := r.URL.Query().Get("clear_surface"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, map[string]string{"error": "clear_surface must be a boolean"})
				return
			}
			clearSurface = parsed
		}

		if err := room.Reset(clearSurface); err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}
