package basemaps

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Basemap describes one XYZ tile layer the map UI can select.
type Basemap struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution,omitempty"`
	MaxZoom     int    `json:"maxZoom,omitempty"`
}

var catalog map[string]Basemap

func defaultCatalog() map[string]Basemap {
	return map[string]Basemap{
		"OpenStreetMap": {
			Name:        "OpenStreetMap",
			URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: "© OpenStreetMap contributors",
			MaxZoom:     19,
		},
		"OpenTopoMap": {
			Name:        "OpenTopoMap",
			URL:         "https://tile.opentopomap.org/{z}/{x}/{y}.png",
			Attribution: "© OpenTopoMap (CC-BY-SA)",
			MaxZoom:     17,
		},
		"Esri.WorldImagery": {
			Name:        "Esri.WorldImagery",
			URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: "Esri, Maxar, Earthstar Geographics",
			MaxZoom:     18,
		},
	}
}

// Init loads the basemap catalog. BASEMAPS_FILE may point at a JSON
// file of extra layers which are merged over the defaults.
func Init() {
	catalog = defaultCatalog()

	path := os.Getenv("BASEMAPS_FILE")
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logrus.WithError(err).Warnf("Failed to read basemap catalog %s, using defaults", path)
		return
	}

	var extra []Basemap
	if err := json.Unmarshal(data, &extra); err != nil {
		logrus.WithError(err).Warnf("Failed to parse basemap catalog %s, using defaults", path)
		return
	}

	for _, b := range extra {
		if b.Name == "" || b.URL == "" {
			continue
		}
		catalog[b.Name] = b
	}
	logrus.WithField("count", len(catalog)).Info("Basemap catalog loaded")
}

// HandleList returns the catalog sorted by name.
func HandleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		basemaps := make([]Basemap, 0, len(catalog))
		for _, b := range catalog {
			basemaps = append(basemaps, b)
		}
		sort.Slice(basemaps, func(i, j int) bool { return basemaps[i].Name < basemaps[j].Name })
		render.JSON(w, r, basemaps)
	}
}

// HandleTile proxies one XYZ tile from the named layer's upstream.
func HandleTile() http.HandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		basemap, ok := catalog[name]
		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Unknown basemap"})
			return
		}

		z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
		x, errX := strconv.Atoi(chi.URLParam(r, "x"))
		y, errY := strconv.Atoi(chi.URLParam(r, "y"))
		if errZ != nil || errX != nil || errY != nil || z < 0 || x < 0 || y < 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid tile coordinates"})
			return
		}
		if basemap.MaxZoom > 0 && z > basemap.MaxZoom {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": fmt.Sprintf("Zoom exceeds maximum of %d", basemap.MaxZoom)})
			return
		}

		upstream := basemap.URL
		upstream = strings.ReplaceAll(upstream, "{z}", strconv.Itoa(z))
		upstream = strings.ReplaceAll(upstream, "{x}", strconv.Itoa(x))
		upstream = strings.ReplaceAll(upstream, "{y}", strconv.Itoa(y))

		proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create tile request"})
			return
		}
		proxyReq.Header.Set("User-Agent", "geodraw tile proxy")

		resp, err := client.Do(proxyReq)
		if err != nil {
			logrus.WithError(err).WithField("url", upstream).Warn("Tile fetch failed")
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, map[string]string{"error": "Failed to fetch tile from upstream"})
			return
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}
}
