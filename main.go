package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"geodraw/core"
	"geodraw/handlers/api/basemaps"
	"geodraw/handlers/api/documents"
	"geodraw/handlers/api/rooms"
	"geodraw/handlers/api/sessions"
	"geodraw/handlers/auth"
	"geodraw/handlers/websocket"
	authMiddleware "geodraw/middleware"
	"geodraw/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func setupRouter(store stores.Store, registry core.RoomRegistry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	lookup := func(roomID string) rooms.Room {
		if room := websocket.GetRoom(roomID); room != nil {
			return room
		}
		return nil
	}

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", rooms.HandleList(websocket.GetActiveRooms, registry))
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/features", rooms.HandleFeatures(lookup))
			r.Get("/collection", rooms.HandleCollection(lookup))
			r.Get("/state", rooms.HandleState(lookup))
			r.Delete("/features", rooms.HandleReset(lookup))
			r.Route("/features/{index}", func(r chi.Router) {
				r.Put("/properties", rooms.HandleSetProperties(lookup))
				r.Delete("/", rooms.HandleDeleteFeature(lookup))
			})
		})
	})

	r.Route("/api/v2", func(r chi.Router) {
		// Saved sessions, protected by JWT auth
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessions.HandleList(store))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", sessions.HandleGet(store))
					r.Put("/", sessions.HandleSave(store))
					r.Delete("/", sessions.HandleDelete(store))
				})
			})
		})

		// Anonymous snapshot sharing
		r.Post("/post/", documents.HandleCreate(store))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", documents.HandleGet(store))
		})
	})

	r.Route("/api/basemaps", func(r chi.Router) {
		r.Get("/", basemaps.HandleList())
		r.Get("/{name}/tiles/{z}/{x}/{y}", basemaps.HandleTile())
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", auth.HandleLogin)
		r.Get("/callback", auth.HandleCallback)
	})

	return r
}

func waitForShutdown(ioo *socketio.Server) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	ioo.Close(nil)
	os.Exit(0)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	basemaps.Init()
	store := stores.GetStore()

	var registry core.RoomRegistry
	if r, ok := store.(core.RoomRegistry); ok {
		registry = r
	}

	r := setupRouter(store, registry)

	ioo := websocket.SetupSocketIO(registry)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo)
}
