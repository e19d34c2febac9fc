package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"geodraw/core"
	"geodraw/draw"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type ackInvoker func(err error, payload map[string]any)

// roomSurface mirrors the shapes the room's clients currently display. It is
// the control's drawing surface: Current serves edit reconciliation, and
// RemoveAt/Clear push server-side removals back out to the clients without
// re-delivering events into the control.
type roomSurface struct {
	srv    *socketio.Server
	roomID string

	handler  func(kind draw.EventKind, payload core.GeoJSONFeature) error
	features []core.GeoJSONFeature
}

func (s *roomSurface) Bind(handler func(kind draw.EventKind, payload core.GeoJSONFeature) error) error {
	s.handler = handler
	return nil
}

func (s *roomSurface) Current() ([]core.GeoJSONFeature, error) {
	out := make([]core.GeoJSONFeature, len(s.features))
	copy(out, s.features)
	return out, nil
}

func (s *roomSurface) RemoveAt(index int) error {
	if index < 0 || index >= len(s.features) {
		return fmt.Errorf("surface index %d out of range", index)
	}
	s.features = append(s.features[:index:index], s.features[index+1:]...)
	return s.srv.To(socketio.Room(s.roomID)).Emit("draw-remove", map[string]any{"index": index})
}

func (s *roomSurface) Clear() error {
	s.features = nil
	return s.srv.To(socketio.Room(s.roomID)).Emit("draw-clear")
}

// setFeatures replaces the mirror with the payloads a client reported after
// its own mutation.
func (s *roomSurface) setFeatures(features []core.GeoJSONFeature) {
	s.features = features
}

// dropMatching splices the first mirrored payload whose geometry equals the
// given payload's. Best effort; undecodable mirror entries are skipped.
func (s *roomSurface) dropMatching(payload core.GeoJSONFeature) {
	target, err := core.GeometryFromFeature(payload)
	if err != nil {
		return
	}
	for i, f := range s.features {
		geometry, err := core.GeometryFromFeature(f)
		if err != nil {
			continue
		}
		if geometry.Equal(target) {
			s.features = append(s.features[:i:i], s.features[i+1:]...)
			return
		}
	}
}

func (s *roomSurface) deliver(kind draw.EventKind, payload core.GeoJSONFeature) error {
	if s.handler == nil {
		return fmt.Errorf("surface has no bound control")
	}
	return s.handler(kind, payload)
}

// Room pairs a geometry store with the surface its clients share. All
// mutations go through the room mutex; socket.io handlers and REST handlers
// both end up here.
type Room struct {
	ID string

	mu      sync.Mutex
	surface *roomSurface
	control *draw.Control
}

// Collection returns the room's features as a GeoJSON feature collection.
func (r *Room) Collection() core.FeatureCollection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control.Collection()
}

// Features returns the room's features in draw order.
func (r *Room) Features() []core.Feature {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control.Features()
}

// State reports the count, last action and last feature of the room's store.
func (r *Room) State() (count int, lastAction string, lastFeature *core.Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control.Count(), r.control.LastAction().String(), r.control.LastFeature()
}

// SetPropertiesAt attaches a property set to the geometry at the given
// position.
func (r *Room) SetPropertiesAt(index int, properties map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	geometries := r.control.Geometries()
	if index < 0 || index >= len(geometries) {
		return fmt.Errorf("feature index %d out of range", index)
	}
	return r.control.SetProperties(geometries[index], properties)
}

// RemoveFeatureAt removes the geometry at the given position from the store
// and from every client's surface.
func (r *Room) RemoveFeatureAt(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	geometries := r.control.Geometries()
	if index < 0 || index >= len(geometries) {
		return fmt.Errorf("feature index %d out of range", index)
	}
	return r.control.RemoveGeometry(geometries[index])
}

// Reset forgets the room's geometries. When clearSurface is true the clients
// are told to drop their shapes too.
func (r *Room) Reset(clearSurface bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control.Reset(clearSurface)
}

func (r *Room) handleDrawEvent(kind draw.EventKind, feature core.GeoJSONFeature, surfaceFeatures []core.GeoJSONFeature) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if surfaceFeatures != nil {
		r.surface.setFeatures(surfaceFeatures)
	}
	if err := r.surface.deliver(kind, feature); err != nil {
		return "", r.control.Count(), err
	}

	// Clients only send the full surface on edits; creates and deletes keep
	// the mirror current here so later RemoveAt calls hit the right index.
	if surfaceFeatures == nil {
		switch kind {
		case draw.EventCreated:
			r.surface.features = append(r.surface.features, feature)
		case draw.EventDeleted:
			r.surface.dropMatching(feature)
		}
	}
	return r.control.LastAction().String(), r.control.Count(), nil
}

var (
	rooms       = make(map[string]*Room)
	activeRooms = make(map[string]int)
	roomsMutex  sync.RWMutex
)

// GetRoom returns the room with the given ID, or nil if no client has joined
// it yet.
func GetRoom(roomID string) *Room {
	roomsMutex.RLock()
	defer roomsMutex.RUnlock()
	return rooms[roomID]
}

// GetActiveRooms returns a snapshot of connected-user counts per room.
func GetActiveRooms() map[string]int {
	roomsMutex.RLock()
	defer roomsMutex.RUnlock()

	out := make(map[string]int, len(activeRooms))
	for k, v := range activeRooms {
		out[k] = v
	}
	return out
}

func ensureRoom(srv *socketio.Server, roomID string) *Room {
	roomsMutex.Lock()
	defer roomsMutex.Unlock()

	if room, ok := rooms[roomID]; ok {
		return room
	}

	surface := &roomSurface{srv: srv, roomID: roomID}
	control, err := draw.NewControl(surface)
	if err != nil {
		// Cannot happen with a non-nil surface, but keep the store honest.
		logrus.WithError(err).Error("failed to create draw control")
		return nil
	}
	room := &Room{ID: roomID, surface: surface, control: control}
	rooms[roomID] = room
	return room
}

func SetupSocketIO(registry core.RoomRegistry) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin: []any{
			localhostOrigin,
		},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	touchRoom := func(roomID string) {
		if registry == nil {
			return
		}
		if err := registry.TouchRoom(context.Background(), roomID); err != nil {
			logrus.WithError(err).WithField("room", roomID).Warn("failed to touch room registry")
		}
	}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := socket.Id()
		myRoom := socketio.Room(me)
		_ = srv.To(myRoom).Emit("init-room")

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("join-room", func(datas ...any) {
			ack, args := extractAck(datas)
			if len(args) == 0 {
				err := fmt.Errorf("room id is required")
				respondWithAck(socket, ack, "join-room-ack", map[string]any{
					"status": "error",
					"error":  err.Error(),
				}, err)
				return
			}

			roomID, ok := args[0].(string)
			if !ok || roomID == "" {
				err := fmt.Errorf("invalid room id")
				respondWithAck(socket, ack, "join-room-ack", map[string]any{
					"status": "error",
					"error":  err.Error(),
				}, err)
				return
			}

			drawRoom := ensureRoom(srv, roomID)
			room := socketio.Room(roomID)
			socket.Join(room)
			touchRoom(roomID)
			logrus.WithFields(logrus.Fields{"socket": me, "room": roomID}).Debug("socket joined room")

			srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, fetchErr error) {
				if fetchErr != nil {
					respondWithAck(socket, ack, "join-room-ack", map[string]any{
						"status": "error",
						"error":  fetchErr.Error(),
					}, fetchErr)
					return
				}

				roomsMutex.Lock()
				activeRooms[roomID] = len(users)
				roomsMutex.Unlock()

				if len(users) <= 1 {
					_ = srv.To(myRoom).Emit("first-in-room")
				} else {
					_ = socket.Broadcast().To(room).Emit("new-user", me)
				}

				roomUsers := make([]socketio.SocketId, 0, len(users))
				for _, user := range users {
					roomUsers = append(roomUsers, user.Id())
				}
				srv.In(room).Emit("room-user-change", roomUsers)

				// The joining client receives the room's current geometry so
				// its surface starts in sync.
				if drawRoom != nil {
					_ = srv.To(myRoom).Emit("draw-sync", drawRoom.Collection())
				}

				respondWithAck(socket, ack, "join-room-ack", map[string]any{
					"status":     "ok",
					"user_count": len(users),
				}, nil)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("draw-event", func(datas ...any) {
			handleDrawEvent(srv, socket, datas, touchRoom)
		})

		socket.On("disconnecting", func(datas ...any) {
			for _, currentRoom := range socket.Rooms().Keys() {
				roomID := string(currentRoom)
				srv.In(currentRoom).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
					otherClients := make([]socketio.SocketId, 0, len(users))
					for _, userInRoom := range users {
						if userInRoom.Id() != me {
							otherClients = append(otherClients, userInRoom.Id())
						}
					}

					roomsMutex.Lock()
					if len(otherClients) == 0 {
						delete(activeRooms, roomID)
					} else {
						activeRooms[roomID] = len(otherClients)
					}
					roomsMutex.Unlock()

					if len(otherClients) > 0 {
						srv.In(currentRoom).Emit("room-user-change", otherClients)
					}
				})
			}
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

// drawEventPayload is the wire shape of one draw mutation: what happened,
// the feature it happened to, and the client's full surface afterwards.
type drawEventPayload struct {
	Action   string                `json:"action"`
	Feature  core.GeoJSONFeature   `json:"feature"`
	Features []core.GeoJSONFeature `json:"features"`
}

func handleDrawEvent(srv *socketio.Server, socket *socketio.Socket, datas []any, touchRoom func(string)) {
	ack, args := extractAck(datas)
	if len(args) < 2 {
		err := fmt.Errorf("draw-event requires a room id and a payload")
		respondWithAck(socket, ack, "draw-event-ack", map[string]any{
			"status": "error",
			"error":  err.Error(),
		}, err)
		return
	}

	roomID, _ := args[0].(string)
	if roomID == "" {
		err := fmt.Errorf("missing room id")
		respondWithAck(socket, ack, "draw-event-ack", map[string]any{
			"status": "error",
			"error":  err.Error(),
		}, err)
		return
	}

	payload, err := decodeDrawEvent(args[1])
	if err != nil {
		respondWithAck(socket, ack, "draw-event-ack", map[string]any{
			"status": "error",
			"error":  err.Error(),
		}, err)
		return
	}

	kind, err := draw.ParseEventKind(payload.Action)
	if err != nil {
		respondWithAck(socket, ack, "draw-event-ack", map[string]any{
			"status": "error",
			"error":  err.Error(),
		}, err)
		return
	}

	room := ensureRoom(srv, roomID)
	if room == nil {
		err := fmt.Errorf("room unavailable")
		respondWithAck(socket, ack, "draw-event-ack", map[string]any{
			"status": "error",
			"error":  err.Error(),
		}, err)
		return
	}

	action, count, err := room.handleDrawEvent(kind, payload.Feature, payload.Features)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room":   roomID,
			"action": payload.Action,
			"error":  err,
		}).Warn("draw event rejected")
		respondWithAck(socket, ack, "draw-event-ack", map[string]any{
			"status": "error",
			"error":  err.Error(),
		}, err)
		return
	}

	touchRoom(roomID)
	_ = socket.Broadcast().To(socketio.Room(roomID)).Emit("draw-broadcast", args[1])

	respondWithAck(socket, ack, "draw-event-ack", map[string]any{
		"status": "ok",
		"action": action,
		"count":  count,
	}, nil)
}

// decodeDrawEvent converts the loosely typed socket.io argument into the
// wire payload via one JSON round trip.
func decodeDrawEvent(arg any) (*drawEventPayload, error) {
	raw, err := json.Marshal(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid draw event payload: %w", err)
	}
	var payload drawEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid draw event payload: %w", err)
	}
	if payload.Action == "" {
		return nil, fmt.Errorf("draw event action is required")
	}
	return &payload, nil
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		args := buildAckArgs(typ, err, payload)
		value.Call(args)
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		paramType := typ.In(i)
		var argValue any

		switch {
		case numIn == 1:
			if err != nil {
				argValue = err
			} else {
				argValue = payload
			}
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		default:
			argValue = nil
		}

		args[i] = coerceValue(argValue, paramType)
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(targetType) {
		return rv
	}

	if rv.Type().ConvertibleTo(targetType) {
		return rv.Convert(targetType)
	}

	if targetType.Kind() == reflect.Interface {
		if rv.Type().Implements(targetType) || targetType.NumMethod() == 0 {
			return rv
		}
	}

	if targetType.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}

	return reflect.Zero(targetType)
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}

	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}
