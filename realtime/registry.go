package realtime

import (
	"log"
	"sync"
	"time"
)

// Conn is the transport-level session the registry routes messages to.
// *wsConn adapts a gorilla websocket connection; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// EventRoom names the broadcast room for one event's live updates.
func EventRoom(eventID string) string {
	return "event_" + eventID
}

type connection struct {
	id        string
	userID    string
	conn      Conn
	createdAt time.Time
}

// Registry tracks live connections and their user/room memberships and
// routes outbound messages to the right subset of them. All methods are
// safe for concurrent use; one mutex covers every logical operation.
// Fan-out snapshots its targets under the lock and writes outside it so
// a stalled client cannot stall the registry.
type Registry struct {
	mu          sync.Mutex
	connections map[string]*connection
	users       map[string]map[string]struct{}
	rooms       map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*connection),
		users:       make(map[string]map[string]struct{}),
		rooms:       make(map[string]map[string]struct{}),
	}
}

// Register adds a connection, indexed under userID when the session is
// authenticated. Re-registering an existing id replaces the prior entry
// and closes its transport.
func (r *Registry) Register(connID, userID string, conn Conn) {
	r.mu.Lock()

	var replaced Conn
	if prev, ok := r.connections[connID]; ok {
		replaced = prev.conn
		r.detachUserLocked(connID, prev.userID)
	}

	r.connections[connID] = &connection{
		id:        connID,
		userID:    userID,
		conn:      conn,
		createdAt: time.Now(),
	}
	if userID != "" {
		if r.users[userID] == nil {
			r.users[userID] = make(map[string]struct{})
		}
		r.users[userID][connID] = struct{}{}
	}
	r.mu.Unlock()

	if replaced != nil {
		replaced.Close()
	}

	log.Printf("Realtime connection registered: %s (user: %s)", connID, userID)
}

// Unregister removes the connection from the global table, the user
// index and every room it belonged to. Unknown ids are a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	entry, ok := r.connections[connID]
	if !ok {
		r.mu.Unlock()
		return
	}

	delete(r.connections, connID)
	r.detachUserLocked(connID, entry.userID)
	for roomID, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	r.mu.Unlock()

	entry.conn.Close()
	log.Printf("Realtime connection unregistered: %s", connID)
}

// JoinRoom adds the connection to a room, creating the room on first
// join. Joining twice is idempotent; unknown connections are rejected
// silently so a racing disconnect cannot resurrect a room entry.
func (r *Registry) JoinRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connID]; !ok {
		return
	}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][connID] = struct{}{}
}

// LeaveRoom removes the connection from a room; the room is deleted
// when its last member leaves. Leaving a room one is not in is a no-op.
func (r *Registry) LeaveRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// SendToUser delivers message to every live connection of one user.
// Offline users receive nothing; delivery is at-most-once, best effort.
// Returns the number of successful deliveries.
func (r *Registry) SendToUser(userID string, message any) int {
	r.mu.Lock()
	var targets []*connection
	for connID := range r.users[userID] {
		if entry, ok := r.connections[connID]; ok {
			targets = append(targets, entry)
		}
	}
	r.mu.Unlock()

	return r.deliver(targets, message)
}

// SendToRoom delivers message to every member of the room. A failed
// delivery to one member never blocks the others.
func (r *Registry) SendToRoom(roomID string, message any) int {
	r.mu.Lock()
	var targets []*connection
	for connID := range r.rooms[roomID] {
		if entry, ok := r.connections[connID]; ok {
			targets = append(targets, entry)
		}
	}
	r.mu.Unlock()

	return r.deliver(targets, message)
}

// Broadcast delivers message to every registered connection.
func (r *Registry) Broadcast(message any) int {
	r.mu.Lock()
	targets := make([]*connection, 0, len(r.connections))
	for _, entry := range r.connections {
		targets = append(targets, entry)
	}
	r.mu.Unlock()

	return r.deliver(targets, message)
}

// deliver writes to each target outside the registry lock. A write
// failure means the transport is gone: log it, drop the connection,
// keep going.
func (r *Registry) deliver(targets []*connection, message any) int {
	delivered := 0
	for _, target := range targets {
		if err := target.conn.WriteJSON(message); err != nil {
			log.Printf("Failed to deliver to %s: %v", target.id, err)
			r.Unregister(target.id)
			continue
		}
		delivered++
	}
	return delivered
}

// Stats reports the live table sizes for the admin endpoint and the
// metrics collector.
type Stats struct {
	Connections int            `json:"total_connections"`
	Users       int            `json:"authenticated_users"`
	Rooms       int            `json:"active_rooms"`
	RoomSizes   map[string]int `json:"room_details"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	sizes := make(map[string]int, len(r.rooms))
	for roomID, members := range r.rooms {
		sizes[roomID] = len(members)
	}
	return Stats{
		Connections: len(r.connections),
		Users:       len(r.users),
		Rooms:       len(r.rooms),
		RoomSizes:   sizes,
	}
}

func (r *Registry) detachUserLocked(connID, userID string) {
	if userID == "" {
		return
	}
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
}
