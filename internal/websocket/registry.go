package websocket

import (
	"strconv"
	"sync"
)

// Connection is one socket as the registry sees it.
type Connection interface {
	ID() string
	// Send queues an encoded frame. It must not block.
	Send(frame []byte) error
}

// Registry tracks live connections per user and room membership for one
// namespace.
type Registry interface {
	// Register adds conn to the user's set and joins it to RoomFor(userID).
	Register(userID uint, conn Connection)
	// Unregister removes conn from the user's set and from every room.
	Unregister(userID uint, conn Connection)
	IsOnline(userID uint) bool
	RoomFor(userID uint) string
	Join(room string, conn Connection)
	Leave(room string, conn Connection)
	// Emit delivers one event to every connection in room, each exactly once.
	// It returns how many connections accepted it.
	Emit(room, event string, data interface{}) (int, error)
	Connections() int
}

func UserRoom(userID uint) string {
	return "user:" + strconv.FormatUint(uint64(userID), 10)
}

func ChatRoom(chatID uint) string {
	return "chat:" + strconv.FormatUint(uint64(chatID), 10)
}

type MemoryRegistry struct {
	mu    sync.RWMutex
	users map[uint]map[string]Connection
	rooms map[string]map[string]Connection
	// joined maps a connection id to the rooms it is in
	joined map[string]map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		users:  make(map[uint]map[string]Connection),
		rooms:  make(map[string]map[string]Connection),
		joined: make(map[string]map[string]struct{}),
	}
}

func (r *MemoryRegistry) RoomFor(userID uint) string {
	return UserRoom(userID)
}

func (r *MemoryRegistry) Register(userID uint, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]Connection)
		r.users[userID] = set
	}
	set[conn.ID()] = conn
	r.joinLocked(UserRoom(userID), conn)
}

func (r *MemoryRegistry) Unregister(userID uint, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if set, ok := r.users[userID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
	for room := range r.joined[id] {
		r.leaveLocked(room, id)
	}
	delete(r.joined, id)
}

func (r *MemoryRegistry) IsOnline(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *MemoryRegistry) Join(room string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinLocked(room, conn)
}

func (r *MemoryRegistry) Leave(room string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, conn.ID())
	if rooms, ok := r.joined[conn.ID()]; ok {
		delete(rooms, room)
	}
}

func (r *MemoryRegistry) Emit(room, event string, data interface{}) (int, error) {
	frame, err := encodeFrame(event, "", data)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	targets := make([]Connection, 0, len(r.rooms[room]))
	for _, conn := range r.rooms[room] {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if conn.Send(frame) == nil {
			delivered++
		}
	}
	return delivered, nil
}

func (r *MemoryRegistry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.joined)
}

func (r *MemoryRegistry) joinLocked(room string, conn Connection) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Connection)
		r.rooms[room] = members
	}
	members[conn.ID()] = conn

	rooms, ok := r.joined[conn.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[conn.ID()] = rooms
	}
	rooms[room] = struct{}{}
}

func (r *MemoryRegistry) leaveLocked(room, connID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
