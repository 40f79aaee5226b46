package api

import "sort"

// roomMember tracks one user's presence in a room across all of their
// live connections. A user may hold several concurrent connections into
// the same room; the roster is deduplicated by user, and the membership
// ends when the last connection leaves.
type roomMember struct {
	participant Participant
	conns       map[*WebSocketClient]struct{}
}

// DiagramRoom is the set of sessions currently joined to one diagram.
// Created lazily on first join, removed from the registry when its member
// set becomes empty.
type DiagramRoom struct {
	DiagramID string
	members   map[string]*roomMember
}

// Participants returns the deduplicated roster, sorted by user ID so
// repeated snapshots are stable
func (r *DiagramRoom) Participants() []Participant {
	roster := make([]Participant, 0, len(r.members))
	for _, m := range r.members {
		roster = append(roster, m.participant)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
	return roster
}

// Clients returns every live connection in the room
func (r *DiagramRoom) Clients() []*WebSocketClient {
	var clients []*WebSocketClient
	for _, m := range r.members {
		for c := range m.conns {
			clients = append(clients, c)
		}
	}
	return clients
}

// HasUser reports whether the user is currently a member of the room
func (r *DiagramRoom) HasUser(userID string) bool {
	_, ok := r.members[userID]
	return ok
}

// MemberCount returns the number of distinct users in the room
func (r *DiagramRoom) MemberCount() int {
	return len(r.members)
}

// PresenceRegistry maps each diagram to the set of connected users.
// Not safe for concurrent use: the hub serializes all access behind its
// mutex, per the single-writer model of the session engine.
type PresenceRegistry struct {
	rooms map[string]*DiagramRoom
}

// NewPresenceRegistry creates an empty registry
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		rooms: make(map[string]*DiagramRoom),
	}
}

// Join adds a client's user to the diagram's room, creating the room on
// first join. Returns the room and whether the user was already present
// through another connection (in which case the roster did not change).
func (p *PresenceRegistry) Join(client *WebSocketClient, diagramID string) (*DiagramRoom, bool) {
	room, ok := p.rooms[diagramID]
	if !ok {
		room = &DiagramRoom{
			DiagramID: diagramID,
			members:   make(map[string]*roomMember),
		}
		p.rooms[diagramID] = room
	}

	member, alreadyPresent := room.members[client.UserID]
	if !alreadyPresent {
		member = &roomMember{
			participant: Participant{UserID: client.UserID, Name: client.UserName},
			conns:       make(map[*WebSocketClient]struct{}),
		}
		room.members[client.UserID] = member
	}
	member.conns[client] = struct{}{}

	return room, alreadyPresent
}

// Leave removes a client connection from the diagram's room. Returns the
// room (nil if the diagram has no room) and whether the user fully left,
// i.e. this was their last connection. Empty rooms are deleted on the spot
// so the registry never leaks them.
func (p *PresenceRegistry) Leave(client *WebSocketClient, diagramID string) (*DiagramRoom, bool) {
	room, ok := p.rooms[diagramID]
	if !ok {
		return nil, false
	}

	member, ok := room.members[client.UserID]
	if !ok {
		return room, false
	}

	delete(member.conns, client)
	if len(member.conns) > 0 {
		return room, false
	}

	delete(room.members, client.UserID)
	if len(room.members) == 0 {
		delete(p.rooms, diagramID)
	}
	return room, true
}

// Room returns the room for a diagram, if one exists
func (p *PresenceRegistry) Room(diagramID string) (*DiagramRoom, bool) {
	room, ok := p.rooms[diagramID]
	return room, ok
}

// RoomCount returns the number of rooms with at least one member
func (p *PresenceRegistry) RoomCount() int {
	return len(p.rooms)
}
