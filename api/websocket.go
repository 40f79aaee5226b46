package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/umlhub/umlhub/auth"
	"github.com/umlhub/umlhub/internal/config"
	"github.com/umlhub/umlhub/internal/slogging"
)

// WebSocketHub is the collaboration session engine: it owns the presence
// registry, the lock table and the cursor tracker, and is the only
// component allowed to mutate them. One mutex serializes every mutation,
// so inbound events from distinct connections are applied atomically and
// in arrival order.
type WebSocketHub struct {
	mu       sync.Mutex
	registry *PresenceRegistry
	locks    *LockTable
	cursors  *CursorTracker

	diagrams DiagramStore
	router   *MessageRouter
	config   config.CollaborationConfig
	metrics  *CollabMetrics

	// now is swappable for tests that reason about lock age
	now func() time.Time

	connections int
}

// WebSocketClient represents one live client connection (a Session). The
// authenticated identity is attached at handshake and trusted for every
// subsequent operation; it is never re-derived from client-supplied data.
type WebSocketClient struct {
	Hub  *WebSocketHub
	Conn *websocket.Conn
	// SessionID is the opaque handle for this connection
	SessionID string
	// UserID is the authenticated user identity
	UserID string
	// UserName is the resolved display name for roster payloads
	UserName string
	// Send is the buffered channel of outbound frames
	Send chan []byte

	// diagramID is the currently-joined diagram, empty when not viewing
	// any diagram. Guarded by Hub.mu.
	diagramID string

	closeOnce sync.Once
}

// Upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketHub creates a new collaboration hub. metrics may be nil.
func NewWebSocketHub(diagrams DiagramStore, cfg config.CollaborationConfig, metrics *CollabMetrics) *WebSocketHub {
	return &WebSocketHub{
		registry: NewPresenceRegistry(),
		locks:    NewLockTable(),
		cursors:  NewCursorTracker(),
		diagrams: diagrams,
		router:   NewMessageRouter(),
		config:   cfg,
		metrics:  metrics,
		now:      time.Now,
	}
}

// HandleWS upgrades an authenticated request to a websocket session. The
// auth middleware must have run first; an unauthenticated request is
// refused before any session state is created.
func (h *WebSocketHub) HandleWS(c *gin.Context) {
	logger := slogging.Get()

	user, ok := auth.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection for user %s: %v", user.ID, err)
		return
	}

	client := &WebSocketClient{
		Hub:       h,
		Conn:      conn,
		SessionID: uuid.New().String(),
		UserID:    user.ID,
		UserName:  user.DisplayName(),
		Send:      make(chan []byte, h.config.SendBufferSize),
	}

	h.mu.Lock()
	h.connections++
	h.metrics.SetConnections(h.connections)
	h.mu.Unlock()

	logger.Info("WebSocket session established - Session: %s, User: %s", client.SessionID, client.UserID)

	go client.ReadPump()
	go client.WritePump()
}

// Disconnect tears down a session: leaves its room (releasing the user's
// locks and notifying peers if this was the user's last connection),
// drops the cursor, and closes the outbound channel.
func (h *WebSocketHub) Disconnect(client *WebSocketClient) {
	h.mu.Lock()
	if client.diagramID != "" {
		h.leaveRoomLocked(client, client.diagramID)
	}
	h.connections--
	h.metrics.SetConnections(h.connections)
	h.updateGaugesLocked()
	h.mu.Unlock()

	client.closeSend()
	slogging.Get().Info("WebSocket session closed - Session: %s, User: %s", client.SessionID, client.UserID)
}

// JoinDiagram admits a session into a diagram's room. The diagram
// existence check runs against the storage collaborator before the hub
// lock is taken, so a slow storage call stalls only this one event.
func (h *WebSocketHub) JoinDiagram(ctx context.Context, client *WebSocketClient, diagramID string) {
	exists, err := h.diagrams.Exists(ctx, diagramID)
	if err != nil {
		slogging.Get().Error("Diagram existence check failed - Session: %s, Diagram: %s, Error: %v",
			client.SessionID, diagramID, err)
		client.sendError(ErrorCodeInternal, "Failed to verify diagram", "")
		return
	}
	if !exists {
		client.sendError(ErrorCodeNotFound, "Diagram not found", "")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// A session holds at most one joined diagram; joining a new one
	// implicitly leaves the previous room first.
	if client.diagramID != "" && client.diagramID != diagramID {
		h.leaveRoomLocked(client, client.diagramID)
	}

	room, _ := h.registry.Join(client, diagramID)
	client.diagramID = diagramID
	h.updateGaugesLocked()

	client.sendMessage(JoinAckMessage{
		MessageType: MessageTypeJoinAck,
		DiagramID:   diagramID,
	})

	// Roster goes to every member, the joiner included, so all views
	// converge on the membership as of after this join.
	h.broadcastToRoom(room, nil, UsersUpdatedMessage{
		MessageType: MessageTypeUsersUpdated,
		DiagramID:   diagramID,
		Users:       room.Participants(),
	})

	client.sendMessage(LockedElementsMessage{
		MessageType: MessageTypeLockedElements,
		DiagramID:   diagramID,
		Locks:       h.locks.SnapshotFor(diagramID),
	})

	slogging.Get().Info("User joined diagram - Session: %s, User: %s, Diagram: %s, Members: %d",
		client.SessionID, client.UserID, diagramID, room.MemberCount())
}

// LeaveDiagram removes a session from the room it is joined to
func (h *WebSocketHub) LeaveDiagram(client *WebSocketClient, diagramID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.diagramID != diagramID {
		client.sendError(ErrorCodeNotJoined, "You are not connected to this diagram", "")
		return
	}

	h.leaveRoomLocked(client, diagramID)
	h.updateGaugesLocked()

	client.sendMessage(LeaveAckMessage{
		MessageType: MessageTypeLeaveAck,
		DiagramID:   diagramID,
	})
}

// leaveRoomLocked removes the client from a room, releasing the user's
// locks and broadcasting roster/unlock events if the user fully departed.
// Caller must hold h.mu.
func (h *WebSocketHub) leaveRoomLocked(client *WebSocketClient, diagramID string) {
	room, userGone := h.registry.Leave(client, diagramID)
	client.diagramID = ""
	if room == nil {
		return
	}

	if userGone {
		// Locks must be released, not orphaned, when their holder leaves
		released := h.locks.ReleaseAllFor(client.UserID, diagramID)
		for _, lock := range released {
			h.broadcastToRoom(room, nil, ElementUnlockedMessage{
				MessageType: MessageTypeElementUnlocked,
				DiagramID:   diagramID,
				ElementID:   lock.ElementID,
				UserID:      lock.UserID,
				Reason:      UnlockReasonUserDeparted,
				Timestamp:   h.now().UTC(),
			})
		}
		h.cursors.Remove(client.UserID)
	}

	h.broadcastToRoom(room, nil, UsersUpdatedMessage{
		MessageType: MessageTypeUsersUpdated,
		DiagramID:   diagramID,
		Users:       room.Participants(),
	})

	slogging.Get().Info("User left diagram - Session: %s, User: %s, Diagram: %s, FullyDeparted: %v",
		client.SessionID, client.UserID, diagramID, userGone)
}

// AcquireLock arbitrates an exclusive edit lock request
func (h *WebSocketHub) AcquireLock(client *WebSocketClient, diagramID, elementID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.requireJoinedLocked(client, diagramID)
	if !ok {
		return
	}

	lock, renewed, conflict := h.locks.Acquire(client.UserID, diagramID, elementID, h.now())
	if conflict != nil {
		h.metrics.RecordLockConflict()
		client.sendMessage(LockDeniedMessage{
			MessageType: MessageTypeLockDenied,
			ElementID:   elementID,
			LockedBy:    conflict.UserID,
		})
		return
	}

	client.sendMessage(LockGrantedMessage{
		MessageType: MessageTypeLockGranted,
		ElementID:   elementID,
	})

	// A renewal is invisible to others; only a fresh grant is broadcast
	if !renewed {
		h.broadcastToRoom(room, client, ElementLockedMessage{
			MessageType: MessageTypeElementLocked,
			DiagramID:   diagramID,
			ElementID:   elementID,
			UserID:      lock.UserID,
			Timestamp:   lock.AcquiredAt.UTC(),
		})
	}
	h.updateGaugesLocked()
}

// ReleaseLock releases a lock held by the requesting user
func (h *WebSocketHub) ReleaseLock(client *WebSocketClient, diagramID, elementID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.requireJoinedLocked(client, diagramID)
	if !ok {
		return
	}

	lock, released := h.locks.Release(client.UserID, elementID)
	if !released {
		if lock != nil {
			client.sendError(ErrorCodeLockConflict, "You cannot unlock this element", elementID, withLockedBy(lock.UserID))
		} else {
			client.sendError(ErrorCodeNotFound, "Element is not locked", elementID)
		}
		return
	}

	client.sendMessage(LockReleaseAckMessage{
		MessageType: MessageTypeLockReleaseAck,
		ElementID:   elementID,
	})

	h.broadcastToRoom(room, client, ElementUnlockedMessage{
		MessageType: MessageTypeElementUnlocked,
		DiagramID:   diagramID,
		ElementID:   elementID,
		UserID:      client.UserID,
		Reason:      UnlockReasonReleased,
		Timestamp:   h.now().UTC(),
	})
	h.updateGaugesLocked()
}

// AddElement broadcasts a new element. Adds are never lock-gated: a new
// element cannot have a prior lock.
func (h *WebSocketHub) AddElement(client *WebSocketClient, msg ElementAddMessage, elementID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.requireJoinedLocked(client, msg.DiagramID)
	if !ok {
		return
	}

	client.sendMessage(ElementAckMessage{
		MessageType: MessageTypeElementAddAck,
		ElementID:   elementID,
		Success:     true,
	})

	h.broadcastToRoom(room, client, ElementAddedMessage{
		MessageType: MessageTypeElementAdded,
		DiagramID:   msg.DiagramID,
		Element:     msg.Element,
		UserID:      client.UserID,
		Timestamp:   h.now().UTC(),
	})
}

// UpdateElement broadcasts element changes after consulting the lock table
func (h *WebSocketHub) UpdateElement(client *WebSocketClient, msg ElementUpdateMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.requireJoinedLocked(client, msg.DiagramID)
	if !ok {
		return
	}

	if lock, held := h.locks.Get(msg.ElementID); held && lock.UserID != client.UserID {
		h.metrics.RecordLockConflict()
		client.sendError(ErrorCodeLockConflict, "Element is locked by another user", msg.ElementID, withLockedBy(lock.UserID))
		return
	}

	client.sendMessage(ElementAckMessage{
		MessageType: MessageTypeElementUpdAck,
		ElementID:   msg.ElementID,
		Success:     true,
	})

	h.broadcastToRoom(room, client, ElementUpdatedMessage{
		MessageType: MessageTypeElementUpdated,
		DiagramID:   msg.DiagramID,
		ElementID:   msg.ElementID,
		Changes:     msg.Changes,
		UserID:      client.UserID,
		Timestamp:   h.now().UTC(),
	})
}

// DeleteElement broadcasts an element removal after consulting the lock
// table; any lock on the element is retired with it
func (h *WebSocketHub) DeleteElement(client *WebSocketClient, msg ElementDeleteMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.requireJoinedLocked(client, msg.DiagramID)
	if !ok {
		return
	}

	if lock, held := h.locks.Get(msg.ElementID); held && lock.UserID != client.UserID {
		h.metrics.RecordLockConflict()
		client.sendError(ErrorCodeLockConflict, "Element is locked by another user", msg.ElementID, withLockedBy(lock.UserID))
		return
	}

	// The delete event itself retires the element; no separate unlock
	// broadcast is needed
	h.locks.Remove(msg.ElementID)
	h.updateGaugesLocked()

	client.sendMessage(ElementAckMessage{
		MessageType: MessageTypeElementDelAck,
		ElementID:   msg.ElementID,
		Success:     true,
	})

	h.broadcastToRoom(room, client, ElementDeletedMessage{
		MessageType: MessageTypeElementDeleted,
		DiagramID:   msg.DiagramID,
		ElementID:   msg.ElementID,
		UserID:      client.UserID,
		Timestamp:   h.now().UTC(),
	})
}

// MoveCursor records and relays a pointer position. Best effort: a
// session that is not joined to the named diagram is ignored silently,
// and no acknowledgement is ever sent.
func (h *WebSocketHub) MoveCursor(client *WebSocketClient, diagramID string, pos Position) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.diagramID != diagramID {
		return
	}
	room, ok := h.registry.Room(diagramID)
	if !ok {
		return
	}

	now := h.now()
	h.cursors.Move(client.UserID, diagramID, pos, now)

	h.broadcastToRoom(room, client, CursorMovedMessage{
		MessageType: MessageTypeCursorMoved,
		DiagramID:   diagramID,
		UserID:      client.UserID,
		Name:        client.UserName,
		Position:    pos,
		Timestamp:   now.UTC(),
	})
}

// requireJoinedLocked validates that the sender is joined to the diagram
// named in an event. Caller must hold h.mu.
func (h *WebSocketHub) requireJoinedLocked(client *WebSocketClient, diagramID string) (*DiagramRoom, bool) {
	if client.diagramID != diagramID {
		client.sendError(ErrorCodeNotJoined, "You are not connected to this diagram", "")
		return nil, false
	}
	room, ok := h.registry.Room(diagramID)
	if !ok {
		client.sendError(ErrorCodeNotJoined, "You are not connected to this diagram", "")
		return nil, false
	}
	return room, true
}

// broadcastToRoom fans a message out to every connection in the room,
// skipping except when non-nil. Caller must hold h.mu.
func (h *WebSocketHub) broadcastToRoom(room *DiagramRoom, except *WebSocketClient, msg AsyncMessage) {
	for _, client := range room.Clients() {
		if client == except {
			continue
		}
		client.sendMessage(msg)
	}
}

// updateGaugesLocked refreshes the observability gauges. Caller must hold h.mu.
func (h *WebSocketHub) updateGaugesLocked() {
	h.metrics.SetRooms(h.registry.RoomCount())
	h.metrics.SetLocks(h.locks.Len())
}

// Snapshot accessors used by tests and the health endpoint

// ConnectionCount returns the number of live websocket sessions
func (h *WebSocketHub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connections
}

// RoomCount returns the number of rooms with at least one member
func (h *WebSocketHub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.RoomCount()
}

// LockCount returns the number of element locks currently held
func (h *WebSocketHub) LockCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locks.Len()
}
