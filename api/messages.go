package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// WebSocket message types
// These types implement the collaboration session protocol: every frame is
// a JSON object discriminated by `message_type`. Inbound requests get a
// private acknowledgement (or error) back to the sender; state changes are
// broadcast to the rest of the room as distinct event messages.

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client-to-server message types
	MessageTypeJoinDiagram   MessageType = "join_diagram"
	MessageTypeLeaveDiagram  MessageType = "leave_diagram"
	MessageTypeElementAdd    MessageType = "element_add"
	MessageTypeElementUpdate MessageType = "element_update"
	MessageTypeElementDelete MessageType = "element_delete"
	MessageTypeLockAcquire   MessageType = "lock_acquire"
	MessageTypeLockRelease   MessageType = "lock_release"
	MessageTypeCursorMove    MessageType = "cursor_move"

	// Server-to-room broadcast types
	MessageTypeUsersUpdated    MessageType = "users_updated"
	MessageTypeElementAdded    MessageType = "element_added"
	MessageTypeElementUpdated  MessageType = "element_updated"
	MessageTypeElementDeleted  MessageType = "element_deleted"
	MessageTypeElementLocked   MessageType = "element_locked"
	MessageTypeElementUnlocked MessageType = "element_unlocked"
	MessageTypeCursorMoved     MessageType = "cursor_moved"

	// Server-to-sender reply types
	MessageTypeJoinAck        MessageType = "join_ack"
	MessageTypeLeaveAck       MessageType = "leave_ack"
	MessageTypeLockedElements MessageType = "locked_elements"
	MessageTypeElementAddAck  MessageType = "element_add_ack"
	MessageTypeElementUpdAck  MessageType = "element_update_ack"
	MessageTypeElementDelAck  MessageType = "element_delete_ack"
	MessageTypeLockGranted    MessageType = "lock_granted"
	MessageTypeLockDenied     MessageType = "lock_denied"
	MessageTypeLockReleaseAck MessageType = "lock_release_ack"
	MessageTypeError          MessageType = "error"
)

// ErrorCode classifies error replies sent to the offending sender
type ErrorCode string

const (
	ErrorCodeNotJoined       ErrorCode = "not_joined"
	ErrorCodeNotFound        ErrorCode = "not_found"
	ErrorCodeLockConflict    ErrorCode = "lock_conflict"
	ErrorCodeInvalidRequest  ErrorCode = "invalid_request"
	ErrorCodeUnsupportedType ErrorCode = "unsupported_message_type"
	ErrorCodeInternal        ErrorCode = "internal_error"
)

// UnlockReason explains why an element lock went away
type UnlockReason string

const (
	// UnlockReasonReleased means the holder released the lock explicitly
	UnlockReasonReleased UnlockReason = "released"
	// UnlockReasonUserDeparted means the holder left the room or disconnected
	UnlockReasonUserDeparted UnlockReason = "user_departed"
	// UnlockReasonTimeout means the expiry sweeper reclaimed a stale lock
	UnlockReasonTimeout UnlockReason = "timeout"
)

// AsyncMessage is the base interface for all protocol messages
type AsyncMessage interface {
	GetMessageType() MessageType
	Validate() error
}

// Position is a 2D cursor coordinate on the diagram canvas
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is one roster entry: the opaque user identity plus the
// display name resolved at handshake time
type Participant struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Client-to-server messages

// JoinDiagramMessage asks to join a diagram's collaboration room
type JoinDiagramMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
}

func (m JoinDiagramMessage) GetMessageType() MessageType { return m.MessageType }

func (m JoinDiagramMessage) Validate() error {
	if m.MessageType != MessageTypeJoinDiagram {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeJoinDiagram, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	return nil
}

// LeaveDiagramMessage asks to leave a diagram's collaboration room
type LeaveDiagramMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
}

func (m LeaveDiagramMessage) GetMessageType() MessageType { return m.MessageType }

func (m LeaveDiagramMessage) Validate() error {
	if m.MessageType != MessageTypeLeaveDiagram {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLeaveDiagram, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	return nil
}

// ElementAddMessage introduces a new diagram element. Add operations are
// never lock-gated: a new element has no prior lock.
type ElementAddMessage struct {
	MessageType MessageType     `json:"message_type"`
	DiagramID   string          `json:"diagram_id"`
	Element     json.RawMessage `json:"element"`
}

func (m ElementAddMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementAddMessage) Validate() error {
	if m.MessageType != MessageTypeElementAdd {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementAdd, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	if _, err := m.ElementID(); err != nil {
		return err
	}
	return nil
}

// ElementID extracts the element identifier from the raw element payload.
// The engine treats element bodies as opaque aside from their id.
func (m ElementAddMessage) ElementID() (string, error) {
	if len(m.Element) == 0 {
		return "", fmt.Errorf("element is required")
	}
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(m.Element, &envelope); err != nil {
		return "", fmt.Errorf("element must be a JSON object: %w", err)
	}
	if envelope.ID == "" {
		return "", fmt.Errorf("element.id is required")
	}
	return envelope.ID, nil
}

// ElementUpdateMessage modifies an existing element; gated on the Lock Table
type ElementUpdateMessage struct {
	MessageType MessageType     `json:"message_type"`
	DiagramID   string          `json:"diagram_id"`
	ElementID   string          `json:"element_id"`
	Changes     json.RawMessage `json:"changes"`
}

func (m ElementUpdateMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementUpdateMessage) Validate() error {
	if m.MessageType != MessageTypeElementUpdate {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementUpdate, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	if len(m.Changes) == 0 {
		return fmt.Errorf("changes is required")
	}
	return nil
}

// ElementDeleteMessage removes an element; gated on the Lock Table and
// retires any lock on the element as part of the delete
type ElementDeleteMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
	ElementID   string      `json:"element_id"`
}

func (m ElementDeleteMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementDeleteMessage) Validate() error {
	if m.MessageType != MessageTypeElementDelete {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementDelete, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	return nil
}

// LockAcquireMessage requests an exclusive edit lock on one element
type LockAcquireMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
	ElementID   string      `json:"element_id"`
}

func (m LockAcquireMessage) GetMessageType() MessageType { return m.MessageType }

func (m LockAcquireMessage) Validate() error {
	if m.MessageType != MessageTypeLockAcquire {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLockAcquire, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	return nil
}

// LockReleaseMessage releases a lock previously acquired by the sender
type LockReleaseMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
	ElementID   string      `json:"element_id"`
}

func (m LockReleaseMessage) GetMessageType() MessageType { return m.MessageType }

func (m LockReleaseMessage) Validate() error {
	if m.MessageType != MessageTypeLockRelease {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLockRelease, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	return nil
}

// CursorMoveMessage reports the sender's pointer position. Best effort:
// failures never produce an error reply.
type CursorMoveMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
	Position    Position    `json:"position"`
}

func (m CursorMoveMessage) GetMessageType() MessageType { return m.MessageType }

func (m CursorMoveMessage) Validate() error {
	if m.MessageType != MessageTypeCursorMove {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeCursorMove, m.MessageType)
	}
	if m.DiagramID == "" {
		return fmt.Errorf("diagram_id is required")
	}
	return nil
}

// Server-to-room broadcasts

// UsersUpdatedMessage carries the full roster after any membership change.
// Sent to every session in the room, including the one that changed, so
// every client's view converges.
type UsersUpdatedMessage struct {
	MessageType MessageType   `json:"message_type"`
	DiagramID   string        `json:"diagram_id"`
	Users       []Participant `json:"users"`
}

func (m UsersUpdatedMessage) GetMessageType() MessageType { return m.MessageType }

func (m UsersUpdatedMessage) Validate() error {
	if m.MessageType != MessageTypeUsersUpdated {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeUsersUpdated, m.MessageType)
	}
	return nil
}

// ElementAddedMessage announces a new element to the rest of the room
type ElementAddedMessage struct {
	MessageType MessageType     `json:"message_type"`
	DiagramID   string          `json:"diagram_id"`
	Element     json.RawMessage `json:"element"`
	UserID      string          `json:"user_id"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (m ElementAddedMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementAddedMessage) Validate() error {
	if m.MessageType != MessageTypeElementAdded {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementAdded, m.MessageType)
	}
	return nil
}

// ElementUpdatedMessage announces element changes to the rest of the room
type ElementUpdatedMessage struct {
	MessageType MessageType     `json:"message_type"`
	DiagramID   string          `json:"diagram_id"`
	ElementID   string          `json:"element_id"`
	Changes     json.RawMessage `json:"changes"`
	UserID      string          `json:"user_id"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (m ElementUpdatedMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementUpdatedMessage) Validate() error {
	if m.MessageType != MessageTypeElementUpdated {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementUpdated, m.MessageType)
	}
	return nil
}

// ElementDeletedMessage announces an element removal to the rest of the room
type ElementDeletedMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
	ElementID   string      `json:"element_id"`
	UserID      string      `json:"user_id"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (m ElementDeletedMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementDeletedMessage) Validate() error {
	if m.MessageType != MessageTypeElementDeleted {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementDeleted, m.MessageType)
	}
	return nil
}

// ElementLockedMessage announces a newly granted lock to the rest of the room
type ElementLockedMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
	ElementID   string      `json:"element_id"`
	UserID      string      `json:"user_id"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (m ElementLockedMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementLockedMessage) Validate() error {
	if m.MessageType != MessageTypeElementLocked {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementLocked, m.MessageType)
	}
	return nil
}

// ElementUnlockedMessage announces a lock going away, with the reason
type ElementUnlockedMessage struct {
	MessageType MessageType  `json:"message_type"`
	DiagramID   string       `json:"diagram_id"`
	ElementID   string       `json:"element_id"`
	UserID      string       `json:"user_id"`
	Reason      UnlockReason `json:"reason"`
	Timestamp   time.Time    `json:"timestamp"`
}

func (m ElementUnlockedMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementUnlockedMessage) Validate() error {
	if m.MessageType != MessageTypeElementUnlocked {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeElementUnlocked, m.MessageType)
	}
	switch m.Reason {
	case UnlockReasonReleased, UnlockReasonUserDeparted, UnlockReasonTimeout:
	default:
		return fmt.Errorf("invalid unlock reason: %s", m.Reason)
	}
	return nil
}

// CursorMovedMessage relays a peer's pointer position
type CursorMovedMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Position    Position    `json:"position"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (m CursorMovedMessage) GetMessageType() MessageType { return m.MessageType }

func (m CursorMovedMessage) Validate() error {
	if m.MessageType != MessageTypeCursorMoved {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeCursorMoved, m.MessageType)
	}
	return nil
}

// Server-to-sender replies

// JoinAckMessage confirms a join to the requesting session
type JoinAckMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
}

func (m JoinAckMessage) GetMessageType() MessageType { return m.MessageType }

func (m JoinAckMessage) Validate() error {
	if m.MessageType != MessageTypeJoinAck {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeJoinAck, m.MessageType)
	}
	return nil
}

// LeaveAckMessage confirms a leave to the requesting session
type LeaveAckMessage struct {
	MessageType MessageType `json:"message_type"`
	DiagramID   string      `json:"diagram_id"`
}

func (m LeaveAckMessage) GetMessageType() MessageType { return m.MessageType }

func (m LeaveAckMessage) Validate() error {
	if m.MessageType != MessageTypeLeaveAck {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLeaveAck, m.MessageType)
	}
	return nil
}

// LockInfo describes one held lock in the locked_elements snapshot
type LockInfo struct {
	UserID     string    `json:"user_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockedElementsMessage is the current lock snapshot for a diagram, sent
// privately to a session immediately after it joins
type LockedElementsMessage struct {
	MessageType MessageType         `json:"message_type"`
	DiagramID   string              `json:"diagram_id"`
	Locks       map[string]LockInfo `json:"locks"`
}

func (m LockedElementsMessage) GetMessageType() MessageType { return m.MessageType }

func (m LockedElementsMessage) Validate() error {
	if m.MessageType != MessageTypeLockedElements {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLockedElements, m.MessageType)
	}
	return nil
}

// ElementAckMessage confirms an element add/update/delete to its sender
type ElementAckMessage struct {
	MessageType MessageType `json:"message_type"`
	ElementID   string      `json:"element_id"`
	Success     bool        `json:"success"`
}

func (m ElementAckMessage) GetMessageType() MessageType { return m.MessageType }

func (m ElementAckMessage) Validate() error {
	switch m.MessageType {
	case MessageTypeElementAddAck, MessageTypeElementUpdAck, MessageTypeElementDelAck:
	default:
		return fmt.Errorf("invalid message_type for element ack: %s", m.MessageType)
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	return nil
}

// LockGrantedMessage confirms a lock acquire (or idempotent renewal)
type LockGrantedMessage struct {
	MessageType MessageType `json:"message_type"`
	ElementID   string      `json:"element_id"`
}

func (m LockGrantedMessage) GetMessageType() MessageType { return m.MessageType }

func (m LockGrantedMessage) Validate() error {
	if m.MessageType != MessageTypeLockGranted {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLockGranted, m.MessageType)
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	return nil
}

// LockDeniedMessage tells the sender who currently holds the lock
type LockDeniedMessage struct {
	MessageType MessageType `json:"message_type"`
	ElementID   string      `json:"element_id"`
	LockedBy    string      `json:"locked_by"`
}

func (m LockDeniedMessage) GetMessageType() MessageType { return m.MessageType }

func (m LockDeniedMessage) Validate() error {
	if m.MessageType != MessageTypeLockDenied {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLockDenied, m.MessageType)
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	if m.LockedBy == "" {
		return fmt.Errorf("locked_by is required")
	}
	return nil
}

// LockReleaseAckMessage confirms an explicit release to its sender
type LockReleaseAckMessage struct {
	MessageType MessageType `json:"message_type"`
	ElementID   string      `json:"element_id"`
}

func (m LockReleaseAckMessage) GetMessageType() MessageType { return m.MessageType }

func (m LockReleaseAckMessage) Validate() error {
	if m.MessageType != MessageTypeLockReleaseAck {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLockReleaseAck, m.MessageType)
	}
	if m.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	return nil
}

// ErrorMessage is sent only to the offending sender; the connection stays
// open and no other session observes the failure
type ErrorMessage struct {
	MessageType MessageType `json:"message_type"`
	Code        ErrorCode   `json:"code"`
	Message     string      `json:"message"`
	ElementID   string      `json:"element_id,omitempty"`
	LockedBy    string      `json:"locked_by,omitempty"`
}

func (m ErrorMessage) GetMessageType() MessageType { return m.MessageType }

func (m ErrorMessage) Validate() error {
	if m.MessageType != MessageTypeError {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeError, m.MessageType)
	}
	if m.Code == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}
