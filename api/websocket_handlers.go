package api

import (
	"encoding/json"
	"runtime/debug"

	"github.com/umlhub/umlhub/internal/slogging"
)

// MessageHandler defines the interface for handling WebSocket messages
type MessageHandler interface {
	HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error
	MessageType() string
}

// MessageRouter handles routing of WebSocket messages to appropriate handlers
type MessageRouter struct {
	handlers map[string]MessageHandler
}

// NewMessageRouter creates a new message router with default handlers
func NewMessageRouter() *MessageRouter {
	router := &MessageRouter{
		handlers: make(map[string]MessageHandler),
	}

	// Register default handlers
	router.RegisterHandler(&JoinDiagramHandler{})
	router.RegisterHandler(&LeaveDiagramHandler{})
	router.RegisterHandler(&ElementAddHandler{})
	router.RegisterHandler(&ElementUpdateHandler{})
	router.RegisterHandler(&ElementDeleteHandler{})
	router.RegisterHandler(&LockAcquireHandler{})
	router.RegisterHandler(&LockReleaseHandler{})
	router.RegisterHandler(&CursorMoveHandler{})

	return router
}

// RegisterHandler registers a message handler for a specific message type
func (r *MessageRouter) RegisterHandler(handler MessageHandler) {
	r.handlers[handler.MessageType()] = handler
}

// RouteMessage routes a message to the appropriate handler. Faults while
// processing one event are contained: the sender gets an error reply and
// no other connection is disturbed.
func (r *MessageRouter) RouteMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			slogging.Get().Error("PANIC in RouteMessage - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, rec, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while processing message", "")
		}
	}()

	sanitized := slogging.SanitizeLogMessage(string(message))
	slogging.Get().Debug("[wsmsg] Received WebSocket message - session_id=%s user_id=%s message_size=%d raw_message=%s",
		client.SessionID, client.UserID, len(message), sanitized)

	// Parse base message to determine type
	var baseMsg struct {
		MessageType string `json:"message_type"`
	}
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		slogging.Get().Warn("Failed to parse WebSocket message - Session: %s, User: %s, Error: %v",
			client.SessionID, client.UserID, err)
		client.sendError(ErrorCodeInvalidRequest, "Message must be a JSON object with a message_type", "")
		return
	}

	// Server-emitted message types are a protocol violation coming from a client
	switch MessageType(baseMsg.MessageType) {
	case MessageTypeUsersUpdated, MessageTypeElementAdded, MessageTypeElementUpdated,
		MessageTypeElementDeleted, MessageTypeElementLocked, MessageTypeElementUnlocked,
		MessageTypeCursorMoved, MessageTypeLockedElements, MessageTypeError:
		slogging.Get().Warn("Client %s sent server-only message type '%s' - protocol violation",
			client.UserID, baseMsg.MessageType)
		client.sendError(ErrorCodeInvalidRequest, "Message type '"+baseMsg.MessageType+"' is server-only and cannot be sent by clients", "")
		return
	}

	handler, exists := r.handlers[baseMsg.MessageType]
	if !exists {
		slogging.Get().Warn("Unsupported message type '%s' from user %s in session %s",
			baseMsg.MessageType, client.UserID, client.SessionID)
		client.sendError(ErrorCodeUnsupportedType, "Message type '"+baseMsg.MessageType+"' is not supported", "")
		return
	}

	hub.metrics.RecordMessage(baseMsg.MessageType)

	if err := handler.HandleMessage(hub, client, message); err != nil {
		slogging.Get().Warn("Handler rejected message - Session: %s, User: %s, Type: %s, Error: %v",
			client.SessionID, client.UserID, baseMsg.MessageType, err)
	}
}
