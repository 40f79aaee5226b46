package api

import (
	"encoding/json"
	"runtime/debug"

	"github.com/umlhub/umlhub/internal/slogging"
)

// LockAcquireHandler handles lock_acquire messages
type LockAcquireHandler struct{}

// MessageType returns the message type this handler processes
func (h *LockAcquireHandler) MessageType() string {
	return string(MessageTypeLockAcquire)
}

// HandleMessage processes a lock acquisition request
func (h *LockAcquireHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in LockAcquireHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while acquiring lock", "")
		}
	}()

	var msg LockAcquireMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.sendError(ErrorCodeInvalidRequest, "Malformed lock_acquire message", "")
		return err
	}
	if err := msg.Validate(); err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	hub.AcquireLock(client, msg.DiagramID, msg.ElementID)
	return nil
}

// LockReleaseHandler handles lock_release messages
type LockReleaseHandler struct{}

// MessageType returns the message type this handler processes
func (h *LockReleaseHandler) MessageType() string {
	return string(MessageTypeLockRelease)
}

// HandleMessage processes a lock release request
func (h *LockReleaseHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in LockReleaseHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while releasing lock", "")
		}
	}()

	var msg LockReleaseMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.sendError(ErrorCodeInvalidRequest, "Malformed lock_release message", "")
		return err
	}
	if err := msg.Validate(); err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	hub.ReleaseLock(client, msg.DiagramID, msg.ElementID)
	return nil
}
