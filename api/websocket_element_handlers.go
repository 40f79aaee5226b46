package api

import (
	"encoding/json"
	"runtime/debug"

	"github.com/umlhub/umlhub/internal/slogging"
)

// ElementAddHandler handles element_add messages. Adds are never
// lock-gated: a new element has no prior lock.
type ElementAddHandler struct{}

// MessageType returns the message type this handler processes
func (h *ElementAddHandler) MessageType() string {
	return string(MessageTypeElementAdd)
}

// HandleMessage processes an element add
func (h *ElementAddHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in ElementAddHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while adding element", "")
		}
	}()

	var msg ElementAddMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.sendError(ErrorCodeInvalidRequest, "Malformed element_add message", "")
		return err
	}
	if err := msg.Validate(); err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	elementID, err := msg.ElementID()
	if err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	hub.AddElement(client, msg, elementID)
	return nil
}

// ElementUpdateHandler handles element_update messages, gated on the
// Lock Table: an element locked by another user cannot be updated.
type ElementUpdateHandler struct{}

// MessageType returns the message type this handler processes
func (h *ElementUpdateHandler) MessageType() string {
	return string(MessageTypeElementUpdate)
}

// HandleMessage processes an element update
func (h *ElementUpdateHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in ElementUpdateHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while updating element", "")
		}
	}()

	var msg ElementUpdateMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.sendError(ErrorCodeInvalidRequest, "Malformed element_update message", "")
		return err
	}
	if err := msg.Validate(); err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	hub.UpdateElement(client, msg)
	return nil
}

// ElementDeleteHandler handles element_delete messages, gated on the
// Lock Table; a successful delete retires any lock on the element.
type ElementDeleteHandler struct{}

// MessageType returns the message type this handler processes
func (h *ElementDeleteHandler) MessageType() string {
	return string(MessageTypeElementDelete)
}

// HandleMessage processes an element delete
func (h *ElementDeleteHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in ElementDeleteHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while deleting element", "")
		}
	}()

	var msg ElementDeleteMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.sendError(ErrorCodeInvalidRequest, "Malformed element_delete message", "")
		return err
	}
	if err := msg.Validate(); err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	hub.DeleteElement(client, msg)
	return nil
}
