package api

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/umlhub/umlhub/internal/slogging"
)

// JoinDiagramHandler handles join_diagram messages
type JoinDiagramHandler struct{}

// MessageType returns the message type this handler processes
func (h *JoinDiagramHandler) MessageType() string {
	return string(MessageTypeJoinDiagram)
}

// HandleMessage processes a join request: the diagram must exist at the
// storage collaborator before the session is admitted to the room
func (h *JoinDiagramHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in JoinDiagramHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while joining diagram", "")
		}
	}()

	var msg JoinDiagramMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.sendError(ErrorCodeInvalidRequest, "Malformed join_diagram message", "")
		return err
	}
	if err := msg.Validate(); err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	hub.JoinDiagram(context.Background(), client, msg.DiagramID)
	return nil
}

// LeaveDiagramHandler handles leave_diagram messages
type LeaveDiagramHandler struct{}

// MessageType returns the message type this handler processes
func (h *LeaveDiagramHandler) MessageType() string {
	return string(MessageTypeLeaveDiagram)
}

// HandleMessage processes an explicit leave request
func (h *LeaveDiagramHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in LeaveDiagramHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
			client.sendError(ErrorCodeInternal, "Internal error while leaving diagram", "")
		}
	}()

	var msg LeaveDiagramMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.sendError(ErrorCodeInvalidRequest, "Malformed leave_diagram message", "")
		return err
	}
	if err := msg.Validate(); err != nil {
		client.sendError(ErrorCodeInvalidRequest, err.Error(), "")
		return err
	}

	hub.LeaveDiagram(client, msg.DiagramID)
	return nil
}
