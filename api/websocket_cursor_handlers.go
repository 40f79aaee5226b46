package api

import (
	"encoding/json"
	"runtime/debug"

	"github.com/umlhub/umlhub/internal/slogging"
)

// CursorMoveHandler handles cursor_move messages. Cursor updates are best
// effort: malformed or misdirected moves are dropped without an error
// reply, so a noisy pointer can never disrupt the connection.
type CursorMoveHandler struct{}

// MessageType returns the message type this handler processes
func (h *CursorMoveHandler) MessageType() string {
	return string(MessageTypeCursorMove)
}

// HandleMessage processes a cursor move
func (h *CursorMoveHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in CursorMoveHandler - Session: %s, User: %s, Error: %v, Stack: %s",
				client.SessionID, client.UserID, r, debug.Stack())
		}
	}()

	var msg CursorMoveMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		// Silent: cursor updates never surface errors
		return nil
	}
	if err := msg.Validate(); err != nil {
		return nil
	}

	hub.MoveCursor(client, msg.DiagramID, msg.Position)
	return nil
}
