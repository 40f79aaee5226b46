package api

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/umlhub/umlhub/internal/slogging"
)

// sendMessage marshals a protocol message onto the client's outbound
// channel. A client whose buffer is full has stalled; the frame is
// dropped rather than blocking the event-processing path, and the stall
// is logged. The read deadline will eventually reap a dead peer.
func (c *WebSocketClient) sendMessage(msg AsyncMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slogging.Get().Error("Failed to marshal outbound message - Session: %s, Type: %s, Error: %v",
			c.SessionID, msg.GetMessageType(), err)
		return
	}

	select {
	case c.Send <- data:
	default:
		slogging.Get().Warn("Dropping outbound message for stalled client - Session: %s, User: %s, Type: %s",
			c.SessionID, c.UserID, msg.GetMessageType())
	}
}

// errorOption customizes an error reply
type errorOption func(*ErrorMessage)

// withLockedBy attaches the conflicting holder to a lock error
func withLockedBy(userID string) errorOption {
	return func(m *ErrorMessage) {
		m.LockedBy = userID
	}
}

// sendError sends an error reply to this client only. Errors never reach
// other sessions and never close the connection.
func (c *WebSocketClient) sendError(code ErrorCode, message, elementID string, opts ...errorOption) {
	errMsg := ErrorMessage{
		MessageType: MessageTypeError,
		Code:        code,
		Message:     message,
		ElementID:   elementID,
	}
	for _, opt := range opts {
		opt(&errMsg)
	}
	c.sendMessage(errMsg)
}

// closeSend closes the outbound channel exactly once
func (c *WebSocketClient) closeSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// ReadPump pumps messages from the websocket into the hub's router. It
// owns the connection's read side: deadlines, pong handling, and teardown
// on any read error.
func (c *WebSocketClient) ReadPump() {
	defer func() {
		c.Hub.Disconnect(c)
		if err := c.Conn.Close(); err != nil {
			slogging.Get().Debug("Error closing connection - Session: %s, Error: %v", c.SessionID, err)
		}
	}()

	cfg := c.Hub.config
	c.Conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadDeadline))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadDeadline))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slogging.Get().Warn("WebSocket read error - Session: %s, User: %s, Error: %v",
					c.SessionID, c.UserID, err)
			}
			break
		}

		c.Hub.router.RouteMessage(c.Hub, c, message)
	}
}

// WritePump pumps frames from the Send channel to the websocket and
// keeps the connection alive with periodic pings
func (c *WebSocketClient) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		if err := c.Conn.Close(); err != nil {
			slogging.Get().Debug("Error closing connection - Session: %s, Error: %v", c.SessionID, err)
		}
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteDeadline))
			if !ok {
				// Hub closed the channel
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
