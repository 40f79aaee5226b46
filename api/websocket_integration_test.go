package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlhub/umlhub/auth"
	"github.com/umlhub/umlhub/internal/config"
)

type fakeUserStore struct {
	users map[string]*auth.User
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (*auth.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return user, nil
}

type wsTestEnv struct {
	server  *httptest.Server
	service *auth.Service
	hub     *WebSocketHub
}

func newWSTestEnv(t *testing.T, users ...*auth.User) *wsTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &fakeUserStore{users: make(map[string]*auth.User)}
	for _, u := range users {
		store.users[u.ID] = u
	}

	jwtCfg := config.JWTConfig{Secret: "integration-test-secret", ExpirationSeconds: 3600, SigningMethod: "HS256"}
	service := auth.NewService(jwtCfg, store, nil)
	middleware := auth.NewMiddleware(service)

	hub := NewWebSocketHub(&stubDiagramStore{existing: map[string]bool{"diagram-1": true}}, testCollabConfig(), nil)

	router := gin.New()
	router.GET("/ws/diagrams/:diagram_id", middleware.AuthRequired(), hub.HandleWS)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsTestEnv{server: server, service: service, hub: hub}
}

func (e *wsTestEnv) dial(t *testing.T, user auth.User) *websocket.Conn {
	t.Helper()

	token, err := e.service.GenerateToken(user)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/diagrams/diagram-1?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var decoded map[string]interface{}
	require.NoError(t, conn.ReadJSON(&decoded))
	return decoded
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func join(t *testing.T, conn *websocket.Conn, diagramID string) {
	t.Helper()
	sendFrame(t, conn, map[string]interface{}{"message_type": "join_diagram", "diagram_id": diagramID})
	require.Equal(t, "join_ack", readFrame(t, conn)["message_type"])
	require.Equal(t, "users_updated", readFrame(t, conn)["message_type"])
	require.Equal(t, "locked_elements", readFrame(t, conn)["message_type"])
}

func integrationUser(id, username, first string) auth.User {
	return auth.User{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		FirstName: first,
		IsActive:  true,
	}
}

func TestWebSocketHandshake(t *testing.T) {
	alice := integrationUser("11111111-1111-1111-1111-111111111111", "alice", "Alice")

	t.Run("Authenticated Dial Succeeds", func(t *testing.T) {
		env := newWSTestEnv(t, &alice)
		conn := env.dial(t, alice)
		join(t, conn, "diagram-1")
		assert.Equal(t, 1, env.hub.ConnectionCount())
	})

	t.Run("Missing Token Is Refused", func(t *testing.T) {
		env := newWSTestEnv(t, &alice)

		wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/diagrams/diagram-1"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Nil(t, conn)
	})

	t.Run("Unknown User Is Refused", func(t *testing.T) {
		env := newWSTestEnv(t) // empty user store
		token, err := env.service.GenerateToken(alice)
		require.NoError(t, err)

		wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/diagrams/diagram-1?token=" + token
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestWebSocketCollaborationFlow(t *testing.T) {
	alice := integrationUser("11111111-1111-1111-1111-111111111111", "alice", "Alice")
	bob := integrationUser("22222222-2222-2222-2222-222222222222", "bob", "Bob")

	t.Run("Lock Contention Over Live Sockets", func(t *testing.T) {
		env := newWSTestEnv(t, &alice, &bob)

		aliceConn := env.dial(t, alice)
		join(t, aliceConn, "diagram-1")

		bobConn := env.dial(t, bob)
		join(t, bobConn, "diagram-1")

		// Alice sees Bob arrive
		require.Equal(t, "users_updated", readFrame(t, aliceConn)["message_type"])

		acquire := map[string]interface{}{
			"message_type": "lock_acquire",
			"diagram_id":   "diagram-1",
			"element_id":   "element-1",
		}
		sendFrame(t, aliceConn, acquire)
		require.Equal(t, "lock_granted", readFrame(t, aliceConn)["message_type"])

		locked := readFrame(t, bobConn)
		require.Equal(t, "element_locked", locked["message_type"])
		assert.Equal(t, alice.ID, locked["user_id"])

		sendFrame(t, bobConn, acquire)
		denied := readFrame(t, bobConn)
		require.Equal(t, "lock_denied", denied["message_type"])
		assert.Equal(t, alice.ID, denied["locked_by"])
	})

	t.Run("Disconnect Releases Locks And Roster", func(t *testing.T) {
		env := newWSTestEnv(t, &alice, &bob)

		aliceConn := env.dial(t, alice)
		join(t, aliceConn, "diagram-1")

		bobConn := env.dial(t, bob)
		join(t, bobConn, "diagram-1")
		require.Equal(t, "users_updated", readFrame(t, aliceConn)["message_type"])

		sendFrame(t, bobConn, map[string]interface{}{
			"message_type": "lock_acquire",
			"diagram_id":   "diagram-1",
			"element_id":   "element-1",
		})
		require.Equal(t, "lock_granted", readFrame(t, bobConn)["message_type"])
		require.Equal(t, "element_locked", readFrame(t, aliceConn)["message_type"])

		require.NoError(t, bobConn.Close())

		unlocked := readFrame(t, aliceConn)
		require.Equal(t, "element_unlocked", unlocked["message_type"])
		assert.Equal(t, "user_departed", unlocked["reason"])

		roster := readFrame(t, aliceConn)
		require.Equal(t, "users_updated", roster["message_type"])
		assert.Len(t, roster["users"].([]interface{}), 1)
	})

	t.Run("Cursor Moves Flow Between Peers", func(t *testing.T) {
		env := newWSTestEnv(t, &alice, &bob)

		aliceConn := env.dial(t, alice)
		join(t, aliceConn, "diagram-1")

		bobConn := env.dial(t, bob)
		join(t, bobConn, "diagram-1")
		require.Equal(t, "users_updated", readFrame(t, aliceConn)["message_type"])

		sendFrame(t, aliceConn, map[string]interface{}{
			"message_type": "cursor_move",
			"diagram_id":   "diagram-1",
			"position":     map[string]float64{"x": 120, "y": 80},
		})

		moved := readFrame(t, bobConn)
		require.Equal(t, "cursor_moved", moved["message_type"])
		assert.Equal(t, alice.ID, moved["user_id"])
		assert.Equal(t, "Alice", moved["name"])
	})
}
