package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlhub/umlhub/internal/config"
)

// stubDiagramStore is an in-memory DiagramStore for hub tests
type stubDiagramStore struct {
	existing map[string]bool
	err      error
}

func (s *stubDiagramStore) Exists(ctx context.Context, diagramID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.existing[diagramID], nil
}

func testCollabConfig() config.CollaborationConfig {
	return config.CollaborationConfig{
		LockTimeout:     30 * time.Second,
		SweepInterval:   30 * time.Second,
		ReadDeadline:    60 * time.Second,
		WriteDeadline:   10 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageBytes: 65536,
		SendBufferSize:  256,
	}
}

func newTestHub(diagrams ...string) *WebSocketHub {
	store := &stubDiagramStore{existing: make(map[string]bool)}
	for _, id := range diagrams {
		store.existing[id] = true
	}
	hub := NewWebSocketHub(store, testCollabConfig(), nil)
	hub.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return hub
}

// drainMessages decodes everything currently buffered on a client's Send
// channel, in order
func drainMessages(t *testing.T, client *WebSocketClient) []map[string]interface{} {
	t.Helper()
	var msgs []map[string]interface{}
	for {
		select {
		case data := <-client.Send:
			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &decoded))
			msgs = append(msgs, decoded)
		default:
			return msgs
		}
	}
}

func messageTypes(msgs []map[string]interface{}) []string {
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m["message_type"].(string))
	}
	return types
}

func joinedClient(t *testing.T, hub *WebSocketHub, userID, userName, diagramID string) *WebSocketClient {
	t.Helper()
	client := newTestClient(userID, userName)
	client.Hub = hub
	hub.JoinDiagram(context.Background(), client, diagramID)
	msgs := drainMessages(t, client)
	require.Contains(t, messageTypes(msgs), "join_ack")
	return client
}

func TestHubJoinDiagram(t *testing.T) {
	t.Run("Join Sends Ack Roster And Lock Snapshot", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		client := newTestClient("user-a", "Alice")
		client.Hub = hub

		hub.JoinDiagram(context.Background(), client, "diagram-1")

		msgs := drainMessages(t, client)
		require.Equal(t, []string{"join_ack", "users_updated", "locked_elements"}, messageTypes(msgs))

		roster := msgs[1]["users"].([]interface{})
		require.Len(t, roster, 1)
		entry := roster[0].(map[string]interface{})
		assert.Equal(t, "user-a", entry["user_id"])
		assert.Equal(t, "Alice", entry["name"])
	})

	t.Run("Unknown Diagram Is Rejected", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		client := newTestClient("user-a", "Alice")
		client.Hub = hub

		hub.JoinDiagram(context.Background(), client, "diagram-missing")

		msgs := drainMessages(t, client)
		require.Len(t, msgs, 1)
		assert.Equal(t, "error", msgs[0]["message_type"])
		assert.Equal(t, "not_found", msgs[0]["code"])
		assert.Equal(t, 0, hub.RoomCount())
	})

	t.Run("Storage Failure Surfaces As Internal Error", func(t *testing.T) {
		hub := NewWebSocketHub(&stubDiagramStore{err: errors.New("connection refused")}, testCollabConfig(), nil)
		client := newTestClient("user-a", "Alice")
		client.Hub = hub

		hub.JoinDiagram(context.Background(), client, "diagram-1")

		msgs := drainMessages(t, client)
		require.Len(t, msgs, 1)
		assert.Equal(t, "internal_error", msgs[0]["code"])
	})

	t.Run("Existing Members See Updated Roster", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")

		bob := newTestClient("user-b", "Bob")
		bob.Hub = hub
		hub.JoinDiagram(context.Background(), bob, "diagram-1")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"users_updated"}, messageTypes(aliceMsgs))
		roster := aliceMsgs[0]["users"].([]interface{})
		assert.Len(t, roster, 2)
	})

	t.Run("Joiner Receives Current Lock Snapshot", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)

		bob := newTestClient("user-b", "Bob")
		bob.Hub = hub
		hub.JoinDiagram(context.Background(), bob, "diagram-1")

		msgs := drainMessages(t, bob)
		require.Len(t, msgs, 3)
		locks := msgs[2]["locks"].(map[string]interface{})
		require.Contains(t, locks, "element-1")
		info := locks["element-1"].(map[string]interface{})
		assert.Equal(t, "user-a", info["user_id"])
	})

	t.Run("Joining A Second Diagram Leaves The First", func(t *testing.T) {
		hub := newTestHub("diagram-1", "diagram-2")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		drainMessages(t, alice)

		hub.JoinDiagram(context.Background(), bob, "diagram-2")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"users_updated"}, messageTypes(aliceMsgs))
		roster := aliceMsgs[0]["users"].([]interface{})
		assert.Len(t, roster, 1)

		room, ok := hub.registry.Room("diagram-2")
		require.True(t, ok)
		assert.True(t, room.HasUser("user-b"))
	})
}

func TestHubLeaveDiagram(t *testing.T) {
	t.Run("Leave Releases Locks And Updates Roster", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(bob, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.LeaveDiagram(bob, "diagram-1")

		bobMsgs := drainMessages(t, bob)
		assert.Contains(t, messageTypes(bobMsgs), "leave_ack")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"element_unlocked", "users_updated"}, messageTypes(aliceMsgs))
		assert.Equal(t, "user_departed", aliceMsgs[0]["reason"])
		assert.Equal(t, "element-1", aliceMsgs[0]["element_id"])
		assert.Equal(t, 0, hub.LockCount())
	})

	t.Run("Leave Without Join Is An Error", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		client := newTestClient("user-a", "Alice")
		client.Hub = hub

		hub.LeaveDiagram(client, "diagram-1")

		msgs := drainMessages(t, client)
		require.Len(t, msgs, 1)
		assert.Equal(t, "not_joined", msgs[0]["code"])
	})
}

func TestHubLockLifecycle(t *testing.T) {
	t.Run("Grant Confirms Privately And Broadcasts To Peers", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		drainMessages(t, alice)

		hub.AcquireLock(alice, "diagram-1", "element-1")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"lock_granted"}, messageTypes(aliceMsgs))

		bobMsgs := drainMessages(t, bob)
		require.Equal(t, []string{"element_locked"}, messageTypes(bobMsgs))
		assert.Equal(t, "user-a", bobMsgs[0]["user_id"])
	})

	t.Run("Contention Has Exactly One Winner", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		drainMessages(t, alice)

		hub.AcquireLock(alice, "diagram-1", "element-1")
		hub.AcquireLock(bob, "diagram-1", "element-1")

		bobMsgs := drainMessages(t, bob)
		// element_locked from Alice's grant, then Bob's own denial
		require.Equal(t, []string{"element_locked", "lock_denied"}, messageTypes(bobMsgs))
		assert.Equal(t, "user-a", bobMsgs[1]["locked_by"])
		assert.Equal(t, 1, hub.LockCount())
	})

	t.Run("Renewal Is Invisible To Peers", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.AcquireLock(alice, "diagram-1", "element-1")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"lock_granted"}, messageTypes(aliceMsgs))
		assert.Empty(t, drainMessages(t, bob))
	})

	t.Run("Release Confirms And Broadcasts", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.ReleaseLock(alice, "diagram-1", "element-1")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"lock_release_ack"}, messageTypes(aliceMsgs))

		bobMsgs := drainMessages(t, bob)
		require.Equal(t, []string{"element_unlocked"}, messageTypes(bobMsgs))
		assert.Equal(t, "released", bobMsgs[0]["reason"])
	})

	t.Run("Non-Holder Release Is Rejected", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.ReleaseLock(bob, "diagram-1", "element-1")

		bobMsgs := drainMessages(t, bob)
		require.Len(t, bobMsgs, 1)
		assert.Equal(t, "lock_conflict", bobMsgs[0]["code"])
		assert.Equal(t, "user-a", bobMsgs[0]["locked_by"])
		assert.Equal(t, 1, hub.LockCount())
		assert.Empty(t, drainMessages(t, alice))
	})

	t.Run("Release Of Unlocked Element Reports Not Found", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")

		hub.ReleaseLock(alice, "diagram-1", "element-1")

		msgs := drainMessages(t, alice)
		require.Len(t, msgs, 1)
		assert.Equal(t, "not_found", msgs[0]["code"])
	})

	t.Run("Lock Request Before Join Is Rejected", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		client := newTestClient("user-a", "Alice")
		client.Hub = hub

		hub.AcquireLock(client, "diagram-1", "element-1")

		msgs := drainMessages(t, client)
		require.Len(t, msgs, 1)
		assert.Equal(t, "not_joined", msgs[0]["code"])
		assert.Equal(t, 0, hub.LockCount())
	})
}

func TestHubElementOperations(t *testing.T) {
	t.Run("Add Confirms Sender And Broadcasts Peers", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		drainMessages(t, alice)

		msg := ElementAddMessage{
			MessageType: MessageTypeElementAdd,
			DiagramID:   "diagram-1",
			Element:     json.RawMessage(`{"id":"element-1","shape":"class"}`),
		}
		hub.AddElement(alice, msg, "element-1")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"element_add_ack"}, messageTypes(aliceMsgs))
		assert.Equal(t, true, aliceMsgs[0]["success"])

		bobMsgs := drainMessages(t, bob)
		require.Equal(t, []string{"element_added"}, messageTypes(bobMsgs))
		assert.Equal(t, "user-a", bobMsgs[0]["user_id"])
	})

	t.Run("Add Ignores Locks On The Same ID", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(bob, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		msg := ElementAddMessage{
			MessageType: MessageTypeElementAdd,
			DiagramID:   "diagram-1",
			Element:     json.RawMessage(`{"id":"element-1"}`),
		}
		hub.AddElement(alice, msg, "element-1")

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"element_add_ack"}, messageTypes(aliceMsgs))
	})

	t.Run("Update Blocked By Foreign Lock", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(bob, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.UpdateElement(alice, ElementUpdateMessage{
			MessageType: MessageTypeElementUpdate,
			DiagramID:   "diagram-1",
			ElementID:   "element-1",
			Changes:     json.RawMessage(`{"name":"Renamed"}`),
		})

		aliceMsgs := drainMessages(t, alice)
		require.Len(t, aliceMsgs, 1)
		assert.Equal(t, "lock_conflict", aliceMsgs[0]["code"])
		assert.Equal(t, "user-b", aliceMsgs[0]["locked_by"])
		assert.Empty(t, drainMessages(t, bob))
	})

	t.Run("Holder Updates Through Own Lock", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.UpdateElement(alice, ElementUpdateMessage{
			MessageType: MessageTypeElementUpdate,
			DiagramID:   "diagram-1",
			ElementID:   "element-1",
			Changes:     json.RawMessage(`{"name":"Renamed"}`),
		})

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"element_update_ack"}, messageTypes(aliceMsgs))

		bobMsgs := drainMessages(t, bob)
		require.Equal(t, []string{"element_updated"}, messageTypes(bobMsgs))
	})

	t.Run("Unlocked Element Updates Freely", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")

		hub.UpdateElement(alice, ElementUpdateMessage{
			MessageType: MessageTypeElementUpdate,
			DiagramID:   "diagram-1",
			ElementID:   "element-1",
			Changes:     json.RawMessage(`{"x":5}`),
		})

		msgs := drainMessages(t, alice)
		require.Equal(t, []string{"element_update_ack"}, messageTypes(msgs))
	})

	t.Run("Delete Retires The Lock Silently", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.DeleteElement(alice, ElementDeleteMessage{
			MessageType: MessageTypeElementDelete,
			DiagramID:   "diagram-1",
			ElementID:   "element-1",
		})

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"element_delete_ack"}, messageTypes(aliceMsgs))

		// Peers see the delete only; the lock goes away without a
		// separate unlock broadcast
		bobMsgs := drainMessages(t, bob)
		require.Equal(t, []string{"element_deleted"}, messageTypes(bobMsgs))
		assert.Equal(t, 0, hub.LockCount())
	})

	t.Run("Delete Blocked By Foreign Lock", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(bob, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.DeleteElement(alice, ElementDeleteMessage{
			MessageType: MessageTypeElementDelete,
			DiagramID:   "diagram-1",
			ElementID:   "element-1",
		})

		aliceMsgs := drainMessages(t, alice)
		require.Len(t, aliceMsgs, 1)
		assert.Equal(t, "lock_conflict", aliceMsgs[0]["code"])
		assert.Equal(t, 1, hub.LockCount())
	})
}

func TestHubMoveCursor(t *testing.T) {
	t.Run("Cursor Relays To Peers Only", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		drainMessages(t, alice)

		hub.MoveCursor(alice, "diagram-1", Position{X: 100, Y: 250})

		// The mover gets nothing back, not even an ack
		assert.Empty(t, drainMessages(t, alice))

		bobMsgs := drainMessages(t, bob)
		require.Equal(t, []string{"cursor_moved"}, messageTypes(bobMsgs))
		assert.Equal(t, "user-a", bobMsgs[0]["user_id"])
		assert.Equal(t, "Alice", bobMsgs[0]["name"])
		pos := bobMsgs[0]["position"].(map[string]interface{})
		assert.Equal(t, 100.0, pos["x"])
		assert.Equal(t, 250.0, pos["y"])
	})

	t.Run("Not Joined Is Silently Dropped", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		client := newTestClient("user-a", "Alice")
		client.Hub = hub

		hub.MoveCursor(client, "diagram-1", Position{X: 1, Y: 2})

		assert.Empty(t, drainMessages(t, client))
		assert.Equal(t, 0, hub.cursors.Len())
	})
}

func TestHubDisconnect(t *testing.T) {
	t.Run("Disconnect Releases Locks And Notifies Peers", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(bob, "diagram-1", "element-1")
		hub.MoveCursor(bob, "diagram-1", Position{X: 5, Y: 5})
		drainMessages(t, alice)
		drainMessages(t, bob)

		hub.Disconnect(bob)

		aliceMsgs := drainMessages(t, alice)
		require.Equal(t, []string{"element_unlocked", "users_updated"}, messageTypes(aliceMsgs))
		assert.Equal(t, "user_departed", aliceMsgs[0]["reason"])
		assert.Equal(t, 0, hub.LockCount())
		assert.Equal(t, 0, hub.cursors.Len())
	})

	t.Run("Second Connection Survives A Disconnect", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		laptop := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		tablet := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		hub.AcquireLock(laptop, "diagram-1", "element-1")
		drainMessages(t, laptop)
		drainMessages(t, tablet)

		hub.Disconnect(laptop)

		// The user is still present, so the lock stays held
		assert.Equal(t, 1, hub.LockCount())
		room, ok := hub.registry.Room("diagram-1")
		require.True(t, ok)
		assert.True(t, room.HasUser("user-a"))
	})
}

func TestHubSweepExpiredLocks(t *testing.T) {
	t.Run("Stale Lock Is Reclaimed And Broadcast", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		hub.now = func() time.Time { return base }

		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		bob := joinedClient(t, hub, "user-b", "Bob", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)
		drainMessages(t, bob)

		reclaimed := hub.SweepExpiredLocks(base.Add(31 * time.Second))
		assert.Equal(t, 1, reclaimed)
		assert.Equal(t, 0, hub.LockCount())

		// Holder and peers alike learn the lock timed out
		for _, client := range []*WebSocketClient{alice, bob} {
			msgs := drainMessages(t, client)
			require.Equal(t, []string{"element_unlocked"}, messageTypes(msgs))
			assert.Equal(t, "timeout", msgs[0]["reason"])
			assert.Equal(t, "user-a", msgs[0]["user_id"])
		}
	})

	t.Run("Fresh Lock Survives The Sweep", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		hub.now = func() time.Time { return base }

		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)

		reclaimed := hub.SweepExpiredLocks(base.Add(10 * time.Second))
		assert.Equal(t, 0, reclaimed)
		assert.Equal(t, 1, hub.LockCount())
		assert.Empty(t, drainMessages(t, alice))
	})

	t.Run("Renewal Extends The Lease", func(t *testing.T) {
		hub := newTestHub("diagram-1")
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		hub.now = func() time.Time { return base }

		alice := joinedClient(t, hub, "user-a", "Alice", "diagram-1")
		hub.AcquireLock(alice, "diagram-1", "element-1")

		hub.now = func() time.Time { return base.Add(25 * time.Second) }
		hub.AcquireLock(alice, "diagram-1", "element-1")
		drainMessages(t, alice)

		reclaimed := hub.SweepExpiredLocks(base.Add(40 * time.Second))
		assert.Equal(t, 0, reclaimed)
		assert.Equal(t, 1, hub.LockCount())
	})
}
