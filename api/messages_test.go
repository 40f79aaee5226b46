package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinDiagramMessage(t *testing.T) {
	t.Run("Valid Message", func(t *testing.T) {
		msg := JoinDiagramMessage{
			MessageType: MessageTypeJoinDiagram,
			DiagramID:   "diagram-1",
		}
		assert.NoError(t, msg.Validate())
		assert.Equal(t, MessageTypeJoinDiagram, msg.GetMessageType())
	})

	t.Run("Missing Diagram ID", func(t *testing.T) {
		msg := JoinDiagramMessage{MessageType: MessageTypeJoinDiagram}
		err := msg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "diagram_id is required")
	})

	t.Run("Wrong Message Type", func(t *testing.T) {
		msg := JoinDiagramMessage{MessageType: "bogus", DiagramID: "diagram-1"}
		err := msg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid message_type")
	})
}

func TestElementAddMessageElementID(t *testing.T) {
	t.Run("ID Extracted From Payload", func(t *testing.T) {
		msg := ElementAddMessage{
			MessageType: MessageTypeElementAdd,
			DiagramID:   "diagram-1",
			Element:     json.RawMessage(`{"id":"element-1","shape":"class","name":"Invoice"}`),
		}
		require.NoError(t, msg.Validate())

		id, err := msg.ElementID()
		require.NoError(t, err)
		assert.Equal(t, "element-1", id)
	})

	t.Run("Missing Element", func(t *testing.T) {
		msg := ElementAddMessage{MessageType: MessageTypeElementAdd, DiagramID: "diagram-1"}
		err := msg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "element is required")
	})

	t.Run("Element Without ID", func(t *testing.T) {
		msg := ElementAddMessage{
			MessageType: MessageTypeElementAdd,
			DiagramID:   "diagram-1",
			Element:     json.RawMessage(`{"shape":"actor"}`),
		}
		err := msg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "element.id is required")
	})

	t.Run("Element Not An Object", func(t *testing.T) {
		msg := ElementAddMessage{
			MessageType: MessageTypeElementAdd,
			DiagramID:   "diagram-1",
			Element:     json.RawMessage(`"just a string"`),
		}
		_, err := msg.ElementID()
		assert.Error(t, err)
	})
}

func TestElementUnlockedMessageReasons(t *testing.T) {
	for _, reason := range []UnlockReason{UnlockReasonReleased, UnlockReasonUserDeparted, UnlockReasonTimeout} {
		msg := ElementUnlockedMessage{
			MessageType: MessageTypeElementUnlocked,
			DiagramID:   "diagram-1",
			ElementID:   "element-1",
			UserID:      "user-1",
			Reason:      reason,
		}
		assert.NoError(t, msg.Validate(), "reason %s", reason)
	}

	msg := ElementUnlockedMessage{
		MessageType: MessageTypeElementUnlocked,
		Reason:      "evicted",
	}
	err := msg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid unlock reason")
}

func TestLockDeniedMessageValidate(t *testing.T) {
	msg := LockDeniedMessage{
		MessageType: MessageTypeLockDenied,
		ElementID:   "element-1",
		LockedBy:    "user-2",
	}
	assert.NoError(t, msg.Validate())

	msg.LockedBy = ""
	err := msg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "locked_by is required")
}

func TestErrorMessageSerialization(t *testing.T) {
	msg := ErrorMessage{
		MessageType: MessageTypeError,
		Code:        ErrorCodeLockConflict,
		Message:     "Element is locked by another user",
		ElementID:   "element-1",
		LockedBy:    "user-2",
	}
	require.NoError(t, msg.Validate())

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded["message_type"])
	assert.Equal(t, "lock_conflict", decoded["code"])
	assert.Equal(t, "user-2", decoded["locked_by"])

	// Optional fields stay off the wire when empty
	bare := ErrorMessage{MessageType: MessageTypeError, Code: ErrorCodeNotJoined, Message: "nope"}
	data, err = json.Marshal(bare)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "element_id")
	assert.NotContains(t, string(data), "locked_by")
}
