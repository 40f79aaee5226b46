package api

import "time"

// CursorPosition is one user's last-reported pointer position. Purely
// ephemeral: overwritten on every move, deleted on disconnect, never
// persisted or locked.
type CursorPosition struct {
	UserID    string
	DiagramID string
	Position  Position
	UpdatedAt time.Time
}

// CursorTracker maps each connected user to their latest cursor position.
// Last write wins; no ordering guarantee beyond per-user monotonic
// replacement. Not safe for concurrent use: the hub serializes access.
type CursorTracker struct {
	cursors map[string]CursorPosition
}

// NewCursorTracker creates an empty tracker
func NewCursorTracker() *CursorTracker {
	return &CursorTracker{
		cursors: make(map[string]CursorPosition),
	}
}

// Move unconditionally overwrites the user's position
func (t *CursorTracker) Move(userID, diagramID string, pos Position, now time.Time) {
	t.cursors[userID] = CursorPosition{
		UserID:    userID,
		DiagramID: diagramID,
		Position:  pos,
		UpdatedAt: now,
	}
}

// Get returns the user's last-reported position, if any
func (t *CursorTracker) Get(userID string) (CursorPosition, bool) {
	cursor, ok := t.cursors[userID]
	return cursor, ok
}

// Remove deletes the user's cursor state
func (t *CursorTracker) Remove(userID string) {
	delete(t.cursors, userID)
}

// Len returns the number of tracked cursors
func (t *CursorTracker) Len() int {
	return len(t.cursors)
}
