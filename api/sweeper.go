package api

import (
	"context"
	"time"

	"github.com/umlhub/umlhub/internal/slogging"
)

// SweepExpiredLocks force-releases every lock older than the configured
// timeout and notifies each lock's room with reason "timeout". Stale
// locks are reclaimed whether or not their holder is still connected:
// this bounds the damage of a client that takes a lock and then stalls.
// Returns the number of locks reclaimed.
func (h *WebSocketHub) SweepExpiredLocks(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	expired := h.locks.SweepExpired(now, h.config.LockTimeout)
	for _, lock := range expired {
		slogging.Get().Info("Lock expired - Element: %s, Diagram: %s, Holder: %s, Age: %v",
			lock.ElementID, lock.DiagramID, lock.UserID, lock.Age(now))

		room, ok := h.registry.Room(lock.DiagramID)
		if !ok {
			continue
		}
		h.broadcastToRoom(room, nil, ElementUnlockedMessage{
			MessageType: MessageTypeElementUnlocked,
			DiagramID:   lock.DiagramID,
			ElementID:   lock.ElementID,
			UserID:      lock.UserID,
			Reason:      UnlockReasonTimeout,
			Timestamp:   now.UTC(),
		})
	}

	if len(expired) > 0 {
		h.metrics.RecordExpiredLocks(len(expired))
		h.updateGaugesLocked()
	}
	return len(expired)
}

// StartLockSweeper runs the expiry sweep at the configured interval for
// the lifetime of the context. Lock state is in-memory only, so there is
// no catch-up for sweeps missed across a restart.
func (h *WebSocketHub) StartLockSweeper(ctx context.Context) {
	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	slogging.Get().Info("Lock sweeper started - interval: %v, timeout: %v",
		h.config.SweepInterval, h.config.LockTimeout)

	for {
		select {
		case <-ticker.C:
			if n := h.SweepExpiredLocks(h.now()); n > 0 {
				slogging.Get().Info("Lock sweep reclaimed %d stale locks", n)
			}
		case <-ctx.Done():
			slogging.Get().Info("Lock sweeper stopped")
			return
		}
	}
}
