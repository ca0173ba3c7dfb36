package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/namtm24/studyblog-chat/telemetry"
)

// MessageStore is the durable side of history. Implementations persist
// append-only rows and read back the most recent ones for a room.
type MessageStore interface {
	Append(ctx context.Context, roomID string, userID *int64, body string, isAdmin bool, at time.Time) error
	Recent(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// appendTimeout bounds the fire-and-forget durable append so a hung database
// does not leak goroutines.
const appendTimeout = 10 * time.Second

// Bridge merges durable history with per-room transient buffers.
//
// The transient buffer is append-only and never proactively trimmed; the
// history limit is applied at read time. Durable and transient sources are
// not de-duplicated against each other, so a message that was both persisted
// and buffered can appear twice after a reconnect. That mirrors the widget's
// long-standing behavior and stays until product decides on a dedup key.
type Bridge struct {
	store MessageStore
	limit int

	mu      sync.Mutex
	buffers map[string][]Message
}

func NewBridge(store MessageStore, limit int) *Bridge {
	return &Bridge{
		store:   store,
		limit:   limit,
		buffers: make(map[string][]Message),
	}
}

// AppendTransient adds a message to a room's in-memory buffer.
func (b *Bridge) AppendTransient(roomID string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers[roomID] = append(b.buffers[roomID], msg)
}

// AppendDurable persists a message asynchronously, best-effort. Failures are
// logged and counted; the caller's delivery path is never blocked or failed.
func (b *Bridge) AppendDurable(roomID string, msg Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := b.store.Append(ctx, roomID, msg.UserID, msg.Body, msg.IsAdmin, msg.Timestamp); err != nil {
			telemetry.IncCounter(telemetry.StorageAppendErrs)
			slog.Error("durable chat append failed", slog.String("room", roomID), slog.Any("err", err), slog.String("component", "chat"))
		}
	}()
}

// HasSystemMessage reports whether the room's buffer already holds a
// system-authored message. Guards the welcome greeting across reconnects.
func (b *Bridge) HasSystemMessage(roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasSystemLocked(roomID)
}

func (b *Bridge) hasSystemLocked(roomID string) bool {
	for _, m := range b.buffers[roomID] {
		if m.IsSystem && m.IsAdmin {
			return true
		}
	}
	return false
}

// AppendWelcomeIfAbsent buffers msg only when the room holds no system
// message yet, and reports whether it appended. Check and append happen
// under one lock so simultaneous joins of the same room cannot both greet.
func (b *Bridge) AppendWelcomeIfAbsent(roomID string, msg Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasSystemLocked(roomID) {
		return false
	}
	b.buffers[roomID] = append(b.buffers[roomID], msg)
	return true
}

// History returns the room's merged view: durable rows (already limited to
// the most recent, oldest first) followed by the transient buffer, trimmed to
// the trailing limit. Recomputed from scratch on every call. A durable read
// failure degrades to the transient buffer alone.
func (b *Bridge) History(ctx context.Context, roomID string) []Message {
	start := time.Now()
	telemetry.IncCounter(telemetry.HistoryLoads)

	durable, err := b.store.Recent(ctx, roomID, b.limit)
	if err != nil {
		telemetry.IncCounter(telemetry.HistoryLoadErrs)
		slog.Error("durable chat history read failed", slog.String("room", roomID), slog.Any("err", err), slog.String("component", "chat"))
		durable = nil
	}

	b.mu.Lock()
	buffered := b.buffers[roomID]
	merged := make([]Message, 0, len(durable)+len(buffered))
	merged = append(merged, durable...)
	merged = append(merged, buffered...)
	b.mu.Unlock()

	if len(merged) > b.limit {
		merged = merged[len(merged)-b.limit:]
	}
	if telemetry.HistoryLoadDuration != nil {
		telemetry.HistoryLoadDuration.Observe(time.Since(start).Seconds())
	}
	return merged
}

// Limit returns the configured history limit.
func (b *Bridge) Limit() int { return b.limit }
