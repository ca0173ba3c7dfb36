package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one chat line, in the wire shape the widget and the admin
// console consume. Durable rows and transient in-memory messages share it.
type Message struct {
	ID         string    `json:"id"`
	UserID     *int64    `json:"userId,omitempty"`
	UserName   string    `json:"userName,omitempty"`
	UserAvatar string    `json:"userAvatar,omitempty"`
	Body       string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	IsAdmin    bool      `json:"isAdmin"`
	IsSystem   bool      `json:"isSystem,omitempty"`
}

// NewMessageID builds an id for a live message: timestamp plus a short random
// suffix, monotonic-ish and unique enough for transient ordering.
func NewMessageID(at time.Time) string {
	return fmt.Sprintf("msg-%d-%s", at.UnixMilli(), uuid.NewString()[:8])
}

// WelcomeMessageID builds the id of a synthesized greeting.
func WelcomeMessageID(at time.Time) string {
	return fmt.Sprintf("welcome-%d", at.UnixMilli())
}

// DurableMessageID builds the id of a message loaded from the durable store.
func DurableMessageID(rowID int64) string {
	return fmt.Sprintf("db-%d", rowID)
}
