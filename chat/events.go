package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound event types.
const (
	EventJoinChat       = "join-chat"
	EventSendMessage    = "send-message"
	EventJoinUserRoom   = "join-user-room"
	EventRequestHistory = "request-chat-history"
	EventAdminDirect    = "admin-direct-message"
	EventTyping         = "typing"
	EventRequestAuthors = "request-users-with-messages"
)

// Outbound event types.
const (
	EventChatMessage    = "chat-message"
	EventChatHistory    = "chat-history"
	EventUserOnline     = "user-online"
	EventUserOffline    = "user-offline"
	EventNewUserMessage = "new-user-message"
	EventUserTyping     = "user-typing"
	EventAdminMessage   = "admin-message"
	EventAuthors        = "users-with-messages"
)

// Envelope frames every event in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an outbound event into its wire frame.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// Inbound payloads. Each is a closed variant with explicit validation; a
// payload that fails validation is dropped server-side with a log line and
// nothing is sent back (the protocol has no error channel).

type JoinChatPayload struct {
	Token string `json:"token,omitempty"`
}

type SendMessagePayload struct {
	Message      string `json:"message"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

func (p *SendMessagePayload) Validate() error {
	if p.Message == "" {
		return errors.New("send-message: missing message")
	}
	return nil
}

type JoinUserRoomPayload struct {
	RoomID string `json:"chatRoomId"`
}

func (p *JoinUserRoomPayload) Validate() error {
	if p.RoomID == "" {
		return errors.New("join-user-room: missing chatRoomId")
	}
	return nil
}

type RequestHistoryPayload struct {
	RoomID string `json:"chatRoomId,omitempty"`
}

type AdminDirectPayload struct {
	TargetUserID string `json:"targetUserId"`
	Message      string `json:"message"`
	AdminName    string `json:"adminName"`
}

func (p *AdminDirectPayload) Validate() error {
	if p.TargetUserID == "" || p.Message == "" || p.AdminName == "" {
		return errors.New("admin-direct-message: missing targetUserId, message, or adminName")
	}
	return nil
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// Outbound payloads.

type HistoryPayload struct {
	RoomID   string    `json:"chatRoomId"`
	Messages []Message `json:"messages"`
}

// PresencePayload carries user-online/user-offline notices to operators.
// RoomID is set for online notices only.
type PresencePayload struct {
	UserID     *int64 `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
	RoomID     string `json:"chatRoomId,omitempty"`
}

// NewUserMessagePayload is the lightweight notice sent to the operator room
// when a visitor speaks, so idle operators see activity without being joined
// to that visitor's room.
type NewUserMessagePayload struct {
	UserID     *int64 `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
	Message    string `json:"message"`
	RoomID     string `json:"chatRoomId"`
}

type TypingNoticePayload struct {
	UserID   *int64 `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type AdminMessagePayload struct {
	Message   string    `json:"message"`
	AdminName string    `json:"adminName"`
	Timestamp time.Time `json:"timestamp"`
}

// Author is one distinct visitor with durable messages, for the admin
// console's conversation list.
type Author struct {
	UserID     int64  `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
}
