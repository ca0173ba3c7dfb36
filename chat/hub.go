package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/namtm24/studyblog-chat/auth"
	"github.com/namtm24/studyblog-chat/telemetry"
)

// Session is one live connection's delivery endpoint. Send must not block:
// it enqueues onto the connection's outbound buffer and reports false when
// the buffer is full or the connection is gone.
type Session interface {
	ID() string
	Send(frame []byte) bool
}

// CredentialResolver turns an opaque credential into an identity, or nil for
// anonymous. Implemented by auth.Resolver.
type CredentialResolver interface {
	Resolve(ctx context.Context, credential string) *auth.Identity
}

// AuthorDirectory lists distinct visitors with durable messages, for the
// admin console.
type AuthorDirectory interface {
	ChatAuthors(ctx context.Context) ([]Author, error)
}

// Options carries the hub's chat-behavior knobs.
type Options struct {
	// WelcomeTemplate is a fmt template with one %s verb for the visitor's
	// display name.
	WelcomeTemplate string
	// GuestName is the display name for anonymous visitors.
	GuestName string
}

// Hub owns the relay: it tracks sessions, applies the targeting rules for
// every inbound event, and fans frames out to rooms and to the operator pool.
type Hub struct {
	resolver CredentialResolver
	registry *Registry
	rooms    *Rooms
	bridge   *Bridge
	authors  AuthorDirectory
	opts     Options

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewHub(resolver CredentialResolver, bridge *Bridge, authors AuthorDirectory, opts Options) *Hub {
	if opts.WelcomeTemplate == "" {
		opts.WelcomeTemplate = "Hello %s! How can I help you today?"
	}
	if opts.GuestName == "" {
		opts.GuestName = "Guest"
	}
	return &Hub{
		resolver: resolver,
		registry: NewRegistry(),
		rooms:    NewRooms(),
		bridge:   bridge,
		authors:  authors,
		opts:     opts,
		sessions: make(map[string]Session),
	}
}

// Connect admits a session. The connection is live from here on but carries
// no presence until its join-chat handshake completes; events from an
// unjoined connection are ignored.
func (h *Hub) Connect(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	n := len(h.sessions)
	h.mu.Unlock()
	telemetry.SetGauge(telemetry.ConnectionsGauge, float64(n))
	slog.Debug("connection admitted", slog.String("conn", s.ID()), slog.Int("total", n), slog.String("component", "chat"))
}

// Disconnect tears a connection down. Safe to call more than once and for
// connections that never joined: cleanup tolerates a missing registry entry.
// A departing visitor triggers one user-offline notice to each operator
// connection; rooms are left in place.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	_, known := h.sessions[connID]
	delete(h.sessions, connID)
	n := len(h.sessions)
	h.mu.Unlock()
	if !known {
		return
	}
	telemetry.SetGauge(telemetry.ConnectionsGauge, float64(n))

	h.rooms.LeaveAll(connID)
	entry := h.registry.Unregister(connID)
	if entry == nil {
		slog.Debug("connection closed before join", slog.String("conn", connID), slog.String("component", "chat"))
		return
	}
	_, operators := h.registry.Counts()
	telemetry.SetGauge(telemetry.OperatorsGauge, float64(operators))

	if entry.Role != RoleOperator {
		h.notifyOperators(EventUserOffline, PresencePayload{
			UserID:     entry.UserID(),
			UserName:   entry.Name,
			UserAvatar: entry.Avatar(),
		})
	}
	slog.Info("connection closed", slog.String("conn", connID), slog.String("role", string(entry.Role)), slog.String("component", "chat"))
}

// HandleEvent dispatches one inbound frame from a connection. Unknown event
// types, malformed payloads, and events from unjoined connections are dropped
// with a log line; the protocol has no error-acknowledgement channel.
func (h *Hub) HandleEvent(ctx context.Context, connID string, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("unparseable frame", slog.String("conn", connID), slog.Any("err", err), slog.String("component", "chat"))
		return
	}

	switch env.Type {
	case EventJoinChat:
		var p JoinChatPayload
		if !h.decode(connID, env, &p) {
			return
		}
		h.handleJoin(ctx, connID, p)
	case EventSendMessage:
		var p SendMessagePayload
		if !h.decode(connID, env, &p) {
			return
		}
		h.handleSend(connID, p)
	case EventJoinUserRoom:
		var p JoinUserRoomPayload
		if !h.decode(connID, env, &p) {
			return
		}
		h.handleJoinUserRoom(connID, p)
	case EventRequestHistory:
		var p RequestHistoryPayload
		if !h.decode(connID, env, &p) {
			return
		}
		h.handleHistory(ctx, connID, p)
	case EventAdminDirect:
		var p AdminDirectPayload
		if !h.decode(connID, env, &p) {
			return
		}
		h.handleAdminDirect(connID, p)
	case EventTyping:
		var p TypingPayload
		if !h.decode(connID, env, &p) {
			return
		}
		h.handleTyping(connID, p)
	case EventRequestAuthors:
		h.handleRequestAuthors(ctx, connID)
	default:
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("unknown event type", slog.String("conn", connID), slog.String("type", env.Type), slog.String("component", "chat"))
	}
}

func (h *Hub) decode(connID string, env Envelope, into any) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("invalid payload", slog.String("conn", connID), slog.String("type", env.Type), slog.Any("err", err), slog.String("component", "chat"))
		return false
	}
	return true
}

// handleJoin runs the join-chat handshake: resolve identity, register
// presence, join the canonical room, greet first-time visitors, replay
// history, and tell operators a visitor came online.
func (h *Hub) handleJoin(ctx context.Context, connID string, p JoinChatPayload) {
	identity := h.resolver.Resolve(ctx, p.Token)
	entry, newOperator := h.registry.Register(connID, identity, h.opts.GuestName)
	_, operators := h.registry.Counts()
	telemetry.SetGauge(telemetry.OperatorsGauge, float64(operators))

	roomID := RoomFor(entry)
	h.rooms.Join(connID, roomID)
	telemetry.SetGauge(telemetry.RoomsGauge, float64(h.rooms.Count()))

	if entry.Role != RoleOperator {
		now := time.Now().UTC()
		welcome := Message{
			ID:        WelcomeMessageID(now),
			Body:      strings.TrimSpace(sprintfTemplate(h.opts.WelcomeTemplate, entry.Name)),
			Timestamp: now,
			IsAdmin:   true,
			IsSystem:  true,
		}
		if h.bridge.AppendWelcomeIfAbsent(roomID, welcome) {
			h.send(connID, EventChatMessage, welcome)
			telemetry.IncCounter(telemetry.WelcomesSent)
		}
	}

	h.send(connID, EventChatHistory, HistoryPayload{RoomID: roomID, Messages: h.bridge.History(ctx, roomID)})

	if entry.Role != RoleOperator {
		h.notifyOperators(EventUserOnline, PresencePayload{
			UserID:     entry.UserID(),
			UserName:   entry.Name,
			UserAvatar: entry.Avatar(),
			RoomID:     roomID,
		})
	}

	slog.Info("joined chat",
		slog.String("conn", connID),
		slog.String("role", string(entry.Role)),
		slog.String("room", roomID),
		slog.Bool("new_operator", newOperator),
		slog.String("component", "chat"))
}

// handleSend relays one chat message. Operators must name a target visitor
// and are lazily joined to that visitor's room so their echo arrives over the
// same group broadcast as everyone else's copy. Visitor messages additionally
// raise a new-user-message notice in the operator room.
func (h *Hub) handleSend(connID string, p SendMessagePayload) {
	entry := h.registry.Lookup(connID)
	if entry == nil {
		return
	}
	if err := p.Validate(); err != nil {
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("dropping send-message", slog.String("conn", connID), slog.Any("err", err), slog.String("component", "chat"))
		return
	}

	var roomID string
	if entry.Role == RoleOperator {
		if p.TargetUserID == "" {
			telemetry.IncCounter(telemetry.MessagesDropped)
			slog.Warn("operator send-message missing targetUserId", slog.String("conn", connID), slog.String("component", "chat"))
			return
		}
		roomID = visitorRoomPrefix + p.TargetUserID
		h.rooms.Join(connID, roomID)
		telemetry.SetGauge(telemetry.RoomsGauge, float64(h.rooms.Count()))
	} else {
		roomID = RoomFor(entry)
	}

	now := time.Now().UTC()
	msg := Message{
		ID:         NewMessageID(now),
		UserID:     entry.UserID(),
		UserName:   entry.Name,
		UserAvatar: entry.Avatar(),
		Body:       strings.TrimSpace(p.Message),
		Timestamp:  now,
		IsAdmin:    entry.Role == RoleOperator,
	}

	// Durability is advisory and only possible with a known author.
	if msg.UserID != nil {
		h.bridge.AppendDurable(roomID, msg)
	}
	h.bridge.AppendTransient(roomID, msg)

	// Sender included: the widget renders its own echo.
	h.broadcastRoom(roomID, EventChatMessage, msg, "")
	telemetry.IncCounter(telemetry.MessagesRelayed)

	if entry.Role != RoleOperator {
		h.broadcastRoom(OperatorRoom, EventNewUserMessage, NewUserMessagePayload{
			UserID:     msg.UserID,
			UserName:   msg.UserName,
			UserAvatar: msg.UserAvatar,
			Message:    msg.Body,
			RoomID:     roomID,
		}, "")
	}
}

// handleJoinUserRoom is the operator's explicit subscribe to a visitor room.
func (h *Hub) handleJoinUserRoom(connID string, p JoinUserRoomPayload) {
	entry := h.registry.Lookup(connID)
	if entry == nil || entry.Role != RoleOperator {
		return
	}
	if err := p.Validate(); err != nil {
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("dropping join-user-room", slog.String("conn", connID), slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	h.rooms.Join(connID, p.RoomID)
	telemetry.SetGauge(telemetry.RoomsGauge, float64(h.rooms.Count()))
}

// handleHistory replays the merged history to the requester only. Operators
// may name any room; a visitor's room is always derived server-side from
// their own identity, whatever the payload says.
func (h *Hub) handleHistory(ctx context.Context, connID string, p RequestHistoryPayload) {
	entry := h.registry.Lookup(connID)
	if entry == nil {
		return
	}

	var roomID string
	switch {
	case entry.Role == RoleOperator && p.RoomID != "":
		roomID = p.RoomID
	case entry.Role == RoleOperator:
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("operator history request missing chatRoomId", slog.String("conn", connID), slog.String("component", "chat"))
		return
	default:
		roomID = RoomFor(entry)
	}

	h.send(connID, EventChatHistory, HistoryPayload{RoomID: roomID, Messages: h.bridge.History(ctx, roomID)})
}

// handleAdminDirect pushes a message straight to a target visitor's
// connection, bypassing room broadcast. Delivered to the first matching
// connection; a target who is offline is logged and skipped.
func (h *Hub) handleAdminDirect(connID string, p AdminDirectPayload) {
	entry := h.registry.Lookup(connID)
	if entry == nil || entry.Role != RoleOperator {
		return
	}
	if err := p.Validate(); err != nil {
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("dropping admin-direct-message", slog.String("conn", connID), slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	targetID, err := strconv.ParseInt(p.TargetUserID, 10, 64)
	if err != nil {
		telemetry.IncCounter(telemetry.MessagesDropped)
		slog.Warn("admin-direct-message with non-numeric target", slog.String("conn", connID), slog.String("target", p.TargetUserID), slog.String("component", "chat"))
		return
	}

	conns := h.registry.ConnectionsForUser(targetID)
	if len(conns) == 0 {
		slog.Info("admin-direct-message target not online", slog.Int64("target", targetID), slog.String("component", "chat"))
		return
	}
	h.send(conns[0], EventAdminMessage, AdminMessagePayload{
		Message:   p.Message,
		AdminName: p.AdminName,
		Timestamp: time.Now().UTC(),
	})
}

// handleTyping relays a visitor's typing notice to their room, excluding the
// sender. Operator typing is not relayed: an operator converses with many
// rooms at once and the event carries no target.
func (h *Hub) handleTyping(connID string, p TypingPayload) {
	entry := h.registry.Lookup(connID)
	if entry == nil || entry.Role == RoleOperator {
		return
	}
	roomID := RoomFor(entry)
	h.broadcastRoom(roomID, EventUserTyping, TypingNoticePayload{
		UserID:   entry.UserID(),
		UserName: entry.Name,
		IsTyping: p.IsTyping,
	}, connID)
}

// handleRequestAuthors answers an operator with the distinct visitors that
// have durable messages.
func (h *Hub) handleRequestAuthors(ctx context.Context, connID string) {
	entry := h.registry.Lookup(connID)
	if entry == nil || entry.Role != RoleOperator {
		return
	}
	authors, err := h.authors.ChatAuthors(ctx)
	if err != nil {
		slog.Error("chat authors query failed", slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	if authors == nil {
		authors = []Author{}
	}
	h.send(connID, EventAuthors, authors)
}

// Stats reports live counts for the /status endpoint.
func (h *Hub) Stats() (connections, operators, rooms int) {
	h.mu.RLock()
	connections = len(h.sessions)
	h.mu.RUnlock()
	_, operators = h.registry.Counts()
	rooms = h.rooms.Count()
	return
}

// send unicasts an event to one connection. A full buffer or an unknown
// connection drops the frame; delivery to one peer never blocks another.
func (h *Hub) send(connID, eventType string, payload any) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		slog.Error("encode event failed", slog.String("type", eventType), slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	h.mu.RLock()
	s := h.sessions[connID]
	h.mu.RUnlock()
	if s == nil {
		return
	}
	if !s.Send(frame) {
		slog.Warn("dropping frame for slow connection", slog.String("conn", connID), slog.String("type", eventType), slog.String("component", "chat"))
	}
}

// broadcastRoom fans an event out to every member of a room, optionally
// excluding one connection.
func (h *Hub) broadcastRoom(roomID, eventType string, payload any, except string) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		slog.Error("encode event failed", slog.String("type", eventType), slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	for _, connID := range h.rooms.Members(roomID) {
		if connID == except {
			continue
		}
		h.mu.RLock()
		s := h.sessions[connID]
		h.mu.RUnlock()
		if s == nil {
			continue
		}
		if !s.Send(frame) {
			slog.Warn("dropping frame for slow connection", slog.String("conn", connID), slog.String("type", eventType), slog.String("component", "chat"))
		}
	}
}

// notifyOperators unicasts an event to every operator connection.
func (h *Hub) notifyOperators(eventType string, payload any) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		slog.Error("encode event failed", slog.String("type", eventType), slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	for _, connID := range h.registry.OperatorConnections() {
		h.mu.RLock()
		s := h.sessions[connID]
		h.mu.RUnlock()
		if s != nil && !s.Send(frame) {
			slog.Warn("dropping frame for slow operator", slog.String("conn", connID), slog.String("type", eventType), slog.String("component", "chat"))
		}
	}
}

// sprintfTemplate formats the welcome template, tolerating templates without
// a name verb.
func sprintfTemplate(tmpl, name string) string {
	if !strings.Contains(tmpl, "%s") {
		return tmpl
	}
	return strings.Replace(tmpl, "%s", name, 1)
}
