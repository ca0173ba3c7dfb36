package chat

import (
	"sync"

	"github.com/namtm24/studyblog-chat/auth"
)

// Role of a registered connection.
type Role string

const (
	RoleVisitor  Role = "visitor"
	RoleOperator Role = "operator"
)

// Entry ties one live connection to its resolved identity and role.
type Entry struct {
	ConnID   string
	Identity *auth.Identity // nil for anonymous visitors
	Role     Role
	Name     string // display name; guest fallback applied at registration
}

// UserID returns the authenticated user id, or nil for anonymous.
func (e *Entry) UserID() *int64 {
	if e.Identity == nil {
		return nil
	}
	id := e.Identity.UserID
	return &id
}

// Avatar returns the identity's avatar reference, or empty for anonymous.
func (e *Entry) Avatar() string {
	if e.Identity == nil {
		return ""
	}
	return e.Identity.Avatar
}

// Registry is the in-memory presence map: connection id to entry, plus the
// operator connection set kept separately for O(1) operator fan-out.
// All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	operators map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		entries:   make(map[string]*Entry),
		operators: make(map[string]struct{}),
	}
}

// Register stores the entry for a connection, replacing any previous one
// (a repeated join-chat on the same socket re-resolves identity). The role is
// operator iff the identity exists and carries the privileged flag. The
// second return reports whether the connection was newly added to the
// operator set.
func (r *Registry) Register(connID string, identity *auth.Identity, guestName string) (*Entry, bool) {
	entry := &Entry{ConnID: connID, Identity: identity, Role: RoleVisitor, Name: guestName}
	if identity != nil {
		entry.Name = identity.Name
		if identity.Privileged {
			entry.Role = RoleOperator
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[connID] = entry
	_, wasOperator := r.operators[connID]
	if entry.Role == RoleOperator {
		r.operators[connID] = struct{}{}
	} else {
		delete(r.operators, connID)
	}
	return entry, entry.Role == RoleOperator && !wasOperator
}

// Lookup returns the entry for a connection, or nil when the connection has
// not completed its join handshake.
func (r *Registry) Lookup(connID string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[connID]
}

// Unregister removes and returns the entry so callers can react (e.g. notify
// offline). Returns nil when the connection was never registered, which makes
// disconnect cleanup idempotent.
func (r *Registry) Unregister(connID string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[connID]
	if !ok {
		return nil
	}
	delete(r.entries, connID)
	delete(r.operators, connID)
	return entry
}

// OperatorConnections returns a snapshot of all operator connection ids.
func (r *Registry) OperatorConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.operators))
	for id := range r.operators {
		out = append(out, id)
	}
	return out
}

// ConnectionsForUser returns the visitor connection ids currently registered
// for an authenticated user id (duplicate tabs yield several).
func (r *Registry) ConnectionsForUser(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, e := range r.entries {
		if e.Role != RoleVisitor || e.Identity == nil {
			continue
		}
		if e.Identity.UserID == userID {
			out = append(out, id)
		}
	}
	return out
}

// Counts reports registered connections and operator connections, for status
// reporting.
func (r *Registry) Counts() (connections, operators int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), len(r.operators)
}
