package chat

import (
	"testing"

	"github.com/namtm24/studyblog-chat/auth"
)

func TestRegisterRoles(t *testing.T) {
	r := NewRegistry()

	anon, newOp := r.Register("c1", nil, "Guest")
	if newOp || anon.Role != RoleVisitor || anon.Name != "Guest" || anon.UserID() != nil {
		t.Fatalf("unexpected anonymous entry %+v", anon)
	}

	user, newOp := r.Register("c2", &auth.Identity{UserID: 7, Name: "Alice"}, "Guest")
	if newOp || user.Role != RoleVisitor || user.Name != "Alice" {
		t.Fatalf("unexpected visitor entry %+v", user)
	}
	if id := user.UserID(); id == nil || *id != 7 {
		t.Fatalf("visitor user id = %v, want 7", id)
	}

	op, newOp := r.Register("c3", &auth.Identity{UserID: 1, Name: "Root", Privileged: true}, "Guest")
	if !newOp || op.Role != RoleOperator {
		t.Fatalf("unexpected operator entry %+v (new=%v)", op, newOp)
	}

	// Re-registering the same operator connection is not "new".
	if _, newOp = r.Register("c3", &auth.Identity{UserID: 1, Name: "Root", Privileged: true}, "Guest"); newOp {
		t.Fatal("repeated operator registration reported as new")
	}
}

func TestRegisterReplacesEntry(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", &auth.Identity{UserID: 1, Name: "Root", Privileged: true}, "Guest")
	if _, ops := r.Counts(); ops != 1 {
		t.Fatalf("operators = %d, want 1", ops)
	}

	// A re-join that resolves to a plain identity demotes the connection.
	r.Register("c1", &auth.Identity{UserID: 7, Name: "Alice"}, "Guest")
	if _, ops := r.Counts(); ops != 0 {
		t.Fatalf("operators after demotion = %d, want 0", ops)
	}
	if got := r.Lookup("c1"); got == nil || got.Role != RoleVisitor {
		t.Fatalf("unexpected entry after re-register: %+v", got)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", nil, "Guest")

	if e := r.Unregister("c1"); e == nil {
		t.Fatal("first unregister returned nil")
	}
	if e := r.Unregister("c1"); e != nil {
		t.Fatalf("second unregister returned %+v, want nil", e)
	}
	if e := r.Unregister("never-registered"); e != nil {
		t.Fatalf("unknown unregister returned %+v, want nil", e)
	}
}

func TestConnectionsForUser(t *testing.T) {
	r := NewRegistry()
	r.Register("tab-a", &auth.Identity{UserID: 7, Name: "Alice"}, "Guest")
	r.Register("tab-b", &auth.Identity{UserID: 7, Name: "Alice"}, "Guest")
	r.Register("other", &auth.Identity{UserID: 8, Name: "Carol"}, "Guest")
	r.Register("anon", nil, "Guest")
	// Privileged connections are operators, not visitor tabs.
	r.Register("op", &auth.Identity{UserID: 7, Name: "Alice", Privileged: true}, "Guest")

	conns := r.ConnectionsForUser(7)
	if len(conns) != 2 {
		t.Fatalf("connections for user 7 = %v, want two visitor tabs", conns)
	}
	seen := map[string]bool{}
	for _, c := range conns {
		seen[c] = true
	}
	if !seen["tab-a"] || !seen["tab-b"] {
		t.Fatalf("unexpected connection set %v", conns)
	}

	if got := r.ConnectionsForUser(999); got != nil {
		t.Fatalf("connections for unknown user = %v, want nil", got)
	}
}

func TestOperatorConnections(t *testing.T) {
	r := NewRegistry()
	r.Register("op-1", &auth.Identity{UserID: 1, Privileged: true}, "Guest")
	r.Register("op-2", &auth.Identity{UserID: 2, Privileged: true}, "Guest")
	r.Register("v-1", nil, "Guest")

	if got := r.OperatorConnections(); len(got) != 2 {
		t.Fatalf("operator connections = %v, want 2", got)
	}
	r.Unregister("op-1")
	if got := r.OperatorConnections(); len(got) != 1 || got[0] != "op-2" {
		t.Fatalf("operator connections after unregister = %v", got)
	}
}
