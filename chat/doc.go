// Package chat contains the realtime relay core: presence tracking, room
// routing, the durable/transient history bridge, and the hub that applies the
// fan-out rules between visitor connections and the operator pool.
//
// One websocket connection maps to one Client. A connection becomes known to
// the rest of the system only after its join-chat handshake resolves an
// identity (or anonymous) and registers presence; events arriving before that
// are ignored. Visitors converse in a private room keyed by their stable
// identity, operators share the "operator" room and join visitor rooms on
// demand when they target them.
//
// All shared structures (presence registry, room membership, transient
// buffers, session table) are mutex-guarded; hub handlers run on each
// connection's read goroutine and never block on another connection's I/O.
// Durable persistence is advisory: appends run fire-and-forget and a storage
// failure never delays or fails delivery.
package chat
