package server

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

// Hub is the registry of live connections, socket and dummy alike. It
// implements service.Broadcaster.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]transport.Connection // connID -> connection
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]transport.Connection)}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c transport.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

// Unregister removes a connection. It does not close it.
func (h *Hub) Unregister(c transport.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID())
}

func (h *Hub) snapshot() []transport.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]transport.Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) send(c transport.Connection, msg protocol.Message) {
	if err := c.Send(msg); err != nil {
		log.Warn().Err(err).Str("connId", c.ID()).Str("playerId", c.PlayerID()).
			Str("tag", string(msg.Tag())).Msg("Dropping push")
	}
}

// SendTo delivers msg to every connection bound to playerID.
func (h *Hub) SendTo(playerID string, msg protocol.Message) {
	if playerID == "" {
		return
	}
	for _, c := range h.snapshot() {
		if c.PlayerID() == playerID {
			h.send(c, msg)
		}
	}
}

// Broadcast delivers msg to every connection.
func (h *Hub) Broadcast(msg protocol.Message) {
	for _, c := range h.snapshot() {
		h.send(c, msg)
	}
}

// BroadcastExcept delivers msg to every connection but connID.
func (h *Hub) BroadcastExcept(connID string, msg protocol.Message) {
	for _, c := range h.snapshot() {
		if c.ID() != connID {
			h.send(c, msg)
		}
	}
}

// Bound reports whether playerID has a live connection.
func (h *Hub) Bound(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if c.PlayerID() == playerID {
			return true
		}
	}
	return false
}

// SetHandler hands every registered connection the same handler.
func (h *Hub) SetHandler(fn transport.Handler) {
	for _, c := range h.snapshot() {
		c.SetHandler(fn)
	}
}

// CloseDummies closes the server end of every in-process pair.
func (h *Hub) CloseDummies() {
	for _, c := range h.snapshot() {
		if c.IsDummy() {
			_ = c.Close()
			h.Unregister(c)
		}
	}
}

// UnbindSockets detaches every socket connection from its player.
func (h *Hub) UnbindSockets() {
	for _, c := range h.snapshot() {
		if !c.IsDummy() {
			c.BindPlayer("")
		}
	}
}

// CloseAll closes and forgets every connection.
func (h *Hub) CloseAll() {
	for _, c := range h.snapshot() {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Str("connId", c.ID()).Msg("Close failed")
		}
		h.Unregister(c)
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HumanCount returns the number of socket connections bound to a player.
func (h *Hub) HumanCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.conns {
		if !c.IsDummy() && c.PlayerID() != "" {
			n++
		}
	}
	return n
}
