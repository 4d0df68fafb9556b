package service

import "github.com/freeeve/freecol/server/pkg/protocol"

// Broadcaster delivers server pushes to player connections.
// Implemented by the connection hub.
type Broadcaster interface {
	SendTo(playerID string, msg protocol.Message)
	Broadcast(msg protocol.Message)
	BroadcastExcept(connID string, msg protocol.Message)
}

// NoopBroadcaster is a no-op implementation for tests and headless runs.
type NoopBroadcaster struct{}

func (NoopBroadcaster) SendTo(string, protocol.Message)          {}
func (NoopBroadcaster) Broadcast(protocol.Message)               {}
func (NoopBroadcaster) BroadcastExcept(string, protocol.Message) {}
