package server

import (
	"context"
	"sync"
	"testing"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

// recorder is the far end of a dummy pair registered with the hub.
type recorder struct {
	server *transport.DummyConn
	remote *transport.DummyConn

	mu   sync.Mutex
	msgs []protocol.Message
}

func newRecorder(playerID string) *recorder {
	r := &recorder{}
	r.server, r.remote = transport.NewDummyPair()
	r.server.BindPlayer(playerID)
	r.remote.SetHandler(func(_ context.Context, _ transport.Connection, msg protocol.Message) protocol.Message {
		r.mu.Lock()
		r.msgs = append(r.msgs, msg)
		r.mu.Unlock()
		return nil
	})
	return r
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	r := newRecorder("player:1")

	hub.Register(r.server)
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", hub.ConnectionCount())
	}
	if !hub.Bound("player:1") {
		t.Error("expected player:1 to be bound")
	}

	hub.Unregister(r.server)
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	if hub.Bound("player:1") {
		t.Error("player:1 should no longer be bound")
	}
}

func TestHubSendTo(t *testing.T) {
	hub := NewHub()
	r1 := newRecorder("player:1")
	r2 := newRecorder("player:1") // same player, two connections
	r3 := newRecorder("player:2")
	for _, r := range []*recorder{r1, r2, r3} {
		hub.Register(r.server)
	}

	hub.SendTo("player:1", &protocol.NewTurn{Turn: 2})

	if r1.count() != 1 || r2.count() != 1 {
		t.Errorf("player:1 connections got %d and %d pushes, want 1 each", r1.count(), r2.count())
	}
	if r3.count() != 0 {
		t.Error("player:2 should not have received player:1's push")
	}

	hub.SendTo("", &protocol.NewTurn{Turn: 3})
	if r3.count() != 0 {
		t.Error("empty player id must not match unbound connections")
	}
}

func TestHubBroadcastExcept(t *testing.T) {
	hub := NewHub()
	r1 := newRecorder("player:1")
	r2 := newRecorder("player:2")
	hub.Register(r1.server)
	hub.Register(r2.server)

	hub.BroadcastExcept(r1.server.ID(), &protocol.Chat{Sender: "player:1", Text: "hi"})
	if r1.count() != 0 {
		t.Error("sender should not receive its own chat")
	}
	if r2.count() != 1 {
		t.Errorf("expected 1 push for player:2, got %d", r2.count())
	}

	hub.Broadcast(&protocol.NewTurn{Turn: 2})
	if r1.count() != 1 || r2.count() != 2 {
		t.Errorf("unexpected counts after broadcast: %d, %d", r1.count(), r2.count())
	}
}

func TestHubBroadcastSurvivesClosedPeer(t *testing.T) {
	hub := NewHub()
	dead := newRecorder("player:1")
	live := newRecorder("player:2")
	hub.Register(dead.server)
	hub.Register(live.server)
	dead.remote.Close()

	hub.Broadcast(&protocol.NewTurn{Turn: 2})
	if live.count() != 1 {
		t.Errorf("live connection missed the broadcast, got %d pushes", live.count())
	}
}

func TestHubHumanCountIgnoresDummies(t *testing.T) {
	hub := NewHub()
	hub.Register(newRecorder("player:1").server)
	hub.Register(newRecorder("").server)
	if n := hub.HumanCount(); n != 0 {
		t.Errorf("dummy connections are not humans, got %d", n)
	}
}

func TestHubCloseDummies(t *testing.T) {
	hub := NewHub()
	r := newRecorder("player:1")
	hub.Register(r.server)

	hub.CloseDummies()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	select {
	case <-r.server.Done():
	default:
		t.Error("server end should be closed")
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := newRecorder("player:1")
			hub.Register(r.server)
			hub.Broadcast(&protocol.NewTurn{Turn: 1})
			hub.SendTo("player:1", &protocol.NewTurn{Turn: 1})
			hub.Unregister(r.server)
		}()
	}

	wg.Wait()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after concurrent test, got %d", hub.ConnectionCount())
	}
}
