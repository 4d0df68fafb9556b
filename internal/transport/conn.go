// Package transport carries protocol messages between the server and its
// players, either over a websocket or through an in-process dummy pair.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/freecol/server/pkg/protocol"
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
	ErrNoHandler  = errors.New("connection has no handler")
)

// Handler answers one inbound message. A nil reply means there is nothing
// to send back.
type Handler func(ctx context.Context, c Connection, msg protocol.Message) protocol.Message

// Connection is one end of a message channel to a player.
type Connection interface {
	ID() string
	// Send delivers msg without waiting for the peer to handle it.
	Send(msg protocol.Message) error
	// Ask delivers msg and blocks until the peer's handler replies. A nil
	// reply means the peer had nothing to say.
	Ask(ctx context.Context, msg protocol.Message) (protocol.Message, error)
	// SendAndWait is Ask with the reply dropped, unless it is an error.
	SendAndWait(ctx context.Context, msg protocol.Message) error
	SetHandler(h Handler)
	PlayerID() string
	BindPlayer(id string)
	LastSeen() time.Time
	IsDummy() bool
	Close() error
	Done() <-chan struct{}
}

// endpoint holds the state shared by every connection flavour.
type endpoint struct {
	id string

	mu      sync.RWMutex
	handler Handler
	player  string

	lastSeen atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	onClose   func(Connection)
}

func newEndpoint(onClose func(Connection)) endpoint {
	e := endpoint{
		id:      uuid.NewString(),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	e.lastSeen.Store(time.Now().UnixNano())
	return e
}

func (e *endpoint) ID() string { return e.id }

func (e *endpoint) SetHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *endpoint) currentHandler() Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handler
}

func (e *endpoint) PlayerID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.player
}

func (e *endpoint) BindPlayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.player = id
}

func (e *endpoint) LastSeen() time.Time {
	return time.Unix(0, e.lastSeen.Load())
}

func (e *endpoint) touch() {
	e.lastSeen.Store(time.Now().UnixNano())
}

func (e *endpoint) Done() <-chan struct{} { return e.done }

func (e *endpoint) closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// shutdown closes done exactly once and reports whether this call did it.
func (e *endpoint) shutdown() bool {
	first := false
	e.closeOnce.Do(func() {
		close(e.done)
		first = true
	})
	return first
}

func sendAndWait(ctx context.Context, c Connection, msg protocol.Message) error {
	reply, err := c.Ask(ctx, msg)
	if err != nil {
		return err
	}
	return protocol.AsError(reply)
}
