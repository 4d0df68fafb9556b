// Package handler maps inbound protocol messages to controller operations.
// A Registry is the handler set for one phase of the game; the server
// swaps connections between registries when the phase changes.
package handler

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

// Func handles one message. A nil reply with a nil error sends nothing
// back.
type Func func(ctx context.Context, c transport.Connection, msg protocol.Message) (protocol.Message, error)

// Executor runs work one task at a time. *service.Writer implements it.
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type entry struct {
	fn            Func
	currentPlayer bool
}

// Registry is a set of handlers keyed by message tag.
type Registry struct {
	name     string
	exec     Executor
	current  func() string
	handlers map[protocol.Tag]entry
}

// NewRegistry creates an empty registry. When exec is non-nil every
// dispatch runs inside it. current returns the id of the player whose turn
// it is and is only consulted inside exec.
func NewRegistry(name string, exec Executor, current func() string) *Registry {
	if current == nil {
		current = func() string { return "" }
	}
	return &Registry{name: name, exec: exec, current: current, handlers: make(map[protocol.Tag]entry)}
}

// Register adds a handler that any connection may invoke.
func (r *Registry) Register(tag protocol.Tag, fn Func) {
	r.add(tag, entry{fn: fn})
}

// RegisterCurrentPlayer adds a handler that is only run for the connection
// bound to the current player.
func (r *Registry) RegisterCurrentPlayer(tag protocol.Tag, fn Func) {
	r.add(tag, entry{fn: fn, currentPlayer: true})
}

func (r *Registry) add(tag protocol.Tag, e entry) {
	if _, dup := r.handlers[tag]; dup {
		panic(fmt.Sprintf("handler: %s: duplicate handler for %q", r.name, tag))
	}
	r.handlers[tag] = e
}

// Handles reports whether tag has a handler.
func (r *Registry) Handles(tag protocol.Tag) bool {
	_, ok := r.handlers[tag]
	return ok
}

// Name identifies the registry in logs.
func (r *Registry) Name() string { return r.name }

// Handler adapts the registry to a connection handler.
func (r *Registry) Handler() transport.Handler {
	return r.Dispatch
}

// Dispatch handles msg and returns the reply.
func (r *Registry) Dispatch(ctx context.Context, c transport.Connection, msg protocol.Message) protocol.Message {
	if r.exec == nil {
		return r.dispatch(ctx, c, msg)
	}
	var reply protocol.Message
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		reply = r.dispatch(ctx, c, msg)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("connId", c.ID()).Str("tag", string(msg.Tag())).Msg("Dispatch not run")
		return ErrorReply(err)
	}
	return reply
}

func (r *Registry) dispatch(ctx context.Context, c transport.Connection, msg protocol.Message) protocol.Message {
	if batch, ok := msg.(*protocol.Multiple); ok {
		replies := make([]protocol.Message, 0, len(batch.Messages))
		for _, child := range batch.Messages {
			replies = append(replies, r.dispatch(ctx, c, child))
		}
		return protocol.Collapse(replies)
	}

	e, ok := r.handlers[msg.Tag()]
	if !ok {
		log.Warn().Str("registry", r.name).Str("connId", c.ID()).Str("tag", string(msg.Tag())).Msg("No handler for message")
		return nil
	}
	if e.currentPlayer {
		if pid := c.PlayerID(); pid == "" || pid != r.current() {
			return protocol.NewError(protocol.CodeNotYourTurn, "%s is only accepted from the current player", msg.Tag())
		}
	}
	return r.invoke(ctx, c, msg, e.fn)
}

func (r *Registry) invoke(ctx context.Context, c transport.Connection, msg protocol.Message, fn Func) (reply protocol.Message) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).
				Str("registry", r.name).Str("connId", c.ID()).Str("tag", string(msg.Tag())).
				Msg("Handler panicked")
			reply = protocol.NewError(protocol.CodeInternal, "internal error")
		}
	}()
	out, err := fn(ctx, c, msg)
	if err != nil {
		log.Debug().Err(err).Str("connId", c.ID()).Str("playerId", c.PlayerID()).Str("tag", string(msg.Tag())).Msg("Request rejected")
		return ErrorReply(err)
	}
	return out
}
