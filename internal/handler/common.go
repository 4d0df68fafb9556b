package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/service"
	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

// Deps are the services the server-side handler sets call into.
type Deps struct {
	Lobby      *service.Lobby
	Controller *service.Controller
	Out        service.Broadcaster
	// OnLogout is told when a player logs out, after the reply is built.
	OnLogout func(c transport.Connection, playerID string)
}

// WithPayload wraps a handler for one concrete message type.
func WithPayload[T protocol.Message](fn func(ctx context.Context, c transport.Connection, m T) (protocol.Message, error)) Func {
	return func(ctx context.Context, c transport.Connection, msg protocol.Message) (protocol.Message, error) {
		m, ok := msg.(T)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %s", protocol.ErrInvalid, msg.Tag())
		}
		return fn(ctx, c, m)
	}
}

// WithPlayer wraps a handler that needs the connection's bound player.
func WithPlayer[T protocol.Message](fn func(ctx context.Context, playerID string, m T) (protocol.Message, error)) Func {
	return WithPayload(func(ctx context.Context, c transport.Connection, m T) (protocol.Message, error) {
		pid := c.PlayerID()
		if pid == "" {
			return nil, errNotLoggedIn
		}
		return fn(ctx, pid, m)
	})
}

func registerCommon(r *Registry, d Deps) {
	r.Register(protocol.TagLogin, WithPayload(d.login))
	r.Register(protocol.TagLogout, WithPayload(d.logout))
	r.Register(protocol.TagPing, WithPayload(ping))
	r.Register(protocol.TagChat, WithPayload(d.chat))
	r.Register(protocol.TagGetHighScores, WithPayload(d.highScores))
}

func (d Deps) login(ctx context.Context, c transport.Connection, m *protocol.Login) (protocol.Message, error) {
	if c.PlayerID() != "" {
		return nil, errAlreadyLoggedIn
	}
	reply, err := d.Lobby.Login(ctx, m.Username, m.Token)
	if err != nil {
		return nil, err
	}
	c.BindPlayer(reply.PlayerID)
	if reply.Phase == string(service.PhaseStarting) {
		return reply, nil
	}
	update, err := d.Controller.FullUpdate(ctx, reply.PlayerID)
	if err != nil {
		return nil, err
	}
	return &protocol.Multiple{Messages: []protocol.Message{reply, update}}, nil
}

// logout releases a lobby seat. In a running game the seat stays and the
// player may log in again.
func (d Deps) logout(ctx context.Context, c transport.Connection, m *protocol.Logout) (protocol.Message, error) {
	pid := c.PlayerID()
	if pid == "" {
		return &protocol.OK{}, nil
	}
	if err := d.Lobby.Leave(ctx, pid); err != nil {
		return nil, err
	}
	c.BindPlayer("")
	log.Info().Str("connId", c.ID()).Str("playerId", pid).Str("reason", m.Reason).Msg("Player logged out")
	if d.OnLogout != nil {
		d.OnLogout(c, pid)
	}
	return &protocol.OK{}, nil
}

func ping(_ context.Context, _ transport.Connection, m *protocol.Ping) (protocol.Message, error) {
	return &protocol.Ping{Nonce: m.Nonce}, nil
}

func (d Deps) chat(_ context.Context, c transport.Connection, m *protocol.Chat) (protocol.Message, error) {
	pid := c.PlayerID()
	if pid == "" {
		return nil, errNotLoggedIn
	}
	out := &protocol.Chat{Sender: pid, Text: m.Text, Private: m.Private}
	if m.Private != "" {
		d.Out.SendTo(m.Private, out)
	} else {
		d.Out.BroadcastExcept(c.ID(), out)
	}
	return nil, nil
}

func (d Deps) highScores(ctx context.Context, _ transport.Connection, m *protocol.GetHighScores) (protocol.Message, error) {
	top, err := d.Controller.HighScores(ctx, m.Limit)
	if err != nil {
		return nil, err
	}
	reply := &protocol.HighScores{Scores: make([]protocol.HighScore, 0, len(top))}
	for _, s := range top {
		reply.Scores = append(reply.Scores, protocol.HighScore{
			PlayerName: s.PlayerName,
			Nation:     s.Nation,
			Score:      s.Score,
			Turn:       s.Turn,
			Won:        s.Won,
			CreatedAt:  s.CreatedAt,
		})
	}
	return reply, nil
}
