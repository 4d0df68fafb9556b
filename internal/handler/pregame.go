package handler

import (
	"context"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

// PreGame returns the handler set used while players gather in the lobby.
func PreGame(d Deps) *Registry {
	r := NewRegistry("pregame", d.Controller.Writer(), nil)
	registerCommon(r, d)
	r.Register(protocol.TagAddPlayer, WithPayload(d.addPlayer))
	r.Register(protocol.TagSetNation, WithPlayer(d.setNation))
	r.Register(protocol.TagSetReady, WithPlayer(d.setReady))
	r.Register(protocol.TagUpdateGameOptions, WithPlayer(d.updateOptions))
	r.Register(protocol.TagStartGame, WithPlayer(d.startGame))
	return r
}

func (d Deps) addPlayer(ctx context.Context, c transport.Connection, m *protocol.AddPlayer) (protocol.Message, error) {
	if c.PlayerID() != "" {
		return nil, errAlreadyLoggedIn
	}
	reply, err := d.Lobby.AddPlayer(ctx, m.Name, m.Nation)
	if err != nil {
		return nil, err
	}
	c.BindPlayer(reply.PlayerID)
	return reply, nil
}

func (d Deps) setNation(ctx context.Context, pid string, m *protocol.SetNation) (protocol.Message, error) {
	if err := d.Lobby.SetNation(ctx, pid, m.Nation); err != nil {
		return nil, err
	}
	return &protocol.OK{}, nil
}

func (d Deps) setReady(ctx context.Context, pid string, m *protocol.SetReady) (protocol.Message, error) {
	if err := d.Lobby.SetReady(ctx, pid, m.Ready); err != nil {
		return nil, err
	}
	return &protocol.OK{}, nil
}

func (d Deps) updateOptions(ctx context.Context, pid string, m *protocol.UpdateGameOptions) (protocol.Message, error) {
	if err := d.Lobby.UpdateOptions(ctx, pid, m.Options); err != nil {
		return nil, err
	}
	return &protocol.OK{}, nil
}

func (d Deps) startGame(ctx context.Context, pid string, _ *protocol.StartGame) (protocol.Message, error) {
	if err := d.Lobby.StartGame(ctx, pid); err != nil {
		return nil, err
	}
	return &protocol.OK{}, nil
}
