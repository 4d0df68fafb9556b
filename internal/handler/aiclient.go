package handler

import (
	"context"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

// Observer receives the server pushes addressed to a computer player.
type Observer interface {
	Observe(msg protocol.Message)
}

var pushTags = []protocol.Tag{
	protocol.TagUpdate,
	protocol.TagNewTurn,
	protocol.TagSetCurrentPlayer,
	protocol.TagGameStarted,
	protocol.TagGameEnded,
	protocol.TagLobbyState,
	protocol.TagChat,
	protocol.TagDiplomacy,
}

// AIClient returns the handler set for the client end of a computer
// player's dummy connection. Pushes arrive on the server's writer, so the
// handlers only record and never call back into the server.
func AIClient(obs Observer) *Registry {
	r := NewRegistry("aiclient", nil, nil)
	record := func(_ context.Context, _ transport.Connection, msg protocol.Message) (protocol.Message, error) {
		obs.Observe(msg)
		return nil, nil
	}
	for _, tag := range pushTags {
		r.Register(tag, record)
	}
	return r
}
