package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

const defaultMaxRounds = 12

// Driver plays one computer seat. It owns the client end of the seat's
// dummy connection and is called by the controller, on the writer, when
// the seat becomes current.
type Driver struct {
	playerID  string
	conn      transport.Connection
	strategy  Strategy
	world     func() *world.World
	maxRounds int
	log       zerolog.Logger

	mu    sync.Mutex
	turn  int
	ended bool
	seen  map[protocol.Tag]int
}

// NewDriver creates a driver. world must return the live world; it is only
// read while the driver holds the writer.
func NewDriver(playerID string, conn transport.Connection, strategy Strategy, world func() *world.World) *Driver {
	return &Driver{
		playerID:  playerID,
		conn:      conn,
		strategy:  strategy,
		world:     world,
		maxRounds: defaultMaxRounds,
		log:       log.With().Str("playerId", playerID).Str("strategy", strategy.Name()).Logger(),
		seen:      make(map[protocol.Tag]int),
	}
}

func (d *Driver) PlayerID() string   { return d.playerID }
func (d *Driver) Strategy() Strategy { return d.strategy }

// PlayTurn asks the strategy for actions, sends them through the dummy
// connection and finally ends the turn. Rejected actions are logged and
// skipped; planning stops once a batch makes no progress.
func (d *Driver) PlayTurn(ctx context.Context) error {
	w := d.world()
	if w == nil {
		return nil
	}
	p, err := w.Player(d.playerID)
	if err != nil {
		return err
	}
	if p.Dead {
		return nil
	}

	actions := 0
	for round := 0; round < d.maxRounds; round++ {
		if w.CurrentPlayer != d.playerID {
			return nil
		}
		plan := d.strategy.PlanTurn(w, p)
		if len(plan) == 0 {
			break
		}
		progressed := false
		for _, msg := range plan {
			ok, err := d.ask(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				progressed = true
				actions++
			}
			if w.CurrentPlayer != d.playerID {
				return nil
			}
		}
		if !progressed {
			break
		}
	}
	d.log.Debug().Int("turn", w.Turn).Int("actions", actions).Msg("AI turn planned")

	if w.CurrentPlayer != d.playerID {
		return nil
	}
	_, err = d.ask(ctx, &protocol.EndTurn{})
	return err
}

// ask sends one action and reports whether the server accepted it.
func (d *Driver) ask(ctx context.Context, msg protocol.Message) (bool, error) {
	reply, err := d.conn.Ask(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("ai %s %s: %w", d.playerID, msg.Tag(), err)
	}
	if e, ok := reply.(*protocol.Error); ok {
		d.log.Debug().Str("tag", string(msg.Tag())).Str("code", string(e.Code)).Str("reason", e.Message).Msg("AI action rejected")
		return false, nil
	}
	return true, nil
}

// Observe records a server push. It runs on the writer and must not call
// back into the server.
func (d *Driver) Observe(msg protocol.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[msg.Tag()]++
	switch m := msg.(type) {
	case *protocol.NewTurn:
		d.turn = m.Turn
	case *protocol.SetCurrentPlayer:
		d.turn = m.Turn
	case *protocol.GameEnded:
		d.ended = true
	}
}

// Seen returns how many pushes with tag the driver has observed.
func (d *Driver) Seen(tag protocol.Tag) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[tag]
}

// Ended reports whether the driver has been told the game is over.
func (d *Driver) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}
