package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/pkg/protocol"
)

// Orchestrator takes one remote client through a game: join the lobby,
// ready up, optionally start the game as host, then end its turn whenever
// it becomes current until the game is over.
type Orchestrator struct {
	client  *Client
	nation  string
	token   string
	start   bool
	timeout time.Duration
}

// NewOrchestrator creates an Orchestrator. With start set, a host client
// keeps trying to start the game as the lobby changes.
func NewOrchestrator(c *Client, nation, token string, start bool) *Orchestrator {
	return &Orchestrator{client: c, nation: nation, token: token, start: start, timeout: 10 * time.Second}
}

// SetTimeout bounds each request the orchestrator makes.
func (o *Orchestrator) SetTimeout(d time.Duration) {
	if d > 0 {
		o.timeout = d
	}
}

// Run plays until the game ends, the connection drops or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	c := o.client
	if err := o.withTimeout(ctx, func(ctx context.Context) error { return c.Join(ctx, o.nation, o.token) }); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	log.Info().Str("bot", c.Name()).Str("playerId", c.PlayerID()).Str("phase", c.Phase()).Bool("host", c.Host()).Msg("Seat taken")

	if c.Phase() == "STARTING_GAME" {
		if err := o.withTimeout(ctx, func(ctx context.Context) error {
			_, err := c.Ask(ctx, &protocol.SetReady{Ready: true})
			return err
		}); err != nil {
			return fmt.Errorf("ready: %w", err)
		}
		o.tryStart(ctx)
	} else {
		// reconnected mid-game; it may already be our turn
		o.endTurn(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("bot", c.Name()).Msg("Context cancelled, stopping bot")
			return ctx.Err()
		case <-c.Done():
			return errors.New("connection closed by server")
		case msg := <-c.Events():
			switch m := msg.(type) {
			case *protocol.LobbyState:
				o.tryStart(ctx)
			case *protocol.GameStarted:
				log.Info().Str("bot", c.Name()).Str("gameId", m.GameID).Msg("Game started")
			case *protocol.SetCurrentPlayer:
				if m.PlayerID == c.PlayerID() {
					o.endTurn(ctx)
				}
			case *protocol.GameEnded:
				log.Info().Str("bot", c.Name()).Str("winner", m.Winner).Str("reason", m.Reason).Msg("Game ended")
				return nil
			}
		}
	}
}

func (o *Orchestrator) tryStart(ctx context.Context) {
	if !o.start || !o.client.Host() {
		return
	}
	err := o.withTimeout(ctx, func(ctx context.Context) error {
		_, err := o.client.Ask(ctx, &protocol.StartGame{})
		return err
	})
	if err != nil {
		log.Debug().Err(err).Str("bot", o.client.Name()).Msg("Game not started yet")
	}
}

func (o *Orchestrator) endTurn(ctx context.Context) {
	err := o.withTimeout(ctx, func(ctx context.Context) error {
		_, err := o.client.Ask(ctx, &protocol.EndTurn{})
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("bot", o.client.Name()).Msg("End turn failed")
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return fn(ctx)
}
