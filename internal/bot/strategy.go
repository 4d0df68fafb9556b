// Package bot plays computer-controlled seats. A strategy looks at the
// world and plans ordinary protocol actions; a driver sends them through
// the player's dummy connection exactly as a remote client would.
package bot

import (
	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

// Strategy plans the actions of one computer player.
type Strategy interface {
	Name() string
	// PlanTurn returns the next batch of actions for p. The driver calls it
	// again after the batch has been applied, until it returns nothing or
	// stops making progress.
	PlanTurn(w *world.World, p *world.Player) []protocol.Message
}

// Stateful is implemented by strategies that keep per-unit missions across
// turns. The missions are written into saved games.
type Stateful interface {
	Missions() map[string]string
	RestoreMissions(m map[string]string)
}

// Strategy names.
const (
	StrategyIdle     = "idle"
	StrategyExplorer = "explorer"
)

// StrategyByName returns a fresh strategy. Unknown names fall back to the
// explorer.
func StrategyByName(name string) Strategy {
	switch name {
	case StrategyIdle:
		return IdleStrategy{}
	case StrategyExplorer, "":
		return NewExplorerStrategy()
	default:
		log.Warn().Str("strategy", name).Msg("Unknown AI strategy, using explorer")
		return NewExplorerStrategy()
	}
}

// IdleStrategy does nothing; the driver ends its turn straight away.
type IdleStrategy struct{}

func (IdleStrategy) Name() string { return StrategyIdle }

func (IdleStrategy) PlanTurn(*world.World, *world.Player) []protocol.Message { return nil }
