package bot

import (
	"context"
	"fmt"
	"testing"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

// newWorld generates a small map with one computer player and no natives.
func newWorld(t *testing.T) (*world.World, *world.Player) {
	t.Helper()
	w := world.New("bot-test", 5, map[string]int{
		world.OptionMapWidth:          16,
		world.OptionMapHeight:         10,
		world.OptionNativeSettlements: 0,
	})
	p := w.AddPlayer("hal", "dutch", world.PlayerAI)
	if err := w.Generate(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return w, p
}

// apply runs an action message directly against the world.
func apply(w *world.World, playerID string, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.Move:
		return w.MoveUnit(playerID, m.Unit, m.Direction)
	case *protocol.BuildColony:
		_, err := w.BuildColony(playerID, m.Unit, m.Name)
		return err
	case *protocol.Embark:
		return w.Embark(playerID, m.Unit, m.Carrier)
	case *protocol.SailToEurope:
		return w.SailToEurope(playerID, m.Unit)
	case *protocol.SailToAmerica:
		return w.SailToAmerica(playerID, m.Unit)
	case *protocol.RecruitUnit:
		_, err := w.RecruitUnit(playerID, m.UnitType)
		return err
	case *protocol.SetBuildQueue:
		return w.SetBuildQueue(playerID, m.Colony, m.Building)
	case *protocol.ChangeState:
		return w.ChangeState(playerID, m.Unit, m.State)
	case *protocol.EndTurn:
		if _, err := w.EndTurn(playerID); err != nil {
			return err
		}
		w.AdvancePlayer()
		return nil
	default:
		return fmt.Errorf("unexpected action %s", msg.Tag())
	}
}

// playTurn runs a strategy the way the driver does, without a connection.
func playTurn(t *testing.T, w *world.World, p *world.Player, s Strategy) []protocol.Message {
	t.Helper()
	var accepted []protocol.Message
	for round := 0; round < defaultMaxRounds; round++ {
		plan := s.PlanTurn(w, p)
		if len(plan) == 0 {
			break
		}
		progressed := false
		for _, msg := range plan {
			if apply(w, p.ID, msg) == nil {
				progressed = true
				accepted = append(accepted, msg)
			}
		}
		if !progressed {
			break
		}
	}
	if err := apply(w, p.ID, &protocol.EndTurn{}); err != nil {
		t.Fatalf("end turn: %v", err)
	}
	return accepted
}

// worldServer answers a driver's actions on the server end of a dummy
// pair and counts what it saw.
type worldServer struct {
	w        *world.World
	actions  map[protocol.Tag]int
	rejected int
}

func (s *worldServer) handle(_ context.Context, c transport.Connection, msg protocol.Message) protocol.Message {
	s.actions[msg.Tag()]++
	if s.w.CurrentPlayer != c.PlayerID() {
		return protocol.NewError(protocol.CodeNotYourTurn, "not your turn")
	}
	if err := apply(s.w, c.PlayerID(), msg); err != nil {
		s.rejected++
		return protocol.NewError(protocol.CodeIllegalMove, "%v", err)
	}
	return &protocol.OK{}
}

func connect(w *world.World, p *world.Player) (*worldServer, *transport.DummyConn) {
	srv := &worldServer{w: w, actions: make(map[protocol.Tag]int)}
	serverEnd, aiEnd := transport.NewDummyPair()
	serverEnd.BindPlayer(p.ID)
	serverEnd.SetHandler(srv.handle)
	return srv, aiEnd
}
