package handler

import (
	"context"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

// InGame returns the handler set used once the game is running.
func InGame(d Deps) *Registry {
	ctrl := d.Controller
	r := NewRegistry("ingame", ctrl.Writer(), func() string { return ctrl.World().CurrentPlayer })
	registerCommon(r, d)

	r.Register(protocol.TagGetScores, WithPayload(d.scores))
	r.Register(protocol.TagDiplomacy, WithPlayer(d.diplomacy))

	r.RegisterCurrentPlayer(protocol.TagMove, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		mv := m.(*protocol.Move)
		return ok(w.MoveUnit(pid, mv.Unit, mv.Direction))
	}))
	r.RegisterCurrentPlayer(protocol.TagAttack, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		a := m.(*protocol.Attack)
		res, err := w.Attack(pid, a.Unit, a.Direction)
		if err != nil {
			return nil, err
		}
		return &protocol.OK{Result: res}, nil
	}))
	r.RegisterCurrentPlayer(protocol.TagBuildColony, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		b := m.(*protocol.BuildColony)
		s, err := w.BuildColony(pid, b.Unit, b.Name)
		if err != nil {
			return nil, err
		}
		return &protocol.OK{Result: s.ID}, nil
	}))
	r.RegisterCurrentPlayer(protocol.TagJoinColony, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		j := m.(*protocol.JoinColony)
		return ok(w.JoinColony(pid, j.Unit, j.Colony, j.WorkType))
	}))
	r.RegisterCurrentPlayer(protocol.TagPutOutsideColony, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		return ok(w.PutOutsideColony(pid, m.(*protocol.PutOutsideColony).Unit))
	}))
	r.RegisterCurrentPlayer(protocol.TagEmbark, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		e := m.(*protocol.Embark)
		return ok(w.Embark(pid, e.Unit, e.Carrier))
	}))
	r.RegisterCurrentPlayer(protocol.TagDisembark, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		return ok(w.Disembark(pid, m.(*protocol.Disembark).Unit))
	}))
	r.RegisterCurrentPlayer(protocol.TagChangeState, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		cs := m.(*protocol.ChangeState)
		return ok(w.ChangeState(pid, cs.Unit, cs.State))
	}))
	r.RegisterCurrentPlayer(protocol.TagClaimLand, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		price, err := w.ClaimLand(pid, m.(*protocol.ClaimLand).Tile)
		if err != nil {
			return nil, err
		}
		return &protocol.OK{Result: price}, nil
	}))
	r.RegisterCurrentPlayer(protocol.TagSetBuildQueue, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		q := m.(*protocol.SetBuildQueue)
		return ok(w.SetBuildQueue(pid, q.Colony, q.Building))
	}))
	r.RegisterCurrentPlayer(protocol.TagSailToEurope, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		return ok(w.SailToEurope(pid, m.(*protocol.SailToEurope).Unit))
	}))
	r.RegisterCurrentPlayer(protocol.TagSailToAmerica, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		return ok(w.SailToAmerica(pid, m.(*protocol.SailToAmerica).Unit))
	}))
	r.RegisterCurrentPlayer(protocol.TagRecruitUnit, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		u, err := w.RecruitUnit(pid, m.(*protocol.RecruitUnit).UnitType)
		if err != nil {
			return nil, err
		}
		return &protocol.OK{Result: u.ID}, nil
	}))
	r.RegisterCurrentPlayer(protocol.TagDisbandUnit, d.action(func(w *world.World, pid string, m protocol.Message) (protocol.Message, error) {
		return ok(w.DisbandUnit(pid, m.(*protocol.DisbandUnit).Unit))
	}))
	r.RegisterCurrentPlayer(protocol.TagEndTurn, WithPlayer(d.endTurn))
	return r
}

type worldAction func(w *world.World, playerID string, m protocol.Message) (protocol.Message, error)

// action runs fn as a current-player mutation through the controller.
func (d Deps) action(fn worldAction) Func {
	return WithPlayer(func(ctx context.Context, pid string, m protocol.Message) (protocol.Message, error) {
		return d.Controller.Apply(ctx, pid, func(w *world.World) (protocol.Message, error) {
			return fn(w, pid, m)
		})
	})
}

func ok(err error) (protocol.Message, error) {
	if err != nil {
		return nil, err
	}
	return &protocol.OK{}, nil
}

func (d Deps) endTurn(ctx context.Context, pid string, _ *protocol.EndTurn) (protocol.Message, error) {
	report, err := d.Controller.EndTurn(ctx, pid)
	if err != nil {
		return nil, err
	}
	return &protocol.OK{Result: report}, nil
}

func (d Deps) scores(ctx context.Context, _ transport.Connection, _ *protocol.GetScores) (protocol.Message, error) {
	s, err := d.Controller.Scores(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d Deps) diplomacy(ctx context.Context, pid string, m *protocol.Diplomacy) (protocol.Message, error) {
	return d.Controller.Diplomacy(ctx, pid, m)
}
