package handler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/freecol/server/internal/service"
	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

type tokens struct{}

func (tokens) Issue(playerID, gameID string) (string, error) { return playerID + "|" + gameID, nil }

func (tokens) Verify(token string) (string, string, error) {
	for i := range token {
		if token[i] == '|' {
			return token[:i], token[i+1:], nil
		}
	}
	return "", "", assert.AnError
}

// pairs fans pushes out to the server ends of dummy pairs.
type pairs struct {
	mu    sync.Mutex
	conns []*transport.DummyConn
}

func (p *pairs) add(c *transport.DummyConn) {
	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.mu.Unlock()
}

func (p *pairs) each(fn func(c *transport.DummyConn)) {
	p.mu.Lock()
	conns := append([]*transport.DummyConn{}, p.conns...)
	p.mu.Unlock()
	for _, c := range conns {
		fn(c)
	}
}

func (p *pairs) SendTo(playerID string, msg protocol.Message) {
	p.each(func(c *transport.DummyConn) {
		if c.PlayerID() == playerID {
			_ = c.Send(msg)
		}
	})
}

func (p *pairs) Broadcast(msg protocol.Message) {
	p.each(func(c *transport.DummyConn) { _ = c.Send(msg) })
}

func (p *pairs) BroadcastExcept(connID string, msg protocol.Message) {
	p.each(func(c *transport.DummyConn) {
		if c.ID() != connID {
			_ = c.Send(msg)
		}
	})
}

type inbox struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (in *inbox) Observe(msg protocol.Message) {
	in.mu.Lock()
	in.msgs = append(in.msgs, msg)
	in.mu.Unlock()
}

func (in *inbox) tagged(tag protocol.Tag) []protocol.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	var out []protocol.Message
	for _, m := range in.msgs {
		if m.Tag() == tag {
			out = append(out, m)
		}
	}
	return out
}

type client struct {
	conn  *transport.DummyConn
	inbox *inbox
}

func (c *client) ask(t *testing.T, msg protocol.Message) protocol.Message {
	t.Helper()
	reply, err := c.conn.Ask(context.Background(), msg)
	require.NoError(t, err)
	return reply
}

func (c *client) askCode(t *testing.T, msg protocol.Message) protocol.ErrorCode {
	t.Helper()
	reply := c.ask(t, msg)
	perr, ok := reply.(*protocol.Error)
	require.True(t, ok, "expected an error reply, got %#v", reply)
	return perr.Code
}

type game struct {
	ctrl    *service.Controller
	pregame *Registry
	ingame  *Registry
	out     *pairs
}

func newGame(t *testing.T, minPlayers int) *game {
	t.Helper()
	writer := service.NewWriter(2 * time.Second)
	t.Cleanup(writer.Stop)
	out := &pairs{}
	w := world.New("game-1", 11, map[string]int{
		world.OptionMapWidth:          16,
		world.OptionMapHeight:         10,
		world.OptionNativeSettlements: 0,
	})
	ctrl := service.NewController(w, writer, out, nil, service.ControllerConfig{})
	lobby := service.NewLobby(ctrl, tokens{}, service.LobbyConfig{MinPlayers: minPlayers})
	d := Deps{Lobby: lobby, Controller: ctrl, Out: out}
	g := &game{ctrl: ctrl, pregame: PreGame(d), ingame: InGame(d), out: out}
	ctrl.OnPhaseChange(func(p service.Phase) {
		if p != service.PhaseInGame {
			return
		}
		out.each(func(c *transport.DummyConn) { c.SetHandler(g.ingame.Handler()) })
	})
	return g
}

func (g *game) connect() *client {
	server, remote := transport.NewDummyPair()
	c := &client{conn: remote, inbox: &inbox{}}
	remote.SetHandler(AIClient(c.inbox).Handler())
	if g.ctrl.Phase() == service.PhaseStarting {
		server.SetHandler(g.pregame.Handler())
	} else {
		server.SetHandler(g.ingame.Handler())
	}
	g.out.add(server)
	return c
}

func TestLobbyFlowThroughHandlers(t *testing.T) {
	g := newGame(t, 2)
	ann, bob := g.connect(), g.connect()

	added := ann.ask(t, &protocol.AddPlayer{Name: "ann", Nation: "dutch"}).(*protocol.PlayerAdded)
	assert.True(t, added.Host)
	assert.Equal(t, protocol.CodeNotAllowed, ann.askCode(t, &protocol.AddPlayer{Name: "again"}))

	assert.Equal(t, protocol.CodeNotAllowed, bob.askCode(t, &protocol.SetReady{Ready: true}), "not logged in")
	bob.ask(t, &protocol.AddPlayer{Name: "bob"})

	assert.Equal(t, protocol.CodeNotAllowed, ann.askCode(t, &protocol.StartGame{}))
	assert.IsType(t, &protocol.OK{}, ann.ask(t, &protocol.SetReady{Ready: true}))
	assert.IsType(t, &protocol.OK{}, bob.ask(t, &protocol.SetReady{Ready: true}))
	assert.Equal(t, protocol.CodeNotAllowed, bob.askCode(t, &protocol.StartGame{}), "only the host starts")

	assert.NotEmpty(t, bob.inbox.tagged(protocol.TagLobbyState))

	assert.IsType(t, &protocol.OK{}, ann.ask(t, &protocol.StartGame{}))
	assert.Equal(t, service.PhaseInGame, g.ctrl.Phase())
	assert.Len(t, ann.inbox.tagged(protocol.TagGameStarted), 1)
	assert.Len(t, bob.inbox.tagged(protocol.TagGameStarted), 1)

	// In-game handler set is active: lobby messages are no longer handled.
	assert.Nil(t, ann.ask(t, &protocol.SetReady{Ready: false}))
	scores, ok := ann.ask(t, &protocol.GetScores{}).(*protocol.Scores)
	require.True(t, ok)
	assert.Len(t, scores.Scores, 2)
}

func startedGame(t *testing.T) (g *game, ann, bob *client, annID, bobID string) {
	t.Helper()
	g = newGame(t, 2)
	ann, bob = g.connect(), g.connect()
	annID = ann.ask(t, &protocol.AddPlayer{Name: "ann"}).(*protocol.PlayerAdded).PlayerID
	bobID = bob.ask(t, &protocol.AddPlayer{Name: "bob"}).(*protocol.PlayerAdded).PlayerID
	ann.ask(t, &protocol.SetReady{Ready: true})
	bob.ask(t, &protocol.SetReady{Ready: true})
	require.IsType(t, &protocol.OK{}, ann.ask(t, &protocol.StartGame{}))
	return g, ann, bob, annID, bobID
}

func TestMoveForeignUnitRejected(t *testing.T) {
	g, ann, bob, _, bobID := startedGame(t)

	var unit *world.Unit
	require.NoError(t, g.ctrl.Do(context.Background(), func(_ context.Context, w *world.World) error {
		unit = w.UnitsOf(bobID)[0]
		return nil
	}))
	before := unit.Location

	assert.Equal(t, protocol.CodeNotOwner, ann.askCode(t, &protocol.Move{Unit: unit.ID, Direction: world.West}))
	assert.Equal(t, protocol.CodeNotYourTurn, bob.askCode(t, &protocol.Move{Unit: unit.ID, Direction: world.West}))
	assert.Equal(t, protocol.CodeInvalidObject, ann.askCode(t, &protocol.Move{Unit: "unit:999", Direction: world.West}))

	require.NoError(t, g.ctrl.Do(context.Background(), func(context.Context, *world.World) error {
		assert.Equal(t, before, unit.Location)
		return nil
	}))
}

func TestTurnsThroughHandlers(t *testing.T) {
	_, ann, bob, annID, bobID := startedGame(t)

	reply := ann.ask(t, &protocol.EndTurn{})
	assert.IsType(t, &protocol.OK{}, reply)
	assert.Equal(t, protocol.CodeNotYourTurn, ann.askCode(t, &protocol.EndTurn{}))

	current := bob.inbox.tagged(protocol.TagSetCurrentPlayer)
	require.NotEmpty(t, current)
	assert.Equal(t, bobID, current[len(current)-1].(*protocol.SetCurrentPlayer).PlayerID)

	bob.ask(t, &protocol.EndTurn{})
	turns := ann.inbox.tagged(protocol.TagNewTurn)
	require.Len(t, turns, 1)
	assert.Equal(t, 2, turns[0].(*protocol.NewTurn).Turn)

	current = ann.inbox.tagged(protocol.TagSetCurrentPlayer)
	assert.Equal(t, annID, current[len(current)-1].(*protocol.SetCurrentPlayer).PlayerID)
}

func TestBatchedActions(t *testing.T) {
	g, ann, _, annID, _ := startedGame(t)

	var ship string
	require.NoError(t, g.ctrl.Do(context.Background(), func(_ context.Context, w *world.World) error {
		ship = w.UnitsOf(annID)[0].ID
		return nil
	}))
	reply := ann.ask(t, &protocol.Multiple{Messages: []protocol.Message{
		&protocol.ChangeState{Unit: ship, State: world.StateSentry},
		&protocol.ChangeState{Unit: ship, State: world.StateActive},
		&protocol.Ping{Nonce: 9},
	}})
	multi, ok := reply.(*protocol.Multiple)
	require.True(t, ok)
	require.Len(t, multi.Messages, 3)
	assert.IsType(t, &protocol.OK{}, multi.Messages[0])
	assert.IsType(t, &protocol.OK{}, multi.Messages[1])
	assert.Equal(t, &protocol.Ping{Nonce: 9}, multi.Messages[2])
}

func (g *game) snapshot(t *testing.T) string {
	t.Helper()
	var out []byte
	require.NoError(t, g.ctrl.Do(context.Background(), func(_ context.Context, w *world.World) error {
		var err error
		out, err = json.Marshal(w.Snapshot())
		return err
	}))
	return string(out)
}

// askAll sends every message from its own goroutine, released together.
func askAll(conns []*client, msgs []protocol.Message) ([]protocol.Message, []error) {
	replies := make([]protocol.Message, len(msgs))
	errs := make([]error, len(msgs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range msgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			replies[i], errs[i] = conns[i].conn.Ask(context.Background(), msgs[i])
		}(i)
	}
	close(start)
	wg.Wait()
	return replies, errs
}

func TestConcurrentTurnMessagesFromTwoPlayers(t *testing.T) {
	g, ann, bob, annID, bobID := startedGame(t)

	var annUnit, bobUnit *world.Unit
	require.NoError(t, g.ctrl.Do(context.Background(), func(_ context.Context, w *world.World) error {
		require.Equal(t, annID, w.CurrentPlayer)
		annUnit = w.UnitsOf(annID)[0]
		bobUnit = w.UnitsOf(bobID)[0]
		return nil
	}))
	bobState := bobUnit.State

	for round := range 20 {
		state := world.StateSentry
		if round%2 == 1 {
			state = world.StateActive
		}
		replies, errs := askAll([]*client{ann, bob}, []protocol.Message{
			&protocol.ChangeState{Unit: annUnit.ID, State: state},
			&protocol.ChangeState{Unit: bobUnit.ID, State: world.StateFortified},
		})
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.IsType(t, &protocol.OK{}, replies[0], "round %d", round)
		perr, ok := replies[1].(*protocol.Error)
		require.True(t, ok, "round %d: off-turn message got %#v", round, replies[1])
		assert.Equal(t, protocol.CodeNotYourTurn, perr.Code)

		require.NoError(t, g.ctrl.Do(context.Background(), func(context.Context, *world.World) error {
			assert.Equal(t, state, annUnit.State)
			assert.Equal(t, bobState, bobUnit.State)
			return nil
		}))
	}

	before := g.snapshot(t)
	msgs := []protocol.Message{
		&protocol.ChangeState{Unit: bobUnit.ID, State: world.StateFortified},
		&protocol.Move{Unit: bobUnit.ID, Direction: world.West},
		&protocol.DisbandUnit{Unit: bobUnit.ID},
		&protocol.RecruitUnit{UnitType: world.UnitColonist},
		&protocol.EndTurn{},
	}
	senders := make([]*client, len(msgs))
	for i := range senders {
		senders[i] = bob
	}
	replies, errs := askAll(senders, msgs)
	for i := range msgs {
		require.NoError(t, errs[i])
		perr, ok := replies[i].(*protocol.Error)
		require.True(t, ok, "%T got %#v", msgs[i], replies[i])
		assert.Equal(t, protocol.CodeNotYourTurn, perr.Code)
	}
	assert.Equal(t, before, g.snapshot(t))
}

func TestReconnectWithToken(t *testing.T) {
	g := newGame(t, 1)
	ann := g.connect()
	added := ann.ask(t, &protocol.AddPlayer{Name: "ann"}).(*protocol.PlayerAdded)
	ann.ask(t, &protocol.SetReady{Ready: true})
	ann.ask(t, &protocol.StartGame{})

	again := g.connect()
	assert.Equal(t, protocol.CodeNotAllowed, again.askCode(t, &protocol.Login{Username: "ann", Token: "nope"}))

	reply := again.ask(t, &protocol.Login{Username: "ann", Token: added.Token})
	multi, ok := reply.(*protocol.Multiple)
	require.True(t, ok)
	login := multi.Messages[0].(*protocol.LoginReply)
	assert.Equal(t, added.PlayerID, login.PlayerID)
	assert.Equal(t, string(service.PhaseInGame), login.Phase)
	update := multi.Messages[1].(*protocol.Update)
	assert.True(t, update.Full)

	assert.Equal(t, protocol.CodeNotAllowed, again.askCode(t, &protocol.Login{Username: "ann", Token: added.Token}))
}

func TestChatRelay(t *testing.T) {
	_, ann, bob, annID, bobID := startedGame(t)

	assert.Nil(t, ann.ask(t, &protocol.Chat{Text: "hello"}))
	got := bob.inbox.tagged(protocol.TagChat)
	require.Len(t, got, 1)
	assert.Equal(t, annID, got[0].(*protocol.Chat).Sender)
	assert.Empty(t, ann.inbox.tagged(protocol.TagChat))

	bob.ask(t, &protocol.Chat{Text: "psst", Private: annID})
	got = ann.inbox.tagged(protocol.TagChat)
	require.Len(t, got, 1)
	assert.Equal(t, bobID, got[0].(*protocol.Chat).Sender)
}

func TestHighScoresOfflineReply(t *testing.T) {
	g := newGame(t, 1)
	c := g.connect()
	assert.Equal(t, protocol.CodeNotAllowed, c.askCode(t, &protocol.GetHighScores{Limit: 5}))
	assert.Equal(t, &protocol.Ping{Nonce: 1}, c.ask(t, &protocol.Ping{Nonce: 1}))
}
