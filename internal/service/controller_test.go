package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/savegame"
	"github.com/freeeve/freecol/server/pkg/world"
)

func TestStartSendsFullViews(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ann, bob := f.startTwo(t)

	assert.Equal(t, PhaseInGame, f.ctrl.Phase())
	w, err := f.ctrl.Started().Wait(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, w.Map)

	started := f.out.tagged(protocol.TagGameStarted)
	require.Len(t, started, 2)
	assert.Equal(t, ann, started[0].to)
	assert.Equal(t, bob, started[1].to)

	for _, s := range f.out.tagged(protocol.TagUpdate) {
		assert.True(t, s.msg.(*protocol.Update).Full)
	}
	current := f.out.tagged(protocol.TagSetCurrentPlayer)
	require.Len(t, current, 1)
	assert.Equal(t, ann, current[0].msg.(*protocol.SetCurrentPlayer).PlayerID)
}

func TestApplyRejectsForeignUnit(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ann, bob := f.startTwo(t)

	var unitID string
	var before world.Location
	f.read(t, func(w *world.World) {
		u := w.UnitsOf(bob)[0]
		unitID, before = u.ID, u.Location
	})
	sentBefore := f.out.count()

	_, err := f.ctrl.Apply(context.Background(), ann, func(w *world.World) (protocol.Message, error) {
		return &protocol.OK{}, w.MoveUnit(ann, unitID, world.West)
	})
	require.ErrorIs(t, err, world.ErrNotOwner)

	f.read(t, func(w *world.World) {
		u, err := world.Resolve[*world.Unit](w, unitID)
		require.NoError(t, err)
		assert.Equal(t, before, u.Location)
	})
	assert.Equal(t, sentBefore, f.out.count(), "rejected action must not broadcast")
}

func TestApplyOffTurn(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	_, bob := f.startTwo(t)

	ran := false
	_, err := f.ctrl.Apply(context.Background(), bob, func(*world.World) (protocol.Message, error) {
		ran = true
		return &protocol.OK{}, nil
	})
	require.ErrorIs(t, err, ErrNotCurrentPlayer)
	assert.False(t, ran)
}

func TestApplyPublishesDeltas(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ann, _ := f.startTwo(t)

	var ship string
	f.read(t, func(w *world.World) { ship = w.UnitsOf(ann)[0].ID })
	updates := len(f.out.tagged(protocol.TagUpdate))

	reply, err := f.ctrl.Apply(context.Background(), ann, func(w *world.World) (protocol.Message, error) {
		return &protocol.OK{}, w.ChangeState(ann, ship, world.StateSentry)
	})
	require.NoError(t, err)
	assert.IsType(t, &protocol.OK{}, reply)

	after := f.out.tagged(protocol.TagUpdate)[updates:]
	require.NotEmpty(t, after)
	assert.Equal(t, ann, after[0].to)
	delta := after[0].msg.(*protocol.Update)
	assert.False(t, delta.Full)
	require.Len(t, delta.Units, 1)
	assert.Equal(t, ship, delta.Units[0].ID)
}

func TestEndTurnRotatesAndStartsNewRound(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ann, bob := f.startTwo(t)
	ctx := context.Background()

	_, err := f.ctrl.EndTurn(ctx, bob)
	require.ErrorIs(t, err, ErrNotCurrentPlayer)

	report, err := f.ctrl.EndTurn(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, ann, report.Player)
	f.read(t, func(w *world.World) {
		assert.Equal(t, bob, w.CurrentPlayer)
		assert.Equal(t, 1, w.Turn)
	})
	assert.Empty(t, f.out.tagged(protocol.TagNewTurn))

	_, err = f.ctrl.EndTurn(ctx, bob)
	require.NoError(t, err)
	f.read(t, func(w *world.World) {
		assert.Equal(t, ann, w.CurrentPlayer)
		assert.Equal(t, 2, w.Turn)
	})
	turns := f.out.tagged(protocol.TagNewTurn)
	require.Len(t, turns, 1)
	assert.Equal(t, 2, turns[0].msg.(*protocol.NewTurn).Turn)
}

func TestImplicitEndTurn(t *testing.T) {
	f := newFixture(t, ControllerConfig{ImplicitEndTurn: true}, nil)
	ann, bob := f.startTwo(t)

	var ship string
	f.read(t, func(w *world.World) { ship = w.UnitsOf(ann)[0].ID })
	_, err := f.ctrl.Apply(context.Background(), ann, func(w *world.World) (protocol.Message, error) {
		return &protocol.OK{}, w.ChangeState(ann, ship, world.StateSentry)
	})
	require.NoError(t, err)
	f.read(t, func(w *world.World) { assert.Equal(t, bob, w.CurrentPlayer) })
}

func TestAITurnIsAtomic(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()

	hal, err := f.lobby.AddAIPlayer(ctx, "hal", "french")
	require.NoError(t, err)
	ann, err := f.lobby.AddPlayer(ctx, "ann", "dutch")
	require.NoError(t, err)
	f.lobby.cfg.MinPlayers = 1

	var applied []string
	var offTurn error
	ai := scriptedAI(func(ctx context.Context) error {
		var colonist string
		_ = f.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
			colonist = w.UnitsOf(hal.ID)[2].ID
			return nil
		})
		states := []world.UnitState{world.StateActive, world.StateSentry}
		for i := 0; i < 5; i++ {
			_, err := f.ctrl.Apply(ctx, hal.ID, func(w *world.World) (protocol.Message, error) {
				applied = append(applied, w.CurrentPlayer)
				return &protocol.OK{}, w.ChangeState(hal.ID, colonist, states[i%2])
			})
			if err != nil {
				return err
			}
			if i == 2 {
				_, offTurn = f.ctrl.Apply(ctx, ann.PlayerID, func(*world.World) (protocol.Message, error) {
					return &protocol.OK{}, nil
				})
			}
		}
		_, err := f.ctrl.EndTurn(ctx, hal.ID)
		return err
	})
	require.NoError(t, f.ctrl.AttachAI(ctx, hal.ID, ai))

	require.NoError(t, f.lobby.SetReady(ctx, ann.PlayerID, true))
	require.NoError(t, f.lobby.StartGame(ctx, ann.PlayerID))

	assert.Equal(t, []string{hal.ID, hal.ID, hal.ID, hal.ID, hal.ID}, applied)
	require.ErrorIs(t, offTurn, ErrNotCurrentPlayer)
	f.read(t, func(w *world.World) { assert.Equal(t, ann.PlayerID, w.CurrentPlayer) })

	current := f.out.tagged(protocol.TagSetCurrentPlayer)
	require.Len(t, current, 2)
	assert.Equal(t, hal.ID, current[0].msg.(*protocol.SetCurrentPlayer).PlayerID)
	assert.Equal(t, ann.PlayerID, current[1].msg.(*protocol.SetCurrentPlayer).PlayerID)
}

func TestAIWithoutDriverIsSkipped(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()
	ann, err := f.lobby.AddPlayer(ctx, "ann", "dutch")
	require.NoError(t, err)
	_, err = f.lobby.AddAIPlayer(ctx, "hal", "")
	require.NoError(t, err)
	f.lobby.cfg.MinPlayers = 1
	require.NoError(t, f.lobby.SetReady(ctx, ann.PlayerID, true))
	require.NoError(t, f.lobby.StartGame(ctx, ann.PlayerID))

	_, err = f.ctrl.EndTurn(ctx, ann.PlayerID)
	require.NoError(t, err)
	f.read(t, func(w *world.World) {
		assert.Equal(t, ann.PlayerID, w.CurrentPlayer)
		assert.Equal(t, 2, w.Turn)
	})
}

func TestAIOnlyGameRunsToTheEnd(t *testing.T) {
	writer := NewWriter(time.Second)
	t.Cleanup(writer.Stop)
	out := &recordingBroadcaster{}

	w := world.New("ai-only", 3, testOptions(map[string]int{world.OptionLastTurn: 4}))
	w.AddPlayer("hal", "dutch", world.PlayerAI)
	w.AddPlayer("eve", "english", world.PlayerAI)
	require.NoError(t, w.Generate())

	ctrl := NewController(world.New("placeholder", 1, nil), writer, out, nil, ControllerConfig{})
	ended := make(chan struct{})
	ctrl.OnPhaseChange(func(p Phase) {
		if p == PhaseEnding {
			close(ended)
		}
	})
	require.NoError(t, ctrl.Install(context.Background(), w))
	require.NoError(t, ctrl.Resume(context.Background()))

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("AI-only game did not finish")
	}
	result := out.tagged(protocol.TagGameEnded)
	require.Len(t, result, 1)
	assert.Equal(t, "lastTurn", result[0].msg.(*protocol.GameEnded).Reason)
	assert.Len(t, out.tagged(protocol.TagNewTurn), 4)
}

func TestVictoryRecordsHighScores(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, map[string]int{world.OptionLastTurn: 1})
	ann, bob := f.startTwo(t)
	ctx := context.Background()

	_, err := f.ctrl.EndTurn(ctx, ann)
	require.NoError(t, err)
	_, err = f.ctrl.EndTurn(ctx, bob)
	require.NoError(t, err)

	assert.Equal(t, PhaseEnding, f.ctrl.Phase())
	ended := f.out.tagged(protocol.TagGameEnded)
	require.Len(t, ended, 1)
	assert.Len(t, ended[0].msg.(*protocol.GameEnded).Scores, 2)

	_, err = f.ctrl.EndTurn(ctx, ann)
	require.ErrorIs(t, err, ErrWrongPhase)

	f.ctrl.Wait()
	top, err := f.ctrl.HighScores(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "game-1", top[0].GameID)
	assert.Equal(t, 2, top[0].Turn)
}

func TestHighScoresOffline(t *testing.T) {
	writer := NewWriter(time.Second)
	t.Cleanup(writer.Stop)
	ctrl := NewController(nil, writer, nil, nil, ControllerConfig{})
	_, err := ctrl.HighScores(context.Background(), 5)
	require.ErrorIs(t, err, ErrHighScoresOffline)
}

func TestDiplomacy(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ann, bob := f.startTwo(t)
	ctx := context.Background()

	stance := func() world.Stance {
		var s world.Stance
		f.read(t, func(w *world.World) {
			p, err := w.Player(ann)
			require.NoError(t, err)
			s = p.Stance(bob)
		})
		return s
	}

	_, err := f.ctrl.Diplomacy(ctx, ann, &protocol.Diplomacy{To: bob, Stance: world.StanceWar})
	require.NoError(t, err)
	assert.Equal(t, world.StanceWar, stance())

	_, err = f.ctrl.Diplomacy(ctx, bob, &protocol.Diplomacy{To: ann, Stance: world.StancePeace, Accept: true})
	require.ErrorIs(t, err, ErrNoProposal)

	_, err = f.ctrl.Diplomacy(ctx, ann, &protocol.Diplomacy{To: bob, Stance: world.StancePeace})
	require.NoError(t, err)
	assert.Equal(t, world.StanceWar, stance(), "peace needs acceptance")

	offers := f.out.tagged(protocol.TagDiplomacy)
	require.NotEmpty(t, offers)
	assert.Equal(t, bob, offers[len(offers)-1].to)

	_, err = f.ctrl.Diplomacy(ctx, bob, &protocol.Diplomacy{To: ann, Stance: world.StancePeace, Accept: true})
	require.NoError(t, err)
	assert.Equal(t, world.StancePeace, stance())
}

func TestDiplomacyWithAIAccepts(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()
	ann, err := f.lobby.AddPlayer(ctx, "ann", "dutch")
	require.NoError(t, err)
	hal, err := f.lobby.AddAIPlayer(ctx, "hal", "french")
	require.NoError(t, err)
	f.lobby.cfg.MinPlayers = 1
	require.NoError(t, f.lobby.SetReady(ctx, ann.PlayerID, true))
	require.NoError(t, f.lobby.StartGame(ctx, ann.PlayerID))

	_, err = f.ctrl.Diplomacy(ctx, ann.PlayerID, &protocol.Diplomacy{To: hal.ID, Stance: world.StanceWar})
	require.NoError(t, err)
	reply, err := f.ctrl.Diplomacy(ctx, ann.PlayerID, &protocol.Diplomacy{To: hal.ID, Stance: world.StancePeace})
	require.NoError(t, err)
	d, ok := reply.(*protocol.Diplomacy)
	require.True(t, ok)
	assert.True(t, d.Accept)
	assert.Equal(t, hal.ID, d.From)
}

func TestScores(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	_, err := f.ctrl.Scores(context.Background())
	require.ErrorIs(t, err, ErrWrongPhase)

	f.startTwo(t)
	s, err := f.ctrl.Scores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Turn)
	assert.Len(t, s.Scores, 2)
}

func TestSaveAndAutosave(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, ControllerConfig{AutosaveTurns: 1, SaveDir: dir, Meta: savegame.Metadata{Owner: "ann"}}, nil)
	f.ctrl.SetAIStateSource(func() ([]byte, error) { return []byte(`{"players":{}}`), nil })
	ann, bob := f.startTwo(t)
	ctx := context.Background()

	path := filepath.Join(dir, "manual.fsg")
	require.NoError(t, f.ctrl.Save(ctx, path, []byte("png")))
	g, err := savegame.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, g.World.Turn)
	assert.Equal(t, "ann", g.Meta.Owner)
	assert.Equal(t, []byte("png"), g.Meta.Thumbnail)
	assert.JSONEq(t, `{"players":{}}`, string(g.AIState))

	_, err = f.ctrl.EndTurn(ctx, ann)
	require.NoError(t, err)
	_, err = f.ctrl.EndTurn(ctx, bob)
	require.NoError(t, err)
	f.ctrl.Wait()

	_, err = os.Stat(filepath.Join(dir, AutosaveName))
	require.NoError(t, err)
	auto, err := savegame.LoadFile(filepath.Join(dir, AutosaveName))
	require.NoError(t, err)
	assert.Equal(t, 2, auto.World.Turn)
}

func TestInstallReplacesWorld(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	f.startTwo(t)

	w := world.New("loaded", 9, testOptions(nil))
	p := w.AddPlayer("cid", "spanish", world.PlayerHuman)
	require.NoError(t, w.Generate())

	require.NoError(t, f.ctrl.Install(context.Background(), w))
	assert.Equal(t, PhaseInGame, f.ctrl.Phase())
	assert.Same(t, w, f.ctrl.World())
	got, err := f.ctrl.Started().Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, w, got)

	u, err := f.ctrl.FullUpdate(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, u.Full)
	assert.NotEmpty(t, u.Units)
}
