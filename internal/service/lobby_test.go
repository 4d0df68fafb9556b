package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

func TestLobbyStartRequiresReadyPlayers(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()

	var phases []Phase
	f.ctrl.OnPhaseChange(func(p Phase) { phases = append(phases, p) })

	ann, err := f.lobby.AddPlayer(ctx, "ann", "")
	require.NoError(t, err)
	assert.True(t, ann.Host)
	assert.NotEmpty(t, ann.PlayerID)
	assert.NotEmpty(t, ann.Token)

	require.NoError(t, f.lobby.SetReady(ctx, ann.PlayerID, true))
	err = f.lobby.StartGame(ctx, ann.PlayerID)
	require.ErrorIs(t, err, ErrNotEnoughPlayers)

	bob, err := f.lobby.AddPlayer(ctx, "bob", "")
	require.NoError(t, err)
	assert.False(t, bob.Host)
	assert.NotEqual(t, ann.Nation, bob.Nation)

	err = f.lobby.StartGame(ctx, ann.PlayerID)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, PhaseStarting, f.ctrl.Phase())

	require.NoError(t, f.lobby.SetReady(ctx, bob.PlayerID, true))
	err = f.lobby.StartGame(ctx, bob.PlayerID)
	require.ErrorIs(t, err, ErrNotHost)

	require.NoError(t, f.lobby.StartGame(ctx, ann.PlayerID))
	assert.Equal(t, PhaseInGame, f.ctrl.Phase())
	assert.Equal(t, []Phase{PhaseInGame}, phases)

	_, err = f.lobby.AddPlayer(ctx, "cid", "")
	require.ErrorIs(t, err, ErrWrongPhase)
	require.ErrorIs(t, f.lobby.StartGame(ctx, ann.PlayerID), ErrWrongPhase)
}

func TestLobbyNamesAndNations(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()

	ann, err := f.lobby.AddPlayer(ctx, "ann", "dutch")
	require.NoError(t, err)
	assert.Equal(t, "dutch", ann.Nation)

	_, err = f.lobby.AddPlayer(ctx, "ann", "english")
	require.ErrorIs(t, err, ErrNameTaken)
	_, err = f.lobby.AddPlayer(ctx, "bob", "dutch")
	require.ErrorIs(t, err, world.ErrInvalidArgument)
	_, err = f.lobby.AddPlayer(ctx, "bob", "atlantean")
	require.ErrorIs(t, err, world.ErrInvalidArgument)

	bob, err := f.lobby.AddPlayer(ctx, "bob", "english")
	require.NoError(t, err)
	require.ErrorIs(t, f.lobby.SetNation(ctx, bob.PlayerID, "dutch"), world.ErrInvalidArgument)
	require.NoError(t, f.lobby.SetNation(ctx, bob.PlayerID, "french"))

	state, err := f.lobby.State(ctx)
	require.NoError(t, err)
	require.Len(t, state.Players, 2)
	assert.Equal(t, "french", state.Players[1].Nation)
	assert.True(t, state.Players[0].Host)

	pushes := f.out.tagged(protocol.TagLobbyState)
	assert.Len(t, pushes, 3, "two joins and one nation change")
}

func TestLobbyFull(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		_, err := f.lobby.AddPlayer(ctx, name, "")
		require.NoError(t, err)
	}
	_, err := f.lobby.AddPlayer(ctx, "i", "")
	require.ErrorIs(t, err, ErrLobbyFull)
}

func TestLobbyOptions(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()
	ann, err := f.lobby.AddPlayer(ctx, "ann", "")
	require.NoError(t, err)
	bob, err := f.lobby.AddPlayer(ctx, "bob", "")
	require.NoError(t, err)

	err = f.lobby.UpdateOptions(ctx, bob.PlayerID, map[string]int{world.OptionLastTurn: 10})
	require.ErrorIs(t, err, ErrNotHost)

	err = f.lobby.UpdateOptions(ctx, ann.PlayerID, map[string]int{world.OptionLastTurn: 10, "fogOfWar": 1})
	require.ErrorIs(t, err, ErrUnknownOption)

	require.NoError(t, f.lobby.UpdateOptions(ctx, ann.PlayerID, map[string]int{world.OptionLastTurn: 10}))
	state, err := f.lobby.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, state.Options[world.OptionLastTurn])
}

func TestLobbyLeaveReassignsHost(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()
	ann, err := f.lobby.AddPlayer(ctx, "ann", "")
	require.NoError(t, err)
	_, err = f.lobby.AddAIPlayer(ctx, "hal", "")
	require.NoError(t, err)
	bob, err := f.lobby.AddPlayer(ctx, "bob", "")
	require.NoError(t, err)

	require.NoError(t, f.lobby.Leave(ctx, ann.PlayerID))
	host, err := f.lobby.Host(ctx)
	require.NoError(t, err)
	assert.Equal(t, bob.PlayerID, host)

	state, err := f.lobby.State(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Players, 2)

	f.read(t, func(w *world.World) {
		assert.True(t, w.IsDisposed(ann.PlayerID))
	})
}

func TestLobbyLeaveInGameKeepsSeat(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ann, _ := f.startTwo(t)

	require.NoError(t, f.lobby.Leave(context.Background(), ann))
	f.read(t, func(w *world.World) {
		_, err := w.Player(ann)
		assert.NoError(t, err)
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t, ControllerConfig{}, nil)
	ctx := context.Background()
	ann, err := f.lobby.AddPlayer(ctx, "ann", "")
	require.NoError(t, err)
	hal, err := f.lobby.AddAIPlayer(ctx, "hal", "")
	require.NoError(t, err)

	bound := map[string]bool{}
	f.lobby.SetBoundCheck(func(id string) bool { return bound[id] })

	reply, err := f.lobby.Login(ctx, "ann", ann.Token)
	require.NoError(t, err)
	assert.Equal(t, ann.PlayerID, reply.PlayerID)
	assert.Equal(t, string(PhaseStarting), reply.Phase)
	assert.True(t, reply.Host)

	reply, err = f.lobby.Login(ctx, "ann", "")
	require.NoError(t, err)
	assert.Equal(t, ann.PlayerID, reply.PlayerID)

	bound[ann.PlayerID] = true
	_, err = f.lobby.Login(ctx, "ann", ann.Token)
	require.ErrorIs(t, err, ErrSeatTaken)

	cases := []struct {
		name, user, token string
	}{
		{"garbage token", "ann", "garbage"},
		{"other game", "ann", ann.PlayerID + "@elsewhere"},
		{"name mismatch", "bob", ann.Token},
		{"unknown name", "zed", ""},
		{"AI seat", "hal", hal.ID + "@game-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.lobby.Login(ctx, tc.user, tc.token)
			require.ErrorIs(t, err, ErrBadToken)
		})
	}
}
