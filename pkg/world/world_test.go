package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDsAreNeverReused(t *testing.T) {
	w := newTestWorld(t, 8, 6)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		u := placeUnit(w, p, UnitColonist, 1, 1)
		require.False(t, seen[u.ID], "id %s reused", u.ID)
		seen[u.ID] = true
		if i%2 == 0 {
			require.NoError(t, w.DisbandUnit(p.ID, u.ID))
		}
	}
	assert.Len(t, seen, 20)
}

func TestDisposedIDResolvesToDisposed(t *testing.T) {
	w := newTestWorld(t, 8, 6)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)
	u := placeUnit(w, p, UnitColonist, 1, 1)
	require.NoError(t, w.DisbandUnit(p.ID, u.ID))

	_, err := w.Lookup(u.ID)
	assert.ErrorIs(t, err, ErrDisposed)
	assert.True(t, w.IsDisposed(u.ID))

	next := placeUnit(w, p, UnitColonist, 1, 1)
	assert.NotEqual(t, u.ID, next.ID)
	_, err = Resolve[*Unit](w, u.ID)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestResolveChecksType(t *testing.T) {
	w := newTestWorld(t, 8, 6)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)

	_, err := Resolve[*Unit](w, p.ID)
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = Resolve[*Unit](w, "unit:999")
	assert.ErrorIs(t, err, ErrUnknownObject)

	got, err := Resolve[*Player](w, p.ID)
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestSetNationUnique(t *testing.T) {
	w := New("g", 1, nil)
	a := w.AddPlayer("ann", "", PlayerHuman)
	b := w.AddPlayer("bob", "", PlayerHuman)

	require.NoError(t, w.SetNation(a.ID, "dutch"))
	assert.ErrorIs(t, w.SetNation(b.ID, "dutch"), ErrInvalidArgument)
	assert.ErrorIs(t, w.SetNation(b.ID, "atlantean"), ErrInvalidArgument)
	require.NoError(t, w.SetNation(b.ID, "french"))

	require.NoError(t, w.KillPlayer(a.ID))
	require.NoError(t, w.SetNation(b.ID, "dutch"), "dead players release their nation")
	assert.Equal(t, "english", w.FreeNation())
}

func TestGeneratePlacesStartingUnits(t *testing.T) {
	w := New("g", 7, map[string]int{OptionMapWidth: 20, OptionMapHeight: 12})
	a := w.AddPlayer("ann", "dutch", PlayerHuman)
	b := w.AddPlayer("bob", "french", PlayerAI)
	require.NoError(t, w.Generate())
	assert.ErrorIs(t, w.Generate(), ErrAlreadyGenerated)

	assert.Equal(t, a.ID, w.CurrentPlayer)
	for _, p := range []*Player{a, b} {
		units := w.UnitsOf(p.ID)
		require.Len(t, units, 3)
		ship := units[0]
		assert.Equal(t, UnitCaravel, ship.Type)
		assert.Equal(t, ship.Location.ID, p.Entry)
		assert.Len(t, w.Cargo(ship.ID), 2)
		assert.Positive(t, p.ExploredCount())
	}

	players := w.Players()
	require.Len(t, players, 3)
	assert.Equal(t, PlayerNative, players[2].Kind)
	assert.NotEmpty(t, w.SettlementsOf(players[2].ID))
}

func TestGenerateIsDeterministic(t *testing.T) {
	build := func() string {
		w := New("g", 99, map[string]int{OptionMapWidth: 16, OptionMapHeight: 10})
		w.AddPlayer("ann", "dutch", PlayerHuman)
		require.NoError(t, w.Generate())
		return snapshotJSON(t, w)
	}
	assert.Equal(t, build(), build())
}

func TestRemovePlayerOnlyBeforeStart(t *testing.T) {
	w := New("g", 1, map[string]int{OptionMapWidth: 12, OptionMapHeight: 8, OptionNativeSettlements: 0})
	a := w.AddPlayer("ann", "dutch", PlayerHuman)
	b := w.AddPlayer("bob", "french", PlayerHuman)

	require.NoError(t, w.RemovePlayer(a.ID))
	assert.Equal(t, []*Player{b}, w.Players())
	assert.True(t, w.IsDisposed(a.ID))
	assert.Equal(t, "dutch", w.FreeNation())

	require.NoError(t, w.Generate())
	assert.ErrorIs(t, w.RemovePlayer(b.ID), ErrInvalidArgument)
}
