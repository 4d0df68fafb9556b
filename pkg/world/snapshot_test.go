package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generatedWorld(t *testing.T) *World {
	t.Helper()
	w := New("snap", 11, map[string]int{OptionMapWidth: 16, OptionMapHeight: 10})
	w.AddPlayer("ann", "dutch", PlayerHuman)
	w.AddPlayer("bob", "french", PlayerAI)
	require.NoError(t, w.Generate())
	return w
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := generatedWorld(t)
	ann := w.Players()[0]
	ship := w.UnitsOf(ann.ID)[0]
	require.NoError(t, w.MoveUnit(ann.ID, ship.ID, West))
	cargo := w.Cargo(ship.ID)
	require.NoError(t, w.DisbandUnit(ann.ID, cargo[1].ID))

	data, err := json.Marshal(w.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := FromSnapshot(&snap)
	require.NoError(t, err)
	assert.Equal(t, snapshotJSON(t, w), snapshotJSON(t, restored))
	assert.Equal(t, w.CurrentPlayer, restored.CurrentPlayer)

	_, err = restored.Lookup(cargo[1].ID)
	assert.ErrorIs(t, err, ErrDisposed)

	// Counters survive, so new ids never collide with old ones.
	u, err := restored.RecruitUnit(ann.ID, UnitColonist)
	require.NoError(t, err)
	assert.False(t, w.IsDisposed(u.ID))
	_, err = w.Lookup(u.ID)
	assert.ErrorIs(t, err, ErrUnknownObject)
}

func TestFromSnapshotRejectsLegacyStates(t *testing.T) {
	w := generatedWorld(t)
	snap := w.Snapshot()
	snap.Units[0].State = StateLegacyToEurope

	_, err := FromSnapshot(snap)
	assert.ErrorIs(t, err, ErrLegacyState)
}

func TestFromSnapshotRejectsDanglingReferences(t *testing.T) {
	w := generatedWorld(t)
	snap := w.Snapshot()
	snap.Units[len(snap.Units)-1].Location = Location{Kind: LocCarrier, ID: "unit:999"}

	_, err := FromSnapshot(snap)
	assert.ErrorIs(t, err, ErrUnknownObject)
}

func TestClassifyServerObjectsMatchesRoster(t *testing.T) {
	w := generatedWorld(t)
	ann := w.Players()[0]
	_, err := w.RecruitUnit(ann.ID, UnitColonist)
	require.NoError(t, err)

	assert.Equal(t, w.ServerObjects(), ClassifyServerObjects(w.Snapshot()))
}
