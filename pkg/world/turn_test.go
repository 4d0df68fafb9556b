package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvancePlayer(t *testing.T) {
	w := New("g", 1, nil)
	a := w.AddPlayer("ann", "dutch", PlayerHuman)
	b := w.AddPlayer("bob", "french", PlayerAI)
	c := w.AddPlayer("cat", "english", PlayerHuman)
	w.CurrentPlayer = a.ID

	next, round := w.AdvancePlayer()
	assert.Equal(t, b, next)
	assert.False(t, round)

	require.NoError(t, w.KillPlayer(c.ID))
	next, round = w.AdvancePlayer()
	assert.Equal(t, a, next, "dead players are skipped")
	assert.True(t, round)
	assert.Equal(t, 2, w.Turn)

	require.NoError(t, w.KillPlayer(a.ID))
	require.NoError(t, w.KillPlayer(b.ID))
	next, _ = w.AdvancePlayer()
	assert.Nil(t, next)
	assert.Empty(t, w.CurrentPlayer)
}

func TestEndTurnResetsMovesAndProduces(t *testing.T) {
	w := newTestWorld(t, 10, 8)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)
	founder := placeUnit(w, p, UnitColonist, 3, 3)
	s, err := w.BuildColony(p.ID, founder.ID, "Jamestown")
	require.NoError(t, err)
	scout := placeUnit(w, p, UnitScout, 5, 5)
	require.NoError(t, w.MoveUnit(p.ID, scout.ID, South))

	report, err := w.EndTurn(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, report.Player)
	assert.Equal(t, 12, scout.MovesLeft)
	// Plains give 5 food per farmer plus 5 from the colony tile, minus 2
	// eaten by the single colonist.
	assert.Equal(t, 8, s.Stock[GoodsFood])
	assert.Equal(t, colonyCenterFurs, s.Stock[GoodsFurs])
	assert.Positive(t, p.Score)
}

func TestEndTurnGrowsAndBuilds(t *testing.T) {
	w := newTestWorld(t, 10, 8)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)
	founder := placeUnit(w, p, UnitColonist, 3, 3)
	s, err := w.BuildColony(p.ID, founder.ID, "Jamestown")
	require.NoError(t, err)
	require.NoError(t, w.SetBuildQueue(p.ID, s.ID, "docks"))
	assert.ErrorIs(t, w.SetBuildQueue(p.ID, s.ID, "castle"), ErrInvalidArgument)

	s.Stock[GoodsFood] = colonyGrowthFood
	s.Stock[GoodsHammers] = 60

	report, err := w.EndTurn(p.ID)
	require.NoError(t, err)
	require.Len(t, report.Born, 1)
	require.Len(t, report.Built, 1)
	assert.True(t, s.HasBuilding("docks"))
	assert.Empty(t, s.BuildTarget)
	assert.ErrorIs(t, w.SetBuildQueue(p.ID, s.ID, "docks"), ErrIllegalMove)

	born, err := Resolve[*Unit](w, report.Born[0])
	require.NoError(t, err)
	assert.Equal(t, Location{Kind: LocTile, ID: s.Tile}, born.Location)
}

func TestEndTurnCarpentersNeedLumber(t *testing.T) {
	w := newTestWorld(t, 10, 8)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)
	founder := placeUnit(w, p, UnitColonist, 3, 3)
	s, err := w.BuildColony(p.ID, founder.ID, "Jamestown")
	require.NoError(t, err)
	require.NoError(t, w.JoinColony(p.ID, founder.ID, s.ID, GoodsHammers))

	_, err = w.EndTurn(p.ID)
	require.NoError(t, err)
	assert.Zero(t, s.Stock[GoodsHammers])

	s.Stock[GoodsLumber] = 2
	_, err = w.EndTurn(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Stock[GoodsHammers])
	assert.Zero(t, s.Stock[GoodsLumber])
}

func TestEndTurnImmigration(t *testing.T) {
	w := newTestWorld(t, 10, 8)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)
	placeUnit(w, p, UnitColonist, 3, 3)
	p.Immigration = p.RecruitThreshold - 1

	report, err := w.EndTurn(p.ID)
	require.NoError(t, err)
	require.Len(t, report.Recruited, 1)
	recruit, err := Resolve[*Unit](w, report.Recruited[0])
	require.NoError(t, err)
	assert.Equal(t, LocEurope, recruit.Location.Kind)
	assert.Equal(t, w.Option(OptionRecruitThreshold)+10, p.RecruitThreshold)
}

func TestEndTurnMarksDeadPlayers(t *testing.T) {
	w := newTestWorld(t, 10, 8)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)

	report, err := w.EndTurn(p.ID)
	require.NoError(t, err)
	assert.True(t, report.Died)
	assert.True(t, p.Dead)

	_, err = w.EndTurn(p.ID)
	assert.ErrorIs(t, err, ErrPlayerDead)
}

func TestHasMovableUnits(t *testing.T) {
	w := newTestWorld(t, 10, 8)
	p := w.AddPlayer("ann", "dutch", PlayerHuman)
	u := placeUnit(w, p, UnitColonist, 3, 3)
	assert.True(t, w.HasMovableUnits(p.ID))

	require.NoError(t, w.ChangeState(p.ID, u.ID, StateFortified))
	assert.False(t, w.HasMovableUnits(p.ID))

	require.NoError(t, w.ChangeState(p.ID, u.ID, StateActive))
	require.NoError(t, w.MoveUnit(p.ID, u.ID, North))
	assert.False(t, w.HasMovableUnits(p.ID))
}

func TestCheckVictory(t *testing.T) {
	w := New("g", 1, map[string]int{OptionVictoryScore: 50, OptionLastTurn: 10})
	a := w.AddPlayer("ann", "dutch", PlayerHuman)
	b := w.AddPlayer("bob", "french", PlayerHuman)
	w.AddPlayer("arawak", NativeNation, PlayerNative)

	assert.False(t, w.CheckVictory().Over)

	b.Score = 60
	out := w.CheckVictory()
	assert.Equal(t, Outcome{Over: true, Winner: b.ID, Reason: "score"}, out)

	b.Score = 0
	a.Score = 5
	w.Turn = 11
	out = w.CheckVictory()
	assert.Equal(t, Outcome{Over: true, Winner: a.ID, Reason: "lastTurn"}, out)

	w.Turn = 3
	require.NoError(t, w.KillPlayer(a.ID))
	out = w.CheckVictory()
	assert.Equal(t, Outcome{Over: true, Winner: b.ID, Reason: "lastSurvivor"}, out)
}
