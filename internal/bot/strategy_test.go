package bot

import (
	"testing"

	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

func TestStrategyByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"idle", StrategyIdle},
		{"explorer", StrategyExplorer},
		{"", StrategyExplorer},
		{"grandmaster", StrategyExplorer},
	}
	for _, tt := range tests {
		if got := StrategyByName(tt.name).Name(); got != tt.want {
			t.Errorf("StrategyByName(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestIdleStrategyPlansNothing(t *testing.T) {
	w, p := newWorld(t)
	if plan := (IdleStrategy{}).PlanTurn(w, p); len(plan) != 0 {
		t.Errorf("expected empty plan, got %d actions", len(plan))
	}
}

func TestExplorerWithoutMap(t *testing.T) {
	w := world.New("empty", 1, nil)
	p := w.AddPlayer("hal", "dutch", world.PlayerAI)
	if plan := NewExplorerStrategy().PlanTurn(w, p); plan != nil {
		t.Errorf("expected no plan before the map exists, got %d", len(plan))
	}
}

func TestExplorerFirstTurnSailsAndRecruits(t *testing.T) {
	w, p := newWorld(t)
	s := NewExplorerStrategy()

	plan := s.PlanTurn(w, p)
	var moves, recruits int
	for _, msg := range plan {
		switch msg.(type) {
		case *protocol.Move:
			moves++
		case *protocol.RecruitUnit:
			recruits++
		}
	}
	if moves != 1 {
		t.Errorf("expected the ship to move, got %d moves", moves)
	}
	if recruits != 1 {
		t.Errorf("expected one recruit with starting gold %d, got %d", p.Gold, recruits)
	}

	// recruiting is limited to once per turn
	for _, msg := range s.PlanTurn(w, p) {
		if _, ok := msg.(*protocol.RecruitUnit); ok {
			t.Error("recruited twice in one turn")
		}
	}
}

func TestExplorerFoundsColony(t *testing.T) {
	w, p := newWorld(t)
	s := NewExplorerStrategy()

	for turn := 0; turn < 4 && len(w.SettlementsOf(p.ID)) == 0; turn++ {
		playTurn(t, w, p, s)
	}
	colonies := w.SettlementsOf(p.ID)
	if len(colonies) == 0 {
		t.Fatal("expected a colony within four turns")
	}
	if colonies[0].Name != "New Dutch 1" {
		t.Errorf("unexpected colony name %q", colonies[0].Name)
	}

	playTurn(t, w, p, s)
	if colonies[0].BuildTarget == "" && len(colonies[0].Buildings) == 0 {
		t.Error("expected the colony to get a build target")
	}
}

func TestExplorerFerriesRecruits(t *testing.T) {
	w, p := newWorld(t)
	s := NewExplorerStrategy()

	sawEurope := false
	for turn := 0; turn < 20; turn++ {
		for _, msg := range playTurn(t, w, p, s) {
			if _, ok := msg.(*protocol.SailToEurope); ok {
				sawEurope = true
			}
		}
	}
	if !sawEurope {
		t.Fatal("expected the ship to fetch recruits from Europe")
	}
	onLand := 0
	for _, u := range w.UnitsOf(p.ID) {
		if !u.Naval() && (u.Location.Kind == world.LocTile || u.Location.Kind == world.LocSettlement) {
			onLand++
		}
	}
	if onLand < 3 {
		t.Errorf("expected recruits to reach the map, %d land units ashore", onLand)
	}
}

func TestExplorerMissionsSurviveRestore(t *testing.T) {
	w, p := newWorld(t)
	s := NewExplorerStrategy()
	for turn := 0; turn < 2; turn++ {
		playTurn(t, w, p, s)
	}
	missions := s.Missions()
	if len(missions) == 0 {
		t.Fatal("expected missions once units are ashore")
	}

	restored := NewExplorerStrategy()
	restored.RestoreMissions(missions)
	for id, m := range missions {
		if restored.missions[id] != m {
			t.Errorf("mission for %s: got %q, want %q", id, restored.missions[id], m)
		}
	}

	missions["unit:999"] = missionExplore
	if _, ok := s.missions["unit:999"]; ok {
		t.Error("Missions must return a copy")
	}
}

func TestColonyName(t *testing.T) {
	w, p := newWorld(t)
	if got := colonyName(w, p); got != "New Dutch 1" {
		t.Errorf("got %q", got)
	}
}
