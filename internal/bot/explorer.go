package bot

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

// Unit missions.
const (
	missionFound   = "found"
	missionExplore = "explore"
)

// ExplorerStrategy ferries its units ashore, founds colonies with its
// colonists, walks the other land units toward unexplored tiles and buys a
// colonist in Europe whenever it can afford one.
type ExplorerStrategy struct {
	missions    map[string]string
	recruitTurn int
}

// NewExplorerStrategy returns an explorer with no missions assigned.
func NewExplorerStrategy() *ExplorerStrategy {
	return &ExplorerStrategy{missions: make(map[string]string), recruitTurn: -1}
}

func (e *ExplorerStrategy) Name() string { return StrategyExplorer }

// Missions returns a copy of the per-unit missions.
func (e *ExplorerStrategy) Missions() map[string]string {
	return maps.Clone(e.missions)
}

// RestoreMissions replaces the per-unit missions.
func (e *ExplorerStrategy) RestoreMissions(m map[string]string) {
	e.missions = make(map[string]string, len(m))
	maps.Copy(e.missions, m)
}

func (e *ExplorerStrategy) PlanTurn(w *world.World, p *world.Player) []protocol.Message {
	if w.Map == nil || p == nil || p.Dead {
		return nil
	}
	if e.missions == nil {
		e.missions = make(map[string]string)
	}
	e.prune(w, p)

	var out []protocol.Message
	out = append(out, e.planColonies(w, p)...)
	out = append(out, e.planEurope(w, p)...)

	waiting := len(landInEurope(w, p.ID))
	for _, u := range w.UnitsOf(p.ID) {
		if u.MovesLeft <= 0 || u.State == world.StateInTransit {
			continue
		}
		var msg protocol.Message
		switch {
		case u.Location.Kind == world.LocCarrier:
			msg = e.planLanding(w, p, u)
		case u.Location.Kind != world.LocTile:
		case u.Naval():
			msg = e.planShip(w, p, u, waiting)
		default:
			msg = e.planLand(w, p, u)
		}
		if msg != nil {
			out = append(out, msg)
		}
	}

	if colonist, _ := world.LookupUnitType(world.UnitColonist); e.recruitTurn != w.Turn && p.Gold >= colonist.Price {
		e.recruitTurn = w.Turn
		out = append(out, &protocol.RecruitUnit{UnitType: world.UnitColonist})
	}
	return out
}

// prune drops missions of units that are gone or no longer on the map.
func (e *ExplorerStrategy) prune(w *world.World, p *world.Player) {
	for id := range e.missions {
		u, err := world.Resolve[*world.Unit](w, id)
		if err != nil || u.Owner != p.ID || u.Location.Kind == world.LocSettlement {
			delete(e.missions, id)
		}
	}
}

func (e *ExplorerStrategy) planColonies(w *world.World, p *world.Player) []protocol.Message {
	var out []protocol.Message
	buildings := buildingOrder()
	for _, s := range w.SettlementsOf(p.ID) {
		if s.Kind != world.SettlementColony || s.BuildTarget != "" {
			continue
		}
		for _, b := range buildings {
			if !s.HasBuilding(b) {
				out = append(out, &protocol.SetBuildQueue{Colony: s.ID, Building: b})
				break
			}
		}
	}
	return out
}

// planEurope boards waiting units onto docked ships and sends loaded ships
// back to the map.
func (e *ExplorerStrategy) planEurope(w *world.World, p *world.Player) []protocol.Message {
	var out []protocol.Message
	waiting := landInEurope(w, p.ID)
	for _, ship := range w.UnitsOf(p.ID) {
		if !ship.Naval() || ship.Location.Kind != world.LocEurope {
			continue
		}
		free := ship.TypeInfo().Space - len(w.Cargo(ship.ID))
		for free > 0 && len(waiting) > 0 {
			out = append(out, &protocol.Embark{Unit: waiting[0].ID, Carrier: ship.ID})
			waiting = waiting[1:]
			free--
		}
		out = append(out, &protocol.SailToAmerica{Unit: ship.ID})
	}
	return out
}

// planLanding steps a unit off its carrier onto adjacent land, preferring
// a tile where a colony could be founded.
func (e *ExplorerStrategy) planLanding(w *world.World, p *world.Player, u *world.Unit) protocol.Message {
	if u.Naval() {
		return nil
	}
	t := w.UnitTile(u)
	if t == nil {
		return nil
	}
	if d, ok := directionTo(w.Map, t, func(n *world.Tile) bool { return colonySite(w, p, n) }); ok {
		return &protocol.Move{Unit: u.ID, Direction: d}
	}
	if d, ok := directionTo(w.Map, t, landPassable(w, p)); ok {
		return &protocol.Move{Unit: u.ID, Direction: d}
	}
	return nil
}

func (e *ExplorerStrategy) planShip(w *world.World, p *world.Player, u *world.Unit, waiting int) protocol.Message {
	t := w.UnitTile(u)
	if t == nil {
		return nil
	}
	water := waterPassable(w, p)
	switch {
	case len(w.Cargo(u.ID)) > 0:
		if _, ok := directionTo(w.Map, t, landPassable(w, p)); ok {
			return nil
		}
		coast := func(n *world.Tile) bool {
			if !n.Water() {
				return false
			}
			_, ok := directionTo(w.Map, n, landPassable(w, p))
			return ok
		}
		if d, ok := stepToward(w.Map, t, water, coast); ok {
			return &protocol.Move{Unit: u.ID, Direction: d}
		}
	case waiting > 0:
		if t.HighSeas() {
			return &protocol.SailToEurope{Unit: u.ID}
		}
		if d, ok := stepToward(w.Map, t, water, (*world.Tile).HighSeas); ok {
			return &protocol.Move{Unit: u.ID, Direction: d}
		}
	default:
		unexplored := func(n *world.Tile) bool { return !p.Explored(n.ID) }
		if d, ok := stepToward(w.Map, t, water, unexplored); ok {
			return &protocol.Move{Unit: u.ID, Direction: d}
		}
	}
	return nil
}

func (e *ExplorerStrategy) planLand(w *world.World, p *world.Player, u *world.Unit) protocol.Message {
	t := w.UnitTile(u)
	if t == nil {
		return nil
	}
	mission, ok := e.missions[u.ID]
	if !ok {
		mission = missionExplore
		if u.Type == world.UnitColonist {
			mission = missionFound
		}
		e.missions[u.ID] = mission
	}
	passable := landPassable(w, p)

	if mission == missionFound {
		if colonySite(w, p, t) {
			return &protocol.BuildColony{Unit: u.ID, Name: colonyName(w, p)}
		}
		if d, ok := stepToward(w.Map, t, passable, func(n *world.Tile) bool { return colonySite(w, p, n) }); ok {
			return &protocol.Move{Unit: u.ID, Direction: d}
		}
		return nil
	}

	unexplored := func(n *world.Tile) bool { return !p.Explored(n.ID) }
	if d, ok := stepToward(w.Map, t, passable, unexplored); ok {
		return &protocol.Move{Unit: u.ID, Direction: d}
	}
	if u.State != world.StateFortified {
		return &protocol.ChangeState{Unit: u.ID, State: world.StateFortified}
	}
	return nil
}

func landInEurope(w *world.World, playerID string) []*world.Unit {
	var out []*world.Unit
	for _, u := range w.UnitsOf(playerID) {
		if !u.Naval() && u.Location.Kind == world.LocEurope {
			out = append(out, u)
		}
	}
	return out
}

func occupiedByOthers(w *world.World, playerID string, t *world.Tile) bool {
	for _, o := range w.UnitsAt(t.ID) {
		if o.Owner != playerID {
			return true
		}
	}
	if s := w.SettlementAt(t); s != nil && s.Owner != playerID {
		return true
	}
	return false
}

func landPassable(w *world.World, p *world.Player) func(*world.Tile) bool {
	return func(t *world.Tile) bool {
		return !t.Water() && !occupiedByOthers(w, p.ID, t)
	}
}

func waterPassable(w *world.World, p *world.Player) func(*world.Tile) bool {
	return func(t *world.Tile) bool {
		return t.Water() && !occupiedByOthers(w, p.ID, t)
	}
}

// colonySite reports whether a colony may be founded on t.
func colonySite(w *world.World, p *world.Player, t *world.Tile) bool {
	if t.Water() || (t.Owner != "" && t.Owner != p.ID) || occupiedByOthers(w, p.ID, t) {
		return false
	}
	for _, n := range w.Map.Within(t, 1) {
		if n.HasSettlement() {
			return false
		}
	}
	return true
}

func colonyName(w *world.World, p *world.Player) string {
	taken := make(map[string]bool)
	for _, s := range w.Settlements() {
		taken[strings.ToLower(s.Name)] = true
	}
	base := p.Nation
	if base != "" {
		base = strings.ToUpper(base[:1]) + base[1:]
	}
	for n := len(w.SettlementsOf(p.ID)) + 1; ; n++ {
		name := fmt.Sprintf("New %s %d", base, n)
		if !taken[strings.ToLower(name)] {
			return name
		}
	}
}

func buildingOrder() []string {
	order := []string{"stockade", "docks", "lumberMill", "schoolhouse", "printingPress"}
	return slices.DeleteFunc(order, func(b string) bool {
		_, ok := world.BuildingCost(b)
		return !ok
	})
}
