package world

import (
	"fmt"
	"sort"
)

// TurnReport lists what happened during one player's end-of-turn
// bookkeeping.
type TurnReport struct {
	Player    string   `json:"player"`
	Built     []string `json:"built,omitempty"`
	Born      []string `json:"born,omitempty"`
	Recruited []string `json:"recruited,omitempty"`
	Arrived   []string `json:"arrived,omitempty"`
	Died      bool     `json:"died,omitempty"`
}

// EndTurn runs the bookkeeping for one player: colony production and
// construction, immigration, high-seas crossings, movement reset, the
// death check and the score.
func (w *World) EndTurn(playerID string) (*TurnReport, error) {
	p, err := w.livePlayer(playerID)
	if err != nil {
		return nil, err
	}
	r := &TurnReport{Player: p.ID}

	for _, s := range w.SettlementsOf(p.ID) {
		if s.Kind == SettlementColony {
			w.produce(p, s, r)
		}
	}

	if p.European() {
		p.Immigration++
		if p.RecruitThreshold <= 0 {
			p.RecruitThreshold = w.Option(OptionRecruitThreshold)
		}
		if p.Immigration >= p.RecruitThreshold {
			p.Immigration -= p.RecruitThreshold
			p.RecruitThreshold += 10
			u := w.newUnit(p.ID, UnitColonist, Location{Kind: LocEurope})
			r.Recruited = append(r.Recruited, u.ID)
		}
		w.touch(p.ID)
	}

	arrived := false
	for _, u := range w.UnitsOf(p.ID) {
		if u.Location.Kind == LocHighSeas {
			u.TurnsLeft--
			if u.TurnsLeft <= 0 {
				w.arrive(p, u)
				r.Arrived = append(r.Arrived, u.ID)
				arrived = true
			}
			w.touch(u.ID)
		}
		if moves := u.TypeInfo().Moves; u.MovesLeft != moves {
			u.MovesLeft = moves
			w.touch(u.ID)
		}
	}
	if arrived {
		w.explore(p)
	}

	if len(w.UnitsOf(p.ID)) == 0 && len(w.SettlementsOf(p.ID)) == 0 {
		p.Dead = true
		r.Died = true
		w.touch(p.ID)
	}
	if score := w.computeScore(p); score != p.Score {
		p.Score = score
		w.touch(p.ID)
	}
	return r, nil
}

func (w *World) produce(p *Player, s *Settlement, r *TurnReport) {
	t, err := Resolve[*Tile](w, s.Tile)
	if err != nil {
		return
	}
	workers := w.Workers(s.ID)
	made := map[GoodsType]int{
		GoodsFood: colonyCenterFood,
		GoodsFurs: colonyCenterFurs,
	}
	var carpenters int
	for _, u := range workers {
		switch u.WorkType {
		case GoodsHammers:
			carpenters++
		case GoodsCrosses:
			made[GoodsCrosses] += 3
			if s.HasBuilding("printingPress") {
				made[GoodsCrosses]++
			}
		default:
			made[u.WorkType] += w.bestYield(p.ID, t, u.WorkType)
		}
	}
	for g, n := range made {
		if g != GoodsCrosses {
			s.Stock[g] += n
		}
	}

	perCarpenter := 3
	if s.HasBuilding("lumberMill") {
		perCarpenter++
	}
	hammers := min(carpenters*perCarpenter, s.Stock[GoodsLumber])
	s.Stock[GoodsLumber] -= hammers
	s.Stock[GoodsHammers] += hammers

	s.Stock[GoodsFood] -= colonyFoodPerColonist * len(workers)
	if s.Stock[GoodsFood] < 0 {
		s.Stock[GoodsFood] = 0
	}
	if s.Stock[GoodsFood] >= colonyGrowthFood {
		s.Stock[GoodsFood] -= colonyGrowthFood
		u := w.newUnit(p.ID, UnitColonist, Location{Kind: LocTile, ID: t.ID})
		r.Born = append(r.Born, u.ID)
	}

	if s.BuildTarget != "" {
		if cost, ok := BuildingCost(s.BuildTarget); ok && s.Stock[GoodsHammers] >= cost {
			s.Stock[GoodsHammers] -= cost
			s.Buildings = append(s.Buildings, s.BuildTarget)
			r.Built = append(r.Built, fmt.Sprintf("%s:%s", s.ID, s.BuildTarget))
			s.BuildTarget = ""
		}
	}
	p.Immigration += made[GoodsCrosses]
	w.touch(s.ID)
}

// bestYield is the best per-worker output of g among land the player may
// work around the colony.
func (w *World) bestYield(owner string, center *Tile, g GoodsType) int {
	best := 1
	for _, n := range w.Map.Within(center, colonyRadius) {
		if n.Owner != owner && n.Owner != "" {
			continue
		}
		if v := TileTypeInfo(n.Type).Production[g]; v > best {
			best = v
		}
	}
	return best
}

func (w *World) arrive(p *Player, u *Unit) {
	u.State = StateActive
	u.TurnsLeft = 0
	switch u.Destination {
	case DestEurope:
		u.Location = Location{Kind: LocEurope}
	default:
		entry := p.Entry
		if _, err := Resolve[*Tile](w, entry); err != nil {
			entry = tileID(w.Map.Width-1, w.Map.Height/2)
		}
		u.Location = Location{Kind: LocTile, ID: entry}
	}
	u.Destination = ""
	for _, c := range w.Cargo(u.ID) {
		w.touch(c.ID)
	}
}

func (w *World) computeScore(p *Player) int {
	score := 0
	for _, s := range w.SettlementsOf(p.ID) {
		score += 20 + 10*len(s.Buildings)
	}
	score += 2 * len(w.UnitsOf(p.ID))
	score += p.Gold / 100
	return score
}

// RecomputeScores refreshes every live player's score.
func (w *World) RecomputeScores() {
	for _, p := range w.LivePlayers() {
		if s := w.computeScore(p); s != p.Score {
			p.Score = s
			w.touch(p.ID)
		}
	}
}

// AdvancePlayer moves the current-player pointer to the next live player
// in roster order. When the roster wraps the turn counter is incremented
// and newRound is true. It returns nil when nobody is alive.
func (w *World) AdvancePlayer() (next *Player, newRound bool) {
	n := len(w.players)
	idx := -1
	for i, p := range w.players {
		if p.ID == w.CurrentPlayer {
			idx = i
			break
		}
	}
	for step := 1; step <= n; step++ {
		i := idx + step
		if i >= n {
			newRound = true
		}
		p := w.players[i%n]
		if p.Dead {
			continue
		}
		if newRound {
			w.Turn++
		}
		w.CurrentPlayer = p.ID
		w.ActiveUnit = ""
		return p, newRound
	}
	w.CurrentPlayer = ""
	return nil, false
}

// HasMovableUnits reports whether a player still has an active unit on the
// map with moves left.
func (w *World) HasMovableUnits(playerID string) bool {
	for _, u := range w.UnitsOf(playerID) {
		if u.Location.Kind == LocTile && u.State == StateActive && u.MovesLeft > 0 {
			return true
		}
	}
	return false
}

// Outcome describes whether the game is over.
type Outcome struct {
	Over   bool   `json:"over"`
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// CheckVictory evaluates the victory conditions: a single surviving
// European player (when more than one started), the victoryScore target,
// or passing the lastTurn option.
func (w *World) CheckVictory() Outcome {
	var all, alive []*Player
	for _, p := range w.players {
		if !p.European() {
			continue
		}
		all = append(all, p)
		if !p.Dead {
			alive = append(alive, p)
		}
	}
	switch {
	case len(all) == 0:
		return Outcome{}
	case len(alive) == 0:
		return Outcome{Over: true, Reason: "extinction"}
	case len(all) > 1 && len(alive) == 1:
		return Outcome{Over: true, Winner: alive[0].ID, Reason: "lastSurvivor"}
	}

	ranked := make([]*Player, len(alive))
	copy(ranked, alive)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if target := w.Option(OptionVictoryScore); target > 0 && ranked[0].Score >= target {
		return Outcome{Over: true, Winner: ranked[0].ID, Reason: "score"}
	}
	if last := w.Option(OptionLastTurn); last > 0 && w.Turn > last {
		return Outcome{Over: true, Winner: ranked[0].ID, Reason: "lastTurn"}
	}
	return Outcome{}
}
