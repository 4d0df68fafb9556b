package world

// VisibleTiles returns the tiles a player currently sees through its units
// on the map and its settlements.
func (w *World) VisibleTiles(playerID string) map[string]bool {
	out := make(map[string]bool)
	if w.Map == nil {
		return out
	}
	for _, u := range w.UnitsOf(playerID) {
		if u.Location.Kind != LocTile {
			continue
		}
		t := w.UnitTile(u)
		if t == nil {
			continue
		}
		for _, n := range w.Map.Within(t, max(u.TypeInfo().LineOfSight, 1)) {
			out[n.ID] = true
		}
	}
	for _, s := range w.SettlementsOf(playerID) {
		t, err := Resolve[*Tile](w, s.Tile)
		if err != nil {
			continue
		}
		for _, n := range w.Map.Within(t, settlementSight) {
			out[n.ID] = true
		}
	}
	return out
}

// explore marks every currently visible tile as explored and records the
// new ones in the change set.
func (w *World) explore(p *Player) {
	for id := range w.VisibleTiles(p.ID) {
		if !p.explored[id] {
			p.explored[id] = true
			w.changes.Explored[p.ID] = append(w.changes.Explored[p.ID], id)
		}
	}
}

// View is the part of the world one player may see. The same shape carries
// both the full view sent when a game starts and the incremental updates
// sent after each action.
type View struct {
	Turn          int                  `json:"turn"`
	CurrentPlayer string               `json:"currentPlayer,omitempty"`
	Players       []PlayerSnapshot     `json:"players,omitempty"`
	Tiles         []TileSnapshot       `json:"tiles,omitempty"`
	Units         []UnitSnapshot       `json:"units,omitempty"`
	Settlements   []SettlementSnapshot `json:"settlements,omitempty"`
	Removed       []string             `json:"removed,omitempty"`
}

// Empty reports whether the view carries no object data.
func (v *View) Empty() bool {
	return len(v.Players) == 0 && len(v.Tiles) == 0 && len(v.Units) == 0 &&
		len(v.Settlements) == 0 && len(v.Removed) == 0
}

// ViewFor projects the whole world for a player.
func (w *World) ViewFor(playerID string) *View {
	v := &View{Turn: w.Turn, CurrentPlayer: w.CurrentPlayer}
	viewer, _ := w.Player(playerID)
	for _, p := range w.players {
		v.Players = append(v.Players, projectPlayer(p, viewer))
	}
	visible := w.VisibleTiles(playerID)
	if w.Map != nil {
		for _, t := range w.Map.Tiles() {
			if viewer != nil && viewer.Explored(t.ID) {
				v.Tiles = append(v.Tiles, snapshotTile(t))
			}
		}
	}
	for _, u := range w.Units() {
		if w.unitVisible(u, playerID, visible) {
			v.Units = append(v.Units, snapshotUnit(u))
		}
	}
	for _, s := range w.Settlements() {
		if w.settlementVisible(s, viewer) {
			v.Settlements = append(v.Settlements, projectSettlement(s, playerID))
		}
	}
	return v
}

// Delta projects a change set for a player. A foreign unit that changed
// out of sight is reported as removed only when the observer could see it
// when the change set started.
func (w *World) Delta(playerID string, ch *Changes) *View {
	v := &View{Turn: w.Turn, CurrentPlayer: w.CurrentPlayer}
	viewer, _ := w.Player(playerID)
	visible := w.VisibleTiles(playerID)

	tiles := make(map[string]bool)
	for _, id := range ch.Explored[playerID] {
		tiles[id] = true
	}
	for _, id := range SortedIDs(ch.Dirty) {
		obj, err := w.Lookup(id)
		if err != nil {
			continue
		}
		switch o := obj.(type) {
		case *Player:
			v.Players = append(v.Players, projectPlayer(o, viewer))
		case *Tile:
			if viewer != nil && viewer.Explored(o.ID) {
				tiles[o.ID] = true
			}
		case *Unit:
			if w.unitVisible(o, playerID, visible) {
				v.Units = append(v.Units, snapshotUnit(o))
			} else if origin, ok := ch.Origin[o.ID]; ok && seenAt(origin, playerID, visible) {
				v.Removed = append(v.Removed, o.ID)
			}
		case *Settlement:
			if w.settlementVisible(o, viewer) {
				v.Settlements = append(v.Settlements, projectSettlement(o, playerID))
			}
		}
	}
	for _, id := range SortedIDs(tiles) {
		if t, err := Resolve[*Tile](w, id); err == nil {
			v.Tiles = append(v.Tiles, snapshotTile(t))
		}
	}
	for _, id := range SortedIDs(ch.Removed) {
		if seenAt(ch.Removed[id], playerID, visible) {
			v.Removed = append(v.Removed, id)
		}
	}
	return v
}

func seenAt(origin Removal, playerID string, visible map[string]bool) bool {
	return origin.Owner == playerID || (origin.Tile != "" && visible[origin.Tile])
}

func (w *World) unitVisible(u *Unit, playerID string, visible map[string]bool) bool {
	if u.Owner == playerID {
		return true
	}
	return u.Location.Kind == LocTile && visible[u.Location.ID]
}

func (w *World) settlementVisible(s *Settlement, viewer *Player) bool {
	if viewer == nil {
		return false
	}
	return s.Owner == viewer.ID || viewer.Explored(s.Tile)
}

func projectPlayer(p, viewer *Player) PlayerSnapshot {
	ps := snapshotPlayer(p)
	ps.Explored = nil
	if viewer == nil || viewer.ID != p.ID {
		ps.Gold = 0
		ps.Immigration = 0
		ps.RecruitThreshold = 0
		ps.Entry = ""
	}
	return ps
}

func projectSettlement(s *Settlement, viewer string) SettlementSnapshot {
	ss := snapshotSettlement(s)
	if s.Owner != viewer {
		ss.Stock = nil
		ss.BuildTarget = ""
	}
	return ss
}
