package world

import (
	"errors"
	"fmt"
)

// ErrAlreadyGenerated is returned when Generate runs on a world with a map.
var ErrAlreadyGenerated = errors.New("map already generated")

const (
	minMapWidth  = 12
	minMapHeight = 8
)

var landWeights = []struct {
	t      TileType
	weight int
}{
	{TilePlains, 30},
	{TileGrassland, 25},
	{TileForest, 25},
	{TileHills, 12},
	{TileMountains, 8},
}

// Generate builds the map, places the native settlements and gives every
// live European player a ship with a soldier and a colonist aboard at its
// high-seas entry point. The first live player becomes current.
func (w *World) Generate() error {
	if w.Map != nil {
		return ErrAlreadyGenerated
	}
	width := max(w.Option(OptionMapWidth), minMapWidth)
	height := max(w.Option(OptionMapHeight), minMapHeight)

	m := newMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := &Tile{ID: tileID(x, y), X: x, Y: y, Type: w.terrainAt(x, width)}
			m.tiles[y*width+x] = t
			w.register(t, "")
		}
	}
	w.Map = m

	var europeans []*Player
	for _, p := range w.LivePlayers() {
		if p.European() {
			europeans = append(europeans, p)
		}
	}
	if n := w.Option(OptionNativeSettlements); n > 0 {
		w.placeNatives(n)
	}

	for i, p := range europeans {
		entry := m.Tile(width-1, (i+1)*height/(len(europeans)+1))
		p.Entry = entry.ID
		ship := w.newUnit(p.ID, UnitCaravel, Location{Kind: LocTile, ID: entry.ID})
		soldier := w.newUnit(p.ID, UnitSoldier, Location{Kind: LocCarrier, ID: ship.ID})
		soldier.State = StateSentry
		colonist := w.newUnit(p.ID, UnitColonist, Location{Kind: LocCarrier, ID: ship.ID})
		colonist.State = StateSentry
		w.explore(p)
	}

	if first := w.LivePlayers(); len(first) > 0 {
		w.CurrentPlayer = first[0].ID
	}
	return nil
}

func (w *World) terrainAt(x, width int) TileType {
	switch {
	case x == 0 || x == width-1:
		return TileHighSeas
	case x == 1 || x == width-2 || x == width-3:
		return TileOcean
	}
	total := 0
	for _, lw := range landWeights {
		total += lw.weight
	}
	roll := w.random.IntN(total)
	for _, lw := range landWeights {
		if roll < lw.weight {
			return lw.t
		}
		roll -= lw.weight
	}
	return TilePlains
}

func (w *World) placeNatives(count int) {
	native := w.AddPlayer("Arawak", NativeNation, PlayerNative)
	placed := 0
	for attempt := 0; attempt < 200 && placed < count; attempt++ {
		x := 3 + w.random.IntN(max(w.Map.Width-8, 1))
		y := 1 + w.random.IntN(max(w.Map.Height-2, 1))
		t := w.Map.Tile(x, y)
		if t == nil || t.Water() || !w.clearOfSettlements(t, 2) {
			continue
		}
		placed++
		s := &Settlement{
			ID:    w.nextID(KindSettlement),
			Name:  fmt.Sprintf("%s village %d", native.Name, placed),
			Kind:  SettlementNative,
			Owner: native.ID,
			Tile:  t.ID,
			Stock: make(map[GoodsType]int),
		}
		w.register(s, ServerNativeSettlement)
		t.Settlement = s.ID
		w.claimAround(native.ID, t, colonyRadius)
		w.newUnit(native.ID, UnitBrave, Location{Kind: LocTile, ID: t.ID})
	}
	w.explore(native)
}

func (w *World) clearOfSettlements(t *Tile, radius int) bool {
	for _, n := range w.Map.Within(t, radius) {
		if n.Settlement != "" {
			return false
		}
	}
	return true
}

// claimAround claims unowned land within radius of t for owner.
func (w *World) claimAround(owner string, t *Tile, radius int) {
	for _, n := range w.Map.Within(t, radius) {
		if n.Water() || (n.Owner != "" && n.Owner != owner) {
			continue
		}
		if n.Owner != owner {
			n.Owner = owner
			w.touch(n.ID)
		}
	}
}

func (w *World) newUnit(owner, unitType string, loc Location) *Unit {
	ut, _ := LookupUnitType(unitType)
	u := &Unit{
		ID:        w.nextID(KindUnit),
		Type:      unitType,
		Owner:     owner,
		Location:  loc,
		MovesLeft: ut.Moves,
		State:     StateActive,
	}
	w.register(u, ServerUnit)
	return u
}
