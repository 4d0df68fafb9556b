package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestWorld builds a world with an all-plains map whose two east
// columns are ocean and high seas.
func newTestWorld(t *testing.T, width, height int) *World {
	t.Helper()
	w := New("test-game", 42, nil)
	m := newMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			typ := TilePlains
			switch x {
			case width - 1:
				typ = TileHighSeas
			case width - 2:
				typ = TileOcean
			}
			tile := &Tile{ID: tileID(x, y), X: x, Y: y, Type: typ}
			m.tiles[y*width+x] = tile
			w.register(tile, "")
		}
	}
	w.Map = m
	return w
}

func placeUnit(w *World, owner *Player, unitType string, x, y int) *Unit {
	return w.newUnit(owner.ID, unitType, Location{Kind: LocTile, ID: w.Map.Tile(x, y).ID})
}

func snapshotJSON(t *testing.T, w *World) string {
	t.Helper()
	b, err := json.Marshal(w.Snapshot())
	require.NoError(t, err)
	return string(b)
}
