package world

import "fmt"

// Direction is one of the eight compass directions.
type Direction string

const (
	North     Direction = "N"
	NorthEast Direction = "NE"
	East      Direction = "E"
	SouthEast Direction = "SE"
	South     Direction = "S"
	SouthWest Direction = "SW"
	West      Direction = "W"
	NorthWest Direction = "NW"
)

var directionOffsets = map[Direction][2]int{
	North:     {0, -1},
	NorthEast: {1, -1},
	East:      {1, 0},
	SouthEast: {1, 1},
	South:     {0, 1},
	SouthWest: {-1, 1},
	West:      {-1, 0},
	NorthWest: {-1, -1},
}

// Directions returns all directions clockwise from North.
func Directions() []Direction {
	return []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}
}

// ValidDirection reports whether d names a compass direction.
func ValidDirection(d Direction) bool {
	_, ok := directionOffsets[d]
	return ok
}

// Tile is a single map cell.
type Tile struct {
	ID         string
	X, Y       int
	Type       TileType
	Owner      string // claiming player id, empty when unclaimed
	Settlement string // settlement id occupying the tile
}

func (t *Tile) ObjectID() string { return t.ID }
func (t *Tile) ObjectKind() Kind { return KindTile }
func (t *Tile) Water() bool { return TileTypeInfo(t.Type).Water }
func (t *Tile) MoveCost() int { return TileTypeInfo(t.Type).MoveCost }
func (t *Tile) String() string { return fmt.Sprintf("%s(%d,%d)", t.ID, t.X, t.Y) }
func (t *Tile) HighSeas() bool { return t.Type == TileHighSeas }
func (t *Tile) Claimed() bool { return t.Owner != "" }
func (t *Tile) HasSettlement() bool { return t.Settlement != "" }

// Map is a rectangular grid of tiles.
type Map struct {
	Width  int
	Height int
	tiles  []*Tile
}

func newMap(width, height int) *Map {
	return &Map{Width: width, Height: height, tiles: make([]*Tile, width*height)}
}

// Tile returns the tile at x,y or nil if outside the map.
func (m *Map) Tile(x, y int) *Tile {
	if m == nil || x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return nil
	}
	return m.tiles[y*m.Width+x]
}

// Neighbor returns the tile one step from t in direction d, or nil.
func (m *Map) Neighbor(t *Tile, d Direction) *Tile {
	off, ok := directionOffsets[d]
	if !ok || t == nil {
		return nil
	}
	return m.Tile(t.X+off[0], t.Y+off[1])
}

// Neighbors returns the tiles adjacent to t in direction order.
func (m *Map) Neighbors(t *Tile) []*Tile {
	var out []*Tile
	for _, d := range Directions() {
		if n := m.Neighbor(t, d); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Within returns every tile within radius steps of t, including t.
func (m *Map) Within(t *Tile, radius int) []*Tile {
	var out []*Tile
	for y := t.Y - radius; y <= t.Y+radius; y++ {
		for x := t.X - radius; x <= t.X+radius; x++ {
			if n := m.Tile(x, y); n != nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// Tiles returns all tiles in row-major order.
func (m *Map) Tiles() []*Tile {
	if m == nil {
		return nil
	}
	return m.tiles
}

// DirectionTo returns the direction of the single step from a to an
// adjacent tile b.
func DirectionTo(a, b *Tile) (Direction, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	for d, off := range directionOffsets {
		if off[0] == dx && off[1] == dy {
			return d, true
		}
	}
	return "", false
}

// Distance is the number of king moves between two tiles.
func Distance(a, b *Tile) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

func tileID(x, y int) string {
	return fmt.Sprintf("%s:%d_%d", KindTile, x, y)
}
