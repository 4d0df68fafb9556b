package bot

import "github.com/freeeve/freecol/server/pkg/world"

// stepToward runs a breadth-first search from start over passable tiles
// and returns the first step of a shortest path to the nearest tile that
// satisfies goal. The start tile itself never counts as a goal.
func stepToward(m *world.Map, start *world.Tile, passable, goal func(*world.Tile) bool) (world.Direction, bool) {
	if m == nil || start == nil {
		return "", false
	}
	type node struct {
		tile  *world.Tile
		first world.Direction
	}
	seen := map[string]bool{start.ID: true}
	queue := []node{{tile: start}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range world.Directions() {
			n := m.Neighbor(cur.tile, d)
			if n == nil || seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			first := cur.first
			if cur.tile == start {
				first = d
			}
			if goal(n) && (cur.tile != start || passable(n)) {
				return first, true
			}
			if passable(n) {
				queue = append(queue, node{tile: n, first: first})
			}
		}
	}
	return "", false
}

// directionTo returns the direction of the first neighbour of t that
// satisfies ok.
func directionTo(m *world.Map, t *world.Tile, ok func(*world.Tile) bool) (world.Direction, bool) {
	for _, d := range world.Directions() {
		if n := m.Neighbor(t, d); n != nil && ok(n) {
			return d, true
		}
	}
	return "", false
}
