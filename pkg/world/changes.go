package world

// Changes records which objects were touched since the last reset.
type Changes struct {
	Dirty map[string]struct{}
	// Removed holds disposed ids with where they were last seen, so
	// observers of that tile (and the owner) learn about the removal.
	Removed map[string]Removal
	// Explored lists tiles newly explored per player.
	Explored map[string][]string
	// Origin holds each unit's owner and map tile as they were when the
	// change set started. Tile is empty for units off the map, in a
	// settlement or aboard a carrier.
	Origin map[string]Removal
}

// Removal describes a disposed object.
type Removal struct {
	Owner string
	Tile  string
}

func newChanges() *Changes {
	return &Changes{
		Dirty:    make(map[string]struct{}),
		Removed:  make(map[string]Removal),
		Explored: make(map[string][]string),
		Origin:   make(map[string]Removal),
	}
}

func (c *Changes) touch(id string) {
	c.Dirty[id] = struct{}{}
}

func (c *Changes) remove(id string, r Removal) {
	delete(c.Dirty, id)
	c.Removed[id] = r
}

// Empty reports whether nothing changed.
func (c *Changes) Empty() bool {
	return len(c.Dirty) == 0 && len(c.Removed) == 0 && len(c.Explored) == 0
}

// Changes returns the changes recorded since the last reset.
func (w *World) Changes() *Changes { return w.changes }

// ResetChanges starts a new change set.
func (w *World) ResetChanges() {
	w.changes = newChanges()
	for id, obj := range w.objects {
		u, ok := obj.(*Unit)
		if !ok {
			continue
		}
		o := Removal{Owner: u.Owner}
		if u.Location.Kind == LocTile {
			o.Tile = u.Location.ID
		}
		w.changes.Origin[id] = o
	}
}

func (w *World) touch(id string) { w.changes.touch(id) }
