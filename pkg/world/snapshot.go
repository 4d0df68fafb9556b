package world

import (
	"fmt"
	"sort"
)

// Snapshot is the serializable tree of a whole world.
type Snapshot struct {
	GameID        string               `json:"gameId"`
	Turn          int                  `json:"turn"`
	CurrentPlayer string               `json:"currentPlayer,omitempty"`
	Options       map[string]int       `json:"options"`
	Map           *MapSnapshot         `json:"map,omitempty"`
	Players       []PlayerSnapshot     `json:"players"`
	Units         []UnitSnapshot       `json:"units"`
	Settlements   []SettlementSnapshot `json:"settlements"`
	Counters      map[Kind]int         `json:"counters"`
	Disposed      map[string]Kind      `json:"disposed,omitempty"`
}

type MapSnapshot struct {
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Tiles  []TileSnapshot `json:"tiles"`
}

type TileSnapshot struct {
	ID         string   `json:"id"`
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Type       TileType `json:"type"`
	Owner      string   `json:"owner,omitempty"`
	Settlement string   `json:"settlement,omitempty"`
}

type PlayerSnapshot struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Nation           string            `json:"nation"`
	Kind             PlayerKind        `json:"kind"`
	Dead             bool              `json:"dead,omitempty"`
	Gold             int               `json:"gold"`
	Score            int               `json:"score"`
	Ready            bool              `json:"ready,omitempty"`
	Immigration      int               `json:"immigration,omitempty"`
	RecruitThreshold int               `json:"recruitThreshold,omitempty"`
	Entry            string            `json:"entry,omitempty"`
	Stance           map[string]Stance `json:"stance,omitempty"`
	Explored         []string          `json:"explored,omitempty"`
}

type UnitSnapshot struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Owner       string      `json:"owner"`
	Location    Location    `json:"location"`
	MovesLeft   int         `json:"movesLeft"`
	State       UnitState   `json:"state"`
	WorkType    GoodsType   `json:"workType,omitempty"`
	Destination Destination `json:"destination,omitempty"`
	TurnsLeft   int         `json:"turnsLeft,omitempty"`
	// WorkLeft is the transit countdown used by saves that predate
	// high-seas locations.
	WorkLeft int `json:"workLeft,omitempty"`
}

type SettlementSnapshot struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Kind        SettlementKind    `json:"kind"`
	Owner       string            `json:"owner"`
	Tile        string            `json:"tile"`
	Stock       map[GoodsType]int `json:"stock,omitempty"`
	Buildings   []string          `json:"buildings,omitempty"`
	BuildTarget string            `json:"buildTarget,omitempty"`
}

func snapshotTile(t *Tile) TileSnapshot {
	return TileSnapshot{ID: t.ID, X: t.X, Y: t.Y, Type: t.Type, Owner: t.Owner, Settlement: t.Settlement}
}

func snapshotPlayer(p *Player) PlayerSnapshot {
	ps := PlayerSnapshot{
		ID:               p.ID,
		Name:             p.Name,
		Nation:           p.Nation,
		Kind:             p.Kind,
		Dead:             p.Dead,
		Gold:             p.Gold,
		Score:            p.Score,
		Ready:            p.Ready,
		Immigration:      p.Immigration,
		RecruitThreshold: p.RecruitThreshold,
		Entry:            p.Entry,
	}
	if len(p.stance) > 0 {
		ps.Stance = make(map[string]Stance, len(p.stance))
		for k, v := range p.stance {
			ps.Stance[k] = v
		}
	}
	for id := range p.explored {
		ps.Explored = append(ps.Explored, id)
	}
	sort.Strings(ps.Explored)
	return ps
}

func snapshotUnit(u *Unit) UnitSnapshot {
	return UnitSnapshot{
		ID:          u.ID,
		Type:        u.Type,
		Owner:       u.Owner,
		Location:    u.Location,
		MovesLeft:   u.MovesLeft,
		State:       u.State,
		WorkType:    u.WorkType,
		Destination: u.Destination,
		TurnsLeft:   u.TurnsLeft,
	}
}

func snapshotSettlement(s *Settlement) SettlementSnapshot {
	ss := SettlementSnapshot{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        s.Kind,
		Owner:       s.Owner,
		Tile:        s.Tile,
		BuildTarget: s.BuildTarget,
	}
	if len(s.Stock) > 0 {
		ss.Stock = make(map[GoodsType]int, len(s.Stock))
		for k, v := range s.Stock {
			ss.Stock[k] = v
		}
	}
	ss.Buildings = append(ss.Buildings, s.Buildings...)
	return ss
}

// Snapshot copies the world into its serializable form. The result shares
// no memory with the world.
func (w *World) Snapshot() *Snapshot {
	s := &Snapshot{
		GameID:        w.GameID,
		Turn:          w.Turn,
		CurrentPlayer: w.CurrentPlayer,
		Options:       make(map[string]int, len(w.Options)),
		Counters:      make(map[Kind]int, len(w.counters)),
		Players:       []PlayerSnapshot{},
		Units:         []UnitSnapshot{},
		Settlements:   []SettlementSnapshot{},
	}
	for k, v := range w.Options {
		s.Options[k] = v
	}
	for k, v := range w.counters {
		s.Counters[k] = v
	}
	if len(w.disposed) > 0 {
		s.Disposed = make(map[string]Kind, len(w.disposed))
		for k, v := range w.disposed {
			s.Disposed[k] = v
		}
	}
	if w.Map != nil {
		ms := &MapSnapshot{Width: w.Map.Width, Height: w.Map.Height}
		for _, t := range w.Map.Tiles() {
			ms.Tiles = append(ms.Tiles, snapshotTile(t))
		}
		s.Map = ms
	}
	for _, p := range w.players {
		s.Players = append(s.Players, snapshotPlayer(p))
	}
	for _, u := range w.Units() {
		s.Units = append(s.Units, snapshotUnit(u))
	}
	for _, st := range w.Settlements() {
		s.Settlements = append(s.Settlements, snapshotSettlement(st))
	}
	return s
}

// FromSnapshot rebuilds a world from its serialized form. The generator
// and server-object roster are restored separately by the caller.
func FromSnapshot(s *Snapshot) (*World, error) {
	w := New(s.GameID, 0, nil)
	w.Options = make(map[string]int, len(s.Options))
	for k, v := range s.Options {
		w.Options[k] = v
	}
	w.Turn = s.Turn
	for k, v := range s.Counters {
		w.counters[k] = v
	}
	for k, v := range s.Disposed {
		w.disposed[k] = v
	}

	if s.Map != nil {
		if s.Map.Width <= 0 || s.Map.Height <= 0 || len(s.Map.Tiles) != s.Map.Width*s.Map.Height {
			return nil, fmt.Errorf("%w: map is %dx%d with %d tiles", ErrInvalidArgument, s.Map.Width, s.Map.Height, len(s.Map.Tiles))
		}
		m := newMap(s.Map.Width, s.Map.Height)
		for _, ts := range s.Map.Tiles {
			if m.Tile(ts.X, ts.Y) != nil || ts.X < 0 || ts.Y < 0 || ts.X >= m.Width || ts.Y >= m.Height {
				return nil, fmt.Errorf("%w: tile %s", ErrInvalidArgument, ts.ID)
			}
			t := &Tile{ID: ts.ID, X: ts.X, Y: ts.Y, Type: ts.Type, Owner: ts.Owner, Settlement: ts.Settlement}
			m.tiles[ts.Y*m.Width+ts.X] = t
			w.objects[t.ID] = t
		}
		w.Map = m
	}

	for _, ps := range s.Players {
		p := &Player{
			ID:               ps.ID,
			Name:             ps.Name,
			Nation:           ps.Nation,
			Kind:             ps.Kind,
			Dead:             ps.Dead,
			Gold:             ps.Gold,
			Score:            ps.Score,
			Ready:            ps.Ready,
			Immigration:      ps.Immigration,
			RecruitThreshold: ps.RecruitThreshold,
			Entry:            ps.Entry,
			stance:           make(map[string]Stance, len(ps.Stance)),
			explored:         make(map[string]bool, len(ps.Explored)),
		}
		for k, v := range ps.Stance {
			p.stance[k] = v
		}
		for _, id := range ps.Explored {
			p.explored[id] = true
		}
		if err := w.restore(p); err != nil {
			return nil, err
		}
		w.players = append(w.players, p)
	}
	for _, ss := range s.Settlements {
		st := &Settlement{
			ID:          ss.ID,
			Name:        ss.Name,
			Kind:        ss.Kind,
			Owner:       ss.Owner,
			Tile:        ss.Tile,
			Stock:       make(map[GoodsType]int, len(ss.Stock)),
			Buildings:   append([]string(nil), ss.Buildings...),
			BuildTarget: ss.BuildTarget,
		}
		for k, v := range ss.Stock {
			st.Stock[k] = v
		}
		if err := w.restore(st); err != nil {
			return nil, err
		}
	}
	for _, us := range s.Units {
		if us.State == StateLegacyToAmerica || us.State == StateLegacyToEurope {
			return nil, fmt.Errorf("%w: %s", ErrLegacyState, us.ID)
		}
		if _, ok := LookupUnitType(us.Type); !ok {
			return nil, fmt.Errorf("%w: unit %s has unknown type %q", ErrInvalidArgument, us.ID, us.Type)
		}
		u := &Unit{
			ID:          us.ID,
			Type:        us.Type,
			Owner:       us.Owner,
			Location:    us.Location,
			MovesLeft:   us.MovesLeft,
			State:       us.State,
			WorkType:    us.WorkType,
			Destination: us.Destination,
			TurnsLeft:   us.TurnsLeft,
		}
		if err := w.restore(u); err != nil {
			return nil, err
		}
	}
	w.CurrentPlayer = s.CurrentPlayer
	if err := w.checkReferences(); err != nil {
		return nil, err
	}
	w.changes = newChanges()
	return w, nil
}

func (w *World) restore(obj Object) error {
	id := obj.ObjectID()
	if _, dup := w.objects[id]; dup {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidArgument, id)
	}
	if _, gone := w.disposed[id]; gone {
		return fmt.Errorf("%w: %s is both live and disposed", ErrInvalidArgument, id)
	}
	w.objects[id] = obj
	prefix, n := splitID(id)
	if k := Kind(prefix); k != KindTile && n > w.counters[k] {
		w.counters[k] = n
	}
	return nil
}

// checkReferences verifies that every id a restored object points at
// resolves to a live object of the right type.
func (w *World) checkReferences() error {
	for _, obj := range w.objects {
		switch o := obj.(type) {
		case *Unit:
			if _, err := Resolve[*Player](w, o.Owner); err != nil {
				return fmt.Errorf("unit %s owner: %w", o.ID, err)
			}
			var err error
			switch o.Location.Kind {
			case LocTile:
				_, err = Resolve[*Tile](w, o.Location.ID)
			case LocCarrier:
				_, err = Resolve[*Unit](w, o.Location.ID)
			case LocSettlement:
				_, err = Resolve[*Settlement](w, o.Location.ID)
			case LocEurope, LocHighSeas:
			default:
				err = fmt.Errorf("%w: location kind %q", ErrInvalidArgument, o.Location.Kind)
			}
			if err != nil {
				return fmt.Errorf("unit %s location: %w", o.ID, err)
			}
		case *Settlement:
			if _, err := Resolve[*Player](w, o.Owner); err != nil {
				return fmt.Errorf("settlement %s owner: %w", o.ID, err)
			}
			if _, err := Resolve[*Tile](w, o.Tile); err != nil {
				return fmt.Errorf("settlement %s tile: %w", o.ID, err)
			}
		}
	}
	if w.CurrentPlayer != "" {
		if _, err := w.Player(w.CurrentPlayer); err != nil {
			return fmt.Errorf("current player: %w", err)
		}
	}
	return nil
}

// ClassifyServerObjects derives the server-object roster from a parsed
// snapshot by the concrete subtype of each object.
func ClassifyServerObjects(s *Snapshot) map[string]ServerKind {
	out := make(map[string]ServerKind, len(s.Players)+len(s.Units)+len(s.Settlements))
	for _, p := range s.Players {
		out[p.ID] = ServerPlayer
	}
	for _, u := range s.Units {
		out[u.ID] = ServerUnit
	}
	for _, st := range s.Settlements {
		if st.Kind == SettlementNative {
			out[st.ID] = ServerNativeSettlement
		} else {
			out[st.ID] = ServerColony
		}
	}
	return out
}
