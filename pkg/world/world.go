// Package world holds the authoritative game state: the map, players,
// units and settlements, the id registry, and the rules that mutate them.
//
// A World is not safe for concurrent use. The server funnels every
// mutation and every snapshot through a single writer.
package world

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the id prefix and concrete type of a registered object.
type Kind string

const (
	KindPlayer     Kind = "player"
	KindUnit       Kind = "unit"
	KindTile       Kind = "tile"
	KindSettlement Kind = "settlement"
)

// Object is anything addressable by id.
type Object interface {
	ObjectID() string
	ObjectKind() Kind
}

// ServerKind classifies registered objects by their server-side subtype.
type ServerKind string

const (
	ServerPlayer           ServerKind = "serverPlayer"
	ServerUnit             ServerKind = "serverUnit"
	ServerColony           ServerKind = "serverColony"
	ServerNativeSettlement ServerKind = "serverIndianSettlement"
)

// World is the root aggregate of one game.
type World struct {
	GameID        string
	Turn          int
	Map           *Map
	CurrentPlayer string
	ActiveUnit    string
	Options       map[string]int

	players     []*Player
	objects     map[string]Object
	disposed    map[string]Kind
	counters    map[Kind]int
	serverKinds map[string]ServerKind
	random      *Random
	changes     *Changes
}

// New creates an empty world with no map. Players may join before the map
// is generated.
func New(gameID string, seed uint64, options map[string]int) *World {
	opts := DefaultOptions()
	for k, v := range options {
		opts[k] = v
	}
	return &World{
		GameID:      gameID,
		Turn:        1,
		Options:     opts,
		objects:     make(map[string]Object),
		disposed:    make(map[string]Kind),
		counters:    make(map[Kind]int),
		serverKinds: make(map[string]ServerKind),
		random:      NewRandom(seed),
		changes:     newChanges(),
	}
}

// Option returns a game option, falling back to the default.
func (w *World) Option(key string) int {
	if v, ok := w.Options[key]; ok {
		return v
	}
	v, _ := DefaultOption(key)
	return v
}

// Random returns the world's deterministic generator.
func (w *World) Random() *Random { return w.random }

// SetRandom replaces the generator, used when restoring a save.
func (w *World) SetRandom(r *Random) { w.random = r }

func (w *World) nextID(kind Kind) string {
	w.counters[kind]++
	return fmt.Sprintf("%s:%d", kind, w.counters[kind])
}

func (w *World) register(obj Object, sk ServerKind) {
	w.objects[obj.ObjectID()] = obj
	if sk != "" {
		w.serverKinds[obj.ObjectID()] = sk
	}
	w.changes.touch(obj.ObjectID())
}

// dispose removes obj from the registry. Its id keeps resolving to
// ErrDisposed and is never handed out again.
func (w *World) dispose(obj Object, last Removal) {
	id := obj.ObjectID()
	delete(w.objects, id)
	delete(w.serverKinds, id)
	w.disposed[id] = obj.ObjectKind()
	w.changes.remove(id, last)
}

// Lookup resolves an id against the registry.
func (w *World) Lookup(id string) (Object, error) {
	if obj, ok := w.objects[id]; ok {
		return obj, nil
	}
	if _, ok := w.disposed[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDisposed, id)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownObject, id)
}

// Resolve looks up id and checks that it has the expected concrete type.
func Resolve[T Object](w *World, id string) (T, error) {
	var zero T
	obj, err := w.Lookup(id)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %s", ErrWrongType, id, obj.ObjectKind())
	}
	return t, nil
}

// IsDisposed reports whether id belonged to an object that was disposed.
func (w *World) IsDisposed(id string) bool {
	_, ok := w.disposed[id]
	return ok
}

// ServerObjects returns the server subtype of every registered object that
// has one.
func (w *World) ServerObjects() map[string]ServerKind {
	out := make(map[string]ServerKind, len(w.serverKinds))
	for k, v := range w.serverKinds {
		out[k] = v
	}
	return out
}

// SetServerObjects replaces the server-object roster.
func (w *World) SetServerObjects(m map[string]ServerKind) {
	w.serverKinds = make(map[string]ServerKind, len(m))
	for k, v := range m {
		w.serverKinds[k] = v
	}
}

// Players returns the roster in turn order.
func (w *World) Players() []*Player {
	out := make([]*Player, len(w.players))
	copy(out, w.players)
	return out
}

// LivePlayers returns players that are not dead, in turn order.
func (w *World) LivePlayers() []*Player {
	var out []*Player
	for _, p := range w.players {
		if !p.Dead {
			out = append(out, p)
		}
	}
	return out
}

// Player returns a player by id.
func (w *World) Player(id string) (*Player, error) {
	return Resolve[*Player](w, id)
}

// PlayerByName finds a live player by name.
func (w *World) PlayerByName(name string) *Player {
	for _, p := range w.players {
		if !p.Dead && p.Name == name {
			return p
		}
	}
	return nil
}

// Current returns the current player, or nil before the game starts.
func (w *World) Current() *Player {
	if w.CurrentPlayer == "" {
		return nil
	}
	p, err := w.Player(w.CurrentPlayer)
	if err != nil {
		return nil
	}
	return p
}

// AddPlayer creates and registers a new player at the end of the roster.
func (w *World) AddPlayer(name, nation string, kind PlayerKind) *Player {
	p := &Player{
		ID:               w.nextID(KindPlayer),
		Name:             name,
		Nation:           nation,
		Kind:             kind,
		Gold:             w.Option(OptionStartingGold),
		RecruitThreshold: w.Option(OptionRecruitThreshold),
		stance:           make(map[string]Stance),
		explored:         make(map[string]bool),
	}
	if kind == PlayerNative {
		p.Gold = 0
	}
	w.players = append(w.players, p)
	w.register(p, ServerPlayer)
	return p
}

// RemovePlayer takes a player out of the roster before the map exists. Once
// the game has started players are only ever killed.
func (w *World) RemovePlayer(id string) error {
	p, err := w.Player(id)
	if err != nil {
		return err
	}
	if w.Map != nil {
		return fmt.Errorf("%w: players cannot leave a started game", ErrInvalidArgument)
	}
	for i, other := range w.players {
		if other == p {
			w.players = append(w.players[:i], w.players[i+1:]...)
			break
		}
	}
	w.dispose(p, Removal{Owner: p.ID})
	return nil
}

// KillPlayer marks a player dead. The player stays in the registry so ids
// in earlier messages still resolve.
func (w *World) KillPlayer(id string) error {
	p, err := w.Player(id)
	if err != nil {
		return err
	}
	if !p.Dead {
		p.Dead = true
		p.Ready = false
		w.changes.touch(p.ID)
	}
	return nil
}

// SetReady records a player's lobby ready flag.
func (w *World) SetReady(id string, ready bool) error {
	p, err := w.Player(id)
	if err != nil {
		return err
	}
	p.Ready = ready
	w.changes.touch(p.ID)
	return nil
}

// SetNation assigns a nation to a player. Nations are unique among live
// players.
func (w *World) SetNation(id, nation string) error {
	p, err := w.Player(id)
	if err != nil {
		return err
	}
	if !ValidNation(nation) {
		return fmt.Errorf("%w: unknown nation %q", ErrInvalidArgument, nation)
	}
	for _, other := range w.players {
		if other.ID != id && !other.Dead && other.Nation == nation {
			return fmt.Errorf("%w: nation %s already taken", ErrInvalidArgument, nation)
		}
	}
	p.Nation = nation
	w.changes.touch(p.ID)
	return nil
}

// FreeNation returns the first nation not taken by a live player.
func (w *World) FreeNation() string {
	taken := make(map[string]bool)
	for _, p := range w.players {
		if !p.Dead {
			taken[p.Nation] = true
		}
	}
	for _, n := range nations {
		if !taken[n] {
			return n
		}
	}
	return ""
}

// Units returns all live units in id order.
func (w *World) Units() []*Unit {
	var out []*Unit
	for _, obj := range w.objects {
		if u, ok := obj.(*Unit); ok {
			out = append(out, u)
		}
	}
	sortByID(out)
	return out
}

// UnitsOf returns the live units owned by a player in id order.
func (w *World) UnitsOf(playerID string) []*Unit {
	var out []*Unit
	for _, u := range w.Units() {
		if u.Owner == playerID {
			out = append(out, u)
		}
	}
	return out
}

// Settlements returns all settlements in id order.
func (w *World) Settlements() []*Settlement {
	var out []*Settlement
	for _, obj := range w.objects {
		if s, ok := obj.(*Settlement); ok {
			out = append(out, s)
		}
	}
	sortByID(out)
	return out
}

// SettlementsOf returns the settlements owned by a player.
func (w *World) SettlementsOf(playerID string) []*Settlement {
	var out []*Settlement
	for _, s := range w.Settlements() {
		if s.Owner == playerID {
			out = append(out, s)
		}
	}
	return out
}

// UnitsAt returns units standing directly on a tile.
func (w *World) UnitsAt(tileID string) []*Unit {
	var out []*Unit
	for _, u := range w.Units() {
		if u.Location.Kind == LocTile && u.Location.ID == tileID {
			out = append(out, u)
		}
	}
	return out
}

// Cargo returns units carried by a carrier.
func (w *World) Cargo(carrierID string) []*Unit {
	var out []*Unit
	for _, u := range w.Units() {
		if u.Location.Kind == LocCarrier && u.Location.ID == carrierID {
			out = append(out, u)
		}
	}
	return out
}

// Workers returns the units working in a settlement.
func (w *World) Workers(settlementID string) []*Unit {
	var out []*Unit
	for _, u := range w.Units() {
		if u.Location.Kind == LocSettlement && u.Location.ID == settlementID {
			out = append(out, u)
		}
	}
	return out
}

// UnitTile returns the map tile a unit is on, following carriers and
// settlements. It returns nil for units in Europe or on the high seas.
func (w *World) UnitTile(u *Unit) *Tile {
	for depth := 0; depth < 4 && u != nil; depth++ {
		switch u.Location.Kind {
		case LocTile:
			t, _ := Resolve[*Tile](w, u.Location.ID)
			return t
		case LocSettlement:
			s, err := Resolve[*Settlement](w, u.Location.ID)
			if err != nil {
				return nil
			}
			t, _ := Resolve[*Tile](w, s.Tile)
			return t
		case LocCarrier:
			c, err := Resolve[*Unit](w, u.Location.ID)
			if err != nil {
				return nil
			}
			u = c
		default:
			return nil
		}
	}
	return nil
}

// SettlementAt returns the settlement on a tile, if any.
func (w *World) SettlementAt(t *Tile) *Settlement {
	if t == nil || t.Settlement == "" {
		return nil
	}
	s, err := Resolve[*Settlement](w, t.Settlement)
	if err != nil {
		return nil
	}
	return s
}

type identified interface{ ObjectID() string }

func sortByID[T identified](items []T) {
	sort.Slice(items, func(i, j int) bool {
		return idLess(items[i].ObjectID(), items[j].ObjectID())
	})
}

// idLess orders ids by prefix, then numerically by suffix.
func idLess(a, b string) bool {
	pa, na := splitID(a)
	pb, nb := splitID(b)
	if pa != pb {
		return pa < pb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitID(id string) (string, int) {
	prefix, num, ok := strings.Cut(id, ":")
	if !ok {
		return id, 0
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return prefix, 0
	}
	return prefix, n
}

// SortedIDs returns the keys of m ordered the same way snapshots order ids.
func SortedIDs[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i], out[j]) })
	return out
}
