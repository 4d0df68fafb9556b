package world

import (
	"fmt"
	"strings"
)

const maxColonyName = 40

// ownedUnit resolves a unit and checks that a live player owns it.
func (w *World) ownedUnit(playerID, unitID string) (*Player, *Unit, error) {
	p, err := w.livePlayer(playerID)
	if err != nil {
		return nil, nil, err
	}
	u, err := Resolve[*Unit](w, unitID)
	if err != nil {
		return nil, nil, err
	}
	if u.Owner != p.ID {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotOwner, unitID)
	}
	return p, u, nil
}

func (w *World) livePlayer(playerID string) (*Player, error) {
	p, err := w.Player(playerID)
	if err != nil {
		return nil, err
	}
	if p.Dead {
		return nil, fmt.Errorf("%w: %s", ErrPlayerDead, playerID)
	}
	return p, nil
}

func (w *World) ownedSettlement(playerID, settlementID string) (*Player, *Settlement, error) {
	p, err := w.livePlayer(playerID)
	if err != nil {
		return nil, nil, err
	}
	s, err := Resolve[*Settlement](w, settlementID)
	if err != nil {
		return nil, nil, err
	}
	if s.Owner != p.ID {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotOwner, settlementID)
	}
	return p, s, nil
}

func illegal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalMove, fmt.Sprintf(format, args...))
}

func (w *World) requireMap() error {
	if w.Map == nil {
		return illegal("the map has not been generated")
	}
	return nil
}

// MoveUnit moves a unit one tile. Land units stepping onto water board a
// friendly carrier with space there; units aboard a carrier step off onto
// adjacent land.
func (w *World) MoveUnit(playerID, unitID string, dir Direction) error {
	if err := w.requireMap(); err != nil {
		return err
	}
	p, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	if !ValidDirection(dir) {
		return fmt.Errorf("%w: direction %q", ErrInvalidArgument, dir)
	}
	if u.Location.Kind != LocTile && u.Location.Kind != LocCarrier {
		return illegal("%s is not on the map", u.ID)
	}
	from := w.UnitTile(u)
	if from == nil {
		return illegal("%s is not on the map", u.ID)
	}
	if u.MovesLeft <= 0 {
		return fmt.Errorf("%w: %s", ErrNoMovesLeft, u.ID)
	}
	to := w.Map.Neighbor(from, dir)
	if to == nil {
		return illegal("cannot move off the map")
	}
	for _, other := range w.UnitsAt(to.ID) {
		if other.Owner != u.Owner {
			return illegal("%s is occupied by a foreign unit", to.ID)
		}
	}
	settlement := w.SettlementAt(to)
	if settlement != nil && settlement.Owner != u.Owner {
		return illegal("%s is a foreign settlement", to.ID)
	}

	ut := u.TypeInfo()
	var carrier *Unit
	if ut.Naval {
		if !to.Water() && settlement == nil {
			return illegal("ships cannot move onto land")
		}
	} else if to.Water() {
		if carrier = w.carrierWithSpace(to, u.Owner, u.ID); carrier == nil {
			return illegal("no carrier with space at %s", to.ID)
		}
	}
	cost := to.MoveCost()
	if u.MovesLeft < cost && u.MovesLeft < ut.Moves {
		return fmt.Errorf("%w: %s needs %d moves", ErrNoMovesLeft, u.ID, cost)
	}

	if carrier != nil {
		u.Location = Location{Kind: LocCarrier, ID: carrier.ID}
		u.State = StateSentry
		w.touch(carrier.ID)
	} else {
		u.Location = Location{Kind: LocTile, ID: to.ID}
		if u.State != StateActive {
			u.State = StateActive
		}
	}
	u.MovesLeft = max(0, u.MovesLeft-cost)
	w.touch(u.ID)
	for _, c := range w.Cargo(u.ID) {
		w.touch(c.ID)
	}
	w.explore(p)
	return nil
}

func (w *World) carrierWithSpace(t *Tile, owner, exclude string) *Unit {
	for _, c := range w.UnitsAt(t.ID) {
		if c.ID == exclude || c.Owner != owner || !c.Naval() {
			continue
		}
		if len(w.Cargo(c.ID)) < c.TypeInfo().Space {
			return c
		}
	}
	return nil
}

// CombatResult reports the outcome of an attack.
type CombatResult struct {
	Won      bool   `json:"won"`
	Captured string `json:"captured,omitempty"`
	Burned   string `json:"burned,omitempty"`
	Plunder  int    `json:"plunder,omitempty"`
}

// Attack resolves combat between a land unit and the best defender on an
// adjacent tile. Attacking a player declares war on them. When the last
// defender of a colony falls the colony and its workers change owner in the
// same step; a defenceless native settlement is burned.
func (w *World) Attack(playerID, unitID string, dir Direction) (CombatResult, error) {
	var res CombatResult
	if err := w.requireMap(); err != nil {
		return res, err
	}
	p, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return res, err
	}
	if !ValidDirection(dir) {
		return res, fmt.Errorf("%w: direction %q", ErrInvalidArgument, dir)
	}
	ut := u.TypeInfo()
	if ut.Offence <= 0 || ut.Naval {
		return res, illegal("%s cannot attack", u.ID)
	}
	if u.Location.Kind != LocTile {
		return res, illegal("%s is not on the map", u.ID)
	}
	if u.MovesLeft <= 0 {
		return res, fmt.Errorf("%w: %s", ErrNoMovesLeft, u.ID)
	}
	from := w.UnitTile(u)
	to := w.Map.Neighbor(from, dir)
	if to == nil || to.Water() {
		return res, illegal("nothing to attack there")
	}
	settlement := w.SettlementAt(to)
	defender := w.bestDefender(to, p.ID)
	if defender == nil && settlement != nil && settlement.Kind == SettlementColony && settlement.Owner != p.ID {
		defender = w.bestWorker(settlement)
	}
	if defender == nil {
		return res, illegal("nothing to attack at %s", to.ID)
	}

	enemy, err := w.Player(defender.Owner)
	if err != nil {
		return res, err
	}
	w.setStance(p, enemy, StanceWar)

	offence := float64(ut.Offence)
	defence := float64(defender.TypeInfo().Defence)
	if defender.State == StateFortified {
		defence *= 1.5
	}
	if settlement != nil {
		defence *= 1.5
	}
	u.MovesLeft = 0
	w.touch(u.ID)

	if w.random.Float64()*(offence+defence) >= offence {
		w.loseCombat(u)
		return res, nil
	}
	res.Won = true
	if defender.Location.Kind == LocSettlement {
		// An ungarrisoned colony falls with its colonists.
		w.captureColony(settlement, p.ID)
		res.Captured = settlement.ID
		w.explore(p)
		return res, nil
	}
	w.loseCombat(defender)
	if settlement == nil || w.bestDefender(to, p.ID) != nil {
		return res, nil
	}
	switch settlement.Kind {
	case SettlementColony:
		w.captureColony(settlement, p.ID)
		res.Captured = settlement.ID
	case SettlementNative:
		res.Plunder = 100
		res.Burned = settlement.ID
		p.Gold += res.Plunder
		w.touch(p.ID)
		w.destroySettlement(settlement)
	}
	w.explore(p)
	return res, nil
}

func (w *World) bestDefender(t *Tile, attacker string) *Unit {
	var best *Unit
	for _, d := range w.UnitsAt(t.ID) {
		if d.Owner == attacker {
			continue
		}
		if best == nil || d.TypeInfo().Defence > best.TypeInfo().Defence {
			best = d
		}
	}
	return best
}

// bestWorker picks the colonist that defends a colony with no garrison.
func (w *World) bestWorker(s *Settlement) *Unit {
	var best *Unit
	for _, u := range w.Workers(s.ID) {
		if best == nil || u.TypeInfo().Defence > best.TypeInfo().Defence {
			best = u
		}
	}
	return best
}

func (w *World) loseCombat(u *Unit) {
	if demoted := u.TypeInfo().DemotesTo; demoted != "" {
		u.Type = demoted
		u.MovesLeft = 0
		w.touch(u.ID)
		return
	}
	w.disposeUnit(u)
}

func (w *World) disposeUnit(u *Unit) {
	last := Removal{Owner: u.Owner}
	if t := w.UnitTile(u); t != nil {
		last.Tile = t.ID
	}
	for _, c := range w.Cargo(u.ID) {
		w.disposeUnit(c)
	}
	w.dispose(u, last)
}

func (w *World) captureColony(s *Settlement, newOwner string) {
	old := s.Owner
	s.Owner = newOwner
	w.touch(s.ID)
	for _, worker := range w.Workers(s.ID) {
		worker.Owner = newOwner
		w.touch(worker.ID)
	}
	t, _ := Resolve[*Tile](w, s.Tile)
	for _, n := range w.Map.Within(t, colonyRadius) {
		if n.Owner == old {
			n.Owner = newOwner
			w.touch(n.ID)
		}
	}
}

func (w *World) destroySettlement(s *Settlement) {
	t, _ := Resolve[*Tile](w, s.Tile)
	for _, worker := range w.Workers(s.ID) {
		w.disposeUnit(worker)
	}
	if t != nil {
		t.Settlement = ""
		for _, n := range w.Map.Within(t, colonyRadius) {
			if n.Owner == s.Owner {
				n.Owner = ""
				w.touch(n.ID)
			}
		}
		w.touch(t.ID)
	}
	w.dispose(s, Removal{Owner: s.Owner, Tile: s.Tile})
}

// BuildColony founds a colony with the unit on its current tile.
func (w *World) BuildColony(playerID, unitID, name string) (*Settlement, error) {
	if err := w.requireMap(); err != nil {
		return nil, err
	}
	p, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxColonyName {
		return nil, fmt.Errorf("%w: colony name", ErrInvalidArgument)
	}
	if !u.TypeInfo().CanBuildColony {
		return nil, illegal("%s cannot found a colony", u.ID)
	}
	if u.Location.Kind != LocTile {
		return nil, illegal("%s is not standing on land", u.ID)
	}
	if u.MovesLeft <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMovesLeft, u.ID)
	}
	t := w.UnitTile(u)
	if t == nil || t.Water() {
		return nil, illegal("%s is not standing on land", u.ID)
	}
	if !w.clearOfSettlements(t, colonyRadius) {
		return nil, illegal("too close to another settlement")
	}
	if t.Owner != "" && t.Owner != p.ID {
		return nil, illegal("%s is claimed by another player", t.ID)
	}
	for _, s := range w.Settlements() {
		if strings.EqualFold(s.Name, name) {
			return nil, fmt.Errorf("%w: colony name %q in use", ErrInvalidArgument, name)
		}
	}

	s := &Settlement{
		ID:    w.nextID(KindSettlement),
		Name:  name,
		Kind:  SettlementColony,
		Owner: p.ID,
		Tile:  t.ID,
		Stock: make(map[GoodsType]int),
	}
	w.register(s, ServerColony)
	t.Settlement = s.ID
	w.touch(t.ID)
	w.claimAround(p.ID, t, colonyRadius)
	u.Location = Location{Kind: LocSettlement, ID: s.ID}
	u.State = StateWorking
	u.WorkType = GoodsFood
	u.MovesLeft = 0
	w.touch(u.ID)
	w.explore(p)
	return s, nil
}

// JoinColony puts a unit standing on a colony tile to work inside it, or
// changes the work of a unit already there.
func (w *World) JoinColony(playerID, unitID, settlementID string, work GoodsType) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	_, s, err := w.ownedSettlement(playerID, settlementID)
	if err != nil {
		return err
	}
	if s.Kind != SettlementColony {
		return illegal("%s is not a colony", s.ID)
	}
	if work == "" {
		work = GoodsFood
	}
	if !validWork(work) {
		return fmt.Errorf("%w: work type %q", ErrInvalidArgument, work)
	}
	if u.Naval() {
		return illegal("ships cannot work in a colony")
	}
	inside := u.Location.Kind == LocSettlement && u.Location.ID == s.ID
	if !inside && !(u.Location.Kind == LocTile && u.Location.ID == s.Tile) {
		return illegal("%s is not at %s", u.ID, s.Name)
	}

	u.Location = Location{Kind: LocSettlement, ID: s.ID}
	u.State = StateWorking
	u.WorkType = work
	if !inside {
		u.MovesLeft = 0
	}
	w.touch(u.ID)
	w.touch(s.ID)
	return nil
}

func validWork(g GoodsType) bool {
	for _, t := range WorkTypes() {
		if t == g {
			return true
		}
	}
	return false
}

// PutOutsideColony moves a worker out onto the colony tile. The last
// worker cannot leave.
func (w *World) PutOutsideColony(playerID, unitID string) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	if u.Location.Kind != LocSettlement {
		return illegal("%s is not in a colony", u.ID)
	}
	s, err := Resolve[*Settlement](w, u.Location.ID)
	if err != nil {
		return err
	}
	if len(w.Workers(s.ID)) <= 1 {
		return illegal("%s needs at least one worker", s.Name)
	}
	u.Location = Location{Kind: LocTile, ID: s.Tile}
	u.State = StateActive
	u.WorkType = ""
	w.touch(u.ID)
	w.touch(s.ID)
	return nil
}

// Embark loads a land unit onto a carrier, either in Europe, on the same
// tile, or from an adjacent tile (which uses up the unit's moves).
func (w *World) Embark(playerID, unitID, carrierID string) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	_, c, err := w.ownedUnit(playerID, carrierID)
	if err != nil {
		return err
	}
	if u.ID == c.ID || u.Naval() || !c.Naval() {
		return illegal("%s cannot board %s", u.ID, c.ID)
	}
	if u.Location.Kind == LocCarrier && u.Location.ID == c.ID {
		return illegal("%s is already aboard", u.ID)
	}
	if len(w.Cargo(c.ID)) >= c.TypeInfo().Space {
		return illegal("%s is full", c.ID)
	}
	adjacent := false
	switch {
	case u.Location.Kind == LocEurope && c.Location.Kind == LocEurope:
	case u.Location.Kind == LocTile && c.Location.Kind == LocTile:
		ut, ct := w.UnitTile(u), w.UnitTile(c)
		switch Distance(ut, ct) {
		case 0:
		case 1:
			if u.MovesLeft <= 0 {
				return fmt.Errorf("%w: %s", ErrNoMovesLeft, u.ID)
			}
			adjacent = true
		default:
			return illegal("%s is not next to %s", u.ID, c.ID)
		}
	default:
		return illegal("%s and %s are not together", u.ID, c.ID)
	}

	u.Location = Location{Kind: LocCarrier, ID: c.ID}
	u.State = StateSentry
	if adjacent {
		u.MovesLeft = 0
	}
	w.touch(u.ID)
	w.touch(c.ID)
	return nil
}

// Disembark unloads a unit from its carrier in Europe or in a port. At
// sea, units land by moving onto an adjacent land tile instead.
func (w *World) Disembark(playerID, unitID string) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	if u.Location.Kind != LocCarrier {
		return illegal("%s is not aboard a carrier", u.ID)
	}
	c, err := Resolve[*Unit](w, u.Location.ID)
	if err != nil {
		return err
	}
	var dest Location
	switch c.Location.Kind {
	case LocEurope:
		dest = Location{Kind: LocEurope}
	case LocTile:
		t := w.UnitTile(c)
		if t == nil || (t.Water() && w.SettlementAt(t) == nil) {
			return illegal("%s is at sea", c.ID)
		}
		dest = Location{Kind: LocTile, ID: t.ID}
	default:
		return illegal("%s is crossing the high seas", c.ID)
	}
	u.Location = dest
	u.State = StateActive
	w.touch(u.ID)
	w.touch(c.ID)
	return nil
}

// ChangeState sets a unit to active, sentry or fortified.
func (w *World) ChangeState(playerID, unitID string, state UnitState) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	switch state {
	case StateActive, StateSentry:
	case StateFortified:
		if u.Location.Kind != LocTile {
			return illegal("%s can only fortify on land", u.ID)
		}
	default:
		return fmt.Errorf("%w: state %q", ErrInvalidArgument, state)
	}
	if u.State == StateWorking || u.State == StateInTransit {
		return illegal("%s is busy", u.ID)
	}
	if u.Location.Kind != LocTile && u.Location.Kind != LocCarrier {
		return illegal("%s is not on the map", u.ID)
	}
	u.State = state
	w.touch(u.ID)
	return nil
}

// ClaimLand claims a land tile near one of the player's colonies. Land held
// by natives is bought for the landPrice option.
func (w *World) ClaimLand(playerID, tileID string) (int, error) {
	p, err := w.livePlayer(playerID)
	if err != nil {
		return 0, err
	}
	t, err := Resolve[*Tile](w, tileID)
	if err != nil {
		return 0, err
	}
	if t.Water() || t.HasSettlement() {
		return 0, illegal("%s cannot be claimed", t.ID)
	}
	if t.Owner == p.ID {
		return 0, illegal("%s is already yours", t.ID)
	}
	near := false
	for _, s := range w.SettlementsOf(p.ID) {
		st, err := Resolve[*Tile](w, s.Tile)
		if err == nil && Distance(st, t) <= colonyRadius+1 {
			near = true
			break
		}
	}
	if !near {
		return 0, illegal("%s is too far from your colonies", t.ID)
	}
	price := 0
	var seller *Player
	if t.Owner != "" {
		seller, err = w.Player(t.Owner)
		if err != nil {
			return 0, err
		}
		if seller.European() {
			return 0, illegal("%s belongs to %s", t.ID, seller.Name)
		}
		price = w.Option(OptionLandPrice)
	}
	if p.Gold < price {
		return 0, fmt.Errorf("%w: land costs %d", ErrInsufficientGold, price)
	}

	t.Owner = p.ID
	p.Gold -= price
	if seller != nil {
		seller.Gold += price
		w.touch(seller.ID)
	}
	w.touch(t.ID)
	w.touch(p.ID)
	return price, nil
}

// SetBuildQueue chooses what a colony builds next. An empty building
// clears the target.
func (w *World) SetBuildQueue(playerID, settlementID, building string) error {
	_, s, err := w.ownedSettlement(playerID, settlementID)
	if err != nil {
		return err
	}
	if s.Kind != SettlementColony {
		return illegal("%s is not a colony", s.ID)
	}
	if building != "" {
		if _, ok := BuildingCost(building); !ok {
			return fmt.Errorf("%w: building %q", ErrInvalidArgument, building)
		}
		if s.HasBuilding(building) {
			return illegal("%s already has a %s", s.Name, building)
		}
	}
	s.BuildTarget = building
	w.touch(s.ID)
	return nil
}

// SailToEurope sends a ship on a high-seas tile toward Europe.
func (w *World) SailToEurope(playerID, unitID string) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	if !u.Naval() {
		return illegal("%s is not a ship", u.ID)
	}
	t := w.UnitTile(u)
	if u.Location.Kind != LocTile || t == nil || !t.HighSeas() {
		return illegal("%s must be on the high seas", u.ID)
	}
	if u.MovesLeft <= 0 {
		return fmt.Errorf("%w: %s", ErrNoMovesLeft, u.ID)
	}
	w.startCrossing(u, DestEurope, t.ID)
	return nil
}

// SailToAmerica sends a ship docked in Europe toward the map.
func (w *World) SailToAmerica(playerID, unitID string) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	if !u.Naval() {
		return illegal("%s is not a ship", u.ID)
	}
	if u.Location.Kind != LocEurope {
		return illegal("%s is not in Europe", u.ID)
	}
	w.startCrossing(u, DestMap, "")
	return nil
}

func (w *World) startCrossing(u *Unit, dest Destination, fromTile string) {
	u.Location = Location{Kind: LocHighSeas}
	u.Destination = dest
	u.TurnsLeft = max(w.Option(OptionTurnsToSail), 1)
	u.State = StateInTransit
	u.MovesLeft = 0
	w.touch(u.ID)
	for _, c := range w.Cargo(u.ID) {
		w.touch(c.ID)
	}
	if fromTile != "" {
		w.touch(fromTile)
	}
}

// RecruitUnit buys a unit in Europe.
func (w *World) RecruitUnit(playerID, unitType string) (*Unit, error) {
	p, err := w.livePlayer(playerID)
	if err != nil {
		return nil, err
	}
	if !p.European() {
		return nil, illegal("natives cannot recruit in Europe")
	}
	ut, ok := LookupUnitType(unitType)
	if !ok || ut.Price <= 0 {
		return nil, fmt.Errorf("%w: unit type %q", ErrInvalidArgument, unitType)
	}
	if p.Gold < ut.Price {
		return nil, fmt.Errorf("%w: %s costs %d", ErrInsufficientGold, unitType, ut.Price)
	}
	p.Gold -= ut.Price
	w.touch(p.ID)
	return w.newUnit(p.ID, unitType, Location{Kind: LocEurope}), nil
}

// DisbandUnit removes a unit from the game.
func (w *World) DisbandUnit(playerID, unitID string) error {
	_, u, err := w.ownedUnit(playerID, unitID)
	if err != nil {
		return err
	}
	if u.State == StateInTransit {
		return illegal("%s is crossing the high seas", u.ID)
	}
	if len(w.Cargo(u.ID)) > 0 {
		return illegal("%s still carries units", u.ID)
	}
	if u.Location.Kind == LocSettlement && len(w.Workers(u.Location.ID)) <= 1 {
		return illegal("the last worker cannot be disbanded")
	}
	if u.Location.Kind == LocSettlement {
		w.touch(u.Location.ID)
	}
	w.disposeUnit(u)
	return nil
}

// SetStance changes the relation between two players in both directions.
func (w *World) SetStance(playerID, otherID string, stance Stance) error {
	p, err := w.livePlayer(playerID)
	if err != nil {
		return err
	}
	other, err := w.livePlayer(otherID)
	if err != nil {
		return err
	}
	if p.ID == other.ID {
		return fmt.Errorf("%w: stance toward self", ErrInvalidArgument)
	}
	if stance != StancePeace && stance != StanceWar {
		return fmt.Errorf("%w: stance %q", ErrInvalidArgument, stance)
	}
	w.setStance(p, other, stance)
	return nil
}

func (w *World) setStance(a, b *Player, s Stance) {
	if a.Stance(b.ID) == s && b.Stance(a.ID) == s {
		return
	}
	a.stance[b.ID] = s
	b.stance[a.ID] = s
	w.touch(a.ID)
	w.touch(b.ID)
}
