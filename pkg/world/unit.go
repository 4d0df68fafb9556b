package world

// LocationKind names where a unit is.
type LocationKind string

const (
	LocTile       LocationKind = "tile"
	LocCarrier    LocationKind = "unit"
	LocSettlement LocationKind = "settlement"
	LocEurope     LocationKind = "europe"
	LocHighSeas   LocationKind = "highSeas"
)

// Location points at the container holding a unit. ID is empty for
// Europe and the high seas.
type Location struct {
	Kind LocationKind `json:"kind"`
	ID   string       `json:"id,omitempty"`
}

// UnitState is the activity of a unit.
type UnitState string

const (
	StateActive    UnitState = "active"
	StateFortified UnitState = "fortified"
	StateSentry    UnitState = "sentry"
	StateWorking   UnitState = "working"
	StateInTransit UnitState = "inTransit"

	// Older saves kept sailing units in Europe with one of these states.
	StateLegacyToAmerica UnitState = "toAmerica"
	StateLegacyToEurope  UnitState = "toEurope"
)

// Destination of a unit crossing the high seas.
type Destination string

const (
	DestEurope Destination = "europe"
	DestMap    Destination = "map"
)

// Unit is a game piece.
type Unit struct {
	ID          string
	Type        string
	Owner       string
	Location    Location
	MovesLeft   int
	State       UnitState
	WorkType    GoodsType
	Destination Destination
	TurnsLeft   int
}

func (u *Unit) ObjectID() string { return u.ID }
func (u *Unit) ObjectKind() Kind { return KindUnit }

// TypeInfo returns the rules for the unit's type.
func (u *Unit) TypeInfo() UnitType {
	ut, _ := LookupUnitType(u.Type)
	return ut
}

// Naval reports whether the unit is a ship.
func (u *Unit) Naval() bool { return u.TypeInfo().Naval }

// OnMap reports whether the unit stands directly on a map tile.
func (u *Unit) OnMap() bool { return u.Location.Kind == LocTile }
