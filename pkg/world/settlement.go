package world

// SettlementKind separates colonies from native settlements.
type SettlementKind string

const (
	SettlementColony SettlementKind = "colony"
	SettlementNative SettlementKind = "native"
)

// Settlement is a colony or native settlement on a tile.
type Settlement struct {
	ID          string
	Name        string
	Kind        SettlementKind
	Owner       string
	Tile        string
	Stock       map[GoodsType]int
	Buildings   []string
	BuildTarget string
}

func (s *Settlement) ObjectID() string { return s.ID }
func (s *Settlement) ObjectKind() Kind { return KindSettlement }

// HasBuilding reports whether the settlement has completed a building.
func (s *Settlement) HasBuilding(id string) bool {
	for _, b := range s.Buildings {
		if b == id {
			return true
		}
	}
	return false
}
