package world

// GoodsType names a kind of goods produced or stored in a settlement.
type GoodsType string

const (
	GoodsFood    GoodsType = "food"
	GoodsLumber  GoodsType = "lumber"
	GoodsOre     GoodsType = "ore"
	GoodsFurs    GoodsType = "furs"
	GoodsHammers GoodsType = "hammers"
	GoodsCrosses GoodsType = "crosses"
)

// WorkTypes returns the goods a colonist can be assigned to produce.
func WorkTypes() []GoodsType {
	return []GoodsType{GoodsFood, GoodsLumber, GoodsOre, GoodsFurs, GoodsHammers, GoodsCrosses}
}

// TileType names terrain.
type TileType string

const (
	TileOcean     TileType = "ocean"
	TileHighSeas  TileType = "highSeas"
	TilePlains    TileType = "plains"
	TileGrassland TileType = "grassland"
	TileForest    TileType = "forest"
	TileHills     TileType = "hills"
	TileMountains TileType = "mountains"
)

// TileTypeDef holds the rules for one terrain type.
type TileTypeDef struct {
	Water    bool
	MoveCost int
	// Production per worker for each goods type; missing entries produce nothing.
	Production map[GoodsType]int
}

var tileTypes = map[TileType]TileTypeDef{
	TileOcean:     {Water: true, MoveCost: 3, Production: map[GoodsType]int{GoodsFood: 2}},
	TileHighSeas:  {Water: true, MoveCost: 3},
	TilePlains:    {MoveCost: 3, Production: map[GoodsType]int{GoodsFood: 5, GoodsFurs: 1, GoodsLumber: 1}},
	TileGrassland: {MoveCost: 3, Production: map[GoodsType]int{GoodsFood: 3, GoodsLumber: 2}},
	TileForest:    {MoveCost: 6, Production: map[GoodsType]int{GoodsFood: 2, GoodsFurs: 3, GoodsLumber: 4}},
	TileHills:     {MoveCost: 6, Production: map[GoodsType]int{GoodsFood: 2, GoodsOre: 4}},
	TileMountains: {MoveCost: 9, Production: map[GoodsType]int{GoodsOre: 5}},
}

// TileTypeInfo returns the rules for t. Unknown types are treated as
// impassable water with no production.
func TileTypeInfo(t TileType) TileTypeDef {
	if def, ok := tileTypes[t]; ok {
		return def
	}
	return TileTypeDef{Water: true, MoveCost: 3}
}

// Unit type identifiers.
const (
	UnitColonist = "colonist"
	UnitSoldier  = "soldier"
	UnitPioneer  = "pioneer"
	UnitScout    = "scout"
	UnitCaravel  = "caravel"
	UnitGalleon  = "galleon"
	UnitBrave    = "brave"
)

// UnitType holds the rules for one kind of unit.
type UnitType struct {
	ID             string
	Moves          int
	Naval          bool
	Space          int
	Offence        int
	Defence        int
	LineOfSight    int
	Price          int
	CanBuildColony bool
	// DemotesTo is the unit type a defeated attacker becomes; empty means
	// the unit is lost.
	DemotesTo string
}

var unitTypes = map[string]UnitType{
	UnitColonist: {ID: UnitColonist, Moves: 3, Defence: 1, LineOfSight: 1, Price: 600, CanBuildColony: true},
	UnitSoldier:  {ID: UnitSoldier, Moves: 3, Offence: 2, Defence: 2, LineOfSight: 1, Price: 2000, CanBuildColony: true, DemotesTo: UnitColonist},
	UnitPioneer:  {ID: UnitPioneer, Moves: 3, Defence: 1, LineOfSight: 1, Price: 1200, CanBuildColony: true, DemotesTo: UnitColonist},
	UnitScout:    {ID: UnitScout, Moves: 12, Offence: 1, Defence: 1, LineOfSight: 2, Price: 1000, CanBuildColony: true, DemotesTo: UnitColonist},
	UnitCaravel:  {ID: UnitCaravel, Moves: 12, Naval: true, Space: 2, Defence: 2, LineOfSight: 1, Price: 1000},
	UnitGalleon:  {ID: UnitGalleon, Moves: 18, Naval: true, Space: 6, Defence: 2, LineOfSight: 1, Price: 3000},
	UnitBrave:    {ID: UnitBrave, Moves: 3, Offence: 1, Defence: 1, LineOfSight: 1},
}

// LookupUnitType returns the rules for a unit type id.
func LookupUnitType(id string) (UnitType, bool) {
	ut, ok := unitTypes[id]
	return ut, ok
}

// Building type identifiers and their hammer costs.
var buildingCosts = map[string]int{
	"stockade":      64,
	"docks":         52,
	"schoolhouse":   64,
	"printingPress": 52,
	"lumberMill":    52,
}

// BuildingCost returns the hammers needed to complete a building.
func BuildingCost(id string) (int, bool) {
	c, ok := buildingCosts[id]
	return c, ok
}

// Nations that players may choose in the lobby.
var nations = []string{"dutch", "english", "french", "spanish", "portuguese", "swedish", "danish", "russian"}

// NativeNation is the nation of the generated native player.
const NativeNation = "arawak"

// Nations returns the selectable European nations in display order.
func Nations() []string {
	out := make([]string, len(nations))
	copy(out, nations)
	return out
}

// ValidNation reports whether n is a selectable nation.
func ValidNation(n string) bool {
	for _, v := range nations {
		if v == n {
			return true
		}
	}
	return false
}

// Game option keys.
const (
	OptionMapWidth          = "mapWidth"
	OptionMapHeight         = "mapHeight"
	OptionStartingGold      = "startingGold"
	OptionNativeSettlements = "nativeSettlements"
	OptionLastTurn          = "lastTurn"
	OptionVictoryScore      = "victoryScore"
	OptionTurnsToSail       = "turnsToSail"
	OptionLandPrice         = "landPrice"
	OptionRecruitThreshold  = "recruitThreshold"
)

var defaultOptions = map[string]int{
	OptionMapWidth:          40,
	OptionMapHeight:         30,
	OptionStartingGold:      1000,
	OptionNativeSettlements: 2,
	OptionLastTurn:          200,
	OptionVictoryScore:      0,
	OptionTurnsToSail:       3,
	OptionLandPrice:         50,
	OptionRecruitThreshold:  40,
}

// DefaultOptions returns a fresh copy of the default game options.
func DefaultOptions() map[string]int {
	out := make(map[string]int, len(defaultOptions))
	for k, v := range defaultOptions {
		out[k] = v
	}
	return out
}

// DefaultOption returns the default for a single option key.
func DefaultOption(key string) (int, bool) {
	v, ok := defaultOptions[key]
	return v, ok
}

const (
	colonyFoodPerColonist = 2
	colonyGrowthFood      = 200
	colonyCenterFood      = 5
	colonyCenterFurs      = 2
	colonyRadius          = 1
	settlementSight       = 2
)
