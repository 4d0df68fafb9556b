package world

// PlayerKind distinguishes who controls a player.
type PlayerKind string

const (
	PlayerHuman  PlayerKind = "human"
	PlayerAI     PlayerKind = "ai"
	PlayerNative PlayerKind = "native"
)

// Stance is a diplomatic relation between two players.
type Stance string

const (
	StancePeace Stance = "peace"
	StanceWar   Stance = "war"
)

// Player is one nation in the game.
type Player struct {
	ID     string
	Name   string
	Nation string
	Kind   PlayerKind
	Dead   bool
	Gold   int
	Score  int
	Ready  bool

	// Immigration accumulates crosses; a recruit appears in Europe when it
	// reaches RecruitThreshold.
	Immigration      int
	RecruitThreshold int

	// Entry is the high-seas tile where ships sailing from Europe arrive.
	Entry string

	stance   map[string]Stance
	explored map[string]bool
}

func (p *Player) ObjectID() string { return p.ID }
func (p *Player) ObjectKind() Kind { return KindPlayer }

// European reports whether the player is a colonial power.
func (p *Player) European() bool { return p.Kind != PlayerNative }

// Stance returns the stance toward another player, peace by default.
func (p *Player) Stance(other string) Stance {
	if s, ok := p.stance[other]; ok {
		return s
	}
	return StancePeace
}

// Explored reports whether the player has seen a tile.
func (p *Player) Explored(tileID string) bool {
	return p.explored[tileID]
}

// ExploredCount returns the number of tiles the player has seen.
func (p *Player) ExploredCount() int {
	return len(p.explored)
}
