package bot

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/world"
)

const stateVersion = 1

// State is the AI document stored in saved games.
type State struct {
	Version int                    `json:"version"`
	Players map[string]PlayerState `json:"players"`
}

// PlayerState is what one computer seat remembers between turns.
type PlayerState struct {
	Strategy string            `json:"strategy"`
	Missions map[string]string `json:"missions,omitempty"`
}

// Manager keeps the drivers of every computer seat in a game.
type Manager struct {
	world func() *world.World

	mu      sync.Mutex
	drivers map[string]*Driver
	pending map[string]PlayerState
}

// NewManager creates a manager whose drivers read the world from fn.
func NewManager(fn func() *world.World) *Manager {
	return &Manager{
		world:   fn,
		drivers: make(map[string]*Driver),
		pending: make(map[string]PlayerState),
	}
}

// Spawn creates the driver for playerID on the client end of its dummy
// connection. State restored from a save takes precedence over strategy.
func (m *Manager) Spawn(playerID string, conn transport.Connection, strategy string) *Driver {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, restored := m.pending[playerID]
	if restored {
		delete(m.pending, playerID)
		if ps.Strategy != "" {
			strategy = ps.Strategy
		}
	}
	s := StrategyByName(strategy)
	if st, ok := s.(Stateful); ok && restored {
		st.RestoreMissions(ps.Missions)
	}
	d := NewDriver(playerID, conn, s, m.world)
	m.drivers[playerID] = d
	return d
}

// Driver returns the driver of a seat.
func (m *Manager) Driver(playerID string) (*Driver, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[playerID]
	return d, ok
}

// Drivers returns how many seats are driven.
func (m *Manager) Drivers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drivers)
}

// Remove forgets a seat's driver.
func (m *Manager) Remove(playerID string) {
	m.mu.Lock()
	delete(m.drivers, playerID)
	m.mu.Unlock()
}

// Reset drops every driver and any state waiting to be restored.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.drivers = make(map[string]*Driver)
	m.pending = make(map[string]PlayerState)
	m.mu.Unlock()
}

// State serialises every driver's memory. It must run on the writer.
func (m *Manager) State() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := State{Version: stateVersion, Players: make(map[string]PlayerState, len(m.drivers))}
	for id, d := range m.drivers {
		ps := PlayerState{Strategy: d.strategy.Name()}
		if st, ok := d.strategy.(Stateful); ok {
			ps.Missions = st.Missions()
		}
		doc.Players[id] = ps
	}
	return json.Marshal(doc)
}

// Restore parses a saved AI document. Its entries are applied as the
// matching seats are spawned.
func (m *Manager) Restore(data []byte) error {
	pending := make(map[string]PlayerState)
	if len(data) > 0 {
		var doc State
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode ai state: %w", err)
		}
		if doc.Version > stateVersion {
			return fmt.Errorf("ai state version %d is newer than %d", doc.Version, stateVersion)
		}
		for id, ps := range doc.Players {
			pending[id] = ps
		}
	}
	m.mu.Lock()
	m.pending = pending
	m.mu.Unlock()
	return nil
}
