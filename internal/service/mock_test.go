package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/repository"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

type sent struct {
	to  string // player id, "*" for broadcast
	msg protocol.Message
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sent
}

func (b *recordingBroadcaster) SendTo(playerID string, msg protocol.Message) {
	b.mu.Lock()
	b.sent = append(b.sent, sent{to: playerID, msg: msg})
	b.mu.Unlock()
}

func (b *recordingBroadcaster) Broadcast(msg protocol.Message) {
	b.SendTo("*", msg)
}

func (b *recordingBroadcaster) BroadcastExcept(_ string, msg protocol.Message) {
	b.SendTo("*", msg)
}

func (b *recordingBroadcaster) tagged(tag protocol.Tag) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, s := range b.sent {
		if s.msg.Tag() == tag {
			out = append(out, s)
		}
	}
	return out
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

type memScores struct {
	mu     sync.Mutex
	scores []model.HighScore
}

func (m *memScores) Record(_ context.Context, scores []model.HighScore) error {
	m.mu.Lock()
	m.scores = append(m.scores, scores...)
	m.mu.Unlock()
	return nil
}

func (m *memScores) Top(_ context.Context, limit int) ([]model.HighScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.HighScore{}, m.scores...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memScores) Close() error { return nil }

var _ repository.HighScoreRepository = (*memScores)(nil)

type memDirectory struct {
	mu        sync.Mutex
	listings  map[string]model.ServerListing
	announced int
	fail      bool
}

func newMemDirectory() *memDirectory {
	return &memDirectory{listings: make(map[string]model.ServerListing)}
}

func (d *memDirectory) Announce(_ context.Context, l model.ServerListing) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("directory down")
	}
	d.listings[l.Name] = l
	d.announced++
	return nil
}

func (d *memDirectory) Remove(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.listings[name]; !ok {
		return repository.ErrNotFound
	}
	delete(d.listings, name)
	return nil
}

func (d *memDirectory) List(_ context.Context) ([]model.ServerListing, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.ServerListing
	for _, l := range d.listings {
		out = append(out, l)
	}
	return out, nil
}

func (d *memDirectory) announcements() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.announced
}

// stubTokens issues "playerID@gameID" tokens.
type stubTokens struct{}

func (stubTokens) Issue(playerID, gameID string) (string, error) {
	return playerID + "@" + gameID, nil
}

func (stubTokens) Verify(token string) (string, string, error) {
	pid, gid, ok := strings.Cut(token, "@")
	if !ok {
		return "", "", errors.New("malformed token")
	}
	return pid, gid, nil
}

type scriptedAI func(ctx context.Context) error

func (f scriptedAI) PlayTurn(ctx context.Context) error { return f(ctx) }

type fixture struct {
	writer *Writer
	out    *recordingBroadcaster
	scores *memScores
	ctrl   *Controller
	lobby  *Lobby
}

func testOptions(extra map[string]int) map[string]int {
	opts := map[string]int{
		world.OptionMapWidth:          16,
		world.OptionMapHeight:         10,
		world.OptionNativeSettlements: 0,
	}
	for k, v := range extra {
		opts[k] = v
	}
	return opts
}

func newFixture(t *testing.T, cfg ControllerConfig, opts map[string]int) *fixture {
	t.Helper()
	f := &fixture{
		writer: NewWriter(2 * time.Second),
		out:    &recordingBroadcaster{},
		scores: &memScores{},
	}
	t.Cleanup(f.writer.Stop)
	w := world.New("game-1", 7, testOptions(opts))
	f.ctrl = NewController(w, f.writer, f.out, f.scores, cfg)
	f.lobby = NewLobby(f.ctrl, stubTokens{}, LobbyConfig{MinPlayers: 2})
	return f
}

// startTwo seats ann (host) and bob, readies both and starts the game.
func (f *fixture) startTwo(t *testing.T) (ann, bob string) {
	t.Helper()
	ctx := context.Background()
	a, err := f.lobby.AddPlayer(ctx, "ann", "dutch")
	require.NoError(t, err)
	b, err := f.lobby.AddPlayer(ctx, "bob", "english")
	require.NoError(t, err)
	require.NoError(t, f.lobby.SetReady(ctx, a.PlayerID, true))
	require.NoError(t, f.lobby.SetReady(ctx, b.PlayerID, true))
	require.NoError(t, f.lobby.StartGame(ctx, a.PlayerID))
	return a.PlayerID, b.PlayerID
}

func (f *fixture) read(t *testing.T, fn func(w *world.World)) {
	t.Helper()
	require.NoError(t, f.ctrl.Do(context.Background(), func(_ context.Context, w *world.World) error {
		fn(w)
		return nil
	}))
}
