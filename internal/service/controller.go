package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/repository"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/savegame"
	"github.com/freeeve/freecol/server/pkg/world"
)

// Phase is the server-wide game state.
type Phase string

const (
	PhaseStarting Phase = "STARTING_GAME"
	PhaseInGame   Phase = "IN_GAME"
	PhaseEnding   Phase = "ENDING_GAME"
)

// AutosaveName is the file autosaves are written to inside the save dir.
const AutosaveName = "autosave.fsg"

// AIPlayer plays a computer-controlled seat. PlayTurn runs inside the
// writer and must only talk to the server through its own connection.
type AIPlayer interface {
	PlayTurn(ctx context.Context) error
}

// Action is a world mutation performed on behalf of the current player.
// It returns the reply for the requester.
type Action func(w *world.World) (protocol.Message, error)

// ControllerConfig holds the turn loop settings.
type ControllerConfig struct {
	AutosaveTurns   int
	SaveDir         string
	ImplicitEndTurn bool
	Meta            savegame.Metadata
}

type proposal struct {
	from, to string
}

// Controller owns the world and drives the turn loop. Every method that
// reads or mutates the world runs its body inside the Writer.
type Controller struct {
	writer *Writer
	out    Broadcaster
	scores repository.HighScoreRepository
	cfg    ControllerConfig

	mu        sync.RWMutex
	world     *world.World
	phase     Phase
	started   *Signal[*world.World]
	listeners []func(Phase)

	// Writer-owned.
	ai        map[string]AIPlayer
	aiState   func() ([]byte, error)
	driving   bool
	proposals map[proposal]bool

	background sync.WaitGroup
}

// NewController creates a controller for a fresh pre-game world. scores may
// be nil.
func NewController(w *world.World, writer *Writer, out Broadcaster, scores repository.HighScoreRepository, cfg ControllerConfig) *Controller {
	if out == nil {
		out = NoopBroadcaster{}
	}
	if w == nil {
		w = world.New(uuid.NewString(), uint64(time.Now().UnixNano()), nil)
	}
	return &Controller{
		writer:    writer,
		out:       out,
		scores:    scores,
		cfg:       cfg,
		world:     w,
		phase:     PhaseStarting,
		started:   NewSignal[*world.World](),
		ai:        make(map[string]AIPlayer),
		proposals: make(map[proposal]bool),
	}
}

// Writer returns the executor that serialises world access.
func (c *Controller) Writer() *Writer { return c.writer }

// World returns the current world. Callers outside the writer must not read
// its fields.
func (c *Controller) World() *world.World {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.world
}

// Phase returns the current game state.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Started resolves with the world once the game is running.
func (c *Controller) Started() *Signal[*world.World] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// OnPhaseChange registers fn to run after every phase transition. Listeners
// run inside the writer.
func (c *Controller) OnPhaseChange(fn func(Phase)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// SetPhase forces a phase transition.
func (c *Controller) SetPhase(ctx context.Context, p Phase) error {
	return c.writer.Do(ctx, func(context.Context) error {
		c.setPhase(p)
		return nil
	})
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	if c.phase == p {
		c.mu.Unlock()
		return
	}
	c.phase = p
	listeners := append([]func(Phase){}, c.listeners...)
	c.mu.Unlock()

	log.Info().Str("phase", string(p)).Msg("Phase changed")
	for _, fn := range listeners {
		fn(p)
	}
}

// SetAIStateSource sets the function that serialises AI state into saves.
func (c *Controller) SetAIStateSource(fn func() ([]byte, error)) {
	c.mu.Lock()
	c.aiState = fn
	c.mu.Unlock()
}

// AttachAI registers the driver for a computer-controlled player.
func (c *Controller) AttachAI(ctx context.Context, playerID string, ai AIPlayer) error {
	return c.writer.Do(ctx, func(context.Context) error {
		c.ai[playerID] = ai
		return nil
	})
}

// Do runs fn with the world inside the writer.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context, w *world.World) error) error {
	return c.writer.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, c.world)
	})
}

// AddAIPlayer seats a computer player in the lobby. An empty nation picks
// the first free one.
func (c *Controller) AddAIPlayer(ctx context.Context, name, nation string) (*world.Player, error) {
	var added *world.Player
	err := c.Do(ctx, func(_ context.Context, w *world.World) error {
		if c.phase != PhaseStarting {
			return ErrWrongPhase
		}
		if w.PlayerByName(name) != nil {
			return fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
		if nation == "" {
			nation = w.FreeNation()
		}
		if nation == "" {
			return ErrLobbyFull
		}
		p := w.AddPlayer(name, nation, world.PlayerAI)
		if err := w.SetNation(p.ID, nation); err != nil {
			_ = w.RemovePlayer(p.ID)
			return err
		}
		p.Ready = true
		added = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("playerId", added.ID).Str("nation", added.Nation).Msg("AI player added")
	return added, nil
}

// begin flips a generated world into play. Runs inside the writer.
func (c *Controller) begin(ctx context.Context, w *world.World) {
	w.ResetChanges()
	c.setPhase(PhaseInGame)
	c.started.Complete(w)
	c.announceGame(w)
	c.driveAI(ctx)
}

// Install replaces the running world with a loaded one. AI drivers are
// dropped and must be attached again before Resume.
func (c *Controller) Install(ctx context.Context, w *world.World) error {
	return c.writer.Do(ctx, func(context.Context) error {
		started := NewSignal[*world.World]()
		started.Complete(w)
		c.mu.Lock()
		c.world = w
		c.started = started
		c.mu.Unlock()

		c.ai = make(map[string]AIPlayer)
		c.proposals = make(map[proposal]bool)
		w.ResetChanges()
		if w.CheckVictory().Over {
			c.setPhase(PhaseEnding)
		} else {
			c.setPhase(PhaseInGame)
		}
		c.announceGame(w)
		log.Info().Str("gameId", w.GameID).Int("turn", w.Turn).Msg("Game installed")
		return nil
	})
}

// Resume lets AI players act if one of them is current.
func (c *Controller) Resume(ctx context.Context) error {
	return c.writer.Do(ctx, c.resume)
}

func (c *Controller) resume(ctx context.Context) error {
	if c.phase == PhaseInGame {
		c.driveAI(ctx)
	}
	return nil
}

func (c *Controller) announceGame(w *world.World) {
	for _, p := range w.Players() {
		if !p.European() {
			continue
		}
		c.out.SendTo(p.ID, &protocol.GameStarted{GameID: w.GameID, PlayerID: p.ID})
		c.out.SendTo(p.ID, &protocol.Update{Full: true, View: *w.ViewFor(p.ID)})
	}
	if w.CurrentPlayer != "" {
		c.out.Broadcast(&protocol.SetCurrentPlayer{PlayerID: w.CurrentPlayer, Turn: w.Turn})
	}
}

// FullUpdate returns the whole view of the world for a player, used on
// reconnect.
func (c *Controller) FullUpdate(ctx context.Context, playerID string) (*protocol.Update, error) {
	var u *protocol.Update
	err := c.Do(ctx, func(_ context.Context, w *world.World) error {
		if _, err := w.Player(playerID); err != nil {
			return err
		}
		u = &protocol.Update{Full: true, View: *w.ViewFor(playerID)}
		return nil
	})
	return u, err
}

func (c *Controller) requireCurrent(w *world.World, playerID string) error {
	if c.phase != PhaseInGame {
		return ErrWrongPhase
	}
	if w.CurrentPlayer != playerID {
		return ErrNotCurrentPlayer
	}
	return nil
}

// Apply runs a current-player action. A rejected action leaves the world
// untouched and broadcasts nothing; an accepted one sends each player the
// part of the change they can see.
func (c *Controller) Apply(ctx context.Context, playerID string, action Action) (protocol.Message, error) {
	var reply protocol.Message
	err := c.Do(ctx, func(ctx context.Context, w *world.World) error {
		if err := c.requireCurrent(w, playerID); err != nil {
			return err
		}
		w.ResetChanges()
		r, err := action(w)
		if err != nil {
			w.ResetChanges()
			return err
		}
		reply = r
		c.publish(w)
		c.maybeImplicitEndTurn(ctx, w, playerID)
		return nil
	})
	return reply, err
}

func (c *Controller) maybeImplicitEndTurn(ctx context.Context, w *world.World, playerID string) {
	if !c.cfg.ImplicitEndTurn || c.phase != PhaseInGame || w.CurrentPlayer != playerID {
		return
	}
	p, err := w.Player(playerID)
	if err != nil || p.Kind != world.PlayerHuman || p.Dead || w.HasMovableUnits(playerID) {
		return
	}
	log.Debug().Str("playerId", playerID).Msg("No movable units left, ending turn")
	if _, err := c.endTurn(ctx, w, playerID); err != nil {
		log.Error().Err(err).Str("playerId", playerID).Msg("Implicit end of turn failed")
	}
}

// publish sends every player the delta of the pending change log and
// clears it.
func (c *Controller) publish(w *world.World) {
	ch := w.Changes()
	if ch.Empty() {
		return
	}
	for _, p := range w.Players() {
		if !p.European() {
			continue
		}
		if v := w.Delta(p.ID, ch); !v.Empty() {
			c.out.SendTo(p.ID, &protocol.Update{View: *v})
		}
	}
	w.ResetChanges()
}

// EndTurn finishes the current player's turn and hands control to the
// next live player, driving computer players until a human is current.
func (c *Controller) EndTurn(ctx context.Context, playerID string) (*world.TurnReport, error) {
	var report *world.TurnReport
	err := c.Do(ctx, func(ctx context.Context, w *world.World) error {
		r, err := c.endTurn(ctx, w, playerID)
		report = r
		return err
	})
	return report, err
}

func (c *Controller) endTurn(ctx context.Context, w *world.World, playerID string) (*world.TurnReport, error) {
	if err := c.requireCurrent(w, playerID); err != nil {
		return nil, err
	}
	w.ResetChanges()
	report, err := w.EndTurn(playerID)
	if err != nil {
		return nil, err
	}
	next, newRound := w.AdvancePlayer()
	c.publish(w)
	if report.Died {
		log.Info().Str("playerId", playerID).Int("turn", w.Turn).Msg("Player died")
	}

	if newRound {
		c.out.Broadcast(&protocol.NewTurn{Turn: w.Turn})
		c.autosave(w)
	}

	outcome := w.CheckVictory()
	if !outcome.Over && next == nil {
		outcome = world.Outcome{Over: true, Reason: "extinction"}
	}
	if outcome.Over {
		c.finish(w, outcome)
		return report, nil
	}

	c.out.Broadcast(&protocol.SetCurrentPlayer{PlayerID: next.ID, Turn: w.Turn})
	c.driveAI(ctx)
	return report, nil
}

// driveAI plays computer seats until a human is current. Nested calls from
// inside an AI turn return at once; the outer loop picks up the new
// current player. With no live human left it yields the writer after every
// round so queued requests still get served.
func (c *Controller) driveAI(ctx context.Context) {
	if c.driving {
		return
	}
	c.driving = true
	defer func() { c.driving = false }()

	for c.phase == PhaseInGame {
		w := c.world
		cur := w.Current()
		if cur == nil || cur.Kind == world.PlayerHuman {
			return
		}
		turn := w.Turn
		if ai, ok := c.ai[cur.ID]; ok {
			if err := ai.PlayTurn(ctx); err != nil {
				log.Warn().Err(err).Str("playerId", cur.ID).Int("turn", turn).Msg("AI turn failed")
			}
		}
		if c.phase == PhaseInGame && w.CurrentPlayer == cur.ID && w.Turn == turn {
			if _, err := c.endTurn(ctx, w, cur.ID); err != nil {
				log.Error().Err(err).Str("playerId", cur.ID).Msg("Forced end of AI turn failed")
				return
			}
		}
		if w.Turn != turn && !hasLiveHuman(w) {
			if err := c.writer.Submit(context.Background(), c.resume); err != nil {
				log.Warn().Err(err).Msg("AI-only game stopped")
			}
			return
		}
	}
}

func hasLiveHuman(w *world.World) bool {
	for _, p := range w.LivePlayers() {
		if p.Kind == world.PlayerHuman {
			return true
		}
	}
	return false
}

func (c *Controller) finish(w *world.World, outcome world.Outcome) {
	scores := scoreList(w)
	c.setPhase(PhaseEnding)
	c.out.Broadcast(&protocol.GameEnded{Winner: outcome.Winner, Reason: outcome.Reason, Scores: scores})
	log.Info().Str("gameId", w.GameID).Str("winner", outcome.Winner).Str("reason", outcome.Reason).
		Int("turn", w.Turn).Msg("Game ended")

	if c.scores == nil {
		return
	}
	now := time.Now().UTC()
	records := make([]model.HighScore, 0, len(scores))
	for _, s := range scores {
		records = append(records, model.HighScore{
			ID:         uuid.NewString(),
			GameID:     w.GameID,
			PlayerName: s.Name,
			Nation:     s.Nation,
			Score:      s.Score,
			Turn:       w.Turn,
			Won:        s.PlayerID == outcome.Winner,
			Reason:     outcome.Reason,
			CreatedAt:  now,
		})
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.scores.Record(ctx, records); err != nil {
			log.Error().Err(err).Str("gameId", w.GameID).Msg("Failed to record high scores")
		}
	}()
}

func scoreList(w *world.World) []protocol.Score {
	var out []protocol.Score
	for _, p := range w.Players() {
		if !p.European() {
			continue
		}
		out = append(out, protocol.Score{
			PlayerID: p.ID,
			Name:     p.Name,
			Nation:   p.Nation,
			Score:    p.Score,
			Dead:     p.Dead,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Scores returns the current standings.
func (c *Controller) Scores(ctx context.Context) (*protocol.Scores, error) {
	var s *protocol.Scores
	err := c.Do(ctx, func(_ context.Context, w *world.World) error {
		if c.phase == PhaseStarting {
			return ErrWrongPhase
		}
		s = &protocol.Scores{Turn: w.Turn, Scores: scoreList(w)}
		return nil
	})
	return s, err
}

// HighScores returns the best recorded results.
func (c *Controller) HighScores(ctx context.Context, limit int) ([]model.HighScore, error) {
	if c.scores == nil {
		return nil, ErrHighScoresOffline
	}
	if limit <= 0 {
		limit = 10
	}
	return c.scores.Top(ctx, limit)
}

// Diplomacy changes the stance between two players. War is declared at
// once. Peace between humans needs a proposal and an acceptance; computer
// players accept every peace offer.
func (c *Controller) Diplomacy(ctx context.Context, from string, d *protocol.Diplomacy) (protocol.Message, error) {
	var reply protocol.Message
	err := c.Do(ctx, func(_ context.Context, w *world.World) error {
		if c.phase != PhaseInGame {
			return ErrWrongPhase
		}
		other, err := w.Player(d.To)
		if err != nil {
			return err
		}
		if other.Dead {
			return world.ErrPlayerDead
		}

		switch d.Stance {
		case world.StanceWar:
			if err := c.setStance(w, from, d.To, world.StanceWar); err != nil {
				return err
			}
			c.out.SendTo(d.To, &protocol.Diplomacy{From: from, To: d.To, Stance: world.StanceWar})
			reply = &protocol.OK{}

		case world.StancePeace:
			switch {
			case d.Accept:
				if !c.proposals[proposal{from: d.To, to: from}] {
					return ErrNoProposal
				}
				if err := c.setStance(w, from, d.To, world.StancePeace); err != nil {
					return err
				}
				c.out.SendTo(d.To, &protocol.Diplomacy{From: from, To: d.To, Stance: world.StancePeace, Accept: true})
				reply = &protocol.OK{}
			case other.Kind != world.PlayerHuman:
				if err := c.setStance(w, from, d.To, world.StancePeace); err != nil {
					return err
				}
				reply = &protocol.Diplomacy{From: d.To, To: from, Stance: world.StancePeace, Accept: true}
			default:
				if _, err := w.Player(from); err != nil {
					return err
				}
				c.proposals[proposal{from: from, to: d.To}] = true
				c.out.SendTo(d.To, &protocol.Diplomacy{From: from, To: d.To, Stance: world.StancePeace})
				reply = &protocol.OK{}
			}

		default:
			return fmt.Errorf("%w: stance %q", world.ErrInvalidArgument, d.Stance)
		}
		return nil
	})
	return reply, err
}

func (c *Controller) setStance(w *world.World, a, b string, s world.Stance) error {
	w.ResetChanges()
	if err := w.SetStance(a, b, s); err != nil {
		return err
	}
	delete(c.proposals, proposal{from: a, to: b})
	delete(c.proposals, proposal{from: b, to: a})
	c.publish(w)
	return nil
}

func (c *Controller) captureAI() []byte {
	c.mu.RLock()
	fn := c.aiState
	c.mu.RUnlock()
	if fn == nil {
		return nil
	}
	data, err := fn()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to capture AI state")
		return nil
	}
	return data
}

// Save snapshots the world inside the writer and writes the archive to
// path.
func (c *Controller) Save(ctx context.Context, path string, thumbnail []byte) error {
	var doc *savegame.Document
	var aiState []byte
	meta := c.cfg.Meta
	meta.Thumbnail = thumbnail
	err := c.Do(ctx, func(_ context.Context, w *world.World) error {
		if w.Map == nil {
			return ErrWrongPhase
		}
		doc = savegame.Capture(w, meta)
		aiState = c.captureAI()
		return nil
	})
	if err != nil {
		return err
	}
	if err := savegame.WriteFile(path, doc, meta, aiState); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("turn", doc.Game.Turn).Msg("Game saved")
	return nil
}

// autosave captures inside the writer and writes on a background
// goroutine.
func (c *Controller) autosave(w *world.World) {
	n := c.cfg.AutosaveTurns
	if n <= 0 || c.cfg.SaveDir == "" || w.Turn%n != 0 {
		return
	}
	doc := savegame.Capture(w, c.cfg.Meta)
	aiState := c.captureAI()
	path := filepath.Join(c.cfg.SaveDir, AutosaveName)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		if err := savegame.WriteFile(path, doc, c.cfg.Meta, aiState); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Autosave failed")
			return
		}
		log.Info().Str("path", path).Int("turn", doc.Game.Turn).Msg("Autosaved")
	}()
}

// Wait blocks until background saves and high-score writes are done.
func (c *Controller) Wait() {
	c.background.Wait()
}
