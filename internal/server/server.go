// Package server runs one game: it accepts websocket players, hands each
// connection the handler set for the current phase, seats computer
// players on in-process pairs and owns save, load and shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/auth"
	"github.com/freeeve/freecol/server/internal/bot"
	"github.com/freeeve/freecol/server/internal/config"
	"github.com/freeeve/freecol/server/internal/handler"
	"github.com/freeeve/freecol/server/internal/logger"
	"github.com/freeeve/freecol/server/internal/middleware"
	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/repository"
	"github.com/freeeve/freecol/server/internal/service"
	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/savegame"
	"github.com/freeeve/freecol/server/pkg/world"
)

// Version is reported by /status and to the meta server.
const Version = "1.0.0"

var (
	ErrAlreadyStarted = errors.New("server already started")
	ErrShuttingDown   = errors.New("server is shutting down")
)

// Deps are the collaborators a server is built with. All are optional.
type Deps struct {
	Scores    repository.HighScoreRepository
	Directory repository.Directory
	Tokens    *auth.JWTManager
	// AIStrategy names the strategy for new computer seats.
	AIStrategy string
}

// Server owns the listener, the connection hub and the game.
type Server struct {
	cfg    *config.Config
	deps   Deps
	tokens *auth.JWTManager

	writer    *service.Writer
	hub       *Hub
	ctrl      *service.Controller
	lobby     *service.Lobby
	pregame   *handler.Registry
	ingame    *handler.Registry
	bots      *bot.Manager
	announcer *service.Announcer
	gate      gate

	baseCtx context.Context
	cancel  context.CancelFunc

	mu           sync.Mutex
	listener     net.Listener
	httpSrv      *http.Server
	serveDone    chan struct{}
	announceDone chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a server around a fresh pre-game world. Nothing listens until
// Start.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Tokens == nil {
		deps.Tokens = auth.NewJWTManager(cfg.JWTSecret)
	}
	if deps.AIStrategy == "" {
		deps.AIStrategy = bot.StrategyExplorer
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		tokens: deps.Tokens,
		writer: service.NewWriter(cfg.WriterTimeout),
		hub:    NewHub(),
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	s.ctrl = service.NewController(nil, s.writer, s.hub, deps.Scores, service.ControllerConfig{
		AutosaveTurns:   cfg.AutosaveTurns,
		SaveDir:         cfg.SaveDir,
		ImplicitEndTurn: cfg.ImplicitEndTurn,
		Meta: savegame.Metadata{
			Owner:        cfg.ServerName,
			Public:       cfg.Public,
			SinglePlayer: cfg.SinglePlayer,
		},
	})
	minPlayers := cfg.MinPlayers
	if cfg.SinglePlayer {
		minPlayers = 1
	}
	s.lobby = service.NewLobby(s.ctrl, s.tokens, service.LobbyConfig{MinPlayers: minPlayers})
	s.lobby.SetBoundCheck(s.hub.Bound)

	d := handler.Deps{
		Lobby:      s.lobby,
		Controller: s.ctrl,
		Out:        s.hub,
		OnLogout:   func(transport.Connection, string) { s.kick() },
	}
	s.pregame = handler.PreGame(d)
	s.ingame = handler.InGame(d)

	s.bots = bot.NewManager(s.ctrl.World)
	s.ctrl.SetAIStateSource(s.bots.State)
	s.ctrl.OnPhaseChange(s.phaseChanged)

	if cfg.Public && !cfg.SinglePlayer && deps.Directory != nil {
		s.announcer = service.NewAnnouncer(deps.Directory, s.listing, cfg.MetaInterval)
	}
	return s
}

// Controller returns the game controller.
func (s *Server) Controller() *service.Controller { return s.ctrl }

// Hub returns the connection registry.
func (s *Server) Hub() *Hub { return s.hub }

// Bots returns the computer seat drivers.
func (s *Server) Bots() *bot.Manager { return s.bots }

// Handler returns the HTTP surface: the websocket endpoint plus the
// status, high score and admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /healthz", handler.Health)
	mux.HandleFunc("GET /status", handler.Status(s.status))
	mux.HandleFunc("GET /highscores", handler.HighScores(s.ctrl))
	mux.Handle("POST /admin/save", auth.RequireAdmin(s.tokens)(handler.AdminSave(s.saveNamed)))
	return middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS("*"))
}

// Start binds the listener and serves on a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate.isClosed() {
		return ErrShuttingDown
	}
	if s.httpSrv != nil {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.serveDone = make(chan struct{})
	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		log.Info().Str("addr", ln.Addr().String()).Str("name", s.cfg.ServerName).Msg("Server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
		}
	}(s.httpSrv, s.serveDone)

	if s.announcer != nil {
		s.announceDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			s.announcer.Run(s.baseCtx)
		}(s.announceDone)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if a, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return a.Port
		}
	}
	return s.cfg.Port
}

// guard admits a dispatch unless the server is shutting down and counts it
// until it returns.
func (s *Server) guard(h transport.Handler) transport.Handler {
	return func(ctx context.Context, c transport.Connection, msg protocol.Message) protocol.Message {
		if !s.gate.enter() {
			return protocol.NewError(protocol.CodeInternal, "server shutting down")
		}
		defer s.gate.leave()
		return h(ctx, c, msg)
	}
}

func (s *Server) handlerFor(p service.Phase) transport.Handler {
	if p == service.PhaseStarting {
		return s.guard(s.pregame.Handler())
	}
	return s.guard(s.ingame.Handler())
}

// phaseChanged swaps every connection to the new phase's handler set. It
// runs on the writer.
func (s *Server) phaseChanged(p service.Phase) {
	s.hub.SetHandler(s.handlerFor(p))
	log.Info().Str("phase", string(p)).Int("connections", s.hub.ConnectionCount()).Msg("Handler set swapped")
	s.kick()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.gate.isClosed() {
		http.Error(w, `{"error":"shutting down"}`, http.StatusServiceUnavailable)
		return
	}
	ws, err := transport.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ForRequest(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := transport.NewSocketConn(ws, transport.Options{
		MessageRate:  s.cfg.MaxMessageRate,
		MessageBurst: s.cfg.MaxMessageBurst,
		OnClose:      s.disconnected,
	})
	phase := s.ctrl.Phase()
	c.SetHandler(s.handlerFor(phase))
	s.hub.Register(c)
	if now := s.ctrl.Phase(); now != phase {
		c.SetHandler(s.handlerFor(now))
	}
	c.Start(s.baseCtx)
	log.Info().Str("connId", c.ID()).Str("remote", c.RemoteAddr()).Msg("Client connected")
	s.kick()
}

// disconnected forgets a socket. A player who drops out of the lobby loses
// the seat; in a running game the seat waits for a login.
func (s *Server) disconnected(c transport.Connection) {
	s.hub.Unregister(c)
	pid := c.PlayerID()
	log.Info().Str("connId", c.ID()).Str("playerId", pid).Msg("Client disconnected")
	if pid == "" || s.gate.isClosed() {
		return
	}
	s.kick()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AskTimeout)
	defer cancel()
	if err := s.lobby.Leave(ctx, pid); err != nil {
		log.Warn().Err(err).Str("playerId", pid).Msg("Failed to release lobby seat")
	}
}

func (s *Server) kick() {
	if s.announcer != nil {
		s.announcer.Kick()
	}
}

// AddAIPlayer seats a computer player in the lobby. An empty nation takes
// the first free one.
func (s *Server) AddAIPlayer(ctx context.Context, nation string) (*world.Player, error) {
	var added *world.Player
	err := s.ctrl.Do(ctx, func(ctx context.Context, w *world.World) error {
		if s.ctrl.Phase() != service.PhaseStarting {
			return service.ErrWrongPhase
		}
		if nation == "" {
			nation = w.FreeNation()
		}
		if nation == "" {
			return service.ErrLobbyFull
		}
		p, err := s.lobby.AddAIPlayer(ctx, aiName(nation), nation)
		if err != nil {
			return err
		}
		added = p
		return s.spawnAI(ctx, p.ID)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func aiName(nation string) string {
	return strings.ToUpper(nation[:1]) + nation[1:] + " AI"
}

// spawnAI wires a computer seat: the server keeps one end of a dummy pair
// under the phase's handler set and the bot driver plays through the
// other. Runs on the writer.
func (s *Server) spawnAI(ctx context.Context, playerID string) error {
	serverEnd, aiEnd := transport.NewDummyPair()
	serverEnd.BindPlayer(playerID)
	aiEnd.BindPlayer(playerID)

	d := s.bots.Spawn(playerID, aiEnd, s.deps.AIStrategy)
	aiEnd.SetHandler(handler.AIClient(d).Handler())
	serverEnd.SetHandler(s.handlerFor(s.ctrl.Phase()))
	serverEnd.OnClose(s.hub.Unregister)
	s.hub.Register(serverEnd)
	return s.ctrl.AttachAI(ctx, playerID, d)
}

// Save writes the game to path.
func (s *Server) Save(ctx context.Context, path string, thumbnail []byte) error {
	return s.ctrl.Save(ctx, path, thumbnail)
}

// saveNamed saves into the save directory. An empty name picks one from
// the clock.
func (s *Server) saveNamed(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = "save-" + time.Now().UTC().Format("20060102-150405")
	}
	if filepath.Base(name) != name || name == "." || name == ".." {
		return "", handler.ErrBadSaveName
	}
	if filepath.Ext(name) != ".fsg" {
		name += ".fsg"
	}
	path := filepath.Join(s.cfg.SaveDir, name)
	return path, s.Save(ctx, path, nil)
}

// Load replaces the game with the one saved at path. A file that fails to
// load leaves the running game untouched. Socket connections stay open
// but must log in again.
func (s *Server) Load(ctx context.Context, path string) error {
	g, err := savegame.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	err = s.writer.Do(ctx, func(ctx context.Context) error {
		s.bots.Reset()
		if err := s.bots.Restore(g.AIState); err != nil {
			log.Warn().Err(err).Msg("Ignoring saved AI state")
		}
		s.hub.CloseDummies()
		s.hub.UnbindSockets()
		if err := s.ctrl.Install(ctx, g.World); err != nil {
			return err
		}
		for _, p := range g.World.LivePlayers() {
			if p.Kind != world.PlayerAI {
				continue
			}
			if err := s.spawnAI(ctx, p.ID); err != nil {
				return err
			}
		}
		return s.ctrl.Resume(ctx)
	})
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Int("version", g.Version).Msg("Game loaded")
	return nil
}

// GameState returns the current phase.
func (s *Server) GameState() service.Phase { return s.ctrl.Phase() }

// SetGameState forces a phase.
func (s *Server) SetGameState(ctx context.Context, p service.Phase) error {
	return s.ctrl.SetPhase(ctx, p)
}

// HighScores returns the best recorded results.
func (s *Server) HighScores(ctx context.Context, limit int) ([]model.HighScore, error) {
	return s.ctrl.HighScores(ctx, limit)
}

// WaitStarted blocks until the game is running. Without a deadline on ctx
// it gives up after the configured ready timeout.
func (s *Server) WaitStarted(ctx context.Context) (*world.World, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
		defer cancel()
	}
	return s.ctrl.Started().Wait(ctx)
}

func (s *Server) status(ctx context.Context) (handler.StatusReport, error) {
	rep := handler.StatusReport{
		Name:        s.cfg.ServerName,
		Version:     Version,
		Connections: s.hub.ConnectionCount(),
	}
	err := s.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
		rep.Phase = string(s.ctrl.Phase())
		rep.GameID = w.GameID
		rep.Turn = w.Turn
		rep.Current = w.CurrentPlayer
		for _, p := range w.Players() {
			if !p.European() {
				continue
			}
			rep.Players = append(rep.Players, handler.StatusPlayer{
				ID:        p.ID,
				Name:      p.Name,
				Nation:    p.Nation,
				Kind:      string(p.Kind),
				Dead:      p.Dead,
				Connected: s.hub.Bound(p.ID),
			})
		}
		return nil
	})
	return rep, err
}

// listing is what the announcer publishes.
func (s *Server) listing() model.ServerListing {
	phase := s.ctrl.Phase()
	l := model.ServerListing{
		Name:           s.cfg.ServerName,
		Address:        s.cfg.Address,
		Port:           s.port(),
		ConnectedHuman: s.hub.HumanCount(),
		Started:        phase != service.PhaseStarting,
		Version:        Version,
		Phase:          string(phase),
	}
	ctx, cancel := context.WithTimeout(s.baseCtx, 2*time.Second)
	defer cancel()
	err := s.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
		seated := 0
		for _, p := range w.LivePlayers() {
			if p.European() {
				seated++
			}
		}
		l.Slots = max(len(world.Nations())-seated, 0)
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("Listing without slot count")
	}
	return l
}

// Shutdown stops accepting, closes every connection, waits for handler
// invocations in flight, leaves the meta server and stops the writer. It
// is safe to call more than once; every call returns after the serve
// goroutine has exited.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	s.mu.Lock()
	s.gate.close()
	srv, serveDone, announceDone := s.httpSrv, s.serveDone, s.announceDone
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	s.hub.CloseAll()
	if err := s.gate.wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for handlers: %w", err))
	}

	s.cancel()
	if announceDone != nil {
		select {
		case <-announceDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("meta-server removal: %w", ctx.Err()))
		}
	}
	s.ctrl.Wait()
	s.writer.Stop()

	if serveDone != nil {
		select {
		case <-serveDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("serve loop: %w", ctx.Err()))
		}
	}
	log.Info().Msg("Server stopped")
	return errors.Join(errs...)
}
