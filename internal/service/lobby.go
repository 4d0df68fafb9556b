package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

// TokenIssuer issues and checks reconnect tokens.
type TokenIssuer interface {
	Issue(playerID, gameID string) (string, error)
	Verify(token string) (playerID, gameID string, err error)
}

// LobbyConfig holds the pre-game rules.
type LobbyConfig struct {
	MinPlayers int
}

// Lobby manages players joining before the game starts and logins to
// existing seats. All state lives in the controller's world and is touched
// only inside the writer.
type Lobby struct {
	ctrl   *Controller
	tokens TokenIssuer
	cfg    LobbyConfig
	host   string
	bound  func(playerID string) bool
}

func NewLobby(ctrl *Controller, tokens TokenIssuer, cfg LobbyConfig) *Lobby {
	if cfg.MinPlayers < 1 {
		cfg.MinPlayers = 1
	}
	return &Lobby{ctrl: ctrl, tokens: tokens, cfg: cfg, bound: func(string) bool { return false }}
}

// SetBoundCheck sets the function reporting whether a player already has a
// live connection.
func (l *Lobby) SetBoundCheck(fn func(playerID string) bool) {
	l.bound = fn
}

// AddPlayer seats a new human player. The first human becomes the host.
func (l *Lobby) AddPlayer(ctx context.Context, name, nation string) (*protocol.PlayerAdded, error) {
	var reply *protocol.PlayerAdded
	err := l.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
		if l.ctrl.phase != PhaseStarting {
			return ErrWrongPhase
		}
		if w.PlayerByName(name) != nil {
			return fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
		if nation == "" {
			nation = w.FreeNation()
			if nation == "" {
				return ErrLobbyFull
			}
		} else if !world.ValidNation(nation) {
			return fmt.Errorf("%w: unknown nation %q", world.ErrInvalidArgument, nation)
		} else if nationTaken(w, nation) {
			return fmt.Errorf("%w: nation %s already taken", world.ErrInvalidArgument, nation)
		}

		p := w.AddPlayer(name, nation, world.PlayerHuman)
		token, err := l.tokens.Issue(p.ID, w.GameID)
		if err != nil {
			_ = w.RemovePlayer(p.ID)
			return fmt.Errorf("issuing token: %w", err)
		}
		if l.host == "" {
			l.host = p.ID
		}
		reply = &protocol.PlayerAdded{PlayerID: p.ID, Nation: p.Nation, Token: token, Host: l.host == p.ID}
		l.broadcast(w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("playerId", reply.PlayerID).Str("name", name).Str("nation", reply.Nation).Msg("Player joined lobby")
	return reply, nil
}

// AddAIPlayer seats a computer player and tells the lobby.
func (l *Lobby) AddAIPlayer(ctx context.Context, name, nation string) (*world.Player, error) {
	var p *world.Player
	err := l.ctrl.Do(ctx, func(ctx context.Context, w *world.World) error {
		var err error
		if p, err = l.ctrl.AddAIPlayer(ctx, name, nation); err != nil {
			return err
		}
		l.broadcast(w)
		return nil
	})
	return p, err
}

func nationTaken(w *world.World, nation string) bool {
	for _, p := range w.LivePlayers() {
		if p.Nation == nation {
			return true
		}
	}
	return false
}

// Login binds a connection to an existing seat. With a token the seat is
// the one it was issued for; without one the name must match a human seat
// that nobody is connected to.
func (l *Lobby) Login(ctx context.Context, username, token string) (*protocol.LoginReply, error) {
	var reply *protocol.LoginReply
	err := l.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
		var p *world.Player
		if token != "" {
			pid, gid, err := l.tokens.Verify(token)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadToken, err)
			}
			if gid != w.GameID {
				return fmt.Errorf("%w: token is for another game", ErrBadToken)
			}
			if p, err = w.Player(pid); err != nil {
				return fmt.Errorf("%w: %v", ErrBadToken, err)
			}
			if p.Name != username {
				return fmt.Errorf("%w: name does not match", ErrBadToken)
			}
		} else {
			p = w.PlayerByName(username)
			if p == nil {
				return fmt.Errorf("%w: no seat named %s", ErrBadToken, username)
			}
		}
		if p.Kind != world.PlayerHuman {
			return fmt.Errorf("%w: %s is not a human seat", ErrBadToken, username)
		}
		if l.bound(p.ID) {
			return ErrSeatTaken
		}
		fresh, err := l.tokens.Issue(p.ID, w.GameID)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		reply = &protocol.LoginReply{
			PlayerID: p.ID,
			Token:    fresh,
			Phase:    string(l.ctrl.phase),
			Host:     l.host == p.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("playerId", reply.PlayerID).Str("phase", reply.Phase).Msg("Player logged in")
	return reply, nil
}

// Leave removes a player who disconnects before the game starts. In a
// running game the seat is kept for reconnection.
func (l *Lobby) Leave(ctx context.Context, playerID string) error {
	return l.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
		if l.ctrl.phase != PhaseStarting {
			return nil
		}
		if err := w.RemovePlayer(playerID); err != nil {
			return err
		}
		if l.host == playerID {
			l.host = ""
			for _, p := range w.Players() {
				if p.Kind == world.PlayerHuman {
					l.host = p.ID
					break
				}
			}
		}
		log.Info().Str("playerId", playerID).Str("host", l.host).Msg("Player left lobby")
		l.broadcast(w)
		return nil
	})
}

func (l *Lobby) SetNation(ctx context.Context, playerID, nation string) error {
	return l.lobbyChange(ctx, func(w *world.World) error {
		return w.SetNation(playerID, nation)
	})
}

func (l *Lobby) SetReady(ctx context.Context, playerID string, ready bool) error {
	return l.lobbyChange(ctx, func(w *world.World) error {
		return w.SetReady(playerID, ready)
	})
}

// UpdateOptions changes game options. Only the host may do it and only
// known keys are accepted; a bad key rejects the whole update.
func (l *Lobby) UpdateOptions(ctx context.Context, playerID string, opts map[string]int) error {
	return l.lobbyChange(ctx, func(w *world.World) error {
		if playerID != l.host {
			return ErrNotHost
		}
		for k, v := range opts {
			if _, ok := world.DefaultOption(k); !ok {
				return fmt.Errorf("%w: %s", ErrUnknownOption, k)
			}
			if v < 0 {
				return fmt.Errorf("%w: %s must not be negative", world.ErrInvalidArgument, k)
			}
		}
		for k, v := range opts {
			w.Options[k] = v
		}
		return nil
	})
}

func (l *Lobby) lobbyChange(ctx context.Context, fn func(w *world.World) error) error {
	return l.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
		if l.ctrl.phase != PhaseStarting {
			return ErrWrongPhase
		}
		if err := fn(w); err != nil {
			return err
		}
		l.broadcast(w)
		return nil
	})
}

// StartGame generates the map and starts play. Only the host may start,
// and only once enough humans have joined and all of them are ready.
func (l *Lobby) StartGame(ctx context.Context, playerID string) error {
	return l.ctrl.Do(ctx, func(ctx context.Context, w *world.World) error {
		if l.ctrl.phase != PhaseStarting {
			return ErrWrongPhase
		}
		if playerID != l.host {
			return ErrNotHost
		}
		humans := 0
		for _, p := range w.LivePlayers() {
			if p.Kind != world.PlayerHuman {
				continue
			}
			humans++
			if !p.Ready {
				return fmt.Errorf("%w: %s", ErrNotReady, p.Name)
			}
		}
		if humans < l.cfg.MinPlayers {
			return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPlayers, humans, l.cfg.MinPlayers)
		}
		if err := w.Generate(); err != nil {
			return err
		}
		log.Info().Str("gameId", w.GameID).Int("players", len(w.Players())).Msg("Game starting")
		l.ctrl.begin(ctx, w)
		return nil
	})
}

// State returns the lobby as every player sees it.
func (l *Lobby) State(ctx context.Context) (*protocol.LobbyState, error) {
	var s *protocol.LobbyState
	err := l.ctrl.Do(ctx, func(_ context.Context, w *world.World) error {
		s = l.state(w)
		return nil
	})
	return s, err
}

// Host returns the id of the hosting player.
func (l *Lobby) Host(ctx context.Context) (string, error) {
	var host string
	err := l.ctrl.Do(ctx, func(context.Context, *world.World) error {
		host = l.host
		return nil
	})
	return host, err
}

func (l *Lobby) state(w *world.World) *protocol.LobbyState {
	s := &protocol.LobbyState{Options: make(map[string]int, len(w.Options))}
	for k, v := range w.Options {
		s.Options[k] = v
	}
	for _, p := range w.LivePlayers() {
		if !p.European() {
			continue
		}
		s.Players = append(s.Players, protocol.LobbyPlayer{
			ID:     p.ID,
			Name:   p.Name,
			Nation: p.Nation,
			AI:     p.Kind == world.PlayerAI,
			Ready:  p.Ready,
			Host:   p.ID == l.host,
		})
	}
	return s
}

func (l *Lobby) broadcast(w *world.World) {
	w.ResetChanges()
	l.ctrl.out.Broadcast(l.state(w))
}
