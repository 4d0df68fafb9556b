package service

import "errors"

var (
	ErrWrongPhase        = errors.New("not allowed in this game phase")
	ErrNotCurrentPlayer  = errors.New("not the current player")
	ErrNotHost           = errors.New("only the host may do that")
	ErrNotEnoughPlayers  = errors.New("not enough players")
	ErrNotReady          = errors.New("not every player is ready")
	ErrNameTaken         = errors.New("name already taken")
	ErrLobbyFull         = errors.New("no free nation")
	ErrBadToken          = errors.New("invalid reconnect token")
	ErrSeatTaken         = errors.New("player already connected")
	ErrNoProposal        = errors.New("no matching proposal")
	ErrUnknownOption     = errors.New("unknown game option")
	ErrHighScoresOffline = errors.New("high scores are not configured")
)
