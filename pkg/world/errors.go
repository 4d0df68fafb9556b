package world

import "errors"

// Validation and authorization failures returned by world actions. Every
// action checks all of its preconditions before touching state, so any of
// these errors means the world is unchanged.
var (
	ErrUnknownObject    = errors.New("unknown object")
	ErrDisposed         = errors.New("object disposed")
	ErrWrongType        = errors.New("object has wrong type")
	ErrNotOwner         = errors.New("object not owned by player")
	ErrNoMovesLeft      = errors.New("no moves left")
	ErrIllegalMove      = errors.New("illegal move")
	ErrInsufficientGold = errors.New("insufficient gold")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPlayerDead       = errors.New("player is dead")
	ErrLegacyState      = errors.New("legacy unit state requires upgrade")
)
