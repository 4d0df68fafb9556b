package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/service"
	"github.com/freeeve/freecol/server/pkg/protocol"
	"github.com/freeeve/freecol/server/pkg/world"
)

var errorCodes = []struct {
	err  error
	code protocol.ErrorCode
}{
	{world.ErrNotOwner, protocol.CodeNotOwner},
	{world.ErrUnknownObject, protocol.CodeInvalidObject},
	{world.ErrDisposed, protocol.CodeInvalidObject},
	{world.ErrWrongType, protocol.CodeInvalidObject},
	{world.ErrNoMovesLeft, protocol.CodeIllegalMove},
	{world.ErrIllegalMove, protocol.CodeIllegalMove},
	{world.ErrLegacyState, protocol.CodeIllegalMove},
	{world.ErrInsufficientGold, protocol.CodeInsufficientFunds},
	{world.ErrInvalidArgument, protocol.CodeInvalidRequest},
	{world.ErrPlayerDead, protocol.CodeNotAllowed},
	{world.ErrAlreadyGenerated, protocol.CodeWrongPhase},
	{protocol.ErrInvalid, protocol.CodeInvalidRequest},
	{service.ErrNotCurrentPlayer, protocol.CodeNotYourTurn},
	{service.ErrWrongPhase, protocol.CodeWrongPhase},
	{service.ErrUnknownOption, protocol.CodeInvalidRequest},
	{service.ErrNotHost, protocol.CodeNotAllowed},
	{service.ErrNotEnoughPlayers, protocol.CodeNotAllowed},
	{service.ErrNotReady, protocol.CodeNotAllowed},
	{service.ErrNameTaken, protocol.CodeNotAllowed},
	{service.ErrLobbyFull, protocol.CodeNotAllowed},
	{service.ErrBadToken, protocol.CodeNotAllowed},
	{service.ErrSeatTaken, protocol.CodeNotAllowed},
	{service.ErrNoProposal, protocol.CodeNotAllowed},
	{service.ErrHighScoresOffline, protocol.CodeNotAllowed},
	{errNotLoggedIn, protocol.CodeNotAllowed},
	{errAlreadyLoggedIn, protocol.CodeNotAllowed},
}

var (
	errNotLoggedIn     = errors.New("log in first")
	errAlreadyLoggedIn = errors.New("connection already has a player")
)

// ErrorReply converts an error into the wire error. Known validation and
// authorization failures keep their message; anything else is logged and
// reported as a generic internal failure.
func ErrorReply(err error) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return &protocol.Error{Code: ec.code, Message: err.Error()}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return protocol.NewError(protocol.CodeInternal, "server busy")
	}
	log.Error().Err(err).Msg("Unmapped handler error")
	return protocol.NewError(protocol.CodeInternal, "internal error")
}
