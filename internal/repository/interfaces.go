package repository

import (
	"context"
	"errors"

	"github.com/freeeve/freecol/server/internal/model"
)

// ErrNotFound is returned when a lookup has no result.
var ErrNotFound = errors.New("not found")

// HighScoreRepository stores the results of finished games.
type HighScoreRepository interface {
	Record(ctx context.Context, scores []model.HighScore) error
	Top(ctx context.Context, limit int) ([]model.HighScore, error)
	Close() error
}

// Directory is the meta server's list of public games.
type Directory interface {
	Announce(ctx context.Context, listing model.ServerListing) error
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]model.ServerListing, error)
}
