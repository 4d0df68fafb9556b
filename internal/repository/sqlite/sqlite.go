// Package sqlite is the embedded high score store used when no PostgreSQL
// server is configured.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS high_scores (
	id TEXT PRIMARY KEY,
	game_id TEXT NOT NULL,
	player_name TEXT NOT NULL,
	nation TEXT NOT NULL,
	score INTEGER NOT NULL,
	turn INTEGER NOT NULL,
	won BOOLEAN NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_high_scores_score ON high_scores (score DESC);
`

// HighScoreRepo stores finished game results in a local SQLite file.
type HighScoreRepo struct {
	db *sql.DB
}

var _ repository.HighScoreRepository = (*HighScoreRepo)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*HighScoreRepo, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &HighScoreRepo{db: db}, nil
}

// Record inserts all results of one game atomically.
func (r *HighScoreRepo) Record(ctx context.Context, scores []model.HighScore) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, s := range scores {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO high_scores (id, game_id, player_name, nation, score, turn, won, reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.GameID, s.PlayerName, s.Nation, s.Score, s.Turn, s.Won, s.Reason, s.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert high score: %w", err)
		}
	}
	return tx.Commit()
}

// Top returns the best results, highest score first.
func (r *HighScoreRepo) Top(ctx context.Context, limit int) ([]model.HighScore, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, player_name, nation, score, turn, won, reason, created_at
		 FROM high_scores ORDER BY score DESC, created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list high scores: %w", err)
	}
	defer rows.Close()

	var out []model.HighScore
	for rows.Next() {
		var (
			s       model.HighScore
			created int64
		)
		if err := rows.Scan(&s.ID, &s.GameID, &s.PlayerName, &s.Nation, &s.Score, &s.Turn, &s.Won, &s.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan high score: %w", err)
		}
		s.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *HighScoreRepo) Close() error {
	return r.db.Close()
}
