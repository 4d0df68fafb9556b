package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/repository"
)

// HighScoreRepo stores finished game results in the high_scores table.
type HighScoreRepo struct {
	db *sql.DB
}

var _ repository.HighScoreRepository = (*HighScoreRepo)(nil)

// NewHighScoreRepo creates a HighScoreRepo.
func NewHighScoreRepo(db *sql.DB) *HighScoreRepo {
	return &HighScoreRepo{db: db}
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

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO high_scores (id, game_id, player_name, nation, score, turn, won, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range scores {
		if _, err := stmt.ExecContext(ctx, s.ID, s.GameID, s.PlayerName, s.Nation, s.Score, s.Turn, s.Won, s.Reason, s.CreatedAt); err != nil {
			return fmt.Errorf("insert high score: %w", err)
		}
	}
	return tx.Commit()
}

// Top returns the best results, highest score first.
func (r *HighScoreRepo) Top(ctx context.Context, limit int) ([]model.HighScore, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, player_name, nation, score, turn, won, reason, created_at
		 FROM high_scores ORDER BY score DESC, created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list high scores: %w", err)
	}
	defer rows.Close()

	var out []model.HighScore
	for rows.Next() {
		var s model.HighScore
		if err := rows.Scan(&s.ID, &s.GameID, &s.PlayerName, &s.Nation, &s.Score, &s.Turn, &s.Won, &s.Reason, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan high score: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the underlying pool.
func (r *HighScoreRepo) Close() error {
	return r.db.Close()
}
