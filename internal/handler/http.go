package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/service"
)

// StatusReport is the body of GET /status.
type StatusReport struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Phase       string         `json:"phase"`
	GameID      string         `json:"game_id,omitempty"`
	Turn        int            `json:"turn"`
	Current     string         `json:"current_player,omitempty"`
	Players     []StatusPlayer `json:"players"`
	Connections int            `json:"connections"`
}

type StatusPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Nation    string `json:"nation"`
	Kind      string `json:"kind"`
	Dead      bool   `json:"dead,omitempty"`
	Connected bool   `json:"connected"`
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /status.
func Status(report func(ctx context.Context) (StatusReport, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := report(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if s.Players == nil {
			s.Players = []StatusPlayer{}
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// HighScores handles GET /highscores?limit=N.
func HighScores(ctrl *service.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
				return
			}
			limit = n
		}
		top, err := ctrl.HighScores(r.Context(), limit)
		if errors.Is(err, service.ErrHighScoresOffline) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load high scores")
			return
		}
		if top == nil {
			top = []model.HighScore{}
		}
		writeJSON(w, http.StatusOK, top)
	}
}

// AdminSave handles POST /admin/save?name=FILE. save writes the game and
// returns the path it used.
func AdminSave(save func(ctx context.Context, name string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := save(r.Context(), r.URL.Query().Get("name"))
		switch {
		case errors.Is(err, service.ErrWrongPhase):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrBadSaveName):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, "save failed")
		default:
			writeJSON(w, http.StatusOK, map[string]string{"path": path})
		}
	}
}

// ErrBadSaveName rejects save names that are not a plain file name.
var ErrBadSaveName = errors.New("save name must be a plain file name")
