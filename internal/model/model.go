package model

import "time"

// HighScore is one finished player's result.
type HighScore struct {
	ID         string    `json:"id"`
	GameID     string    `json:"game_id"`
	PlayerName string    `json:"player_name"`
	Nation     string    `json:"nation"`
	Score      int       `json:"score"`
	Turn       int       `json:"turn"`
	Won        bool      `json:"won"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ServerListing is what a running server announces to the meta server.
type ServerListing struct {
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Port           int       `json:"port"`
	Slots          int       `json:"slots"`
	ConnectedHuman int       `json:"connected_humans"`
	Started        bool      `json:"started"`
	Version        string    `json:"version"`
	Phase          string    `json:"phase"`
	UpdatedAt      time.Time `json:"updated_at"`
}
