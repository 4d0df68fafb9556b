package protocol

import (
	"time"

	"github.com/freeeve/freecol/server/pkg/world"
)

// Tag names a message type on the wire.
type Tag string

const (
	// Lobby.
	TagLogin             Tag = "login"
	TagLoginReply        Tag = "loginReply"
	TagAddPlayer         Tag = "addPlayer"
	TagPlayerAdded       Tag = "playerAdded"
	TagSetNation         Tag = "setNation"
	TagSetReady          Tag = "setReady"
	TagUpdateGameOptions Tag = "updateGameOptions"
	TagStartGame         Tag = "startGame"
	TagLobbyState        Tag = "lobbyState"

	// Turn actions, only accepted from the current player.
	TagMove             Tag = "move"
	TagAttack           Tag = "attack"
	TagBuildColony      Tag = "buildColony"
	TagJoinColony       Tag = "joinColony"
	TagPutOutsideColony Tag = "putOutsideColony"
	TagEmbark           Tag = "embark"
	TagDisembark        Tag = "disembark"
	TagChangeState      Tag = "changeState"
	TagClaimLand        Tag = "claimLand"
	TagSetBuildQueue    Tag = "setBuildQueue"
	TagSailToEurope     Tag = "sailToEurope"
	TagSailToAmerica    Tag = "sailToAmerica"
	TagRecruitUnit      Tag = "recruitUnit"
	TagDisbandUnit      Tag = "disbandUnit"
	TagEndTurn          Tag = "endTurn"

	// Accepted at any time.
	TagChat          Tag = "chat"
	TagDiplomacy     Tag = "diplomacy"
	TagGetScores     Tag = "getScores"
	TagScores        Tag = "scores"
	TagGetHighScores Tag = "getHighScores"
	TagHighScores    Tag = "highScores"
	TagLogout        Tag = "logout"
	TagPing          Tag = "ping"

	// Replies and server pushes.
	TagOK               Tag = "ok"
	TagError            Tag = "error"
	TagUpdate           Tag = "update"
	TagNewTurn          Tag = "newTurn"
	TagSetCurrentPlayer Tag = "setCurrentPlayer"
	TagGameStarted      Tag = "gameStarted"
	TagGameEnded        Tag = "gameEnded"
	TagMultiple         Tag = "multiple"
)

// Message is one wire document.
type Message interface {
	Tag() Tag
}

// Login reconnects to a seat. With a token the seat is the one the token
// was issued for; without one the seat is found by name among unbound
// human players.
type Login struct {
	Username string `json:"username" validate:"required,max=32"`
	Token    string `json:"token,omitempty"`
}

type LoginReply struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
	Phase    string `json:"phase"`
	Host     bool   `json:"host,omitempty"`
}

// AddPlayer joins the lobby as a new human player.
type AddPlayer struct {
	Name   string `json:"name" validate:"required,max=32"`
	Nation string `json:"nation,omitempty"`
}

type PlayerAdded struct {
	PlayerID string `json:"playerId"`
	Nation   string `json:"nation"`
	Token    string `json:"token"`
	Host     bool   `json:"host,omitempty"`
}

type SetNation struct {
	Nation string `json:"nation" validate:"required"`
}

type SetReady struct {
	Ready bool `json:"ready"`
}

type UpdateGameOptions struct {
	Options map[string]int `json:"options" validate:"required,min=1"`
}

type StartGame struct{}

type LobbyPlayer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Nation string `json:"nation"`
	AI     bool   `json:"ai,omitempty"`
	Ready  bool   `json:"ready"`
	Host   bool   `json:"host,omitempty"`
}

type LobbyState struct {
	Players []LobbyPlayer  `json:"players"`
	Options map[string]int `json:"options"`
}

type Move struct {
	Unit      string          `json:"unit" validate:"required"`
	Direction world.Direction `json:"direction" validate:"required"`
}

type Attack struct {
	Unit      string          `json:"unit" validate:"required"`
	Direction world.Direction `json:"direction" validate:"required"`
}

type BuildColony struct {
	Unit string `json:"unit" validate:"required"`
	Name string `json:"name" validate:"required,max=40"`
}

type JoinColony struct {
	Unit     string          `json:"unit" validate:"required"`
	Colony   string          `json:"colony" validate:"required"`
	WorkType world.GoodsType `json:"workType,omitempty"`
}

type PutOutsideColony struct {
	Unit string `json:"unit" validate:"required"`
}

type Embark struct {
	Unit    string `json:"unit" validate:"required"`
	Carrier string `json:"carrier" validate:"required"`
}

type Disembark struct {
	Unit string `json:"unit" validate:"required"`
}

type ChangeState struct {
	Unit  string          `json:"unit" validate:"required"`
	State world.UnitState `json:"state" validate:"required"`
}

type ClaimLand struct {
	Tile string `json:"tile" validate:"required"`
}

type SetBuildQueue struct {
	Colony   string `json:"colony" validate:"required"`
	Building string `json:"building,omitempty"`
}

type SailToEurope struct {
	Unit string `json:"unit" validate:"required"`
}

type SailToAmerica struct {
	Unit string `json:"unit" validate:"required"`
}

type RecruitUnit struct {
	UnitType string `json:"unitType" validate:"required"`
}

type DisbandUnit struct {
	Unit string `json:"unit" validate:"required"`
}

type EndTurn struct{}

// Chat is relayed to every other connection. The server fills in Sender.
type Chat struct {
	Sender  string `json:"sender,omitempty"`
	Text    string `json:"text" validate:"required,max=500"`
	Private string `json:"private,omitempty"`
}

// Diplomacy proposes or answers a stance change. War takes effect at
// once; peace needs the other side to accept.
type Diplomacy struct {
	From   string       `json:"from,omitempty"`
	To     string       `json:"to" validate:"required"`
	Stance world.Stance `json:"stance" validate:"required,oneof=peace war"`
	Accept bool         `json:"accept,omitempty"`
}

type GetScores struct{}

type Score struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Nation   string `json:"nation"`
	Score    int    `json:"score"`
	Dead     bool   `json:"dead,omitempty"`
}

type Scores struct {
	Turn   int     `json:"turn"`
	Scores []Score `json:"scores"`
}

type GetHighScores struct {
	Limit int `json:"limit,omitempty" validate:"gte=0,lte=100"`
}

type HighScore struct {
	PlayerName string    `json:"playerName"`
	Nation     string    `json:"nation"`
	Score      int       `json:"score"`
	Turn       int       `json:"turn"`
	Won        bool      `json:"won,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type HighScores struct {
	Scores []HighScore `json:"scores"`
}

type Logout struct {
	Reason string `json:"reason,omitempty"`
}

type Ping struct {
	Nonce int64 `json:"nonce,omitempty"`
}

// OK acknowledges a request that has nothing else to return.
type OK struct {
	Result any `json:"result,omitempty"`
}

// Update carries the part of the world a player may see, either the whole
// view or the changes since the last update.
type Update struct {
	Full bool `json:"full,omitempty"`
	world.View
}

type NewTurn struct {
	Turn int `json:"turn"`
}

type SetCurrentPlayer struct {
	PlayerID string `json:"playerId"`
	Turn     int    `json:"turn"`
}

type GameStarted struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId,omitempty"`
}

type GameEnded struct {
	Winner string  `json:"winner,omitempty"`
	Reason string  `json:"reason"`
	Scores []Score `json:"scores,omitempty"`
}

func (*Login) Tag() Tag             { return TagLogin }
func (*LoginReply) Tag() Tag        { return TagLoginReply }
func (*AddPlayer) Tag() Tag         { return TagAddPlayer }
func (*PlayerAdded) Tag() Tag       { return TagPlayerAdded }
func (*SetNation) Tag() Tag         { return TagSetNation }
func (*SetReady) Tag() Tag          { return TagSetReady }
func (*UpdateGameOptions) Tag() Tag { return TagUpdateGameOptions }
func (*StartGame) Tag() Tag         { return TagStartGame }
func (*LobbyState) Tag() Tag        { return TagLobbyState }
func (*Move) Tag() Tag              { return TagMove }
func (*Attack) Tag() Tag            { return TagAttack }
func (*BuildColony) Tag() Tag       { return TagBuildColony }
func (*JoinColony) Tag() Tag        { return TagJoinColony }
func (*PutOutsideColony) Tag() Tag  { return TagPutOutsideColony }
func (*Embark) Tag() Tag            { return TagEmbark }
func (*Disembark) Tag() Tag         { return TagDisembark }
func (*ChangeState) Tag() Tag       { return TagChangeState }
func (*ClaimLand) Tag() Tag         { return TagClaimLand }
func (*SetBuildQueue) Tag() Tag     { return TagSetBuildQueue }
func (*SailToEurope) Tag() Tag      { return TagSailToEurope }
func (*SailToAmerica) Tag() Tag     { return TagSailToAmerica }
func (*RecruitUnit) Tag() Tag       { return TagRecruitUnit }
func (*DisbandUnit) Tag() Tag       { return TagDisbandUnit }
func (*EndTurn) Tag() Tag           { return TagEndTurn }
func (*Chat) Tag() Tag              { return TagChat }
func (*Diplomacy) Tag() Tag         { return TagDiplomacy }
func (*GetScores) Tag() Tag         { return TagGetScores }
func (*Scores) Tag() Tag            { return TagScores }
func (*GetHighScores) Tag() Tag     { return TagGetHighScores }
func (*HighScores) Tag() Tag        { return TagHighScores }
func (*Logout) Tag() Tag            { return TagLogout }
func (*Ping) Tag() Tag              { return TagPing }
func (*OK) Tag() Tag                { return TagOK }
func (*Error) Tag() Tag             { return TagError }
func (*Update) Tag() Tag            { return TagUpdate }
func (*NewTurn) Tag() Tag           { return TagNewTurn }
func (*SetCurrentPlayer) Tag() Tag  { return TagSetCurrentPlayer }
func (*GameStarted) Tag() Tag       { return TagGameStarted }
func (*GameEnded) Tag() Tag         { return TagGameEnded }
func (*Multiple) Tag() Tag          { return TagMultiple }

var constructors = map[Tag]func() Message{
	TagLogin:             func() Message { return &Login{} },
	TagLoginReply:        func() Message { return &LoginReply{} },
	TagAddPlayer:         func() Message { return &AddPlayer{} },
	TagPlayerAdded:       func() Message { return &PlayerAdded{} },
	TagSetNation:         func() Message { return &SetNation{} },
	TagSetReady:          func() Message { return &SetReady{} },
	TagUpdateGameOptions: func() Message { return &UpdateGameOptions{} },
	TagStartGame:         func() Message { return &StartGame{} },
	TagLobbyState:        func() Message { return &LobbyState{} },
	TagMove:              func() Message { return &Move{} },
	TagAttack:            func() Message { return &Attack{} },
	TagBuildColony:       func() Message { return &BuildColony{} },
	TagJoinColony:        func() Message { return &JoinColony{} },
	TagPutOutsideColony:  func() Message { return &PutOutsideColony{} },
	TagEmbark:            func() Message { return &Embark{} },
	TagDisembark:         func() Message { return &Disembark{} },
	TagChangeState:       func() Message { return &ChangeState{} },
	TagClaimLand:         func() Message { return &ClaimLand{} },
	TagSetBuildQueue:     func() Message { return &SetBuildQueue{} },
	TagSailToEurope:      func() Message { return &SailToEurope{} },
	TagSailToAmerica:     func() Message { return &SailToAmerica{} },
	TagRecruitUnit:       func() Message { return &RecruitUnit{} },
	TagDisbandUnit:       func() Message { return &DisbandUnit{} },
	TagEndTurn:           func() Message { return &EndTurn{} },
	TagChat:              func() Message { return &Chat{} },
	TagDiplomacy:         func() Message { return &Diplomacy{} },
	TagGetScores:         func() Message { return &GetScores{} },
	TagScores:            func() Message { return &Scores{} },
	TagGetHighScores:     func() Message { return &GetHighScores{} },
	TagHighScores:        func() Message { return &HighScores{} },
	TagLogout:            func() Message { return &Logout{} },
	TagPing:              func() Message { return &Ping{} },
	TagOK:                func() Message { return &OK{} },
	TagError:             func() Message { return &Error{} },
	TagUpdate:            func() Message { return &Update{} },
	TagNewTurn:           func() Message { return &NewTurn{} },
	TagSetCurrentPlayer:  func() Message { return &SetCurrentPlayer{} },
	TagGameStarted:       func() Message { return &GameStarted{} },
	TagGameEnded:         func() Message { return &GameEnded{} },
	TagMultiple:          func() Message { return &Multiple{} },
}

// Tags returns every tag the codec understands.
func Tags() []Tag {
	out := make([]Tag, 0, len(constructors))
	for t := range constructors {
		out = append(out, t)
	}
	return out
}

// Known reports whether the codec has a type for t.
func Known(t Tag) bool {
	_, ok := constructors[t]
	return ok
}
