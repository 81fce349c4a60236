// Package domain holds the persistent record shapes, grounded on
// internal/domain.ChessGame/ChessProfile's pairing (field set,
// JSON-friendly move slices) but flattened to a plain user-id identity
// model instead of ChessGame's privacy-hashed player/room identifiers.
package domain

import "time"

type User struct {
	ID           string
	Username     string
	Fullname     string
	PasswordHash string
	Rating       int
	Games        int
	Wins         int
	Losses       int
	Draws        int
	CreatedAt    time.Time
}

type GameStatus string

const (
	GameActive    GameStatus = "active"
	GameCompleted GameStatus = "completed"
	GameAborted   GameStatus = "aborted"
)

type GameResult string

const (
	ResultWhiteWin GameResult = "white_win"
	ResultBlackWin GameResult = "black_win"
	ResultDraw     GameResult = "draw"
	ResultNone     GameResult = "none"
)

type Game struct {
	ID            string
	WhitePlayerID string
	BlackPlayerID string // empty for an AI opponent
	WhiteUsername string
	BlackUsername string
	MovesUCI      []string
	PGN           string
	FEN           string
	Status        GameStatus
	Result        GameResult
	Cause         string
	// TimeControl is a server-wide label (e.g. "none", "10+0") carried
	// into the PGN [TimeControl] header and persisted alongside the
	// game; it is not an enforced clock.
	TimeControl string
	Rated       bool
	StartTime   time.Time
	EndTime     time.Time
}
