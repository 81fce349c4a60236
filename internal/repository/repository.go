// Package repository persists users and games, grounded on
// internal/service/chess.Repository (upsert-on-conflict SQL style,
// connection-pool tuning) and internal/pvpchess.Repository (PGN assembly
// at save time), adapted to this server's user/games collections.
package repository

import (
	"context"
	"errors"

	"github.com/park285/chess-server/internal/domain"
)

var (
	ErrUsernameTaken = errors.New("repository: username already registered")
	ErrNotFound      = errors.New("repository: record not found")
)

// Repository is safe for concurrent use. The coordinator's handlers call
// it synchronously from the coordinator goroutine, with a timeout.
type Repository interface {
	CreateUser(ctx context.Context, username, fullname, passwordHash string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserResult(ctx context.Context, userID string, ratingDelta int, outcome string) error

	SaveGame(ctx context.Context, game *domain.Game) error
	GetRecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error)
}

// outcome values passed to UpdateUserResult.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomeDraw = "draw"
)
