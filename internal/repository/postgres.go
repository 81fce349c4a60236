package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-server/internal/domain"
)

// Postgres is the production Repository, grounded directly on the
// connection-pool tuning and upsert idiom in internal/pvpchess.Repository
// and internal/service/chess/repository.go.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("repository: open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, username, fullname, passwordHash string) (*domain.User, error) {
	const query = `
		INSERT INTO users (username, fullname, password_hash, rating, games, wins, losses, draws, created_at)
		VALUES ($1, $2, $3, 1200, 0, 0, 0, 0, NOW())
		ON CONFLICT (username) DO NOTHING
		RETURNING id, username, fullname, password_hash, rating, games, wins, losses, draws, created_at`

	u := &domain.User{}
	err := p.db.QueryRowContext(ctx, query, username, fullname, passwordHash).Scan(
		&u.ID, &u.Username, &u.Fullname, &u.PasswordHash, &u.Rating, &u.Games, &u.Wins, &u.Losses, &u.Draws, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("repository: create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `
		SELECT id, username, fullname, password_hash, rating, games, wins, losses, draws, created_at
		FROM users WHERE username = $1`
	u := &domain.User{}
	err := p.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Fullname, &u.PasswordHash, &u.Rating, &u.Games, &u.Wins, &u.Losses, &u.Draws, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get user by username: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
		SELECT id, username, fullname, password_hash, rating, games, wins, losses, draws, created_at
		FROM users WHERE id = $1`
	u := &domain.User{}
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Fullname, &u.PasswordHash, &u.Rating, &u.Games, &u.Wins, &u.Losses, &u.Draws, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get user by id: %w", err)
	}
	return u, nil
}

func (p *Postgres) UpdateUserResult(ctx context.Context, userID string, ratingDelta int, outcome string) error {
	var query string
	switch outcome {
	case OutcomeWin:
		query = `UPDATE users SET rating = GREATEST(rating + $2, 100), games = games + 1, wins = wins + 1 WHERE id = $1`
	case OutcomeLoss:
		query = `UPDATE users SET rating = GREATEST(rating + $2, 100), games = games + 1, losses = losses + 1 WHERE id = $1`
	case OutcomeDraw:
		query = `UPDATE users SET rating = GREATEST(rating + $2, 100), games = games + 1, draws = draws + 1 WHERE id = $1`
	default:
		return fmt.Errorf("repository: unknown outcome %q", outcome)
	}
	if _, err := p.db.ExecContext(ctx, query, userID, ratingDelta); err != nil {
		return fmt.Errorf("repository: update user result: %w", err)
	}
	return nil
}

func (p *Postgres) SaveGame(ctx context.Context, g *domain.Game) error {
	movesJSON, err := json.Marshal(g.MovesUCI)
	if err != nil {
		return fmt.Errorf("repository: marshal moves: %w", err)
	}

	const query = `
		INSERT INTO games (
			id, white_player_id, black_player_id, white_username, black_username,
			moves, pgn, fen, status, result, cause, time_control, rated, start_time, end_time
		)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			moves = EXCLUDED.moves,
			pgn = EXCLUDED.pgn,
			fen = EXCLUDED.fen,
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			cause = EXCLUDED.cause,
			end_time = EXCLUDED.end_time`

	_, err = p.db.ExecContext(ctx, query,
		g.ID, g.WhitePlayerID, g.BlackPlayerID, g.WhiteUsername, g.BlackUsername,
		movesJSON, g.PGN, g.FEN, g.Status, g.Result, g.Cause, g.TimeControl, g.Rated, g.StartTime, g.EndTime,
	)
	if err != nil {
		return fmt.Errorf("repository: save game: %w", err)
	}
	return nil
}

func (p *Postgres) GetRecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, white_player_id, black_player_id, white_username, black_username,
			moves, pgn, fen, status, result, cause, time_control, rated, start_time, end_time
		FROM games
		WHERE white_player_id = $1 OR black_player_id = $1
		ORDER BY end_time DESC
		LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: get recent games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.Game, 0, limit)
	for rows.Next() {
		g := &domain.Game{}
		var blackID sql.NullString
		var movesJSON []byte
		if err := rows.Scan(
			&g.ID, &g.WhitePlayerID, &blackID, &g.WhiteUsername, &g.BlackUsername,
			&movesJSON, &g.PGN, &g.FEN, &g.Status, &g.Result, &g.Cause, &g.TimeControl, &g.Rated, &g.StartTime, &g.EndTime,
		); err != nil {
			return nil, fmt.Errorf("repository: scan game: %w", err)
		}
		g.BlackPlayerID = blackID.String
		if err := json.Unmarshal(movesJSON, &g.MovesUCI); err != nil {
			return nil, fmt.Errorf("repository: unmarshal moves: %w", err)
		}
		games = append(games, g)
	}
	return games, nil
}
