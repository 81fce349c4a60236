package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/chess-server/internal/domain"
)

// Memory is an in-process Repository used in development and tests,
// grounded on internal/service/chess/memrepo.go (RWMutex guarded maps,
// defensive copies on read so callers can't mutate stored state through
// a returned pointer).
type Memory struct {
	mu          sync.RWMutex
	usersByID   map[string]*domain.User
	usersByName map[string]*domain.User
	games       map[string]*domain.Game
}

func NewMemory() *Memory {
	return &Memory{
		usersByID:   make(map[string]*domain.User),
		usersByName: make(map[string]*domain.User),
		games:       make(map[string]*domain.Game),
	}
}

func (m *Memory) CreateUser(ctx context.Context, username, fullname, passwordHash string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.usersByName[username]; exists {
		return nil, ErrUsernameTaken
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Fullname:     fullname,
		PasswordHash: passwordHash,
		Rating:       1200,
		CreatedAt:    time.Now(),
	}
	cp := *u
	m.usersByID[u.ID] = &cp
	m.usersByName[u.Username] = &cp
	out := *u
	return &out, nil
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByName[username]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) UpdateUserResult(ctx context.Context, userID string, ratingDelta int, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usersByID[userID]
	if !ok {
		return ErrNotFound
	}
	u.Rating += ratingDelta
	if u.Rating < 100 {
		u.Rating = 100
	}
	u.Games++
	switch outcome {
	case OutcomeWin:
		u.Wins++
	case OutcomeLoss:
		u.Losses++
	case OutcomeDraw:
		u.Draws++
	}
	m.usersByName[u.Username] = u
	return nil
}

func (m *Memory) SaveGame(ctx context.Context, g *domain.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	m.games[g.ID] = &cp
	return nil
}

func (m *Memory) GetRecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	out := make([]*domain.Game, 0, limit)
	for _, g := range m.games {
		if g.WhitePlayerID == userID || g.BlackPlayerID == userID {
			cp := *g
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
