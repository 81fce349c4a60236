// Package auth implements register, login, and opaque token issuance,
// wired to golang.org/x/crypto/bcrypt and github.com/golang-jwt/jwt/v5,
// the password/JWT stack named in the iamasit07-connect4 pack entry (the
// only corpus repo that carries either dependency), since
// park285-Cheese-KakaoTalk-bot identifies users by chat-platform id and
// has no register/login flow of its own to ground this on directly.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/park285/chess-server/internal/domain"
	"github.com/park285/chess-server/internal/repository"
)

var (
	ErrUnknownUser       = errors.New("auth: unknown user")
	ErrBadCredentials    = errors.New("auth: bad credentials")
	ErrUsernameTaken     = repository.ErrUsernameTaken
	ErrAlreadyAuthed     = errors.New("auth: session already authenticated")
)

type Service struct {
	repo      repository.Repository
	hashCost  int
	jwtSecret []byte
}

func NewService(repo repository.Repository, hashCost int, jwtSecret string) *Service {
	if hashCost <= 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, hashCost: hashCost, jwtSecret: []byte(jwtSecret)}
}

// Register stores a new user with a bcrypt password hash and the
// default starting rating and zeroed counters. An empty fullname
// defaults to the username.
func (s *Service) Register(ctx context.Context, username, fullname, password string) (*domain.User, error) {
	if fullname == "" {
		fullname = username
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, username, fullname, string(hash))
	if errors.Is(err, repository.ErrUsernameTaken) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: register: %w", err)
	}
	return user, nil
}

// Login verifies credentials with a constant-time compare (bcrypt's own
// comparison is already constant-time) and, on success, issues an
// opaque session token. The caller attaches the returned user to the
// session and promotes it to Authenticated; this service never reveals
// which of {unknown user, bad password} occurred to its caller beyond
// the single ErrBadCredentials/ErrUnknownUser pair, and the dispatcher
// collapses both to the same generic LOGIN_RESULT failure on the wire.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", ErrUnknownUser
	}
	if err != nil {
		return nil, "", fmt.Errorf("auth: login: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrBadCredentials
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("auth: issue token: %w", err)
	}
	return user, token, nil
}

func (s *Service) issueToken(user *domain.User) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
