// Package game implements the authoritative per-game state machine:
// move/resign/draw handling, the six-step termination sequence, and the
// Elo update it triggers. Grounded on internal/pvpchess.Manager for the
// overall shape (move application, outcome switch, persistence call at
// the end) and on original_source/back-end/handlers/game_handler.py for
// the broadcast-then-maybe-terminate ordering — but corrected where the
// original cuts a corner this implementation does not allow (proper
// FEN-derived turn instead of a `'w' in fen` substring check; an
// offer-outstanding check before ACCEPT_DRAW; implicit-accept when an
// opposing offer is already outstanding).
package game

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-server/internal/chessengine"
	"github.com/park285/chess-server/internal/domain"
	"github.com/park285/chess-server/internal/rating"
	"github.com/park285/chess-server/internal/repository"
)

// DrawOffer records which color (if any) currently has a standing draw
// offer outstanding.
type DrawOffer int

const (
	NoOffer DrawOffer = iota
	OfferedByWhite
	OfferedByBlack
)

// Game is the live, in-memory authoritative state for one active match.
// Only opaque session/user ids are stored; cross-references resolve via
// id lookups through the registry rather than direct pointers.
type Game struct {
	ID string

	WhiteSessionID string
	BlackSessionID string // empty when playing the AI opponent
	WhiteUserID    string
	BlackUserID    string
	WhiteUsername  string
	BlackUsername  string
	WhiteRating    int
	BlackRating    int

	IsAI         bool
	AIDifficulty string

	// TimeControl is the server-wide label set by the caller after
	// construction; it flows unchanged into the persisted domain.Game
	// and the PGN [TimeControl] header.
	TimeControl string

	Position  *chessengine.Position
	DrawState DrawOffer
	StartTime time.Time

	terminated bool
}

func (g *Game) SessionColor(sessionID string) (chessengine.Color, bool) {
	switch sessionID {
	case g.WhiteSessionID:
		return chessengine.White, true
	case g.BlackSessionID:
		return chessengine.Black, true
	default:
		return 0, false
	}
}

// randomColorAssignment flips a cryptographically random coin, grounded
// on CreateGameFromChallenge's use of crypto/rand.Int for the same
// purpose.
func randomColorAssignment() (whiteFirst bool, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return false, fmt.Errorf("game: assign color: %w", err)
	}
	return n.Int64() == 0, nil
}

// NewPvP creates a fresh Game for two human sessions, assigning colors
// at random.
func NewPvP(id string, aSessionID, aUserID, aUsername string, aRating int, bSessionID, bUserID, bUsername string, bRating int) (*Game, error) {
	whiteFirst, err := randomColorAssignment()
	if err != nil {
		return nil, err
	}
	g := &Game{
		ID:        id,
		Position:  chessengine.NewInitialPosition(),
		DrawState: NoOffer,
		StartTime: time.Now(),
	}
	if whiteFirst {
		g.WhiteSessionID, g.WhiteUserID, g.WhiteUsername, g.WhiteRating = aSessionID, aUserID, aUsername, aRating
		g.BlackSessionID, g.BlackUserID, g.BlackUsername, g.BlackRating = bSessionID, bUserID, bUsername, bRating
	} else {
		g.WhiteSessionID, g.WhiteUserID, g.WhiteUsername, g.WhiteRating = bSessionID, bUserID, bUsername, bRating
		g.BlackSessionID, g.BlackUserID, g.BlackUsername, g.BlackRating = aSessionID, aUserID, aUsername, aRating
	}
	return g, nil
}

// NewAI creates a Game against the delegated AI opponent. The human is
// always assigned a session; the AI's player id stays empty, matching
// the data-model invariant for AI games.
func NewAI(id string, humanSessionID, humanUserID, humanUsername string, humanRating int, difficulty string, humanIsWhite bool) *Game {
	g := &Game{
		ID:           id,
		Position:     chessengine.NewInitialPosition(),
		DrawState:    NoOffer,
		StartTime:    time.Now(),
		IsAI:         true,
		AIDifficulty: difficulty,
	}
	if humanIsWhite {
		g.WhiteSessionID, g.WhiteUserID, g.WhiteUsername, g.WhiteRating = humanSessionID, humanUserID, humanUsername, humanRating
		g.BlackUsername = "ai-" + difficulty
	} else {
		g.BlackSessionID, g.BlackUserID, g.BlackUsername, g.BlackRating = humanSessionID, humanUserID, humanUsername, humanRating
		g.WhiteUsername = "ai-" + difficulty
	}
	return g
}

// MoveOutcome is an Accepted/Illegal sum type used in place of
// exceptions-as-control-flow.
type MoveOutcome struct {
	Accepted bool
	Reason   string // set when !Accepted

	Position *chessengine.Position
	Status   chessengine.Status
}

// Controller owns the map of active games. Persistence calls happen
// outside any lock the caller holds — the caller (the dispatcher
// handlers) is expected to invoke Controller methods directly from the
// single coordinator goroutine, so the mutex here exists purely as a
// safety net against a stray concurrent caller, not as the primary
// synchronization mechanism.
type Controller struct {
	mu     sync.Mutex
	games  map[string]*Game
	repo   repository.Repository
	logger *zap.Logger
}

func NewController(repo repository.Repository, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{games: make(map[string]*Game), repo: repo, logger: logger}
}

func (c *Controller) Add(g *Game) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games[g.ID] = g
}

func (c *Controller) Get(id string) (*Game, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.games[id]
	return g, ok
}

func (c *Controller) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.games, id)
}

// MakeMove validates and applies a move submitted by bySessionID. It
// never mutates g.Position in place: on success g.Position is replaced
// with the new immutable Position.
func (c *Controller) MakeMove(g *Game, bySessionID, move string) MoveOutcome {
	color, ok := g.SessionColor(bySessionID)
	if !ok {
		return MoveOutcome{Reason: "not a participant in this game"}
	}
	if color != g.Position.Turn() {
		return MoveOutcome{Reason: "not your turn"}
	}

	next, err := g.Position.ApplyUCI(move)
	if err != nil {
		return MoveOutcome{Reason: "illegal move"}
	}

	g.Position = next
	g.DrawState = NoOffer

	status := next.GameStatus()
	return MoveOutcome{Accepted: true, Position: next, Status: status}
}

// OfferDraw records color's offer, or treats it as a no-op if that same
// color already has a standing offer. If the other color already
// offered, this call is an implicit accept and the caller must
// immediately terminate the game as a draw.
func (c *Controller) OfferDraw(g *Game, bySessionID string) (implicitAccept bool, err error) {
	color, ok := g.SessionColor(bySessionID)
	if !ok {
		return false, fmt.Errorf("game: %s is not a participant", bySessionID)
	}
	switch g.DrawState {
	case NoOffer:
		if color == chessengine.White {
			g.DrawState = OfferedByWhite
		} else {
			g.DrawState = OfferedByBlack
		}
		return false, nil
	case OfferedByWhite:
		if color == chessengine.White {
			return false, nil // no-op, already offered by this color
		}
		return true, nil // black accepting white's standing offer
	case OfferedByBlack:
		if color == chessengine.Black {
			return false, nil
		}
		return true, nil
	default:
		return false, nil
	}
}

// AcceptDraw is only valid when an offer from the other color is
// outstanding; original_source's handle_accept_draw skips this check
// entirely, which this implementation does not replicate.
func (c *Controller) AcceptDraw(g *Game, bySessionID string) error {
	color, ok := g.SessionColor(bySessionID)
	if !ok {
		return fmt.Errorf("game: %s is not a participant", bySessionID)
	}
	if (g.DrawState == OfferedByWhite && color == chessengine.Black) ||
		(g.DrawState == OfferedByBlack && color == chessengine.White) {
		return nil
	}
	return fmt.Errorf("game: no outstanding draw offer from the other side")
}

// DeclineDraw clears any outstanding offer; it is legal to call from
// either participant regardless of who currently holds the standing
// offer, matching original_source's unconditional forwarding, but
// (unlike original_source) it rejects a caller who is not a
// participant in g at all.
func (c *Controller) DeclineDraw(g *Game, bySessionID string) error {
	if _, ok := g.SessionColor(bySessionID); !ok {
		return fmt.Errorf("game: %s is not a participant", bySessionID)
	}
	g.DrawState = NoOffer
	return nil
}

// Terminate runs the six-step termination sequence exactly once per
// game. rated is false for AI games, which never change ratings.
// This method performs steps 1-3 (result/cause already decided by the
// caller, persistence) plus the rating math, and on a successful save
// removes the game from the active map. Callers are responsible for the
// broadcast and the session state transition, since those need access
// to the session registry this package does not depend on; the computed
// deltas and final domain.Game are returned for that purpose.
func (c *Controller) Terminate(ctx context.Context, g *Game, result domain.GameResult, cause string, rated bool) (whiteDelta, blackDelta int, persisted *domain.Game, err error) {
	if g.terminated {
		return 0, 0, nil, fmt.Errorf("game: %s already terminated", g.ID)
	}
	g.terminated = true

	if rated && !g.IsAI {
		var whiteScore rating.Score
		switch result {
		case domain.ResultWhiteWin:
			whiteScore = rating.Win
		case domain.ResultBlackWin:
			whiteScore = rating.Loss
		default:
			whiteScore = rating.Draw
		}
		whiteDelta, blackDelta = rating.UpdatePair(g.WhiteRating, g.BlackRating, whiteScore)

		whiteOutcome, blackOutcome := resultToOutcomes(result)
		if err := c.repo.UpdateUserResult(ctx, g.WhiteUserID, whiteDelta, whiteOutcome); err != nil {
			c.logger.Error("update_white_rating_failed", zap.String("game_id", g.ID), zap.Error(err))
		}
		if err := c.repo.UpdateUserResult(ctx, g.BlackUserID, blackDelta, blackOutcome); err != nil {
			c.logger.Error("update_black_rating_failed", zap.String("game_id", g.ID), zap.Error(err))
		}
	}

	dg := &domain.Game{
		ID:            g.ID,
		WhitePlayerID: g.WhiteUserID,
		BlackPlayerID: g.BlackUserID,
		WhiteUsername: g.WhiteUsername,
		BlackUsername: g.BlackUsername,
		MovesUCI:      g.Position.Moves(),
		PGN:           BuildPGN(g, result),
		FEN:           g.Position.FEN(),
		Status:        domain.GameCompleted,
		Result:        result,
		Cause:         cause,
		Rated:         rated && !g.IsAI,
		TimeControl:   g.TimeControl,
		StartTime:     g.StartTime,
		EndTime:       time.Now(),
	}
	if err := c.repo.SaveGame(ctx, dg); err != nil {
		c.logger.Error("save_game_failed", zap.String("game_id", g.ID), zap.Error(err))
		return whiteDelta, blackDelta, dg, fmt.Errorf("game: persist termination: %w", err)
	}

	c.remove(g.ID)
	return whiteDelta, blackDelta, dg, nil
}

func resultToOutcomes(result domain.GameResult) (white, black string) {
	switch result {
	case domain.ResultWhiteWin:
		return repository.OutcomeWin, repository.OutcomeLoss
	case domain.ResultBlackWin:
		return repository.OutcomeLoss, repository.OutcomeWin
	default:
		return repository.OutcomeDraw, repository.OutcomeDraw
	}
}
