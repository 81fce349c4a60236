// Package chessengine is the sole caller of github.com/corentings/chess/v2
// — every other package reaches the rules engine only through this
// facade's narrow NewInitialPosition/ApplyUCI/GameStatus surface, grounded on
// internal/pvpchess.Manager's PushNotationMove with nchess.UCINotation{},
// FEN()/Position()/Outcome() accessors, but reshaped around immutable
// values instead of Manager's Redis-backed mutable session.
package chessengine

import (
	"errors"
	"fmt"

	nchess "github.com/corentings/chess/v2"
)

// Status is a sum type used in place of exceptions-as-control-flow for
// classifying a finished game.
type Status int

const (
	Ongoing Status = iota
	Checkmate
	Stalemate
	InsufficientMaterial
	FiftyMove
	ThreefoldRepetition
)

func (s Status) Terminal() bool {
	return s != Ongoing
}

// Cause renders the wire-facing termination cause string for GAME_OVER.
func (s Status) Cause() string {
	switch s {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case InsufficientMaterial:
		return "insufficient_material"
	case FiftyMove:
		return "fifty_move_rule"
	case ThreefoldRepetition:
		return "threefold_repetition"
	default:
		return ""
	}
}

var ErrIllegalMove = errors.New("chessengine: illegal move")

// Position is an immutable snapshot of one point in a game: the move
// list replayed so far plus the live *nchess.Game needed to query it.
// Re-deriving a Position always replays from the initial position
// (never from a stored FEN) for the same reason Manager's
// reconstruct() helper does: the move list is the source of truth, FEN
// is presentation-only.
type Position struct {
	game  *nchess.Game
	moves []string
}

// NewInitialPosition returns the starting position.
func NewInitialPosition() *Position {
	return &Position{game: nchess.NewGame(), moves: nil}
}

// FromMoves replays a UCI move list from the initial position. An error
// here indicates corrupted persisted state, not client input.
func FromMoves(moves []string) (*Position, error) {
	g := nchess.NewGame()
	for _, mv := range moves {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("chessengine: replay move %q: %w", mv, err)
		}
	}
	return &Position{game: g, moves: append([]string(nil), moves...)}, nil
}

func (p *Position) FEN() string {
	return p.game.FEN()
}

func (p *Position) Moves() []string {
	return append([]string(nil), p.moves...)
}

// Turn reports which color is to move, read directly off the engine's
// own position rather than by guessing from a FEN substring.
func (p *Position) Turn() Color {
	if p.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// LegalMoves returns every legal move from this position encoded as
// UCI, used by the AI worker's fallback random-move provider.
func (p *Position) LegalMoves() []string {
	valid := p.game.ValidMoves()
	out := make([]string, 0, len(valid))
	pos := p.game.Position()
	for _, mv := range valid {
		out = append(out, nchess.UCINotation{}.Encode(pos, &mv))
	}
	return out
}

// ApplyUCI attempts move on top of p. On success it returns a new
// Position; p itself is never mutated. On an illegal move it returns
// ErrIllegalMove and p is unchanged.
func (p *Position) ApplyUCI(move string) (*Position, error) {
	next, err := FromMoves(append(p.Moves(), move))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	return next, nil
}

// GameStatus classifies the position per the facade's status() surface.
func (p *Position) GameStatus() Status {
	switch p.game.Outcome() {
	case nchess.NoOutcome:
		return Ongoing
	case nchess.WhiteWon, nchess.BlackWon:
		return methodToStatus(p.game.Method())
	case nchess.Draw:
		return methodToStatus(p.game.Method())
	default:
		return Ongoing
	}
}

// Winner reports which color delivered checkmate, valid only when
// GameStatus() is Checkmate.
func (p *Position) Winner() Color {
	if p.game.Outcome() == nchess.WhiteWon {
		return White
	}
	return Black
}

func methodToStatus(m nchess.Method) Status {
	switch m {
	case nchess.Checkmate:
		return Checkmate
	case nchess.Stalemate:
		return Stalemate
	case nchess.InsufficientMaterial:
		return InsufficientMaterial
	case nchess.FiftyMoveRule:
		return FiftyMove
	case nchess.ThreefoldRepetition:
		return ThreefoldRepetition
	default:
		return Stalemate
	}
}

type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}
