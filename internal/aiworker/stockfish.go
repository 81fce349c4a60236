package aiworker

import (
	"context"
	"fmt"

	"github.com/park285/chess-server/internal/chess"
	"github.com/park285/chess-server/internal/chessengine"
)

// StockfishMover adapts internal/chess.Engine (a pooled Stockfish UCI
// subprocess with opening-book and difficulty-preset support) to the
// Mover interface, giving operators a richer AI option than
// RandomMover when STOCKFISH_PATH is configured. Difficulty maps onto
// the engine's preset names; "easy"/"medium"/"hard" are aliased to the
// closest preset tiers the engine already defines.
type StockfishMover struct {
	engine *chess.Engine
}

func NewStockfishMover(binaryPath string) (*StockfishMover, error) {
	engine, err := chess.NewEngine(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("aiworker: start stockfish engine: %w", err)
	}
	return &StockfishMover{engine: engine}, nil
}

func presetForDifficulty(difficulty string) string {
	switch difficulty {
	case "easy":
		return "level2"
	case "hard":
		return "level6"
	default:
		return "level4"
	}
}

func (m *StockfishMover) Move(ctx context.Context, difficulty string, pos *chessengine.Position) (string, error) {
	result, err := m.engine.Evaluate(ctx, chess.EvaluateRequest{
		PresetName: presetForDifficulty(difficulty),
		FEN:        pos.FEN(),
		Moves:      pos.Moves(),
	})
	if err != nil {
		return "", fmt.Errorf("aiworker: stockfish evaluate: %w", err)
	}
	return result.EngineBestMove, nil
}
