package game

import (
	"fmt"
	"strings"

	"github.com/park285/chess-server/internal/chessengine"
	"github.com/park285/chess-server/internal/domain"
)

// BuildPGN assembles a PGN document for a finished game, grounded on the
// header-block-then-move-pairs shape common to both
// internal/pvpchess.Repository.buildPGN and original_source's
// get_game_pgn. Move text is UCI rather than true SAN — the facade does
// not expose a SAN encoder, so this is a deliberate simplification over
// both grounding sources, which render full algebraic notation.
func BuildPGN(g *Game, result domain.GameResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"Online Chess Game\"]\n")
	fmt.Fprintf(&b, "[Site \"chess-server\"]\n")
	fmt.Fprintf(&b, "[Date \"%s\"]\n", g.StartTime.Format("2006.01.02"))
	fmt.Fprintf(&b, "[White \"%s\"]\n", pgnEscape(g.WhiteUsername))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", pgnEscape(g.BlackUsername))
	fmt.Fprintf(&b, "[WhiteElo \"%d\"]\n", g.WhiteRating)
	fmt.Fprintf(&b, "[BlackElo \"%d\"]\n", g.BlackRating)
	if strings.TrimSpace(g.TimeControl) != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", pgnEscape(g.TimeControl))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", MapResultToPGN(result))

	moves := g.Position.Moves()
	pos := chessengine.NewInitialPosition()
	for i, uci := range moves {
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d. ", i/2+1)
		}
		next, err := pos.ApplyUCI(uci)
		if err != nil {
			break
		}
		b.WriteString(uci)
		b.WriteString(" ")
		pos = next
	}
	b.WriteString(MapResultToPGN(result))
	return b.String()
}

func pgnEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `'`)
}

// MapResultToPGN renders the PGN [Result] tag value for a finished game.
func MapResultToPGN(result domain.GameResult) string {
	switch result {
	case domain.ResultWhiteWin:
		return "1-0"
	case domain.ResultBlackWin:
		return "0-1"
	case domain.ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}
