package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/chess-server/internal/chessengine"
	"github.com/park285/chess-server/internal/domain"
	"github.com/park285/chess-server/internal/repository"
)

func newTestGame(t *testing.T) (*Controller, *Game) {
	t.Helper()
	repo := repository.NewMemory()
	ctx := context.Background()
	white, err := repo.CreateUser(ctx, "white-"+t.Name(), "White Player", "hash")
	require.NoError(t, err)
	black, err := repo.CreateUser(ctx, "black-"+t.Name(), "Black Player", "hash")
	require.NoError(t, err)

	c := NewController(repo, nil)
	g := &Game{
		ID:             "g1",
		WhiteSessionID: "ws",
		BlackSessionID: "bs",
		WhiteUserID:    white.ID,
		BlackUserID:    black.ID,
		WhiteUsername:  white.Username,
		BlackUsername:  black.Username,
		WhiteRating:    white.Rating,
		BlackRating:    black.Rating,
	}
	g.Position = chessengine.NewInitialPosition()
	g.DrawState = NoOffer
	c.Add(g)
	return c, g
}

func TestMakeMoveRejectsWrongTurn(t *testing.T) {
	c, g := newTestGame(t)
	outcome := c.MakeMove(g, "bs", "e7e5")
	require.False(t, outcome.Accepted)
	require.Equal(t, "not your turn", outcome.Reason)
}

func TestMakeMoveRejectsNonParticipant(t *testing.T) {
	c, g := newTestGame(t)
	outcome := c.MakeMove(g, "intruder", "e2e4")
	require.False(t, outcome.Accepted)
}

func TestMakeMoveAcceptsLegalMoveAndClearsStandingDrawOffer(t *testing.T) {
	c, g := newTestGame(t)
	_, err := c.OfferDraw(g, "ws")
	require.NoError(t, err)
	require.Equal(t, OfferedByWhite, g.DrawState)

	outcome := c.MakeMove(g, "ws", "e2e4")
	require.True(t, outcome.Accepted)
	require.Equal(t, NoOffer, g.DrawState, "a move clears any standing draw offer")
}

func TestOfferDrawIsImplicitAcceptWhenOtherSideAlreadyOffered(t *testing.T) {
	c, g := newTestGame(t)
	implicit, err := c.OfferDraw(g, "ws")
	require.NoError(t, err)
	require.False(t, implicit)

	implicit, err = c.OfferDraw(g, "bs")
	require.NoError(t, err)
	require.True(t, implicit, "black offering after white's standing offer is an implicit accept")
}

func TestAcceptDrawRequiresOutstandingOfferFromOtherSide(t *testing.T) {
	c, g := newTestGame(t)
	err := c.AcceptDraw(g, "ws")
	require.Error(t, err, "no offer outstanding yet")

	_, err = c.OfferDraw(g, "ws")
	require.NoError(t, err)
	err = c.AcceptDraw(g, "ws")
	require.Error(t, err, "white cannot accept its own offer")

	err = c.AcceptDraw(g, "bs")
	require.NoError(t, err)
}

func TestTerminateIsOnlyEffectiveOnce(t *testing.T) {
	c, g := newTestGame(t)
	ctx := context.Background()
	_, _, _, err := c.Terminate(ctx, g, domain.ResultWhiteWin, "resignation", true)
	require.NoError(t, err)

	_, _, _, err = c.Terminate(ctx, g, domain.ResultWhiteWin, "resignation", true)
	require.Error(t, err, "terminating an already-terminated game must fail")

	_, ok := c.Get(g.ID)
	require.False(t, ok, "terminated game must be removed from the active map")
}

func TestTerminateAppliesRatingDeltasWhenRated(t *testing.T) {
	c, g := newTestGame(t)
	ctx := context.Background()
	whiteDelta, blackDelta, persisted, err := c.Terminate(ctx, g, domain.ResultWhiteWin, "checkmate", true)
	require.NoError(t, err)
	require.Positive(t, whiteDelta)
	require.Negative(t, blackDelta)
	require.Equal(t, domain.ResultWhiteWin, persisted.Result)
	require.True(t, persisted.Rated)
}

func TestTerminateSkipsRatingForAIGames(t *testing.T) {
	repo := repository.NewMemory()
	c := NewController(repo, nil)
	g := NewAI("g2", "ws", "u1", "human", 1200, "medium", true)
	c.Add(g)

	_, _, persisted, err := c.Terminate(context.Background(), g, domain.ResultWhiteWin, "checkmate", false)
	require.NoError(t, err)
	require.False(t, persisted.Rated)
}
