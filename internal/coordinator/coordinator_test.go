package coordinator

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-server/internal/config"
	"github.com/park285/chess-server/internal/game"
	"github.com/park285/chess-server/internal/repository"
	"github.com/park285/chess-server/internal/session"
	"github.com/park285/chess-server/internal/wire"
)

func newTestCoordinator(t *testing.T) (*Coordinator, repository.Repository) {
	t.Helper()
	repo := repository.NewMemory()
	cfg := &config.AppConfig{
		PasswordHashCost: 4,
		JWTSecret:        "test-secret",
		IdleTimeoutSec:   300,
		ChallengeTTLSec:  60,
		TimeControl:      "none",
	}
	return New(cfg, repo, nil), repo
}

// newTestSession creates a registered, authenticated session
// backed by an in-memory pipe connection, with a background writer loop
// (mirroring server.writeLoop) draining Out so SendMessage never blocks
// and a closed Out is observable once the loop's range exits.
func newTestSession(t *testing.T, c *Coordinator, userID, username string, rating int) *session.Session {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { _ = clientConn.Close(); _ = serverConn.Close() })
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := clientConn.Read(buf); err != nil {
				return
			}
		}
	}()

	s := session.New(uuid.NewString(), serverConn)
	go func() {
		for frame := range s.Out {
			if _, err := s.Conn.Write(frame); err != nil {
				return
			}
		}
	}()

	c.registry.Add(s)
	s.Authenticate(userID, username, rating)
	c.registry.BindUser(userID, s)
	return s
}

// outClosed reports whether s.Out has been closed and fully drained by
// its writer loop, waiting up to a second.
func outClosed(t *testing.T, s *session.Session) bool {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		select {
		case _, open := <-s.Out:
			if !open {
				return true
			}
		default:
			time.Sleep(time.Millisecond)
		}
	}
	return false
}

func newTestGame(t *testing.T, c *Coordinator, white, black *session.Session) *game.Game {
	t.Helper()
	wID, wName, wRating := white.Identity()
	bID, bName, bRating := black.Identity()
	// NewPvP assigns colors at random; draw until the session passed as
	// white actually plays white.
	var g *game.Game
	for g == nil || g.WhiteSessionID != white.ID {
		var err error
		g, err = game.NewPvP(uuid.NewString(), white.ID, wID, wName, wRating, black.ID, bID, bName, bRating)
		require.NoError(t, err)
	}
	c.controller.Add(g)
	white.SetGameID(g.ID)
	black.SetGameID(g.ID)
	return g
}

func TestResignGame_RejectsNonParticipant(t *testing.T) {
	c, _ := newTestCoordinator(t)
	white := newTestSession(t, c, "white-user", "white", 1200)
	black := newTestSession(t, c, "black-user", "black", 1200)
	g := newTestGame(t, c, white, black)

	outsider := newTestSession(t, c, "outsider-user", "outsider", 1200)

	c.resignGame(g, outsider.ID)

	stillActive, ok := c.controller.Get(g.ID)
	require.True(t, ok, "resign from a non-participant must not terminate the game")
	require.Same(t, g, stillActive)
	require.Equal(t, session.InGame, white.State())
	require.Equal(t, session.InGame, black.State())
}

func TestResignGame_AcceptsParticipant(t *testing.T) {
	c, _ := newTestCoordinator(t)
	white := newTestSession(t, c, "white-user", "white", 1200)
	black := newTestSession(t, c, "black-user", "black", 1200)
	g := newTestGame(t, c, white, black)

	c.resignGame(g, white.ID)

	_, ok := c.controller.Get(g.ID)
	require.False(t, ok, "resign from a participant must terminate and remove the game")
	require.Eventually(t, func() bool {
		return white.State() == session.Authenticated && black.State() == session.Authenticated
	}, time.Second, time.Millisecond)
}

func TestHandleDeclineDraw_RejectsNonParticipant(t *testing.T) {
	c, _ := newTestCoordinator(t)
	white := newTestSession(t, c, "white-user", "white", 1200)
	black := newTestSession(t, c, "black-user", "black", 1200)
	g := newTestGame(t, c, white, black)

	_, err := c.controller.OfferDraw(g, white.ID)
	require.NoError(t, err)
	require.Equal(t, game.OfferedByWhite, g.DrawState)

	outsider := newTestSession(t, c, "outsider-user", "outsider", 1200)
	payload, err := json.Marshal(wire.GameRefPayload{GameID: g.ID})
	require.NoError(t, err)
	handleDeclineDraw(c, outsider, payload)

	require.Equal(t, game.OfferedByWhite, g.DrawState, "a non-participant must not clear another game's draw offer")
}

func TestDisconnect_ActiveGameResignsThenCleansUpInOrder(t *testing.T) {
	c, _ := newTestCoordinator(t)
	white := newTestSession(t, c, "white-user", "white", 1200)
	black := newTestSession(t, c, "black-user", "black", 1200)
	g := newTestGame(t, c, white, black)

	c.disconnect(white.ID, "connection closed")

	_, ok := c.controller.Get(g.ID)
	require.False(t, ok, "the active game must be resigned and removed before disconnect finishes")

	_, found := c.registry.LookupBySession(white.ID)
	require.False(t, found, "the disconnecting session must be removed from the registry")

	require.True(t, outClosed(t, white), "Out must be closed by the time disconnect returns")

	require.Equal(t, session.Authenticated, black.State(), "the opponent must be notified and returned to Authenticated")
}

func TestOnDisconnect_BlocksUntilCoordinatorProcessesIt(t *testing.T) {
	c, _ := newTestCoordinator(t)
	s := newTestSession(t, c, "solo-user", "solo", 1200)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	c.OnDisconnect(s.ID)

	_, found := c.registry.LookupBySession(s.ID)
	require.False(t, found, "OnDisconnect must not return before the coordinator has run cleanup")
	require.True(t, outClosed(t, s))
}
