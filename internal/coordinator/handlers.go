package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-server/internal/aiworker"
	"github.com/park285/chess-server/internal/auth"
	"github.com/park285/chess-server/internal/chessengine"
	"github.com/park285/chess-server/internal/domain"
	"github.com/park285/chess-server/internal/game"
	"github.com/park285/chess-server/internal/session"
	"github.com/park285/chess-server/internal/wire"
)

const repoTimeout = 5 * time.Second

func handleRegister(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.RegisterPayload](payload)
	if err != nil {
		_, _ = s.SendMessage(wire.RegisterResult, wire.RegisterResultPayload{Success: false, Error: "malformed request"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
	defer cancel()
	_, err = c.authSvc.Register(ctx, req.Username, req.Fullname, req.Password)
	if errors.Is(err, auth.ErrUsernameTaken) {
		_, _ = s.SendMessage(wire.RegisterResult, wire.RegisterResultPayload{Success: false, Error: "username taken"})
		return
	}
	if err != nil {
		c.logger.Error("register_failed", zap.Error(err))
		_, _ = s.SendMessage(wire.RegisterResult, wire.RegisterResultPayload{Success: false, Error: "internal error"})
		return
	}
	_, _ = s.SendMessage(wire.RegisterResult, wire.RegisterResultPayload{Success: true})
}

func handleLogin(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.LoginPayload](payload)
	if err != nil {
		_, _ = s.SendMessage(wire.LoginResult, wire.LoginResultPayload{Success: false, Error: "malformed request"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
	defer cancel()
	user, token, err := c.authSvc.Login(ctx, req.Username, req.Password)
	if err != nil {
		// Never reveal which of {unknown user, bad password} occurred.
		_, _ = s.SendMessage(wire.LoginResult, wire.LoginResultPayload{Success: false})
		return
	}

	s.Authenticate(user.ID, user.Username, user.Rating)
	c.registry.BindUser(user.ID, s)
	c.presence.Insert(s.ID, user.ID, user.Username, user.Rating)

	_, _ = s.SendMessage(wire.LoginResult, wire.LoginResultPayload{
		Success: true, UserID: user.ID, Username: user.Username, Fullname: user.Fullname, Rating: user.Rating, Token: token,
	})
}

func handleFindMatch(c *Coordinator, s *session.Session, payload []byte) {
	userID, _, rating := s.Identity()
	if err := c.matchQueue.Join(s.ID, userID, rating); err != nil {
		c.sendError(s, wire.NewError(wire.KindDomain, err.Error()))
		return
	}
	c.tryPairFromQueue()
}

func handleCancelFindMatch(c *Coordinator, s *session.Session, payload []byte) {
	c.matchQueue.Leave(s.ID)
}

func (c *Coordinator) tryPairFromQueue() {
	a, b, paired := c.matchQueue.TryPair()
	if !paired {
		return
	}
	sa, okA := c.registry.LookupBySession(a.SessionID)
	sb, okB := c.registry.LookupBySession(b.SessionID)
	if !okA || !okB {
		return
	}

	gameID := uuid.NewString()
	auserID, ausername, arating := sa.Identity()
	buserID, busername, brating := sb.Identity()
	g, err := game.NewPvP(gameID, sa.ID, auserID, ausername, arating, sb.ID, buserID, busername, brating)
	if err != nil {
		c.logger.Error("create_pvp_game_failed", zap.Error(err))
		return
	}
	g.TimeControl = c.cfg.TimeControl
	c.controller.Add(g)
	c.startPvPGame(sa, sb, g)
}

func (c *Coordinator) startPvPGame(sa, sb *session.Session, g *gameT) {
	sa.SetGameID(g.ID)
	sb.SetGameID(g.ID)

	whiteSess, blackSess := sa, sb
	if g.WhiteSessionID != sa.ID {
		whiteSess, blackSess = sb, sa
	}

	auserID, ausername, arating := sa.Identity()
	buserID, busername, brating := sb.Identity()

	_, _ = sa.SendMessage(wire.MatchFound, wire.MatchFoundPayload{Opponent: wire.UserRef{UserID: buserID, Username: busername, Rating: brating}})
	_, _ = sb.SendMessage(wire.MatchFound, wire.MatchFoundPayload{Opponent: wire.UserRef{UserID: auserID, Username: ausername, Rating: arating}})

	fen := g.Position.FEN()
	_, _ = whiteSess.SendMessage(wire.GameStart, wire.GameStartPayload{
		GameID: g.ID, Color: "white", FEN: fen,
		Opponent: wire.UserRef{UserID: g.BlackUserID, Username: g.BlackUsername, Rating: g.BlackRating},
	})
	_, _ = blackSess.SendMessage(wire.GameStart, wire.GameStartPayload{
		GameID: g.ID, Color: "black", FEN: fen,
		Opponent: wire.UserRef{UserID: g.WhiteUserID, Username: g.WhiteUsername, Rating: g.WhiteRating},
	})
}

// gameT avoids stuttering the game package name at call sites below.
type gameT = game.Game

func handleFindAIMatch(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.FindAIMatchPayload](payload)
	if err != nil {
		c.sendError(s, wire.NewError(wire.KindDecode, "malformed request"))
		return
	}
	switch req.Difficulty {
	case "easy", "medium", "hard":
	default:
		req.Difficulty = "medium"
	}

	userID, username, rating := s.Identity()
	gameID := uuid.NewString()
	g := game.NewAI(gameID, s.ID, userID, username, rating, req.Difficulty, true)
	g.TimeControl = c.cfg.TimeControl
	c.controller.Add(g)
	s.SetGameID(g.ID)

	_, _ = s.SendMessage(wire.MatchFound, wire.MatchFoundPayload{Opponent: wire.UserRef{Username: g.BlackUsername}})
	_, _ = s.SendMessage(wire.GameStart, wire.GameStartPayload{
		GameID: g.ID, Color: "white", FEN: g.Position.FEN(),
		Opponent: wire.UserRef{Username: g.BlackUsername},
	})
}

func handleChallenge(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.ChallengePayload](payload)
	if err != nil {
		return
	}
	target, ok := c.registry.LookupByUser(req.TargetUserID)
	if !ok || target.State() != session.Authenticated {
		c.sendError(s, wire.NewError(wire.KindDomain, "target not available"))
		return
	}
	userID, username, rating := s.Identity()
	targetUserID, _, _ := target.Identity()

	ch, err := c.challenges.Create(s.ID, userID, username, rating, target.ID, targetUserID)
	if err != nil {
		c.sendError(s, wire.NewError(wire.KindDomain, err.Error()))
		return
	}
	_, _ = target.SendMessage(wire.ChallengeReceived, wire.ChallengeReceivedPayload{
		Sender: wire.UserRef{UserID: ch.ChallengerUserID, Username: ch.ChallengerUsername, Rating: ch.ChallengerRating},
	})
}

func handleAcceptChallenge(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.ChallengeResponsePayload](payload)
	if err != nil {
		return
	}
	challenger, ok := c.registry.LookupByUser(req.ChallengerUserID)
	if !ok {
		c.sendError(s, wire.NewError(wire.KindDomain, "challenger gone"))
		return
	}
	ch, err := c.challenges.Accept(challenger.ID, s.ID)
	if err != nil {
		c.sendError(s, wire.NewError(wire.KindDomain, "no such challenge"))
		return
	}

	gameID := uuid.NewString()
	targetUserID, targetUsername, targetRating := s.Identity()
	g, err := game.NewPvP(gameID, challenger.ID, ch.ChallengerUserID, ch.ChallengerUsername, ch.ChallengerRating, s.ID, targetUserID, targetUsername, targetRating)
	if err != nil {
		c.logger.Error("create_challenge_game_failed", zap.Error(err))
		return
	}
	g.TimeControl = c.cfg.TimeControl
	c.controller.Add(g)
	_, _ = challenger.SendMessage(wire.ChallengeAccepted, wire.ChallengeResponsePayload{ChallengerUserID: ch.ChallengerUserID})
	c.startPvPGame(challenger, s, g)
}

func handleDeclineChallenge(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.ChallengeResponsePayload](payload)
	if err != nil {
		return
	}
	challenger, ok := c.registry.LookupByUser(req.ChallengerUserID)
	if !ok {
		return
	}
	if _, err := c.challenges.Decline(challenger.ID, s.ID); err != nil {
		return // idempotence law: repeated decline is a no-op
	}
	_, _ = challenger.SendMessage(wire.ChallengeDeclined, wire.ChallengeResponsePayload{ChallengerUserID: req.ChallengerUserID})
}

func handleMakeMove(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.MakeMovePayload](payload)
	if err != nil {
		_, _ = s.SendMessage(wire.InvalidMove, wire.InvalidMovePayload{Reason: "malformed request"})
		return
	}
	g, ok := c.controller.Get(req.GameID)
	if !ok {
		_, _ = s.SendMessage(wire.InvalidMove, wire.InvalidMovePayload{Reason: "game not found"})
		return
	}

	outcome := c.controller.MakeMove(g, s.ID, req.Move)
	if !outcome.Accepted {
		_, _ = s.SendMessage(wire.InvalidMove, wire.InvalidMovePayload{Reason: outcome.Reason})
		return
	}

	c.broadcastGameState(g, req.Move)

	if outcome.Status.Terminal() {
		c.terminateAndBroadcast(g, resultFor(outcome, g), outcome.Status.Cause(), true)
		return
	}

	if g.IsAI && g.Position.Turn() != humanColor(g) {
		c.aiPool.Submit(aiworker.Request{GameID: g.ID, Difficulty: g.AIDifficulty, Position: g.Position})
	}
}

func humanColor(g *gameT) chessengine.Color {
	if g.WhiteSessionID != "" {
		return chessengine.White
	}
	return chessengine.Black
}

func resultFor(outcome game.MoveOutcome, g *gameT) domain.GameResult {
	if outcome.Status.Cause() == "checkmate" {
		if outcome.Position.Winner() == chessengine.White {
			return domain.ResultWhiteWin
		}
		return domain.ResultBlackWin
	}
	return domain.ResultDraw
}

func (c *Coordinator) broadcastGameState(g *gameT, lastMove string) {
	msg := wire.GameStateUpdatePayload{
		GameID:   g.ID,
		FEN:      g.Position.FEN(),
		LastMove: lastMove,
		Turn:     g.Position.Turn().String(),
	}
	if s, ok := c.registry.LookupBySession(g.WhiteSessionID); ok {
		_, _ = s.SendMessage(wire.GameStateUpdate, msg)
	}
	if s, ok := c.registry.LookupBySession(g.BlackSessionID); ok {
		_, _ = s.SendMessage(wire.GameStateUpdate, msg)
	}
}

func (c *Coordinator) handleAIResult(res aiworker.Result) {
	g, ok := c.controller.Get(res.GameID)
	if !ok || res.Err != nil {
		if res.Err != nil {
			c.logger.Error("ai_move_failed", zap.Error(res.Err))
		}
		return
	}
	// The AI side of a Game never has a session id (see game.NewAI), so
	// SessionColor resolves the empty string to whichever color it plays.
	outcome := c.controller.MakeMove(g, "", res.Move)
	if !outcome.Accepted {
		c.logger.Error("ai_move_rejected", zap.String("reason", outcome.Reason))
		return
	}
	c.broadcastGameState(g, res.Move)
	if outcome.Status.Terminal() {
		c.terminateAndBroadcast(g, resultFor(outcome, g), outcome.Status.Cause(), true)
	}
}

func handleResign(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.GameRefPayload](payload)
	if err != nil {
		return
	}
	g, ok := c.controller.Get(req.GameID)
	if !ok {
		return
	}
	c.resignGame(g, s.ID)
}

func (c *Coordinator) resignGame(g *gameT, bySessionID string) {
	color, ok := g.SessionColor(bySessionID)
	if !ok {
		return
	}
	result := domain.ResultWhiteWin
	if color == chessengine.White {
		result = domain.ResultBlackWin
	}
	c.terminateAndBroadcast(g, result, "resignation", true)
}

func handleOfferDraw(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.GameRefPayload](payload)
	if err != nil {
		return
	}
	g, ok := c.controller.Get(req.GameID)
	if !ok {
		return
	}
	implicitAccept, err := c.controller.OfferDraw(g, s.ID)
	if err != nil {
		return
	}
	if implicitAccept {
		c.terminateAndBroadcast(g, domain.ResultDraw, "agreement", true)
		return
	}
	opponent := opponentSession(c, g, s.ID)
	if opponent != nil {
		_, _ = opponent.SendMessage(wire.DrawOfferReceived, wire.GameRefPayload{GameID: g.ID})
	}
}

func handleAcceptDraw(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.GameRefPayload](payload)
	if err != nil {
		return
	}
	g, ok := c.controller.Get(req.GameID)
	if !ok {
		return
	}
	if err := c.controller.AcceptDraw(g, s.ID); err != nil {
		c.sendError(s, wire.NewError(wire.KindDomain, err.Error()))
		return
	}
	c.terminateAndBroadcast(g, domain.ResultDraw, "agreement", true)
}

func handleDeclineDraw(c *Coordinator, s *session.Session, payload []byte) {
	req, err := decode[wire.GameRefPayload](payload)
	if err != nil {
		return
	}
	g, ok := c.controller.Get(req.GameID)
	if !ok {
		return
	}
	if err := c.controller.DeclineDraw(g, s.ID); err != nil {
		return
	}
	opponent := opponentSession(c, g, s.ID)
	if opponent != nil {
		_, _ = opponent.SendMessage(wire.DrawOfferDeclined, wire.GameRefPayload{GameID: g.ID})
	}
	_, _ = s.SendMessage(wire.DrawOfferDeclined, wire.GameRefPayload{GameID: g.ID})
}

func opponentSession(c *Coordinator, g *gameT, sessionID string) *session.Session {
	otherID := g.WhiteSessionID
	if sessionID == g.WhiteSessionID {
		otherID = g.BlackSessionID
	}
	if otherID == "" {
		return nil
	}
	s, _ := c.registry.LookupBySession(otherID)
	return s
}

// terminateAndBroadcast finishes what Controller.Terminate leaves to the
// caller: notify both sessions of the outcome and drop them back to the
// Authenticated state now that the game id they were carrying is gone.
func (c *Coordinator) terminateAndBroadcast(g *gameT, result domain.GameResult, cause string, rated bool) {
	ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
	defer cancel()

	_, _, _, err := c.controller.Terminate(ctx, g, result, cause, rated)
	if err != nil {
		c.logger.Error("terminate_game_failed", zap.Error(err))
	}

	if s, ok := c.registry.LookupBySession(g.WhiteSessionID); ok {
		_, _ = s.SendMessage(wire.GameOver, wire.GameOverPayload{GameID: g.ID, Result: string(result), Cause: cause})
		s.SetGameID("")
	}
	if s, ok := c.registry.LookupBySession(g.BlackSessionID); ok {
		_, _ = s.SendMessage(wire.GameOver, wire.GameOverPayload{GameID: g.ID, Result: string(result), Cause: cause})
		s.SetGameID("")
	}
}
