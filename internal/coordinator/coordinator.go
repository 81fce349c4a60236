// Package coordinator is the single-actor heart of the server: one
// goroutine drains a work queue and is the only writer
// of session/matchmaker/game state, exactly as the bot's various
// managers each serialize on their own single-purpose locks, generalized
// here into one coordinator shared by every component. AI move
// generation runs off the coordinator: handlers submit a request to the
// aiworker pool and return, and the result re-enters the coordinator as
// a posted closure, mirroring the comment in
// internal/pvpchess.Manager.PlayMove about never holding external I/O
// inside the critical section. Repository calls (register, login, game
// termination) are not staged this way: they run synchronously on the
// coordinator goroutine, each bounded by repoTimeout, and every other
// queued job waits while one is in progress.
package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-server/internal/aiworker"
	"github.com/park285/chess-server/internal/auth"
	"github.com/park285/chess-server/internal/config"
	"github.com/park285/chess-server/internal/game"
	"github.com/park285/chess-server/internal/matchmaker"
	"github.com/park285/chess-server/internal/presence"
	"github.com/park285/chess-server/internal/repository"
	"github.com/park285/chess-server/internal/session"
	"github.com/park285/chess-server/internal/wire"
)

const workQueueDepth = 1024

type Coordinator struct {
	cfg    *config.AppConfig
	logger *zap.Logger

	registry   *session.Registry
	matchQueue *matchmaker.Queue
	challenges *matchmaker.ChallengeTable
	controller *game.Controller
	authSvc    *auth.Service
	presence   *presence.Service
	aiPool     *aiworker.Pool
	repo       repository.Repository

	dispatch *Dispatcher
	workQ    chan func()
	stopC    chan struct{}
}

func New(cfg *config.AppConfig, repo repository.Repository, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:        cfg,
		logger:     logger,
		registry:   session.NewRegistry(),
		matchQueue: matchmaker.NewQueue(cfg.MatchRatingWindow),
		challenges: matchmaker.NewChallengeTable(time.Duration(cfg.ChallengeTTLSec) * time.Second),
		controller: game.NewController(repo, logger),
		authSvc:    auth.NewService(repo, cfg.PasswordHashCost, cfg.JWTSecret),
		repo:       repo,
		workQ:      make(chan func(), workQueueDepth),
		stopC:      make(chan struct{}),
	}
	c.presence = presence.NewService(func() {
		c.post(func() { c.presence.BroadcastTo(c.registry) })
	})
	if cfg.RedisURL != "" {
		if mirror, err := presence.NewMirror(cfg.RedisURL); err != nil {
			logger.Error("presence_redis_mirror_disabled", zap.Error(err))
		} else {
			c.presence.SetMirror(mirror)
		}
	}

	mover := aiworker.Mover(aiworker.NewRandomMover())
	if cfg.StockfishPath != "" {
		if m, err := aiworker.NewStockfishMover(cfg.StockfishPath); err != nil {
			logger.Error("stockfish_mover_disabled", zap.Error(err))
		} else {
			mover = m
		}
	}
	c.aiPool = aiworker.NewPool(mover, 4, 64)
	c.dispatch = buildDispatcher(c)
	return c
}

// post enqueues a closure for the coordinator goroutine. Every mutation
// of shared state must go through this.
func (c *Coordinator) post(job func()) {
	select {
	case c.workQ <- job:
	case <-c.stopC:
	}
}

// Run is the coordinator's single goroutine. It drains client frames
// and AI-worker results from the same work queue, so ordering between
// the two is preserved.
func (c *Coordinator) Run(ctx context.Context) {
	go c.drainAIResults()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.workQ:
			job()
		}
	}
}

func (c *Coordinator) Stop() {
	close(c.stopC)
}

func (c *Coordinator) drainAIResults() {
	for res := range c.aiPool.Results() {
		r := res
		c.post(func() { c.handleAIResult(r) })
	}
}

// OnAccept registers a newly-accepted connection's session.
func (c *Coordinator) OnAccept(s *session.Session) {
	c.post(func() { c.registry.Add(s) })
}

// OnFrame is called by a connection's reader goroutine for every
// decoded frame; it posts the actual handling onto the coordinator so
// all business logic runs single-threaded.
func (c *Coordinator) OnFrame(sessionID string, frame wire.Frame) {
	c.post(func() {
		s, ok := c.registry.LookupBySession(sessionID)
		if !ok {
			return
		}
		s.Touch()
		c.dispatch.Handle(c, s, frame)
	})
}

// OnDisconnect runs cleanup in a fixed order: presence, then
// matchmaking queue/challenges, then active-game membership (treated
// as resignation), then the registry entry itself, then the session's
// outbound channel. It blocks until the coordinator goroutine has
// actually run that cleanup, so the caller (the accept loop's
// per-connection goroutine) never closes the connection or races a
// send the coordinator is still in the middle of queuing onto Out —
// every SendMessage tied to this disconnect happens, in program order,
// before Close() runs, because both execute in the single coordinator
// goroutine inside the same posted closure.
func (c *Coordinator) OnDisconnect(sessionID string) {
	done := make(chan struct{})
	c.post(func() {
		c.disconnect(sessionID, "connection closed")
		close(done)
	})
	select {
	case <-done:
	case <-c.stopC:
	}
}

func (c *Coordinator) disconnect(sessionID, reason string) {
	s, ok := c.registry.LookupBySession(sessionID)
	if !ok {
		return
	}
	userID, _, _ := s.Identity()

	if userID != "" {
		c.presence.Remove(userID)
	}
	c.matchQueue.Leave(sessionID)
	c.challenges.RemoveSession(sessionID)

	if gameID := s.GameID(); gameID != "" {
		if g, ok := c.controller.Get(gameID); ok {
			c.resignGame(g, sessionID)
		}
	}

	c.registry.Remove(sessionID)
	_ = reason
	s.Close()
}

// ReapIdleSessions disconnects sessions idle past the configured
// threshold. Intended to be driven by a ticker in cmd/server.
func (c *Coordinator) ReapIdleSessions() {
	c.post(func() {
		threshold := time.Duration(c.cfg.IdleTimeoutSec) * time.Second
		now := time.Now()
		for _, s := range c.registry.All() {
			if now.Sub(s.IdleSince()) > threshold {
				c.disconnect(s.ID, "idle timeout")
			}
		}
	})
}

// SweepExpiredChallenges turns every TTL-expired challenge into a
// decline-equivalent notification.
func (c *Coordinator) SweepExpiredChallenges() {
	c.post(func() {
		for _, ch := range c.challenges.Expired(time.Now()) {
			if s, ok := c.registry.LookupBySession(ch.ChallengerSessionID); ok {
				_, _ = s.SendMessage(wire.ChallengeDeclined, wire.ChallengeResponsePayload{ChallengerUserID: ch.ChallengerUserID})
			}
		}
	})
}
