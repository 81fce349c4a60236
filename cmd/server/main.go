package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-server/internal/config"
	"github.com/park285/chess-server/internal/coordinator"
	"github.com/park285/chess-server/internal/obslog"
	"github.com/park285/chess-server/internal/repository"
	"github.com/park285/chess-server/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer logger.Sync()

	repo, closeRepo, err := openRepository(cfg, logger)
	if err != nil {
		logger.Fatal("repository init failed", zap.Error(err))
	}
	defer closeRepo()

	coord := coordinator.New(cfg, repo, logger)
	srv := server.New(cfg.ListenAddr(), coord, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coord.Run(ctx)
	go runMaintenance(ctx, coord)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", zap.Error(err))
		}
	}

	cancel()
	coord.Stop()
	time.Sleep(200 * time.Millisecond) // let in-flight writer goroutines flush
}

// openRepository wires Postgres when DB_URI is configured, falling back
// to the in-process Memory repository otherwise (useful for local runs
// and tests without a database).
func openRepository(cfg *config.AppConfig, logger *zap.Logger) (repository.Repository, func(), error) {
	if cfg.DatabaseURI == "" {
		logger.Warn("DB_URI not set, using in-memory repository")
		return repository.NewMemory(), func() {}, nil
	}
	pg, err := repository.NewPostgres(cfg.DatabaseURI)
	if err != nil {
		return nil, func() {}, err
	}
	return pg, func() { _ = pg.Close() }, nil
}

// runMaintenance drives the coordinator's periodic idle-session reap and
// expired-challenge sweep on fixed tickers until ctx is cancelled.
func runMaintenance(ctx context.Context, coord *coordinator.Coordinator) {
	idleTicker := time.NewTicker(30 * time.Second)
	defer idleTicker.Stop()
	challengeTicker := time.NewTicker(5 * time.Second)
	defer challengeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idleTicker.C:
			coord.ReapIdleSessions()
		case <-challengeTicker.C:
			coord.SweepExpiredChallenges()
		}
	}
}
