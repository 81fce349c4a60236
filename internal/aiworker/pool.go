// Package aiworker off-loads AI opponent move generation to a bounded
// worker pool; requests are submitted async and results return via the
// same work queue the coordinator drains client frames from. Grounded
// structurally on internal/chess/uci.Pool's bounded Acquire/Release
// around a single external engine resource, generalized here to a
// plain goroutine pool so the move provider behind it stays swappable
// between the Stockfish/UCI engine (internal/chess.Engine, when
// STOCKFISH_PATH is configured) and a minimal uniform-random
// legal-move provider, grounded on
// original_source/back-end/handlers/game_handler.py's
// `random.choice(legal_moves)` AI.
package aiworker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/park285/chess-server/internal/chessengine"
)

// Mover produces one AI move for a position. Implementations must be
// safe for concurrent use by multiple pool workers.
type Mover interface {
	Move(ctx context.Context, difficulty string, pos *chessengine.Position) (uci string, err error)
}

// RandomMover is the default Mover, choosing uniformly among legal
// moves exactly as original_source's simple AI does.
type RandomMover struct {
	rand *rand.Rand
}

func NewRandomMover() *RandomMover {
	return &RandomMover{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *RandomMover) Move(ctx context.Context, difficulty string, pos *chessengine.Position) (string, error) {
	legal := pos.LegalMoves()
	if len(legal) == 0 {
		return "", fmt.Errorf("aiworker: no legal moves available")
	}
	return legal[m.rand.Intn(len(legal))], nil
}

// Request is one unit of work: compute a move for gameID's current
// position at the given difficulty.
type Request struct {
	GameID     string
	Difficulty string
	Position   *chessengine.Position
}

// Result carries the computed move (or error) back to the coordinator.
type Result struct {
	GameID string
	Move   string
	Err    error
}

// Pool runs a fixed number of workers consuming Request values from a
// buffered channel of queueDepth slots and posting Result values to a
// single results channel the coordinator drains on its own work queue —
// mirroring uci.Pool's acquire/release-around-a-scarce-resource shape
// without tying this package to a subprocess.
type Pool struct {
	mover   Mover
	jobs    chan Request
	results chan Result
	done    chan struct{}
}

func NewPool(mover Mover, workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueDepth <= 0 {
		queueDepth = 32
	}
	p := &Pool{
		mover:   mover,
		jobs:    make(chan Request, queueDepth),
		results: make(chan Result, queueDepth),
		done:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.done:
			return
		case req, ok := <-p.jobs:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			move, err := p.mover.Move(ctx, req.Difficulty, req.Position)
			cancel()
			p.results <- Result{GameID: req.GameID, Move: move, Err: err}
		}
	}
}

// Submit enqueues req; it returns at once while fewer than queueDepth
// requests are pending and blocks the caller otherwise. The result
// arrives later on Results().
func (p *Pool) Submit(req Request) {
	p.jobs <- req
}

// Results is the channel of computed moves; the coordinator forwards
// each one onto its work queue, where it is handled in order with
// incoming client frames.
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) Close() {
	close(p.done)
}
