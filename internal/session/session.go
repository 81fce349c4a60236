// Package session implements the per-connection Session and the registry
// that owns all live sessions, grounded on the accept-loop/client-list
// split in dcrodman-archon's internal/server package, adapted from its
// game-protocol connection state to this protocol's auth/game state
// machine.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/park285/chess-server/internal/wire"
)

type State int

const (
	Connected State = iota
	Authenticated
	InGame
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	case InGame:
		return "in_game"
	default:
		return "unknown"
	}
}

// Session is the server-side context for one live connection. All fields
// are mutated only by the coordinator goroutine; outbound sends go
// through the bounded Out channel, which is owned by the connection's
// writer goroutine.
type Session struct {
	ID   string
	Conn net.Conn

	mu           sync.Mutex
	state        State
	userID       string
	username     string
	rating       int
	gameID       string
	lastActivity time.Time

	Out      chan []byte
	closeOut sync.Once
}

const outboundQueueCapacity = 64

func New(id string, conn net.Conn) *Session {
	return &Session{
		ID:           id,
		Conn:         conn,
		state:        Connected,
		lastActivity: time.Now(),
		Out:          make(chan []byte, outboundQueueCapacity),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) Authenticate(userID, username string, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.username = username
	s.rating = rating
	s.state = Authenticated
}

func (s *Session) Identity() (userID, username string, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.username, s.rating
}

func (s *Session) SetRating(rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rating = rating
}

func (s *Session) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

func (s *Session) SetGameID(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameID = gameID
	if gameID == "" {
		s.state = Authenticated
	} else {
		s.state = InGame
	}
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Send enqueues an already-encoded frame for the writer goroutine. A
// full queue means a slow consumer; the frame is dropped rather than
// blocking the coordinator.
func (s *Session) Send(frame []byte) (dropped bool) {
	select {
	case s.Out <- frame:
		return false
	default:
		return true
	}
}

// SendMessage is a convenience for handlers: marshal and enqueue in one
// call, returning the encode error to the caller (it can only happen
// for a malformed outbound struct, never from client input).
func (s *Session) SendMessage(id wire.MessageID, payload any) (dropped bool, err error) {
	frame, err := wire.EncodeJSON(id, payload)
	if err != nil {
		return false, err
	}
	return s.Send(frame), nil
}

// Close closes Out exactly once. Must only be called from the
// coordinator goroutine, after the coordinator has finished sending
// anything tied to this session's disconnect — a Send afterward would
// otherwise panic the sole coordinator goroutine, since a send on a
// closed channel ignores select/default.
func (s *Session) Close() {
	s.closeOut.Do(func() { close(s.Out) })
}
