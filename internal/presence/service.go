// Package presence maintains the online-users set and its debounced
// broadcast. None of the corpus repos have a direct analog for a
// coalescing broadcast timer; this reaches for the standard library's
// time.Timer, the idiomatic Go answer when no pack library offers a
// debounce primitive (see DESIGN.md).
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/park285/chess-server/internal/session"
	"github.com/park285/chess-server/internal/wire"
)

const debounceWindow = 100 * time.Millisecond

type entry struct {
	sessionID string
	userID    string
	username  string
	rating    int
}

// Service must only be driven from the single coordinator goroutine;
// the flush callback is invoked by a timer callback that posts back onto the
// coordinator's work queue rather than mutating state directly.
type Service struct {
	mu      sync.Mutex
	online  map[string]entry // userID -> entry
	timer   *time.Timer
	pending bool
	flush   func()
	mirror  *Mirror
}

// NewService wires flush as the callback to invoke (via the
// coordinator's work queue) once the debounce window elapses.
func NewService(flush func()) *Service {
	return &Service{online: make(map[string]entry), flush: flush}
}

// SetMirror attaches an optional Redis mirror; nil disables mirroring
// (the default when REDIS_URL is unset).
func (p *Service) SetMirror(m *Mirror) {
	p.mirror = m
}

func (p *Service) Insert(sessionID, userID, username string, rating int) {
	e := entry{sessionID: sessionID, userID: userID, username: username, rating: rating}
	p.mu.Lock()
	p.online[userID] = e
	mirror := p.mirror
	p.mu.Unlock()
	if mirror != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = mirror.Publish(ctx, e)
		}()
	}
	p.scheduleFlush()
}

func (p *Service) Remove(userID string) {
	p.mu.Lock()
	delete(p.online, userID)
	mirror := p.mirror
	p.mu.Unlock()
	if mirror != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = mirror.Retract(ctx, userID)
		}()
	}
	p.scheduleFlush()
}

func (p *Service) scheduleFlush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending {
		return
	}
	p.pending = true
	p.timer = time.AfterFunc(debounceWindow, func() {
		p.mu.Lock()
		p.pending = false
		p.mu.Unlock()
		p.flush()
	})
}

// Snapshot returns every online user, excluding excludeUserID — a
// recipient never sees themselves in their own list.
func (p *Service) Snapshot(excludeUserID string) []wire.UserRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.UserRef, 0, len(p.online))
	for _, e := range p.online {
		if e.userID == excludeUserID {
			continue
		}
		out = append(out, wire.UserRef{UserID: e.userID, Username: e.username, Rating: e.rating})
	}
	return out
}

// BroadcastTo sends the current online-users list to every session in
// registry whose user id is authenticated, excluding each recipient's
// own entry.
func (p *Service) BroadcastTo(registry *session.Registry) {
	registry.Broadcast(
		func(s *session.Session) bool { return s.State() != session.Connected },
		func(s *session.Session) {
			userID, _, _ := s.Identity()
			users := p.Snapshot(userID)
			_, _ = s.SendMessage(wire.OnlineUsersList, wire.OnlineUsersListPayload{Users: users})
		},
	)
}
