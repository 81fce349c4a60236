package matchmaker

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrSelfChallenge     = errors.New("matchmaker: cannot challenge yourself")
	ErrAlreadyChallenged = errors.New("matchmaker: challenger already has an outstanding challenge")
	ErrNoSuchChallenge   = errors.New("matchmaker: no matching pending challenge")
)

type challengeKey struct {
	challengerSessionID string
	targetSessionID     string
}

type Challenge struct {
	ChallengerSessionID string
	ChallengerUserID    string
	ChallengerUsername  string
	ChallengerRating    int
	TargetSessionID     string
	TargetUserID        string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// ChallengeTable tracks pending challenges keyed by (challenger, target),
// extending internal/pvp.Manager's byTarget map and sentinel errors from
// auto-accept into a real pending/accept/decline/expiry workflow.
type ChallengeTable struct {
	mu  sync.Mutex
	ttl time.Duration
	// byKey is the primary store; byChallenger enforces "at most one
	// outstanding challenge" per challenger session regardless of target.
	byKey        map[challengeKey]*Challenge
	byChallenger map[string]challengeKey
}

func NewChallengeTable(ttl time.Duration) *ChallengeTable {
	return &ChallengeTable{
		ttl:          ttl,
		byKey:        make(map[challengeKey]*Challenge),
		byChallenger: make(map[string]challengeKey),
	}
}

// Create records a new challenge. Self-challenges and a second
// outstanding challenge from the same sender are rejected.
func (t *ChallengeTable) Create(challengerSessionID, challengerUserID, challengerUsername string, challengerRating int, targetSessionID, targetUserID string) (*Challenge, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if challengerSessionID == targetSessionID {
		return nil, ErrSelfChallenge
	}
	if _, exists := t.byChallenger[challengerSessionID]; exists {
		return nil, ErrAlreadyChallenged
	}

	now := time.Now()
	c := &Challenge{
		ChallengerSessionID: challengerSessionID,
		ChallengerUserID:    challengerUserID,
		ChallengerUsername:  challengerUsername,
		ChallengerRating:    challengerRating,
		TargetSessionID:     targetSessionID,
		TargetUserID:        targetUserID,
		CreatedAt:           now,
		ExpiresAt:           now.Add(t.ttl),
	}
	key := challengeKey{challengerSessionID, targetSessionID}
	t.byKey[key] = c
	t.byChallenger[challengerSessionID] = key
	return c, nil
}

// Accept atomically consumes the challenge naming challengerSessionID ->
// targetSessionID and returns it, or ErrNoSuchChallenge if none is
// pending (including if it already expired).
func (t *ChallengeTable) Accept(challengerSessionID, targetSessionID string) (*Challenge, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := challengeKey{challengerSessionID, targetSessionID}
	c, ok := t.byKey[key]
	if !ok || time.Now().After(c.ExpiresAt) {
		t.removeLocked(key)
		return nil, ErrNoSuchChallenge
	}
	t.removeLocked(key)
	return c, nil
}

// Decline consumes the challenge the same way Accept does but signals
// rejection instead. A repeated decline for the same key is a no-op
// returning ErrNoSuchChallenge.
func (t *ChallengeTable) Decline(challengerSessionID, targetSessionID string) (*Challenge, error) {
	return t.Accept(challengerSessionID, targetSessionID)
}

func (t *ChallengeTable) removeLocked(key challengeKey) {
	delete(t.byKey, key)
	if t.byChallenger[key.challengerSessionID] == key {
		delete(t.byChallenger, key.challengerSessionID)
	}
}

// RemoveSession drops every challenge involving sessionID, either as
// challenger or target, used on disconnect.
func (t *ChallengeTable) RemoveSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.byKey {
		if key.challengerSessionID == sessionID || key.targetSessionID == sessionID {
			t.removeLocked(key)
		}
	}
}

// Expired returns (and removes) every challenge whose TTL has elapsed,
// for the coordinator's periodic sweep to turn into decline-equivalent
// notifications.
func (t *ChallengeTable) Expired(now time.Time) []*Challenge {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Challenge
	for key, c := range t.byKey {
		if now.After(c.ExpiresAt) {
			out = append(out, c)
			t.removeLocked(key)
		}
	}
	return out
}
