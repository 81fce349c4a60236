package matchmaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChallengeCreateRejectsSelfChallenge(t *testing.T) {
	ct := NewChallengeTable(time.Minute)
	_, err := ct.Create("s1", "u1", "alice", 1200, "s1", "u1")
	require.ErrorIs(t, err, ErrSelfChallenge)
}

func TestChallengeCreateRejectsSecondOutstandingFromSameChallenger(t *testing.T) {
	ct := NewChallengeTable(time.Minute)
	_, err := ct.Create("s1", "u1", "alice", 1200, "s2", "u2")
	require.NoError(t, err)

	_, err = ct.Create("s1", "u1", "alice", 1200, "s3", "u3")
	require.ErrorIs(t, err, ErrAlreadyChallenged)
}

func TestChallengeAcceptConsumesChallenge(t *testing.T) {
	ct := NewChallengeTable(time.Minute)
	_, err := ct.Create("s1", "u1", "alice", 1200, "s2", "u2")
	require.NoError(t, err)

	c, err := ct.Accept("s1", "s2")
	require.NoError(t, err)
	require.Equal(t, "u1", c.ChallengerUserID)

	_, err = ct.Accept("s1", "s2")
	require.ErrorIs(t, err, ErrNoSuchChallenge, "accept must be idempotent-once, not repeatable")
}

func TestChallengeDeclineConsumesChallenge(t *testing.T) {
	ct := NewChallengeTable(time.Minute)
	_, err := ct.Create("s1", "u1", "alice", 1200, "s2", "u2")
	require.NoError(t, err)

	_, err = ct.Decline("s1", "s2")
	require.NoError(t, err)

	_, err = ct.Decline("s1", "s2")
	require.ErrorIs(t, err, ErrNoSuchChallenge)
}

func TestChallengeExpiredSweepsOnlyPastTTL(t *testing.T) {
	ct := NewChallengeTable(time.Minute)
	_, err := ct.Create("s1", "u1", "alice", 1200, "s2", "u2")
	require.NoError(t, err)

	require.Empty(t, ct.Expired(time.Now()))

	expired := ct.Expired(time.Now().Add(2 * time.Minute))
	require.Len(t, expired, 1)
	require.Equal(t, "s1", expired[0].ChallengerSessionID)

	_, err = ct.Accept("s1", "s2")
	require.ErrorIs(t, err, ErrNoSuchChallenge, "expired challenge must already be gone")
}

func TestChallengeRemoveSessionDropsBothRoles(t *testing.T) {
	ct := NewChallengeTable(time.Minute)
	_, err := ct.Create("s1", "u1", "alice", 1200, "s2", "u2")
	require.NoError(t, err)
	_, err = ct.Create("s3", "u3", "carol", 1300, "s1", "u1")
	require.NoError(t, err)

	ct.RemoveSession("s1")

	_, err = ct.Accept("s1", "s2")
	require.ErrorIs(t, err, ErrNoSuchChallenge)
	_, err = ct.Accept("s3", "s1")
	require.ErrorIs(t, err, ErrNoSuchChallenge)
}
