package matchmaker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueJoinRejectsDuplicateSession(t *testing.T) {
	q := NewQueue(0)
	require.NoError(t, q.Join("s1", "u1", 1200))
	require.ErrorIs(t, q.Join("s1", "u1", 1200), ErrAlreadyQueued)
}

func TestQueueTryPairNeedsTwo(t *testing.T) {
	q := NewQueue(0)
	_, _, paired := q.TryPair()
	require.False(t, paired)

	require.NoError(t, q.Join("s1", "u1", 1200))
	_, _, paired = q.TryPair()
	require.False(t, paired)
}

func TestQueueTryPairFIFOWhenUnbounded(t *testing.T) {
	q := NewQueue(0)
	require.NoError(t, q.Join("s1", "u1", 1200))
	require.NoError(t, q.Join("s2", "u2", 2000))

	a, b, paired := q.TryPair()
	require.True(t, paired)
	require.Equal(t, "s1", a.SessionID)
	require.Equal(t, "s2", b.SessionID)

	_, _, paired = q.TryPair()
	require.False(t, paired, "queue should be empty after pairing")
}

func TestQueueTryPairRespectsRatingWindow(t *testing.T) {
	q := NewQueue(50)
	require.NoError(t, q.Join("s1", "u1", 1200))
	require.NoError(t, q.Join("s2", "u2", 1800)) // outside window
	require.NoError(t, q.Join("s3", "u3", 1230)) // within window of s1

	a, b, paired := q.TryPair()
	require.True(t, paired)
	require.Equal(t, "s1", a.SessionID)
	require.Equal(t, "s3", b.SessionID)

	// s2 remains queued, unpaired.
	_, _, paired = q.TryPair()
	require.False(t, paired)
}

func TestQueueLeaveRemovesSession(t *testing.T) {
	q := NewQueue(0)
	require.NoError(t, q.Join("s1", "u1", 1200))
	q.Leave("s1")
	require.NoError(t, q.Join("s1", "u1", 1200), "session should be re-joinable after Leave")
}
