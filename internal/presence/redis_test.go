package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestMirrorPublishAndRetract(t *testing.T) {
	mr := miniredis.RunT(t)

	m, err := NewMirror("redis://" + mr.Addr())
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	e := entry{sessionID: "s1", userID: "u1", username: "alice", rating: 1200}
	require.NoError(t, m.Publish(ctx, e))
	require.True(t, mr.Exists(presenceKeyPrefix+"u1"))

	require.NoError(t, m.Retract(ctx, "u1"))
	require.False(t, mr.Exists(presenceKeyPrefix+"u1"))
}
