package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror republishes presence state to Redis so a second server process
// sharing the same REDIS_URL can see who else is online, mirroring
// internal/pvpchess's use of Redis as the cross-process session store
// rather than an in-memory map. This server's matchmaking and game
// state stay single-process (see DESIGN.md); only the online-users
// view is mirrored, since that is the one piece of state worth sharing
// across a horizontally-scaled read path.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMirror dials Redis at url. A nil *Mirror (when url is empty) is
// never constructed; callers check cfg.RedisURL themselves before
// calling this.
func NewMirror(url string) (*Mirror, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Mirror{client: redis.NewClient(opt), ttl: 30 * time.Second}, nil
}

const presenceKeyPrefix = "chess-server:presence:"

// Publish writes e's entry under its userID key with a TTL, so a crashed
// instance's stale entries expire on their own instead of requiring
// explicit cleanup.
func (m *Mirror) Publish(ctx context.Context, e entry) error {
	payload, err := json.Marshal(struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Rating   int    `json:"rating"`
	}{UserID: e.userID, Username: e.username, Rating: e.rating})
	if err != nil {
		return err
	}
	return m.client.Set(ctx, presenceKeyPrefix+e.userID, payload, m.ttl).Err()
}

// Retract removes userID's mirrored entry immediately on clean
// disconnect, rather than waiting out the TTL.
func (m *Mirror) Retract(ctx context.Context, userID string) error {
	return m.client.Del(ctx, presenceKeyPrefix+userID).Err()
}

func (m *Mirror) Close() error {
	return m.client.Close()
}
