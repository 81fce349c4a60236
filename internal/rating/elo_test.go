package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdatePairEqualRatingsDecisive(t *testing.T) {
	whiteDelta, blackDelta := UpdatePair(1200, 1200, Win)
	assert.Equal(t, 16, whiteDelta)
	assert.Equal(t, -16, blackDelta)
	assert.Equal(t, 0, whiteDelta+blackDelta)
}

func TestUpdatePairEqualRatingsDraw(t *testing.T) {
	whiteDelta, blackDelta := UpdatePair(1200, 1200, Draw)
	assert.Equal(t, 0, whiteDelta)
	assert.Equal(t, 0, blackDelta)
}

func TestUpdatePairFavoriteWins(t *testing.T) {
	// Higher-rated white beating a much weaker black moves ratings very
	// little: white gains a little, black loses a little.
	whiteDelta, blackDelta := UpdatePair(1800, 1200, Win)
	assert.Less(t, whiteDelta, 16)
	assert.Greater(t, whiteDelta, 0)
	assert.Less(t, blackDelta, 0)
}

func TestDeltaNeverBelowFloor(t *testing.T) {
	delta := Delta(100, 2000, Loss)
	assert.Equal(t, 0, delta, "rating already at the floor cannot drop further")
}
