package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestUnhedgedEscalatesAfterLimit(t *testing.T) {
	tr := NewUnhedgedTracker(120 * time.Second)
	now := time.Now()

	var pair domain.PairPosition
	require.NoError(t, pair.ApplyFill(domain.SideYes, 100, 0.40))

	// First observation starts the clock.
	assert.False(t, tr.Observe(pair, now))
	assert.False(t, tr.Observe(pair, now.Add(60*time.Second)))
	assert.True(t, tr.Observe(pair, now.Add(121*time.Second)))
}

func TestUnhedgedResetsWhenBalanced(t *testing.T) {
	tr := NewUnhedgedTracker(120 * time.Second)
	now := time.Now()

	var pair domain.PairPosition
	require.NoError(t, pair.ApplyFill(domain.SideYes, 100, 0.40))
	assert.False(t, tr.Observe(pair, now))

	// Hedged: the clock resets.
	require.NoError(t, pair.ApplyFill(domain.SideNo, 100, 0.45))
	assert.False(t, tr.Observe(pair, now.Add(200*time.Second)))
	assert.Zero(t, tr.Duration(now.Add(200*time.Second)))
}

func TestUnhedgedResetsWhenSideFlips(t *testing.T) {
	tr := NewUnhedgedTracker(120 * time.Second)
	now := time.Now()

	var pair domain.PairPosition
	require.NoError(t, pair.ApplyFill(domain.SideYes, 100, 0.40))
	assert.False(t, tr.Observe(pair, now))

	// NO overtakes YES: a new unhedged episode begins.
	require.NoError(t, pair.ApplyFill(domain.SideNo, 300, 0.40))
	assert.False(t, tr.Observe(pair, now.Add(300*time.Second)))
	assert.True(t, tr.Observe(pair, now.Add(500*time.Second)))
}
