package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func simConfig() config.SimulatorConfig {
	cfg := config.Defaults().Market.Simulator
	cfg.Seed = 42
	return cfg
}

func TestSimulatorQuotesStayBounded(t *testing.T) {
	sim := NewSimulator(simConfig())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		q, err := sim.PairQuote(ctx, "c1")
		require.NoError(t, err)

		for _, side := range []domain.SideQuote{q.Yes, q.No} {
			assert.Greater(t, side.BestBid, 0.0)
			assert.Less(t, side.BestAsk, 1.0)
			assert.LessOrEqual(t, side.BestBid, side.BestAsk)
			assert.True(t, side.HasVolume())
		}
	}
}

func TestSimulatorDeterministicWithSeed(t *testing.T) {
	a := NewSimulator(simConfig())
	b := NewSimulator(simConfig())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		qa, err := a.PairQuote(ctx, "c1")
		require.NoError(t, err)
		qb, err := b.PairQuote(ctx, "c1")
		require.NoError(t, err)
		assert.InDelta(t, qa.Yes.Mid(), qb.Yes.Mid(), 1e-12)
	}
}

func TestSimulatorSettlementFixedPerContract(t *testing.T) {
	sim := NewSimulator(simConfig())
	ctx := context.Background()

	q1, err := sim.PairQuote(ctx, "c1")
	require.NoError(t, err)
	q2, err := sim.PairQuote(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, q1.Settlement, q2.Settlement)
	assert.True(t, q1.Settlement.After(time.Now()))
}

func TestSimulatorKillSide(t *testing.T) {
	sim := NewSimulator(simConfig())
	ctx := context.Background()

	_, err := sim.PairQuote(ctx, "c1")
	require.NoError(t, err)

	sim.KillSide("c1", domain.SideNo)
	q, err := sim.PairQuote(ctx, "c1")
	require.NoError(t, err)

	assert.False(t, q.No.HasVolume())
	assert.Less(t, q.No.Mid(), 0.05)
	assert.True(t, q.Yes.HasVolume())
}

func TestSimulatorSetSettlement(t *testing.T) {
	sim := NewSimulator(simConfig())
	ctx := context.Background()

	at := time.Now().Add(30 * time.Second)
	sim.SetSettlement("c1", at)

	q, err := sim.PairQuote(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, at, q.Settlement)
}
