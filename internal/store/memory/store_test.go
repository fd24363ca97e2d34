package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestTradeStoreAppendAndList(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, domain.TradeRecord{
			ContractID: "c1",
			Side:       domain.SideYes,
			Quantity:   100,
			Price:      0.40,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Append(ctx, domain.TradeRecord{
		ContractID: "c2",
		Side:       domain.SideNo,
		Timestamp:  base,
	}))

	trades, err := store.ListByContract(ctx, "c1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, trades, 5)
	// Newest first, IDs assigned in append order.
	assert.Equal(t, int64(5), trades[0].ID)
	assert.True(t, trades[0].Timestamp.After(trades[4].Timestamp))

	limited, err := store.ListByContract(ctx, "c1", domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(4), limited[0].ID)

	last, err := store.LastTimestamp(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(4*time.Second), last)

	none, err := store.LastTimestamp(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestTradeStoreTimeFilter(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(ctx, domain.TradeRecord{
			ContractID: "c1",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	since := base.Add(90 * time.Second)
	trades, err := store.ListByContract(ctx, "c1", domain.ListOpts{Since: &since})
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestDecisionStoreAppendAndList(t *testing.T) {
	store := NewDecisionStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, domain.DecisionRecord{
		ContractID: "c1",
		Kind:       domain.DecisionRiskDenied,
		Reason:     string(domain.DenyNoArbSpace),
		Timestamp:  time.Now(),
	}))
	require.NoError(t, store.Append(ctx, domain.DecisionRecord{
		ContractID: "c1",
		Kind:       domain.DecisionProfitLock,
		Timestamp:  time.Now(),
	}))

	recs, err := store.ListByContract(ctx, "c1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.DecisionProfitLock, recs[0].Kind)
	assert.Equal(t, int64(1), recs[1].ID)
}
