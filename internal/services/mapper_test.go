package services

import (
	"context"
	"testing"

	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePassthroughWithoutMapping(t *testing.T) {
	mappings := NewMappingService(setupTestDB(t))

	symbol, multiplier, err := mappings.Resolve(context.Background(), "acct-1", "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", symbol)
	assert.True(t, multiplier.Equal(decimal.NewFromInt(1)))
}

func TestResolveAppliesMapping(t *testing.T) {
	db := setupTestDB(t)
	mappings := NewMappingService(db)
	ctx := context.Background()

	require.NoError(t, mappings.CreateMapping(ctx, &models.SymbolMapping{
		AccountID:         "acct-1",
		TradingViewSymbol: "XAUUSD",
		MTSymbol:          "GOLD.m",
		LotMultiplier:     decimal.RequireFromString("0.5"),
	}))

	symbol, multiplier, err := mappings.Resolve(ctx, "acct-1", "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, "GOLD.m", symbol)
	assert.True(t, multiplier.Equal(decimal.RequireFromString("0.5")))

	// Mappings are scoped per account.
	symbol, multiplier, err = mappings.Resolve(ctx, "acct-2", "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", symbol)
	assert.True(t, multiplier.Equal(decimal.NewFromInt(1)))
}

func TestCreateMappingDefaultsMultiplier(t *testing.T) {
	mappings := NewMappingService(setupTestDB(t))
	ctx := context.Background()

	mapping := &models.SymbolMapping{
		AccountID:         "acct-1",
		TradingViewSymbol: "US30",
		MTSymbol:          "DJ30",
	}
	require.NoError(t, mappings.CreateMapping(ctx, mapping))
	assert.True(t, mapping.LotMultiplier.Equal(decimal.NewFromInt(1)))
}

func TestCreateMappingRejectsDuplicates(t *testing.T) {
	mappings := NewMappingService(setupTestDB(t))
	ctx := context.Background()

	first := &models.SymbolMapping{AccountID: "acct-1", TradingViewSymbol: "US30", MTSymbol: "DJ30"}
	require.NoError(t, mappings.CreateMapping(ctx, first))

	dup := &models.SymbolMapping{AccountID: "acct-1", TradingViewSymbol: "US30", MTSymbol: "US30.cash"}
	err := mappings.CreateMapping(ctx, dup)
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestUpdateAndDeleteMapping(t *testing.T) {
	mappings := NewMappingService(setupTestDB(t))
	ctx := context.Background()

	mapping := &models.SymbolMapping{AccountID: "acct-1", TradingViewSymbol: "BTCUSD", MTSymbol: "BTCUSD"}
	require.NoError(t, mappings.CreateMapping(ctx, mapping))

	err := mappings.UpdateMapping(ctx, "acct-1", mapping.ID, "BTCUSD.x", decimal.RequireFromString("2"))
	require.NoError(t, err)

	symbol, multiplier, err := mappings.Resolve(ctx, "acct-1", "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD.x", symbol)
	assert.True(t, multiplier.Equal(decimal.RequireFromString("2")))

	// Updating through another account id must not match.
	err = mappings.UpdateMapping(ctx, "acct-2", mapping.ID, "BTCUSD", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, relay.ErrNotFound)

	require.NoError(t, mappings.DeleteMapping(ctx, "acct-1", mapping.ID))
	err = mappings.DeleteMapping(ctx, "acct-1", mapping.ID)
	assert.ErrorIs(t, err, relay.ErrNotFound)
}
