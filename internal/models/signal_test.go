package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusSent))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusPending, StatusExpired))
	assert.True(t, CanTransition(StatusSent, StatusExecuted))
	assert.True(t, CanTransition(StatusSent, StatusFailed))
	assert.True(t, CanTransition(StatusSent, StatusExpired))

	// No skipping the claim step, no cancelling after claim.
	assert.False(t, CanTransition(StatusPending, StatusExecuted))
	assert.False(t, CanTransition(StatusSent, StatusCancelled))
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, terminal := range []string{StatusExecuted, StatusFailed, StatusExpired, StatusCancelled} {
		assert.True(t, IsTerminalStatus(terminal), terminal)
		for _, to := range []string{StatusPending, StatusSent, StatusExecuted, StatusFailed, StatusExpired, StatusCancelled} {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
	assert.False(t, IsTerminalStatus(StatusPending))
	assert.False(t, IsTerminalStatus(StatusSent))
}

func TestActionClassification(t *testing.T) {
	assert.True(t, IsOpeningAction(ActionBuy))
	assert.True(t, IsOpeningAction(ActionSellStop))
	assert.False(t, IsOpeningAction(ActionClose))
	assert.False(t, IsOpeningAction(ActionModify))

	assert.True(t, IsPendingOrderAction(ActionBuyLimit))
	assert.False(t, IsPendingOrderAction(ActionBuy))

	assert.True(t, IsBuySide(ActionBuyStop))
	assert.False(t, IsBuySide(ActionSell))
	assert.False(t, IsBuySide(ActionClose))
}

func TestAccountWhitelist(t *testing.T) {
	account := &Account{}
	assert.True(t, account.AllowsSymbol("EURUSD"), "empty whitelist allows everything")

	account.SymbolWhitelist = "EURUSD, gbpusd ,XAUUSD"
	assert.True(t, account.AllowsSymbol("eurusd"))
	assert.True(t, account.AllowsSymbol("GBPUSD"))
	assert.False(t, account.AllowsSymbol("USDJPY"))
}
