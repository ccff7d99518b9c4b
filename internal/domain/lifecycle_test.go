package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFCIDStatusTransitions(t *testing.T) {
	assert.True(t, FCIDActive.CanTransitionTo(FCIDUsed))
	assert.True(t, FCIDActive.CanTransitionTo(FCIDRefunded))
	assert.True(t, FCIDActive.CanTransitionTo(FCIDExpired))
	assert.False(t, FCIDActive.CanTransitionTo(FCIDActive))

	for _, terminal := range []FCIDStatus{FCIDUsed, FCIDRefunded, FCIDExpired} {
		assert.True(t, terminal.IsTerminal(), "%s should be terminal", terminal)
		assert.False(t, terminal.CanTransitionTo(FCIDActive), "%s must not revive", terminal)
	}
	assert.False(t, FCIDActive.IsTerminal())
}

func TestSettlementStatusTransitions(t *testing.T) {
	assert.True(t, SettlementPending.CanTransitionTo(SettlementTransferred))
	assert.False(t, SettlementPending.CanTransitionTo(SettlementNotified))
	assert.True(t, SettlementTransferred.CanTransitionTo(SettlementNotified))
	assert.False(t, SettlementNotified.CanTransitionTo(SettlementTransferred))
}

func TestSettlementIsOverdue(t *testing.T) {
	s := &Settlement{Status: SettlementPending, SettlementDate: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)}

	assert.False(t, s.IsOverdue(time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, s.IsOverdue(time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC)))

	transferred := &Settlement{Status: SettlementTransferred, SettlementDate: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, transferred.IsOverdue(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)), "only pending settlements are flagged overdue")
}

func TestPaymentMethodMetaAndValidity(t *testing.T) {
	assert.True(t, MethodCash.Valid())
	assert.False(t, MethodCash.RequiresGatewayRoundTrip())
	assert.False(t, MethodCash.IsCrypto())

	assert.True(t, MethodPromptPay.Valid())
	assert.True(t, MethodPromptPay.RequiresGatewayRoundTrip())

	assert.True(t, MethodUSDTTRC20.IsCrypto())
	assert.False(t, MethodUSDTTRC20.RequiresGatewayRoundTrip())

	meta, ok := MethodVisa.Meta()
	assert.True(t, ok)
	assert.Equal(t, CategoryCardBrand, meta.Category)

	assert.False(t, PaymentMethod("NOT_REAL").Valid())
}

func TestErrorKindRoundTrip(t *testing.T) {
	err := NewInsufficientBalanceError("10.00", "25.00")
	assert.Equal(t, KindInsufficientBalance, Kind(err))
	assert.Contains(t, err.Error(), "10.00")

	wrapped := NewInternalError("committing", assert.AnError)
	assert.Equal(t, KindInternal, Kind(wrapped))
	assert.ErrorIs(t, wrapped, assert.AnError)

	assert.Equal(t, KindInternal, Kind(assert.AnError), "a non-domain error defaults to internal")
}
