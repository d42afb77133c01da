package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photofix/internal/models"
)

func TestEntitlementFreeDefaults(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	account := registerAccount(t, svc, "free@example.com")

	ent, err := svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TierFree, ent.Tier)
	assert.False(t, ent.IsPro)
	assert.Equal(t, 3, ent.CreditsRemaining)
	assert.Equal(t, 3, ent.DailyQuota)
	assert.Equal(t, clock.Now().Add(24*time.Hour), ent.NextCreditReset)
}

func TestCreditResetAfterWindow(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	account := registerAccount(t, svc, "reset@example.com")

	for i := 0; i < 3; i++ {
		_, err := svc.consumeCredits(context.Background(), account.ID, 1)
		require.NoError(t, err)
	}
	ent, err := svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ent.CreditsRemaining)

	clock.Advance(24 * time.Hour)

	ent, err = svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ent.CreditsRemaining)
	assert.Equal(t, clock.Now().Add(24*time.Hour), ent.NextCreditReset)
}

func TestCreditResetIsNoopWithinWindow(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	account := registerAccount(t, svc, "noop@example.com")

	_, err := svc.consumeCredits(context.Background(), account.ID, 2)
	require.NoError(t, err)

	clock.Advance(12 * time.Hour)

	// Repeated reads inside the window must not refill anything.
	for i := 0; i < 3; i++ {
		ent, err := svc.GetEntitlement(context.Background(), account.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, ent.CreditsRemaining)
	}
}

func TestProQuotaAfterReset(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	account := registerProAccount(t, svc, "pro@example.com")

	ent, err := svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, ent.IsPro)
	assert.Equal(t, 100, ent.CreditsRemaining)
	assert.Equal(t, 100, ent.DailyQuota)

	_, err = svc.consumeCredits(context.Background(), account.ID, 40)
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)

	ent, err = svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, ent.CreditsRemaining)
}

func TestExpiredProDropsToFreeQuota(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	account := registerProAccount(t, svc, "expired@example.com")

	clock.Advance(31 * 24 * time.Hour)

	ent, err := svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, ent.IsPro)
	assert.Equal(t, models.TierFree, ent.Tier)
	assert.Equal(t, 3, ent.DailyQuota)
	assert.Equal(t, 3, ent.CreditsRemaining)
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "concurrent@example.com")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.consumeCredits(context.Background(), account.ID, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	ent, err := svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ent.CreditsRemaining)
}

func TestInsufficientCreditsErrorDetail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "detail@example.com")

	_, err := svc.consumeCredits(context.Background(), account.ID, 3)
	require.NoError(t, err)

	_, err = svc.consumeCredits(context.Background(), account.ID, 1)
	var credits *InsufficientCreditsError
	require.ErrorAs(t, err, &credits)
	assert.Equal(t, 1, credits.Required)
	assert.Equal(t, 0, credits.Remaining)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}
