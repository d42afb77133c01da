package services

import (
	"context"
	"errors"
	"time"

	"photofix/internal/models"
	"photofix/internal/storage"
)

// creditResetWindow is how long a daily quota lasts before it refills.
const creditResetWindow = 24 * time.Hour

func (s *Service) dailyQuota(account models.Account, now time.Time) int {
	if account.IsPro(now) {
		return s.cfg.ProDailyCredits
	}
	return s.cfg.FreeDailyCredits
}

// refreshCredits applies the daily credit reset if the window has elapsed
// and returns the up-to-date account. Safe to call on every request: the
// store's conditional write makes repeated calls within the window no-ops.
func (s *Service) refreshCredits(ctx context.Context, account models.Account) (models.Account, error) {
	now := s.now()
	mutated, err := s.store.ResetCredits(ctx, account.ID, s.dailyQuota(account, now), now, creditResetWindow)
	if err != nil {
		return models.Account{}, mapStorageErr(err)
	}
	if !mutated {
		return account, nil
	}
	refreshed, err := s.store.GetAccount(ctx, account.ID)
	return refreshed, mapStorageErr(err)
}

// requireTier rejects Pro-gated operations for accounts without an
// unexpired Pro subscription.
func (s *Service) requireTier(account models.Account, operation string, now time.Time) error {
	if models.Operations[operation] && !account.IsPro(now) {
		return ErrTierRequired
	}
	return nil
}

func requireCredits(account models.Account, amount int) error {
	if account.CreditsRemaining < amount {
		return &InsufficientCreditsError{Required: amount, Remaining: account.CreditsRemaining}
	}
	return nil
}

// consumeCredits debits the durable balance. The store's decrement is a
// single conditional write, so two concurrent debits can never drive the
// balance negative regardless of what the earlier gate check saw.
func (s *Service) consumeCredits(ctx context.Context, accountID string, amount int) (int, error) {
	remaining, err := s.store.ConsumeCredits(ctx, accountID, amount)
	if errors.Is(err, storage.ErrInsufficientCredits) {
		return remaining, &InsufficientCreditsError{Required: amount, Remaining: remaining}
	}
	return remaining, mapStorageErr(err)
}
