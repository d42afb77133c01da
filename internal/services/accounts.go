package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"photofix/internal/models"
)

func (s *Service) Register(ctx context.Context, email, name, password string) (models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || name == "" || len(password) < 8 {
		return models.Account{}, ErrInvalidRequest
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, err
	}
	now := s.now()
	account := models.Account{
		ID:               uuid.NewString(),
		Email:            email,
		Name:             name,
		PasswordHash:     string(passwordHash),
		Tier:             models.TierFree,
		CreditsRemaining: s.cfg.FreeDailyCredits,
		LastCreditReset:  now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return models.Account{}, mapStorageErr(err)
	}
	return account, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (models.Account, error) {
	if email == "" || password == "" {
		return models.Account{}, ErrInvalidCredentials
	}
	account, err := s.store.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (models.Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	return account, mapStorageErr(err)
}

// Entitlement is the account's current permission state as the client
// should display it.
type Entitlement struct {
	Tier             string     `json:"tier"`
	IsPro            bool       `json:"is_pro"`
	TierExpiry       *time.Time `json:"tier_expiry,omitempty"`
	CreditsRemaining int        `json:"credits_remaining"`
	DailyQuota       int        `json:"daily_quota"`
	NextCreditReset  time.Time  `json:"next_credit_reset"`
}

func (s *Service) GetEntitlement(ctx context.Context, accountID string) (Entitlement, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return Entitlement{}, err
	}
	account, err = s.refreshCredits(ctx, account)
	if err != nil {
		return Entitlement{}, err
	}
	now := s.now()
	return Entitlement{
		Tier:             account.EffectiveTier(now),
		IsPro:            account.IsPro(now),
		TierExpiry:       account.TierExpiry,
		CreditsRemaining: account.CreditsRemaining,
		DailyQuota:       s.dailyQuota(account, now),
		NextCreditReset:  account.LastCreditReset.Add(creditResetWindow),
	}, nil
}
