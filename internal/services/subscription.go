package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"photofix/internal/metrics"
	"photofix/internal/models"
	"photofix/internal/payments"
	"photofix/internal/storage"
)

// Plans returns the fixed price table.
func (s *Service) Plans() []models.Plan {
	return []models.Plan{
		{
			PlanType:     models.PlanMonthly,
			PeriodDays:   s.cfg.MonthlyPeriodDays,
			PriceCents:   s.cfg.MonthlyPriceCents,
			DailyCredits: s.cfg.ProDailyCredits,
		},
		{
			PlanType:     models.PlanYearly,
			PeriodDays:   s.cfg.YearlyPeriodDays,
			PriceCents:   s.cfg.YearlyPriceCents,
			DailyCredits: s.cfg.ProDailyCredits,
		},
	}
}

func (s *Service) planFor(planType string) (models.Plan, error) {
	for _, plan := range s.Plans() {
		if plan.PlanType == planType {
			return plan, nil
		}
	}
	return models.Plan{}, fmt.Errorf("%w: unknown plan %q", ErrInvalidRequest, planType)
}

// PurchaseSubscription charges the payment method first; nothing is
// created on a decline. On success any prior active subscription is
// cancelled so at most one is ever active, then the new one is activated
// and the account flips to Pro with a full credit refill.
func (s *Service) PurchaseSubscription(ctx context.Context, accountID, planType, paymentMethod string) (models.Subscription, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return models.Subscription{}, err
	}
	plan, err := s.planFor(planType)
	if err != nil {
		return models.Subscription{}, err
	}
	if paymentMethod == "" {
		return models.Subscription{}, fmt.Errorf("%w: payment method required", ErrInvalidRequest)
	}

	description := fmt.Sprintf("PhotoFix Pro %s plan", plan.PlanType)
	paymentID, err := s.payments.Charge(ctx, paymentMethod, plan.PriceCents, s.cfg.Currency, description)
	if err != nil {
		if errors.Is(err, payments.ErrDeclined) {
			return models.Subscription{}, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
		}
		return models.Subscription{}, err
	}

	now := s.now()
	if _, err := s.store.CancelActive(ctx, accountID, now); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.Subscription{}, err
	}

	sub := models.Subscription{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		PlanType:      plan.PlanType,
		Status:        models.SubscriptionActive,
		StartDate:     now,
		EndDate:       now.Add(time.Duration(plan.PeriodDays) * 24 * time.Hour),
		PaymentID:     paymentID,
		PaymentMethod: paymentMethod,
		AmountCents:   plan.PriceCents,
		Currency:      s.cfg.Currency,
		AutoRenew:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return models.Subscription{}, err
	}
	if err := s.store.ActivatePro(ctx, accountID, sub.EndDate, s.cfg.ProDailyCredits, now); err != nil {
		return models.Subscription{}, mapStorageErr(err)
	}

	metrics.SubscriptionsPurchased.WithLabelValues(plan.PlanType).Inc()

	if s.email != nil && s.email.IsConfigured() {
		if err := s.email.SendReceipt(account.Email, plan.PlanType, plan.PriceCents, s.cfg.Currency); err != nil {
			s.log.Warn("receipt email failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	return sub, nil
}

// CancelSubscription marks the active subscription cancelled and stops
// renewal. Current-period access is not revoked: the account stays Pro
// until the stored tier expiry passes.
func (s *Service) CancelSubscription(ctx context.Context, accountID string) (models.Subscription, error) {
	sub, err := s.store.CancelActive(ctx, accountID, s.now())
	return sub, mapStorageErr(err)
}

// SubscriptionStatus is what the client renders on the paywall screen.
type SubscriptionStatus struct {
	SubscriptionID string     `json:"subscription_id,omitempty"`
	PlanType       string     `json:"plan_type"`
	Status         string     `json:"status"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	AutoRenew      bool       `json:"auto_renew"`
	IsActive       bool       `json:"is_active"`
}

// GetSubscriptionStatus returns the latest active subscription, or a
// synthesized free-tier status when there is none.
func (s *Service) GetSubscriptionStatus(ctx context.Context, accountID string) (SubscriptionStatus, error) {
	now := s.now()
	sub, err := s.store.GetActiveSubscription(ctx, accountID, now)
	if errors.Is(err, storage.ErrNotFound) {
		return SubscriptionStatus{PlanType: "free", Status: models.SubscriptionActive}, nil
	}
	if err != nil {
		return SubscriptionStatus{}, err
	}
	return SubscriptionStatus{
		SubscriptionID: sub.ID,
		PlanType:       sub.PlanType,
		Status:         sub.Status,
		StartDate:      &sub.StartDate,
		EndDate:        &sub.EndDate,
		CancelledAt:    sub.CancelledAt,
		AutoRenew:      sub.AutoRenew,
		IsActive:       sub.IsActive(now),
	}, nil
}
