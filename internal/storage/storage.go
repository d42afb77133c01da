// Package storage defines the durable stores behind the bookkeeping core.
// Postgres backs the real service; the memory implementation backs tests.
// Every state transition and the credit decrement are conditional writes so
// that correctness does not depend on application-level locking.
package storage

import (
	"context"
	"errors"
	"time"

	"photofix/internal/models"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// EditUpdate carries the fields set alongside an edit status transition.
// ProcessingTimeMs is a pointer so that a zero duration is still recordable.
type EditUpdate struct {
	ResultRef        string
	Outcome          string
	ProcessingTimeMs *int64
	ErrorMessage     string
}

type AccountStore interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)

	// ResetCredits sets the balance to quota and stamps the reset time, but
	// only if the previous reset is at least window in the past. Reports
	// whether the account was mutated.
	ResetCredits(ctx context.Context, id string, quota int, now time.Time, window time.Duration) (bool, error)

	// ConsumeCredits decrements the balance by amount as a single conditional
	// write that fails with ErrInsufficientCredits rather than going negative.
	// Returns the balance after the decrement.
	ConsumeCredits(ctx context.Context, id string, amount int) (int, error)

	// ActivatePro flips the account to Pro until expiry and refills credits.
	ActivatePro(ctx context.Context, id string, expiry time.Time, credits int, now time.Time) error
}

type EditStore interface {
	CreateEdit(ctx context.Context, edit models.EditRecord) error
	GetEdit(ctx context.Context, id string) (models.EditRecord, error)
	ListEdits(ctx context.Context, accountID string, limit, offset int) ([]models.EditRecord, error)

	// TransitionEdit moves the record from one status to another as a
	// compare-and-swap. ErrInvalidTransition means the record exists but is
	// not in the expected status.
	TransitionEdit(ctx context.Context, id, from, to string, update EditUpdate) (models.EditRecord, error)

	DeleteEdit(ctx context.Context, id, accountID string) error
}

type HistoryStore interface {
	AppendHistory(ctx context.Context, entry models.HistoryEntry) error
	ListHistory(ctx context.Context, accountID string, limit, offset int) ([]models.HistoryEntry, error)
	DeleteHistory(ctx context.Context, id, accountID string) error
}

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) error
	GetActiveSubscription(ctx context.Context, accountID string, now time.Time) (models.Subscription, error)

	// CancelActive marks the current active subscription cancelled without
	// revoking current-period access. ErrNotFound if none is active.
	CancelActive(ctx context.Context, accountID string, now time.Time) (models.Subscription, error)
}

// Store is the full persistence surface consumed by the service layer.
type Store interface {
	AccountStore
	EditStore
	HistoryStore
	SubscriptionStore
}
