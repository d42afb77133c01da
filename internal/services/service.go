package services

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"photofix/internal/ai"
	"photofix/internal/blob"
	"photofix/internal/config"
	"photofix/internal/email"
	"photofix/internal/payments"
	"photofix/internal/storage"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrTierRequired        = errors.New("pro subscription required")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidState        = errors.New("invalid lifecycle state")
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrPaymentDeclined     = errors.New("payment declined")
)

// InsufficientCreditsError reports how far short the balance fell. It
// unwraps to ErrInsufficientCredits so callers can match either way.
type InsufficientCreditsError struct {
	Required  int
	Remaining int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, remaining %d", e.Required, e.Remaining)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

type Service struct {
	store    storage.Store
	provider ai.Provider
	payments payments.Processor
	blobs    blob.Store
	email    *email.ResendClient
	cfg      config.Config
	log      *zap.Logger

	// now is swapped out by tests that need to move the clock.
	now func() time.Time
}

func New(store storage.Store, provider ai.Provider, processor payments.Processor, blobs blob.Store, emailClient *email.ResendClient, cfg config.Config, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		payments: processor,
		blobs:    blobs,
		email:    emailClient,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func mapStorageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrDuplicateEmail):
		return ErrEmailTaken
	case errors.Is(err, storage.ErrInvalidTransition):
		return ErrInvalidState
	default:
		return err
	}
}
