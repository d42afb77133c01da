package storage

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"photofix/internal/models"
)

// Memory is an in-memory Store used by tests and local development.
type Memory struct {
	mu            sync.Mutex
	accounts      map[string]models.Account
	edits         map[string]models.EditRecord
	history       map[string]models.HistoryEntry
	subscriptions map[string]models.Subscription
}

func NewMemory() *Memory {
	return &Memory{
		accounts:      make(map[string]models.Account),
		edits:         make(map[string]models.EditRecord),
		history:       make(map[string]models.HistoryEntry),
		subscriptions: make(map[string]models.Subscription),
	}
}

func (m *Memory) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return ErrDuplicateEmail
		}
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, id string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return account, nil
}

func (m *Memory) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if strings.EqualFold(account.Email, email) {
			return account, nil
		}
	}
	return models.Account{}, ErrNotFound
}

func (m *Memory) ResetCredits(ctx context.Context, id string, quota int, now time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return false, ErrNotFound
	}
	if now.Sub(account.LastCreditReset) < window {
		return false, nil
	}
	account.CreditsRemaining = quota
	account.LastCreditReset = now
	account.UpdatedAt = now
	m.accounts[id] = account
	return true, nil
}

func (m *Memory) ConsumeCredits(ctx context.Context, id string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}
	if account.CreditsRemaining < amount {
		return account.CreditsRemaining, ErrInsufficientCredits
	}
	account.CreditsRemaining -= amount
	account.UpdatedAt = time.Now().UTC()
	m.accounts[id] = account
	return account.CreditsRemaining, nil
}

func (m *Memory) ActivatePro(ctx context.Context, id string, expiry time.Time, credits int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	account.Tier = models.TierPro
	account.TierExpiry = &expiry
	account.CreditsRemaining = credits
	account.UpdatedAt = now
	m.accounts[id] = account
	return nil
}

func (m *Memory) CreateEdit(ctx context.Context, edit models.EditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Copy the parameter map so caller-side mutations cannot reach the
	// stored record, matching the isolation a real database gives.
	edit.Parameters = maps.Clone(edit.Parameters)
	m.edits[edit.ID] = edit
	return nil
}

func (m *Memory) GetEdit(ctx context.Context, id string) (models.EditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edit, ok := m.edits[id]
	if !ok {
		return models.EditRecord{}, ErrNotFound
	}
	edit.Parameters = maps.Clone(edit.Parameters)
	return edit, nil
}

func (m *Memory) ListEdits(ctx context.Context, accountID string, limit, offset int) ([]models.EditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var edits []models.EditRecord
	for _, edit := range m.edits {
		if edit.AccountID == accountID {
			edit.Parameters = maps.Clone(edit.Parameters)
			edits = append(edits, edit)
		}
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].CreatedAt.After(edits[j].CreatedAt) })
	return page(edits, limit, offset), nil
}

func (m *Memory) TransitionEdit(ctx context.Context, id, from, to string, update EditUpdate) (models.EditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edit, ok := m.edits[id]
	if !ok {
		return models.EditRecord{}, ErrNotFound
	}
	if edit.Status != from {
		return models.EditRecord{}, ErrInvalidTransition
	}
	edit.Status = to
	if update.ResultRef != "" {
		edit.ResultRef = update.ResultRef
	}
	if update.Outcome != "" {
		edit.Outcome = update.Outcome
	}
	if update.ProcessingTimeMs != nil {
		edit.ProcessingTimeMs = *update.ProcessingTimeMs
	}
	if update.ErrorMessage != "" {
		edit.ErrorMessage = update.ErrorMessage
	}
	edit.UpdatedAt = time.Now().UTC()
	m.edits[id] = edit
	edit.Parameters = maps.Clone(edit.Parameters)
	return edit, nil
}

func (m *Memory) DeleteEdit(ctx context.Context, id, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edit, ok := m.edits[id]
	if !ok || edit.AccountID != accountID {
		return ErrNotFound
	}
	delete(m.edits, id)
	return nil
}

func (m *Memory) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Parameters = maps.Clone(entry.Parameters)
	m.history[entry.ID] = entry
	return nil
}

func (m *Memory) ListHistory(ctx context.Context, accountID string, limit, offset int) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []models.HistoryEntry
	for _, entry := range m.history {
		if entry.AccountID == accountID {
			entry.Parameters = maps.Clone(entry.Parameters)
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return page(entries, limit, offset), nil
}

func (m *Memory) DeleteHistory(ctx context.Context, id, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.history[id]
	if !ok || entry.AccountID != accountID {
		return ErrNotFound
	}
	delete(m.history, id)
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.ID] = sub
	return nil
}

func (m *Memory) GetActiveSubscription(ctx context.Context, accountID string, now time.Time) (models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found models.Subscription
	var ok bool
	for _, sub := range m.subscriptions {
		if sub.AccountID == accountID && sub.IsActive(now) {
			if !ok || sub.CreatedAt.After(found.CreatedAt) {
				found = sub
				ok = true
			}
		}
	}
	if !ok {
		return models.Subscription{}, ErrNotFound
	}
	return found, nil
}

func (m *Memory) CancelActive(ctx context.Context, accountID string, now time.Time) (models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sub := range m.subscriptions {
		if sub.AccountID == accountID && sub.IsActive(now) {
			cancelledAt := now
			sub.Status = models.SubscriptionCancelled
			sub.CancelledAt = &cancelledAt
			sub.AutoRenew = false
			sub.UpdatedAt = now
			m.subscriptions[id] = sub
			return sub, nil
		}
	}
	return models.Subscription{}, ErrNotFound
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
