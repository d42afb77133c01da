package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"photofix/internal/ai"
	"photofix/internal/blob"
	"photofix/internal/config"
	"photofix/internal/models"
	"photofix/internal/storage"
)

type stubProvider struct {
	mu     sync.Mutex
	result *ai.Result
	err    error
	block  bool
	calls  int
}

func (p *stubProvider) Enhance(ctx context.Context, req ai.Request) (*ai.Result, error) {
	p.mu.Lock()
	p.calls++
	block, result, err := p.block, p.result, p.err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return &ai.Result{Image: []byte("enhanced-bytes"), MimeType: "image/png"}, nil
}

type stubCharge struct {
	Method      string
	AmountCents int
	Currency    string
	Description string
}

type stubProcessor struct {
	mu      sync.Mutex
	err     error
	charges []stubCharge
}

func (p *stubProcessor) Charge(ctx context.Context, method string, amountCents int, currency, description string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.charges = append(p.charges, stubCharge{method, amountCents, currency, description})
	return fmt.Sprintf("pi_test_%d", len(p.charges)), nil
}

// failingBlobs delegates to an inner store but fails every Put from the
// failFrom-th call on.
type failingBlobs struct {
	inner    blob.Store
	failFrom int
	puts     int
}

func (f *failingBlobs) Put(data []byte, mimeType string) (string, error) {
	f.puts++
	if f.puts >= f.failFrom {
		return "", errors.New("disk full")
	}
	return f.inner.Put(data, mimeType)
}

func (f *failingBlobs) Get(ref string) ([]byte, error) { return f.inner.Get(ref) }
func (f *failingBlobs) Delete(ref string) error        { return f.inner.Delete(ref) }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() config.Config {
	return config.Config{
		FreeDailyCredits:  3,
		ProDailyCredits:   100,
		EditCost:          1,
		MonthlyPriceCents: 999,
		MonthlyPeriodDays: 30,
		YearlyPriceCents:  5999,
		YearlyPeriodDays:  365,
		Currency:          "usd",
		ProviderTimeoutS:  60,
	}
}

func newTestService(t *testing.T) (*Service, *stubProvider, *stubProcessor, *testClock) {
	t.Helper()
	svc := New(storage.NewMemory(), &stubProvider{}, &stubProcessor{}, blob.NewMemory(), nil, testConfig(), zap.NewNop())
	clock := newTestClock()
	svc.now = clock.Now
	provider := svc.provider.(*stubProvider)
	processor := svc.payments.(*stubProcessor)
	return svc, provider, processor, clock
}

func registerAccount(t *testing.T, svc *Service, email string) models.Account {
	t.Helper()
	account, err := svc.Register(context.Background(), email, "Test User", "password123")
	require.NoError(t, err)
	return account
}

func registerProAccount(t *testing.T, svc *Service, email string) models.Account {
	t.Helper()
	account := registerAccount(t, svc, email)
	_, err := svc.PurchaseSubscription(context.Background(), account.ID, models.PlanMonthly, "pm_test")
	require.NoError(t, err)
	account, err = svc.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	return account
}
