package models

import "time"

type Account struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	PasswordHash     string     `json:"-"`
	Tier             string     `json:"tier"`
	TierExpiry       *time.Time `json:"tier_expiry,omitempty"`
	CreditsRemaining int        `json:"credits_remaining"`
	LastCreditReset  time.Time  `json:"last_credit_reset"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsPro reports whether the account has an unexpired Pro tier at the given
// instant. The stored Tier field is never trusted on its own: an expired
// Pro account is effectively Free.
func (a Account) IsPro(now time.Time) bool {
	return a.Tier == TierPro && a.TierExpiry != nil && a.TierExpiry.After(now)
}

// EffectiveTier resolves the tier the account actually holds right now.
func (a Account) EffectiveTier(now time.Time) string {
	if a.IsPro(now) {
		return TierPro
	}
	return TierFree
}

type EditRecord struct {
	ID               string            `json:"id"`
	AccountID        string            `json:"account_id"`
	Operation        string            `json:"operation"`
	Status           string            `json:"status"`
	Outcome          string            `json:"outcome,omitempty"`
	OriginalRef      string            `json:"original_ref"`
	ResultRef        string            `json:"result_ref,omitempty"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type HistoryEntry struct {
	ID               string            `json:"id"`
	AccountID        string            `json:"account_id"`
	EditRecordID     string            `json:"edit_record_id"`
	Operation        string            `json:"operation"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	OriginalRef      string            `json:"original_ref"`
	ResultRef        string            `json:"result_ref"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	Cost             int               `json:"cost"`
	CreatedAt        time.Time         `json:"created_at"`
}

type Subscription struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	PlanType      string     `json:"plan_type"`
	Status        string     `json:"status"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
	PaymentID     string     `json:"payment_id,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	AmountCents   int        `json:"amount_cents"`
	Currency      string     `json:"currency"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	AutoRenew     bool       `json:"auto_renew"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsActive reports whether the subscription currently grants access.
func (s Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionActive && s.EndDate.After(now)
}

type Plan struct {
	PlanType     string `json:"plan_type"`
	PeriodDays   int    `json:"period_days"`
	PriceCents   int    `json:"price_cents"`
	DailyCredits int    `json:"daily_credits"`
}

const (
	TierFree = "free"
	TierPro  = "pro"
)

const (
	EditPending    = "pending"
	EditProcessing = "processing"
	EditCompleted  = "completed"
	EditFailed     = "failed"
)

// Outcome of a completed edit. Fallback means the provider returned no image
// and the original was kept as the result.
const (
	OutcomeEnhanced = "enhanced"
	OutcomeFallback = "fallback"
)

const (
	OpEnhance       = "enhance"
	OpRestore       = "restore"
	OpFaceSwap      = "faceSwap"
	OpAging         = "aging"
	OpStyleTransfer = "styleTransfer"
	OpUpscale       = "upscale"
	OpFilter        = "filter"
)

// Operations is the fixed set of supported edit operations. The bool marks
// operations that require the Pro tier.
var Operations = map[string]bool{
	OpEnhance:       false,
	OpRestore:       false,
	OpFaceSwap:      true,
	OpAging:         true,
	OpStyleTransfer: false,
	OpUpscale:       false,
	OpFilter:        false,
}

const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
	SubscriptionPending   = "pending"
)
