package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"photofix/internal/models"
)

// Postgres implements Store on top of a pgx connection pool. See schema.sql
// for the DDL.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) CreateAccount(ctx context.Context, account models.Account) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, tier, tier_expiry, credits_remaining, last_credit_reset, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $9)`,
		account.ID, account.Email, account.Name, account.PasswordHash, account.Tier,
		account.TierExpiry, account.CreditsRemaining, account.LastCreditReset, account.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

const accountColumns = `id, email, name, password_hash, tier, tier_expiry, credits_remaining, last_credit_reset, created_at, updated_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Tier, &a.TierExpiry,
		&a.CreditsRemaining, &a.LastCreditReset, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	return a, err
}

func (p *Postgres) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return scanAccount(p.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (p *Postgres) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return scanAccount(p.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = lower($1)`, email))
}

func (p *Postgres) ResetCredits(ctx context.Context, id string, quota int, now time.Time, window time.Duration) (bool, error) {
	ct, err := p.pool.Exec(ctx, `
		UPDATE accounts
		SET credits_remaining = $2, last_credit_reset = $3, updated_at = $3
		WHERE id = $1 AND last_credit_reset <= $4`,
		id, quota, now, now.Add(-window))
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}
	// Distinguish "window not elapsed" from "no such account".
	if _, err := p.GetAccount(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (p *Postgres) ConsumeCredits(ctx context.Context, id string, amount int) (int, error) {
	var remaining int
	err := p.pool.QueryRow(ctx, `
		UPDATE accounts
		SET credits_remaining = credits_remaining - $2, updated_at = NOW()
		WHERE id = $1 AND credits_remaining >= $2
		RETURNING credits_remaining`, id, amount).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		account, getErr := p.GetAccount(ctx, id)
		if getErr != nil {
			return 0, getErr
		}
		return account.CreditsRemaining, ErrInsufficientCredits
	}
	return remaining, err
}

func (p *Postgres) ActivatePro(ctx context.Context, id string, expiry time.Time, credits int, now time.Time) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE accounts
		SET tier = $2, tier_expiry = $3, credits_remaining = $4, updated_at = $5
		WHERE id = $1`,
		id, models.TierPro, expiry, credits, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateEdit(ctx context.Context, edit models.EditRecord) error {
	params, err := marshalParams(edit.Parameters)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO edit_records (id, account_id, operation, status, outcome, original_ref, result_ref, parameters, processing_time_ms, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		edit.ID, edit.AccountID, edit.Operation, edit.Status, edit.Outcome, edit.OriginalRef,
		edit.ResultRef, params, edit.ProcessingTimeMs, edit.ErrorMessage, edit.CreatedAt)
	return err
}

const editColumns = `id, account_id, operation, status, outcome, original_ref, result_ref, parameters, processing_time_ms, error_message, created_at, updated_at`

func scanEdit(row pgx.Row) (models.EditRecord, error) {
	var e models.EditRecord
	var params []byte
	err := row.Scan(&e.ID, &e.AccountID, &e.Operation, &e.Status, &e.Outcome, &e.OriginalRef,
		&e.ResultRef, &params, &e.ProcessingTimeMs, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.EditRecord{}, ErrNotFound
	}
	if err != nil {
		return models.EditRecord{}, err
	}
	if err := unmarshalParams(params, &e.Parameters); err != nil {
		return models.EditRecord{}, err
	}
	return e, nil
}

func (p *Postgres) GetEdit(ctx context.Context, id string) (models.EditRecord, error) {
	return scanEdit(p.pool.QueryRow(ctx, `
		SELECT `+editColumns+` FROM edit_records WHERE id = $1`, id))
}

func (p *Postgres) ListEdits(ctx context.Context, accountID string, limit, offset int) ([]models.EditRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+editColumns+`
		FROM edit_records
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edits []models.EditRecord
	for rows.Next() {
		edit, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit)
	}
	return edits, rows.Err()
}

func (p *Postgres) TransitionEdit(ctx context.Context, id, from, to string, update EditUpdate) (models.EditRecord, error) {
	edit, err := scanEdit(p.pool.QueryRow(ctx, `
		UPDATE edit_records
		SET status = $3,
			result_ref = CASE WHEN $4 = '' THEN result_ref ELSE $4 END,
			outcome = CASE WHEN $5 = '' THEN outcome ELSE $5 END,
			processing_time_ms = COALESCE($6, processing_time_ms),
			error_message = CASE WHEN $7 = '' THEN error_message ELSE $7 END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+editColumns,
		id, from, to, update.ResultRef, update.Outcome, update.ProcessingTimeMs, update.ErrorMessage))
	if errors.Is(err, ErrNotFound) {
		// No row in the expected status; the record may exist in another one.
		if _, getErr := p.GetEdit(ctx, id); getErr != nil {
			return models.EditRecord{}, getErr
		}
		return models.EditRecord{}, ErrInvalidTransition
	}
	return edit, err
}

func (p *Postgres) DeleteEdit(ctx context.Context, id, accountID string) error {
	ct, err := p.pool.Exec(ctx, `
		DELETE FROM edit_records WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	params, err := marshalParams(entry.Parameters)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO history_entries (id, account_id, edit_record_id, operation, parameters, original_ref, result_ref, processing_time_ms, cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.AccountID, entry.EditRecordID, entry.Operation, params,
		entry.OriginalRef, entry.ResultRef, entry.ProcessingTimeMs, entry.Cost, entry.CreatedAt)
	return err
}

func (p *Postgres) ListHistory(ctx context.Context, accountID string, limit, offset int) ([]models.HistoryEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, account_id, edit_record_id, operation, parameters, original_ref, result_ref, processing_time_ms, cost, created_at
		FROM history_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var params []byte
		if err := rows.Scan(&e.ID, &e.AccountID, &e.EditRecordID, &e.Operation, &params,
			&e.OriginalRef, &e.ResultRef, &e.ProcessingTimeMs, &e.Cost, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalParams(params, &e.Parameters); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *Postgres) DeleteHistory(ctx context.Context, id, accountID string) error {
	ct, err := p.pool.Exec(ctx, `
		DELETE FROM history_entries WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, account_id, plan_type, status, start_date, end_date, payment_id, payment_method, amount_cents, currency, cancelled_at, auto_renew, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		sub.ID, sub.AccountID, sub.PlanType, sub.Status, sub.StartDate, sub.EndDate,
		sub.PaymentID, sub.PaymentMethod, sub.AmountCents, sub.Currency, sub.CancelledAt,
		sub.AutoRenew, sub.CreatedAt)
	return err
}

const subscriptionColumns = `id, account_id, plan_type, status, start_date, end_date, payment_id, payment_method, amount_cents, currency, cancelled_at, auto_renew, created_at, updated_at`

func scanSubscription(row pgx.Row) (models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.AccountID, &s.PlanType, &s.Status, &s.StartDate, &s.EndDate,
		&s.PaymentID, &s.PaymentMethod, &s.AmountCents, &s.Currency, &s.CancelledAt,
		&s.AutoRenew, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Subscription{}, ErrNotFound
	}
	return s, err
}

func (p *Postgres) GetActiveSubscription(ctx context.Context, accountID string, now time.Time) (models.Subscription, error) {
	return scanSubscription(p.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1 AND status = $2 AND end_date > $3
		ORDER BY created_at DESC LIMIT 1`,
		accountID, models.SubscriptionActive, now))
}

func (p *Postgres) CancelActive(ctx context.Context, accountID string, now time.Time) (models.Subscription, error) {
	return scanSubscription(p.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = $3, cancelled_at = $4, auto_renew = false, updated_at = $4
		WHERE id = (
			SELECT id FROM subscriptions
			WHERE account_id = $1 AND status = $2 AND end_date > $4
			ORDER BY created_at DESC LIMIT 1
		)
		RETURNING `+subscriptionColumns,
		accountID, models.SubscriptionActive, models.SubscriptionCancelled, now))
}

func marshalParams(params map[string]string) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(params)
}

func unmarshalParams(raw []byte, out *map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
