package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photofix/internal/ai"
	"photofix/internal/blob"
	"photofix/internal/models"
)

func TestSubmitEditRejectsUnknownOperation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "unknown-op@example.com")

	_, err := svc.SubmitEdit(context.Background(), account.ID, "sharpen", "ref-1", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitEditRequiresOriginal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "no-image@example.com")

	_, err := svc.SubmitEdit(context.Background(), account.ID, models.OpEnhance, "", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitEditGatesProOperations(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "free-gate@example.com")

	for _, op := range []string{models.OpFaceSwap, models.OpAging} {
		_, err := svc.SubmitEdit(context.Background(), account.ID, op, "ref-1", nil)
		assert.ErrorIs(t, err, ErrTierRequired, op)
	}

	// Rejection happens before anything is written.
	edits, err := svc.ListEdits(context.Background(), account.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, edits)

	pro := registerProAccount(t, svc, "pro-gate@example.com")
	_, err = svc.SubmitEdit(context.Background(), pro.ID, models.OpFaceSwap, "ref-1", nil)
	assert.NoError(t, err)
}

func TestSubmitEditInsufficientCredits(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "broke@example.com")

	_, err := svc.consumeCredits(context.Background(), account.ID, 3)
	require.NoError(t, err)

	_, err = svc.SubmitEdit(context.Background(), account.ID, models.OpEnhance, "ref-1", nil)
	var credits *InsufficientCreditsError
	require.ErrorAs(t, err, &credits)
	assert.Equal(t, 1, credits.Required)
	assert.Equal(t, 0, credits.Remaining)
}

func TestEditLifecycleChargesOnceAndRecordsHistory(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "lifecycle@example.com")
	ctx := context.Background()

	edit, err := svc.SubmitEdit(ctx, account.ID, models.OpEnhance, "original-ref", map[string]string{"strength": "high"})
	require.NoError(t, err)
	assert.Equal(t, models.EditPending, edit.Status)

	edit, err = svc.DispatchEdit(ctx, edit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditProcessing, edit.Status)

	edit, err = svc.CompleteEdit(ctx, edit.ID, "result-ref", models.OutcomeEnhanced, 1200)
	require.NoError(t, err)
	assert.Equal(t, models.EditCompleted, edit.Status)
	assert.Equal(t, "result-ref", edit.ResultRef)
	assert.Equal(t, models.OutcomeEnhanced, edit.Outcome)
	assert.Equal(t, int64(1200), edit.ProcessingTimeMs)

	ent, err := svc.GetEntitlement(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ent.CreditsRemaining)

	history, err := svc.ListHistory(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, edit.ID, history[0].EditRecordID)
	assert.Equal(t, models.OpEnhance, history[0].Operation)
	assert.Equal(t, "original-ref", history[0].OriginalRef)
	assert.Equal(t, "result-ref", history[0].ResultRef)
	assert.Equal(t, 1, history[0].Cost)
}

func TestCompleteRequiresProcessing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "skip-dispatch@example.com")
	ctx := context.Background()

	edit, err := svc.SubmitEdit(ctx, account.ID, models.OpEnhance, "ref-1", nil)
	require.NoError(t, err)

	_, err = svc.CompleteEdit(ctx, edit.ID, "result-ref", models.OutcomeEnhanced, 10)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "terminal@example.com")
	ctx := context.Background()

	edit, err := svc.SubmitEdit(ctx, account.ID, models.OpEnhance, "ref-1", nil)
	require.NoError(t, err)
	_, err = svc.DispatchEdit(ctx, edit.ID)
	require.NoError(t, err)
	_, err = svc.CompleteEdit(ctx, edit.ID, "result-ref", models.OutcomeEnhanced, 10)
	require.NoError(t, err)

	_, err = svc.FailEdit(ctx, edit.ID, "late failure")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.DispatchEdit(ctx, edit.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.CompleteEdit(ctx, edit.ID, "other-ref", models.OutcomeEnhanced, 10)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFailEditChargesNothing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "fail@example.com")
	ctx := context.Background()

	edit, err := svc.SubmitEdit(ctx, account.ID, models.OpEnhance, "ref-1", nil)
	require.NoError(t, err)
	_, err = svc.DispatchEdit(ctx, edit.ID)
	require.NoError(t, err)

	failed, err := svc.FailEdit(ctx, edit.ID, "provider exploded")
	require.NoError(t, err)
	assert.Equal(t, models.EditFailed, failed.Status)
	assert.Equal(t, "provider exploded", failed.ErrorMessage)

	ent, err := svc.GetEntitlement(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ent.CreditsRemaining)

	history, err := svc.ListHistory(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestProcessEditEnhanced(t *testing.T) {
	svc, provider, _, _ := newTestService(t)
	account := registerAccount(t, svc, "process@example.com")
	provider.result = &ai.Result{Image: []byte("edited-image"), MimeType: "image/png"}

	edit, err := svc.ProcessEdit(context.Background(), account.ID, models.OpEnhance, []byte("raw-image"), "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EditCompleted, edit.Status)
	assert.Equal(t, models.OutcomeEnhanced, edit.Outcome)
	assert.NotEmpty(t, edit.ResultRef)
	assert.NotEqual(t, edit.OriginalRef, edit.ResultRef)

	data, err := svc.blobs.Get(edit.ResultRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("edited-image"), data)
}

func TestProcessEditTextOnlyFallsBack(t *testing.T) {
	svc, provider, _, _ := newTestService(t)
	account := registerAccount(t, svc, "fallback@example.com")
	provider.result = &ai.Result{Text: "I cannot edit this image."}

	edit, err := svc.ProcessEdit(context.Background(), account.ID, models.OpEnhance, []byte("raw-image"), "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EditCompleted, edit.Status)
	assert.Equal(t, models.OutcomeFallback, edit.Outcome)
	assert.Equal(t, edit.OriginalRef, edit.ResultRef)

	// A fallback still consumed the provider call, so it is still charged.
	ent, err := svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ent.CreditsRemaining)
}

func TestProcessEditProviderErrorFailsWithoutCharge(t *testing.T) {
	svc, provider, _, _ := newTestService(t)
	account := registerAccount(t, svc, "provider-err@example.com")
	provider.err = errors.New("upstream 500")

	edit, err := svc.ProcessEdit(context.Background(), account.ID, models.OpEnhance, []byte("raw-image"), "image/jpeg", nil)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	assert.Equal(t, models.EditFailed, edit.Status)
	assert.Contains(t, edit.ErrorMessage, "upstream 500")

	ent, err := svc.GetEntitlement(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ent.CreditsRemaining)

	history, err := svc.ListHistory(context.Background(), account.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestProcessEditProviderTimeout(t *testing.T) {
	svc, provider, _, _ := newTestService(t)
	account := registerAccount(t, svc, "timeout@example.com")
	provider.block = true
	svc.cfg.ProviderTimeoutS = 0

	edit, err := svc.ProcessEdit(context.Background(), account.ID, models.OpEnhance, []byte("raw-image"), "image/jpeg", nil)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	assert.Equal(t, models.EditFailed, edit.Status)
	assert.Contains(t, edit.ErrorMessage, "provider timeout")
}

func TestProcessEditResultStoreFailureFailsRecord(t *testing.T) {
	svc, provider, _, _ := newTestService(t)
	account := registerAccount(t, svc, "blob-fail@example.com")
	provider.result = &ai.Result{Image: []byte("edited-image"), MimeType: "image/png"}
	// The original stores fine; writing the result does not.
	svc.blobs = &failingBlobs{inner: blob.NewMemory(), failFrom: 2}
	ctx := context.Background()

	edit, err := svc.ProcessEdit(ctx, account.ID, models.OpEnhance, []byte("raw-image"), "image/jpeg", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// The record still reaches a terminal state.
	assert.Equal(t, models.EditFailed, edit.Status)
	assert.Contains(t, edit.ErrorMessage, "store result")

	stored, err := svc.GetEdit(ctx, edit.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditFailed, stored.Status)

	ent, err := svc.GetEntitlement(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ent.CreditsRemaining)

	history, err := svc.ListHistory(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestProcessEditExhaustsFreeCredits(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	account := registerAccount(t, svc, "exhaust@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		edit, err := svc.ProcessEdit(ctx, account.ID, models.OpEnhance, []byte("raw-image"), "image/jpeg", nil)
		require.NoError(t, err)
		assert.Equal(t, models.EditCompleted, edit.Status)
	}

	_, err := svc.ProcessEdit(ctx, account.ID, models.OpEnhance, []byte("raw-image"), "image/jpeg", nil)
	var credits *InsufficientCreditsError
	require.ErrorAs(t, err, &credits)
	assert.Equal(t, 1, credits.Required)
	assert.Equal(t, 0, credits.Remaining)

	edits, err := svc.ListEdits(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, edits, 3)
}

func TestGetEditHidesForeignRecords(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	owner := registerAccount(t, svc, "owner@example.com")
	other := registerAccount(t, svc, "other@example.com")
	ctx := context.Background()

	edit, err := svc.SubmitEdit(ctx, owner.ID, models.OpEnhance, "ref-1", nil)
	require.NoError(t, err)

	_, err = svc.GetEdit(ctx, edit.ID, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.GetEdit(ctx, edit.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, edit.ID, got.ID)
}

func TestDeleteEditOwnerOnly(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	owner := registerAccount(t, svc, "del-owner@example.com")
	other := registerAccount(t, svc, "del-other@example.com")
	ctx := context.Background()

	edit, err := svc.SubmitEdit(ctx, owner.ID, models.OpEnhance, "ref-1", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteEdit(ctx, edit.ID, other.ID), ErrNotFound)
	require.NoError(t, svc.DeleteEdit(ctx, edit.ID, owner.ID))

	_, err = svc.GetEdit(ctx, edit.ID, owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
