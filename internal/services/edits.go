package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"photofix/internal/ai"
	"photofix/internal/metrics"
	"photofix/internal/models"
	"photofix/internal/storage"
)

// SubmitEdit gates the request on operation validity, tier and credit
// balance, then creates the record in pending. Nothing is charged here;
// the debit happens at completion.
func (s *Service) SubmitEdit(ctx context.Context, accountID, operation, originalRef string, parameters map[string]string) (models.EditRecord, error) {
	if _, ok := models.Operations[operation]; !ok {
		return models.EditRecord{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, operation)
	}
	if originalRef == "" {
		return models.EditRecord{}, fmt.Errorf("%w: original image required", ErrInvalidRequest)
	}

	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return models.EditRecord{}, err
	}
	account, err = s.refreshCredits(ctx, account)
	if err != nil {
		return models.EditRecord{}, err
	}
	now := s.now()
	if err := s.requireTier(account, operation, now); err != nil {
		return models.EditRecord{}, err
	}
	if err := requireCredits(account, s.cfg.EditCost); err != nil {
		return models.EditRecord{}, err
	}

	edit := models.EditRecord{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Operation:   operation,
		Status:      models.EditPending,
		OriginalRef: originalRef,
		Parameters:  parameters,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEdit(ctx, edit); err != nil {
		return models.EditRecord{}, mapStorageErr(err)
	}
	return edit, nil
}

// DispatchEdit moves pending -> processing. Only pending records may be
// dispatched; anything else is a caller bug surfaced as ErrInvalidState.
func (s *Service) DispatchEdit(ctx context.Context, id string) (models.EditRecord, error) {
	edit, err := s.store.TransitionEdit(ctx, id, models.EditPending, models.EditProcessing, storage.EditUpdate{})
	return edit, mapStorageErr(err)
}

// CompleteEdit moves processing -> completed, charges the credit and
// appends the history entry. If the debit fails because the balance was
// drained concurrently, the record stays completed (the provider already
// did the work) and the discrepancy is logged and counted for
// reconciliation instead of being charged.
func (s *Service) CompleteEdit(ctx context.Context, id, resultRef, outcome string, processingMs int64) (models.EditRecord, error) {
	edit, err := s.store.TransitionEdit(ctx, id, models.EditProcessing, models.EditCompleted, storage.EditUpdate{
		ResultRef:        resultRef,
		Outcome:          outcome,
		ProcessingTimeMs: &processingMs,
	})
	if err != nil {
		return models.EditRecord{}, mapStorageErr(err)
	}

	cost := s.cfg.EditCost
	if _, err := s.consumeCredits(ctx, edit.AccountID, cost); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			s.log.Error("credit debit failed after completion, balance drained concurrently",
				zap.String("edit_id", edit.ID),
				zap.String("account_id", edit.AccountID))
			metrics.CreditDebitFailures.Inc()
			cost = 0
		} else {
			return edit, err
		}
	} else {
		metrics.CreditsConsumed.Add(float64(cost))
	}

	entry := models.HistoryEntry{
		ID:               uuid.NewString(),
		AccountID:        edit.AccountID,
		EditRecordID:     edit.ID,
		Operation:        edit.Operation,
		Parameters:       edit.Parameters,
		OriginalRef:      edit.OriginalRef,
		ResultRef:        edit.ResultRef,
		ProcessingTimeMs: edit.ProcessingTimeMs,
		Cost:             cost,
		CreatedAt:        s.now(),
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		s.log.Error("history append failed for completed edit",
			zap.String("edit_id", edit.ID), zap.Error(err))
		return edit, err
	}

	metrics.EditsTotal.WithLabelValues(edit.Operation, models.EditCompleted).Inc()
	return edit, nil
}

// FailEdit moves processing -> failed. No credit is charged and no
// history entry is written for failures.
func (s *Service) FailEdit(ctx context.Context, id, errorMessage string) (models.EditRecord, error) {
	edit, err := s.store.TransitionEdit(ctx, id, models.EditProcessing, models.EditFailed, storage.EditUpdate{
		ErrorMessage: errorMessage,
	})
	if err != nil {
		return models.EditRecord{}, mapStorageErr(err)
	}
	metrics.EditsTotal.WithLabelValues(edit.Operation, models.EditFailed).Inc()
	return edit, nil
}

// ProcessEdit drives one photo operation end to end: store the original,
// gate and submit, dispatch, call the provider, and settle the record in a
// terminal state. The provider call runs under its own timeout and holds
// no locks; a client disconnect does not retract the operation, which is
// why the provider context is detached from the request's cancellation.
func (s *Service) ProcessEdit(ctx context.Context, accountID, operation string, image []byte, mimeType string, parameters map[string]string) (models.EditRecord, error) {
	if len(image) == 0 {
		return models.EditRecord{}, fmt.Errorf("%w: image required", ErrInvalidRequest)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	originalRef, err := s.blobs.Put(image, mimeType)
	if err != nil {
		return models.EditRecord{}, err
	}

	edit, err := s.SubmitEdit(ctx, accountID, operation, originalRef, parameters)
	if err != nil {
		return models.EditRecord{}, err
	}
	if _, err := s.DispatchEdit(ctx, edit.ID); err != nil {
		return models.EditRecord{}, err
	}

	providerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProviderTimeout())
	defer cancel()

	start := s.now()
	result, err := s.provider.Enhance(providerCtx, ai.Request{
		Image:      image,
		MimeType:   mimeType,
		Operation:  operation,
		Parameters: parameters,
	})
	elapsed := s.now().Sub(start)
	metrics.ProviderDuration.WithLabelValues(operation).Observe(elapsed.Seconds())

	if err != nil {
		message := err.Error()
		if errors.Is(providerCtx.Err(), context.DeadlineExceeded) {
			message = fmt.Sprintf("provider timeout after %s", s.cfg.ProviderTimeout())
		}
		failed, failErr := s.FailEdit(context.WithoutCancel(ctx), edit.ID, message)
		if failErr != nil {
			return models.EditRecord{}, failErr
		}
		return failed, fmt.Errorf("%w: %s", ErrProviderUnavailable, message)
	}

	resultRef := originalRef
	outcome := models.OutcomeFallback
	if len(result.Image) > 0 {
		resultRef, err = s.blobs.Put(result.Image, result.MimeType)
		if err != nil {
			// The record was dispatched, so it must still land in a
			// terminal state. No charge, no history.
			failed, failErr := s.FailEdit(context.WithoutCancel(ctx), edit.ID, "store result: "+err.Error())
			if failErr != nil {
				return models.EditRecord{}, failErr
			}
			return failed, err
		}
		outcome = models.OutcomeEnhanced
	} else {
		// Provider answered with text only. Keep the original as the
		// result but record the distinct outcome so clients can tell
		// a no-op from a real enhancement.
		s.log.Warn("provider returned no image, falling back to original",
			zap.String("edit_id", edit.ID),
			zap.String("operation", operation))
	}

	return s.CompleteEdit(context.WithoutCancel(ctx), edit.ID, resultRef, outcome, elapsed.Milliseconds())
}

// GetEdit returns the record only to its owner; a foreign record is
// indistinguishable from a missing one.
func (s *Service) GetEdit(ctx context.Context, id, accountID string) (models.EditRecord, error) {
	edit, err := s.store.GetEdit(ctx, id)
	if err != nil {
		return models.EditRecord{}, mapStorageErr(err)
	}
	if edit.AccountID != accountID {
		return models.EditRecord{}, ErrNotFound
	}
	return edit, nil
}

func (s *Service) ListEdits(ctx context.Context, accountID string, limit, offset int) ([]models.EditRecord, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListEdits(ctx, accountID, limit, offset)
}

// DeleteEdit removes the record from any state. Already-written history
// entries are untouched; history has its own purge.
func (s *Service) DeleteEdit(ctx context.Context, id, accountID string) error {
	return mapStorageErr(s.store.DeleteEdit(ctx, id, accountID))
}
