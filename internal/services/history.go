package services

import (
	"context"

	"photofix/internal/models"
)

func (s *Service) ListHistory(ctx context.Context, accountID string, limit, offset int) ([]models.HistoryEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListHistory(ctx, accountID, limit, offset)
}

// PurgeHistoryEntry deletes a single ledger entry at the owner's request.
// This is the only mutation the ledger permits after an entry is written.
func (s *Service) PurgeHistoryEntry(ctx context.Context, id, accountID string) error {
	return mapStorageErr(s.store.DeleteHistory(ctx, id, accountID))
}
