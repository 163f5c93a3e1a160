package generation

import (
	"context"

	"github.com/google/uuid"
)

// HistoryRepository is the persistence contract for HistoryRecord aggregates.
type HistoryRepository interface {
	// Create stores a new record.  Records are immutable, so there is no update.
	Create(ctx context.Context, rec *HistoryRecord) error

	// ListByUser returns every record owned by userID, newest first.  An
	// unknown user yields an empty slice, not an error.
	ListByUser(ctx context.Context, userID string) ([]*HistoryRecord, error)

	// GetByID returns errors.CodeHistoryNotFound when no record has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*HistoryRecord, error)
}
