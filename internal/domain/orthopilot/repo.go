package orthopilot

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for inbox documents.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	// List returns documents newest first, optionally filtered by
	// classification.
	List(ctx context.Context, classification string, limit, offset int) ([]*Document, int, error)
	// MarkProcessing moves a PENDING document to PROCESSING; returns
	// ErrNotPending otherwise.
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	// MarkCompleted records the terminal COMPLETED state with its
	// classification and extraction.
	MarkCompleted(ctx context.Context, id uuid.UUID, classification string, parsedText *string, extraction *Extraction) error
	// MarkError records the terminal ERROR state with a message.
	MarkError(ctx context.Context, id uuid.UUID, msg string) error
}
