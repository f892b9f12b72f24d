package claim

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows claim listings.
type ListFilter struct {
	Status    string
	PatientID *uuid.UUID
}

// Repository is the persistence contract for claims and their service lines.
type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Claim, int, error)
	ReplaceServiceLines(ctx context.Context, claimID uuid.UUID, lines []*ServiceLine) error
}

// DocumentRepository is the persistence contract for claim-attached documents.
type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Document, error)
	SetParsedText(ctx context.Context, id uuid.UUID, text string) error
}
