package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for patients.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

// BenefitRepository is the persistence contract for policy benefits.
type BenefitRepository interface {
	Upsert(ctx context.Context, b *PolicyBenefit) error
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*PolicyBenefit, error)
}

// DocumentRepository is the persistence contract for patient documents.
type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error)
	SetParsedText(ctx context.Context, id uuid.UUID, text string) error
}
