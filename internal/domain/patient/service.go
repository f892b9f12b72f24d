package patient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/revclarity/revclarity/internal/platform/jobs"
	"github.com/revclarity/revclarity/internal/platform/storage"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrBenefitNotFound  = errors.New("policy benefit not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// BenefitsExtractPayload is the job payload for patient.extract_benefits.
type BenefitsExtractPayload struct {
	PatientID  uuid.UUID `json:"patient_id"`
	DocumentID uuid.UUID `json:"document_id"`
}

// Service owns patient demographics, policy benefits and patient documents.
type Service struct {
	repo     Repository
	benefits BenefitRepository
	docs     DocumentRepository
	files    storage.FileStore
	queue    jobs.Queue
	log      zerolog.Logger
}

func NewService(repo Repository, benefits BenefitRepository, docs DocumentRepository, files storage.FileStore, queue jobs.Queue, log zerolog.Logger) *Service {
	return &Service{repo: repo, benefits: benefits, docs: docs, files: files, queue: queue, log: log}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if _, err := s.repo.GetByID(ctx, p.ID); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UploadDocument stores the file and records it against the patient. Policy
// documents additionally queue a benefits extraction job so coverage details
// land in policy_benefit without blocking the upload response.
func (s *Service) UploadDocument(ctx context.Context, patientID uuid.UUID, fileName, purpose string, content io.Reader) (*Document, error) {
	if !ValidPurposes[purpose] {
		return nil, fmt.Errorf("invalid document purpose: %s", purpose)
	}
	if _, err := s.repo.GetByID(ctx, patientID); err != nil {
		return nil, err
	}

	path, err := s.files.Save(ctx, fileName, content)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		PatientID: patientID,
		FileName:  fileName,
		FilePath:  path,
		Purpose:   purpose,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	if purpose == PurposePolicyDoc {
		job, err := jobs.NewJob(jobs.TypeBenefitsExtract, jobs.Key(jobs.TypeBenefitsExtract, doc.ID),
			BenefitsExtractPayload{PatientID: patientID, DocumentID: doc.ID})
		if err != nil {
			return nil, err
		}
		if err := s.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobs.ErrDuplicateKey) {
			s.log.Error().Err(err).Str("document_id", doc.ID.String()).Msg("failed to enqueue benefits extraction")
		}
	}
	return doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	if _, err := s.repo.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.docs.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) OpenDocument(ctx context.Context, id uuid.UUID) (*Document, io.ReadCloser, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Open(ctx, doc.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

func (s *Service) Benefits(ctx context.Context, patientID uuid.UUID) (*PolicyBenefit, error) {
	return s.benefits.GetByPatient(ctx, patientID)
}

// RecordBenefits upserts extracted coverage details for a patient. Called by
// the benefits extraction worker.
func (s *Service) RecordBenefits(ctx context.Context, b *PolicyBenefit) error {
	if b.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	return s.benefits.Upsert(ctx, b)
}

// SetDocumentText records the parsed text of a stored document.
func (s *Service) SetDocumentText(ctx context.Context, id uuid.UUID, text string) error {
	return s.docs.SetParsedText(ctx, id, text)
}

// Eligibility resolves the insurance eligibility string shown on claims.
func (s *Service) Eligibility(ctx context.Context, patientID uuid.UUID) string {
	b, err := s.benefits.GetByPatient(ctx, patientID)
	switch {
	case err == nil && b.PolicyActive:
		return EligibilityActive
	case err == nil, errors.Is(err, ErrBenefitNotFound):
		return EligibilityInactive
	default:
		s.log.Warn().Err(err).Str("patient_id", patientID.String()).Msg("eligibility lookup failed")
		return EligibilityUnknown
	}
}
