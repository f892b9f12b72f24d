package claim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/revclarity/revclarity/internal/platform/db"
	"github.com/revclarity/revclarity/internal/platform/jobs"
	"github.com/revclarity/revclarity/internal/platform/storage"
)

// ProcessPayload is the job payload for claim.process.
type ProcessPayload struct {
	ClaimID uuid.UUID `json:"claim_id"`
}

// SimulatePayload is the job payload for claim.simulate_outcome.
type SimulatePayload struct {
	ClaimID uuid.UUID `json:"claim_id"`
}

// DenialAnalysis carries the AI-produced explanation applied to a denied
// claim.
type DenialAnalysis struct {
	DenialReason      string
	RootCause         string
	RecommendedAction string
	CARCCodes         []string
	RARCCodes         []string
}

// UploadFile is one multipart file accepted by Upload.
type UploadFile struct {
	FileName string
	Purpose  string
	Content  io.Reader
}

// Service owns the claim lifecycle.
type Service struct {
	repo  Repository
	docs  DocumentRepository
	files storage.FileStore
	queue jobs.Queue
	tx    db.Transactor
	log   zerolog.Logger
}

func NewService(repo Repository, docs DocumentRepository, files storage.FileStore, queue jobs.Queue, tx db.Transactor, log zerolog.Logger) *Service {
	return &Service{repo: repo, docs: docs, files: files, queue: queue, tx: tx, log: log}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Claim, int, error) {
	if filter.Status != "" && !ValidStatuses[filter.Status] {
		return nil, 0, fmt.Errorf("invalid status filter: %s", filter.Status)
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// UpdateInput is the editable subset of claim fields.
type UpdateInput struct {
	PayerName                   *string        `json:"payer_name,omitempty"`
	TotalChargeAmount           *float64       `json:"total_charge_amount,omitempty"`
	PatientResponsibilityAmount *float64       `json:"patient_responsibility_amount,omitempty"`
	DateOfService               *time.Time     `json:"date_of_service,omitempty"`
	ServiceLines                []*ServiceLine `json:"service_lines,omitempty"`
}

// normalizeLines runs each line's code lists through SplitCodes, so
// delimited text entered as a single string ("M17.11, M25.561") is split,
// trimmed and stripped of empty entries before it is stored.
func normalizeLines(lines []*ServiceLine) {
	for _, l := range lines {
		l.ICD10Codes = SplitCodes(JoinCodes(l.ICD10Codes))
		l.Modifiers = SplitCodes(JoinCodes(l.Modifiers))
	}
}

// Update applies field edits. Only draft and denied claims are editable. The
// claim row and its service lines are written in one transaction; a failed
// commit leaves the stored claim unchanged.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Editable() {
		return nil, ErrNotEditable
	}

	if in.PayerName != nil {
		c.PayerName = in.PayerName
	}
	if in.TotalChargeAmount != nil {
		c.TotalChargeAmount = in.TotalChargeAmount
	}
	if in.PatientResponsibilityAmount != nil {
		c.PatientResponsibilityAmount = in.PatientResponsibilityAmount
	}
	if in.DateOfService != nil {
		c.DateOfService = in.DateOfService
	}
	if in.ServiceLines != nil {
		normalizeLines(in.ServiceLines)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		if in.ServiceLines != nil {
			return s.repo.ReplaceServiceLines(ctx, id, in.ServiceLines)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if in.ServiceLines != nil {
		c.ServiceLines = in.ServiceLines
	}
	return c, nil
}

// Submit moves a draft claim to submitted.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.PayerName == nil || *c.PayerName == "" {
		return nil, fmt.Errorf("payer_name is required before submission")
	}
	if c.TotalChargeAmount == nil || *c.TotalChargeAmount <= 0 {
		return nil, fmt.Errorf("total_charge_amount must be positive before submission")
	}
	if err := c.Submit(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Resubmit moves a denied claim back to submitted.
func (s *Service) Resubmit(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Resubmit(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SimulateOutcome dispatches an outcome simulation for a submitted or denied
// claim. At most one simulation may be in flight per claim; the keyed job
// queue is the source of truth for that guard.
func (s *Service) SimulateOutcome(ctx context.Context, id uuid.UUID) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !c.CanSimulate() {
		return ErrInvalidTransition
	}

	key := jobs.Key(jobs.TypeClaimSimulate, id)
	active, err := s.queue.ActiveForKey(ctx, key)
	if err != nil {
		return err
	}
	if active {
		return ErrSimulationInFlight
	}

	job, err := jobs.NewJob(jobs.TypeClaimSimulate, key, SimulatePayload{ClaimID: id})
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrDuplicateKey) {
			return ErrSimulationInFlight
		}
		return err
	}
	s.log.Info().Str("claim_id", id.String()).Msg("outcome simulation dispatched")
	return nil
}

// Upload creates a claim in processing, stores the source documents and
// queues the synthesis job.
func (s *Service) Upload(ctx context.Context, patientID uuid.UUID, eligibility string, uploads []UploadFile) (*Claim, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}

	c := &Claim{
		PatientID:         patientID,
		Status:            StatusProcessing,
		EligibilityStatus: &eligibility,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	for _, u := range uploads {
		path, err := s.files.Save(ctx, u.FileName, u.Content)
		if err != nil {
			return nil, err
		}
		doc := &Document{
			ClaimID:   c.ID,
			PatientID: patientID,
			FileName:  u.FileName,
			FilePath:  path,
			Purpose:   u.Purpose,
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, err
		}
	}

	job, err := jobs.NewJob(jobs.TypeClaimProcess, jobs.Key(jobs.TypeClaimProcess, c.ID),
		ProcessPayload{ClaimID: c.ID})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobs.ErrDuplicateKey) {
		return nil, err
	}
	return c, nil
}

// Documents lists the source documents attached to a claim.
func (s *Service) Documents(ctx context.Context, claimID uuid.UUID) ([]*Document, error) {
	if _, err := s.repo.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return s.docs.ListByClaim(ctx, claimID)
}

// ApplyOutcome records a simulated payer decision. The claim's status is
// re-checked here so a stale job cannot clobber a claim that moved on while
// the simulation was in flight.
func (s *Service) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome string, analysis *DenialAnalysis) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	charge := 0.0
	if c.TotalChargeAmount != nil {
		charge = *c.TotalChargeAmount
	}
	paid := 0.0
	switch outcome {
	case StatusPaid:
		paid = charge
	case StatusApproved:
		// Contracted-rate haircut on the billed charge.
		paid = math.Round(charge*0.80*100) / 100
	}

	if err := c.Adjudicate(outcome, paid, time.Now().UTC()); err != nil {
		return nil, err
	}
	if outcome == StatusDenied {
		if analysis == nil {
			return nil, fmt.Errorf("denial analysis is required for a denied outcome")
		}
		c.DenialReason = &analysis.DenialReason
		c.DenialRootCause = &analysis.RootCause
		c.RecommendedAction = &analysis.RecommendedAction
		c.CARCCodes = analysis.CARCCodes
		c.RARCCodes = analysis.RARCCodes
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SynthesisResult is what the claim.process worker produces.
type SynthesisResult struct {
	PayerName         *string
	TotalChargeAmount *float64
	DateOfService     *time.Time
	EligibilityStatus string
	ComplianceFlags   []ComplianceFlag
	ServiceLines      []*ServiceLine
}

// FinishSynthesis moves a processing claim to draft with the synthesized
// fields.
func (s *Service) FinishSynthesis(ctx context.Context, id uuid.UUID, res SynthesisResult) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	c.Status = StatusDraft
	if res.PayerName != nil {
		c.PayerName = res.PayerName
	}
	if res.TotalChargeAmount != nil {
		c.TotalChargeAmount = res.TotalChargeAmount
	}
	if res.DateOfService != nil {
		c.DateOfService = res.DateOfService
	}
	if res.EligibilityStatus != "" {
		c.EligibilityStatus = &res.EligibilityStatus
	}
	c.ComplianceFlags = res.ComplianceFlags
	c.ProcessingError = nil
	if res.ServiceLines != nil {
		normalizeLines(res.ServiceLines)
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		if res.ServiceLines != nil {
			return s.repo.ReplaceServiceLines(ctx, id, res.ServiceLines)
		}
		return nil
	})
}

// FailSynthesis marks a processing claim denied with the pipeline error.
func (s *Service) FailSynthesis(ctx context.Context, id uuid.UUID, msg string) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	reason := "Claim could not be assembled from the uploaded documents"
	c.Status = StatusDenied
	c.DenialReason = &reason
	c.ProcessingError = &msg
	return s.repo.Update(ctx, c)
}
