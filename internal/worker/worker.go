// Package worker wires the background job handlers: claim synthesis, payer
// outcome simulation, inbox document processing and policy benefit
// extraction. The same binary serves the API; this package only runs under
// the work subcommand.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/revclarity/revclarity/internal/domain/claim"
	"github.com/revclarity/revclarity/internal/domain/orthopilot"
	"github.com/revclarity/revclarity/internal/domain/patient"
	"github.com/revclarity/revclarity/internal/platform/ai"
	"github.com/revclarity/revclarity/internal/platform/jobs"
	"github.com/revclarity/revclarity/internal/platform/storage"
)

// Config bounds the simulated payer latency.
type Config struct {
	SimulateMinLatency time.Duration
	SimulateMaxLatency time.Duration
}

// Worker holds every dependency the job handlers share.
type Worker struct {
	claims   *claim.Service
	patients *patient.Service
	inbox    *orthopilot.Service
	collab   ai.Collaborator
	files    storage.FileStore
	cfg      Config
	log      zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func New(claims *claim.Service, patients *patient.Service, inbox *orthopilot.Service, collab ai.Collaborator, files storage.FileStore, cfg Config, log zerolog.Logger) *Worker {
	return &Worker{
		claims:   claims,
		patients: patients,
		inbox:    inbox,
		collab:   collab,
		files:    files,
		cfg:      cfg,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register binds every handler to the runner.
func (w *Worker) Register(r *jobs.Runner) {
	r.Register(jobs.TypeClaimProcess, w.ProcessClaim)
	r.Register(jobs.TypeClaimSimulate, w.SimulateOutcome)
	r.Register(jobs.TypeDocumentProcess, w.ProcessDocument)
	r.Register(jobs.TypeBenefitsExtract, w.ExtractBenefits)
}

// ProcessClaim synthesizes a draft claim from its uploaded documents. The
// claim lands in draft on success and denied when the pipeline fails for
// good.
func (w *Worker) ProcessClaim(ctx context.Context, job *jobs.Job) error {
	var payload claim.ProcessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	c, err := w.claims.Get(ctx, payload.ClaimID)
	if err != nil {
		return err
	}
	if c.Status != claim.StatusProcessing {
		w.log.Debug().Str("claim_id", c.ID.String()).Str("status", c.Status).Msg("claim no longer processing, skipping")
		return nil
	}

	docs, err := w.claims.Documents(ctx, c.ID)
	if err != nil {
		return err
	}

	patientName := ""
	if p, err := w.patients.Get(ctx, c.PatientID); err == nil {
		patientName = p.FullName()
	}

	var texts []string
	for _, d := range docs {
		text, err := w.readFile(ctx, d.FilePath)
		if err != nil {
			w.log.Warn().Err(err).Str("file", d.FileName).Msg("skipping unreadable document")
			continue
		}
		texts = append(texts, text)
	}

	res, err := w.collab.SynthesizeClaim(ctx, ai.ClaimSynthesisRequest{
		PatientName:   patientName,
		DocumentTexts: texts,
	})
	if err != nil {
		if job.Attempts >= job.MaxAttempts {
			if ferr := w.claims.FailSynthesis(ctx, c.ID, err.Error()); ferr != nil {
				return ferr
			}
			return nil
		}
		return fmt.Errorf("synthesis: %w", err)
	}

	synth := claim.SynthesisResult{
		PayerName:         res.PayerName,
		TotalChargeAmount: res.TotalChargeAmount,
		EligibilityStatus: w.patients.Eligibility(ctx, c.PatientID),
	}
	if res.DateOfService != nil {
		if dos, err := time.Parse("2006-01-02", *res.DateOfService); err == nil {
			synth.DateOfService = &dos
		}
	}
	source := "anthropic"
	for _, sl := range res.ServiceLines {
		units := sl.Units
		if units <= 0 {
			units = 1
		}
		line := &claim.ServiceLine{
			CPTCode:          sl.CPTCode,
			ICD10Codes:       sl.ICD10Codes,
			Modifiers:        sl.Modifiers,
			Units:            units,
			ChargeAmount:     sl.Charge,
			ConfidenceScore:  sl.Confidence,
			SuggestionSource: &source,
		}
		if sl.DiagnosisPointer != "" {
			dp := sl.DiagnosisPointer
			line.DiagnosisPointer = &dp
		}
		synth.ServiceLines = append(synth.ServiceLines, line)
	}
	for _, f := range res.ComplianceFlags {
		synth.ComplianceFlags = append(synth.ComplianceFlags, claim.ComplianceFlag{
			Level:   f.Level,
			Message: f.Message,
		})
	}
	return w.claims.FinishSynthesis(ctx, c.ID, synth)
}

// outcome weights: approved 0.5, denied 0.3, paid 0.2.
func (w *Worker) drawOutcome() string {
	w.mu.Lock()
	roll := w.rng.Float64()
	w.mu.Unlock()
	switch {
	case roll < 0.5:
		return claim.StatusApproved
	case roll < 0.8:
		return claim.StatusDenied
	default:
		return claim.StatusPaid
	}
}

func (w *Worker) simulateLatency(ctx context.Context) error {
	min, max := w.cfg.SimulateMinLatency, w.cfg.SimulateMaxLatency
	if max <= min {
		max = min
	}
	delay := min
	if max > min {
		w.mu.Lock()
		delay = min + time.Duration(w.rng.Int63n(int64(max-min)))
		w.mu.Unlock()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// SimulateOutcome sleeps a bounded random payer latency, draws the outcome
// and applies it. The claim status is re-checked after the sleep so a claim
// that moved on while the job was in flight is left alone.
func (w *Worker) SimulateOutcome(ctx context.Context, job *jobs.Job) error {
	var payload claim.SimulatePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := w.simulateLatency(ctx); err != nil {
		return err
	}

	c, err := w.claims.Get(ctx, payload.ClaimID)
	if err != nil {
		return err
	}
	if !c.CanSimulate() {
		w.log.Info().Str("claim_id", c.ID.String()).Str("status", c.Status).
			Msg("claim moved on while simulation was in flight, aborting")
		return nil
	}

	outcome := w.drawOutcome()

	var analysis *claim.DenialAnalysis
	if outcome == claim.StatusDenied {
		analysis = w.denialAnalysis(ctx, c)
	}

	updated, err := w.claims.ApplyOutcome(ctx, c.ID, outcome, analysis)
	if err != nil {
		if errors.Is(err, claim.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	w.log.Info().Str("claim_id", c.ID.String()).Str("outcome", updated.Status).Msg("outcome applied")
	return nil
}

func (w *Worker) denialAnalysis(ctx context.Context, c *claim.Claim) *claim.DenialAnalysis {
	req := ai.DenialAnalysisRequest{}
	if c.PayerName != nil {
		req.PayerName = *c.PayerName
	}
	if c.TotalChargeAmount != nil {
		req.ChargeAmount = *c.TotalChargeAmount
	}
	for _, l := range c.ServiceLines {
		req.CPTCodes = append(req.CPTCodes, l.CPTCode)
		req.ICD10Codes = append(req.ICD10Codes, l.ICD10Codes...)
	}

	res, err := w.collab.AnalyzeDenial(ctx, req)
	if err != nil {
		w.log.Warn().Err(err).Str("claim_id", c.ID.String()).Msg("denial analysis failed, using generic reason")
		return &claim.DenialAnalysis{
			DenialReason:      "Claim denied by payer",
			RootCause:         "Payer did not supply a machine-readable reason",
			RecommendedAction: "Review the claim against payer policy and resubmit",
		}
	}
	return &claim.DenialAnalysis{
		DenialReason:      res.DenialReason,
		RootCause:         res.RootCause,
		RecommendedAction: res.RecommendedAction,
		CARCCodes:         res.CARCCodes,
		RARCCodes:         res.RARCCodes,
	}
}

// ProcessDocument runs the inbox pipeline for one uploaded document.
func (w *Worker) ProcessDocument(ctx context.Context, job *jobs.Job) error {
	var payload orthopilot.ProcessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return w.inbox.Process(ctx, payload.DocumentID)
}

// ExtractBenefits pulls coverage details out of an uploaded policy document.
func (w *Worker) ExtractBenefits(ctx context.Context, job *jobs.Job) error {
	var payload patient.BenefitsExtractPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	doc, rc, err := w.patients.OpenDocument(ctx, payload.DocumentID)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read policy document: %w", err)
	}
	text := string(data)

	res, err := w.collab.ExtractBenefits(ctx, text)
	if err != nil {
		return fmt.Errorf("benefit extraction: %w", err)
	}

	now := time.Now().UTC()
	benefit := &patient.PolicyBenefit{
		PatientID:    payload.PatientID,
		PayerName:    res.PayerName,
		CopayAmount:  res.CopayAmount,
		Deductible:   res.Deductible,
		PolicyActive: res.PolicyActive,
		VerifiedAt:   &now,
	}
	if res.MemberID != "" {
		benefit.MemberID = &res.MemberID
	}
	if res.GroupNumber != "" {
		benefit.GroupNumber = &res.GroupNumber
	}
	if err := w.patients.RecordBenefits(ctx, benefit); err != nil {
		return err
	}
	return w.patients.SetDocumentText(ctx, doc.ID, text)
}

func (w *Worker) readFile(ctx context.Context, path string) (string, error) {
	rc, err := w.files.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
