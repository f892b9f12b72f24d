package claim

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/revclarity/revclarity/internal/platform/db"
	"github.com/revclarity/revclarity/internal/platform/jobs"
	"github.com/revclarity/revclarity/internal/platform/storage"
)

type mockRepo struct {
	claims map[uuid.UUID]*Claim
	lines  map[uuid.UUID][]*ServiceLine
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		claims: make(map[uuid.UUID]*Claim),
		lines:  make(map[uuid.UUID][]*ServiceLine),
	}
}

func (m *mockRepo) Create(_ context.Context, c *Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	cp := *c
	cp.ServiceLines = m.lines[id]
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, c *Claim) error {
	if _, ok := m.claims[c.ID]; !ok {
		return ErrClaimNotFound
	}
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*Claim, int, error) {
	var items []*Claim
	for _, c := range m.claims {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.PatientID != nil && c.PatientID != *filter.PatientID {
			continue
		}
		cp := *c
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func (m *mockRepo) ReplaceServiceLines(_ context.Context, claimID uuid.UUID, lines []*ServiceLine) error {
	m.lines[claimID] = lines
	return nil
}

type mockDocRepo struct {
	docs map[uuid.UUID]*Document
}

func newMockDocRepo() *mockDocRepo {
	return &mockDocRepo{docs: make(map[uuid.UUID]*Document)}
}

func (m *mockDocRepo) Create(_ context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.docs[d.ID] = d
	return nil
}

func (m *mockDocRepo) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*Document, error) {
	var docs []*Document
	for _, d := range m.docs {
		if d.ClaimID == claimID {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (m *mockDocRepo) SetParsedText(_ context.Context, id uuid.UUID, text string) error {
	d, ok := m.docs[id]
	if !ok {
		return errors.New("claim document not found")
	}
	d.ParsedText = &text
	return nil
}

func newTestService() (*Service, *mockRepo, *jobs.MemQueue) {
	repo := newMockRepo()
	queue := jobs.NewMemQueue()
	svc := NewService(repo, newMockDocRepo(), storage.NewMemStore(), queue, db.NopTransactor{}, zerolog.Nop())
	return svc, repo, queue
}

func seedClaim(t *testing.T, repo *mockRepo, status string) *Claim {
	t.Helper()
	payer := "Aetna"
	charge := 425.00
	c := &Claim{
		ID:                uuid.New(),
		PatientID:         uuid.New(),
		Status:            status,
		PayerName:         &payer,
		TotalChargeAmount: &charge,
	}
	if status == StatusDenied {
		reason := "Prior authorization missing"
		paid := 0.0
		c.DenialReason = &reason
		c.PayerPaidAmount = &paid
		sub := time.Now().UTC().Add(-48 * time.Hour)
		adj := time.Now().UTC().Add(-24 * time.Hour)
		c.SubmissionDate = &sub
		c.AdjudicationDate = &adj
	}
	if status == StatusSubmitted {
		sub := time.Now().UTC().Add(-time.Hour)
		c.SubmissionDate = &sub
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	return c
}

func TestSubmit_SetsSubmissionDateAndLeavesAmounts(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusDraft)

	got, err := svc.Submit(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusSubmitted {
		t.Errorf("expected submitted, got %s", got.Status)
	}
	if got.SubmissionDate == nil {
		t.Error("expected submission_date to be set")
	}
	if got.AdjudicationDate != nil {
		t.Error("adjudication_date must stay nil until adjudication")
	}
	if got.PayerPaidAmount != nil {
		t.Error("payer_paid_amount must stay nil until adjudication")
	}
	if *got.TotalChargeAmount != 425.00 {
		t.Errorf("total charge changed: %v", *got.TotalChargeAmount)
	}
}

func TestSubmit_RequiresPayerAndCharge(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusDraft)
	stored := repo.claims[c.ID]
	stored.PayerName = nil

	if _, err := svc.Submit(context.Background(), c.ID); err == nil {
		t.Fatal("expected validation error without payer_name")
	}
}

func TestSimulateOutcome_OnDraftRejectedWithoutMutation(t *testing.T) {
	svc, repo, queue := newTestService()
	c := seedClaim(t, repo, StatusDraft)

	err := svc.SimulateOutcome(context.Background(), c.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != StatusDraft || got.AdjudicationDate != nil {
		t.Error("claim must be unchanged after a rejected simulation")
	}
	if _, err := queue.Dequeue(context.Background()); !errors.Is(err, jobs.ErrNoJobs) {
		t.Error("no job may be queued for a rejected simulation")
	}
}

func TestSimulateOutcome_OneInFlightPerClaim(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusSubmitted)

	if err := svc.SimulateOutcome(context.Background(), c.ID); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	err := svc.SimulateOutcome(context.Background(), c.ID)
	if !errors.Is(err, ErrSimulationInFlight) {
		t.Fatalf("expected ErrSimulationInFlight, got %v", err)
	}
}

func TestSimulateOutcome_GuardClearsAfterCompletion(t *testing.T) {
	svc, repo, queue := newTestService()
	c := seedClaim(t, repo, StatusSubmitted)

	if err := svc.SimulateOutcome(context.Background(), c.ID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	job, err := queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if err := queue.Complete(context.Background(), job.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if err := svc.SimulateOutcome(context.Background(), c.ID); err != nil {
		t.Fatalf("expected guard released after completion, got %v", err)
	}
}

func TestResubmit_ClearsDenialFieldsKeepsSubmissionDate(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusDenied)
	originalSubmission := *c.SubmissionDate

	got, err := svc.Resubmit(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusSubmitted {
		t.Errorf("expected submitted, got %s", got.Status)
	}
	if got.DenialReason != nil || got.DenialRootCause != nil || got.RecommendedAction != nil {
		t.Error("denial fields must be cleared on resubmission")
	}
	if len(got.CARCCodes) != 0 || len(got.RARCCodes) != 0 {
		t.Error("CARC/RARC codes must be cleared on resubmission")
	}
	if got.AdjudicationDate != nil {
		t.Error("adjudication_date must be nil while the claim is submitted")
	}
	if got.PayerPaidAmount != nil {
		t.Error("payer_paid_amount must be cleared on resubmission")
	}
	if got.SubmissionDate == nil || !got.SubmissionDate.Equal(originalSubmission) {
		t.Error("resubmission must retain the original submission date")
	}
}

func TestResubmit_OnlyFromDenied(t *testing.T) {
	svc, repo, _ := newTestService()
	for _, status := range []string{StatusDraft, StatusSubmitted, StatusApproved, StatusPaid} {
		c := seedClaim(t, repo, status)
		if _, err := svc.Resubmit(context.Background(), c.ID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("resubmit from %s: expected ErrInvalidTransition, got %v", status, err)
		}
	}
}

func TestUpdate_EditGate(t *testing.T) {
	svc, repo, _ := newTestService()
	payer := "Cigna"

	for _, status := range []string{StatusProcessing, StatusSubmitted, StatusApproved, StatusPaid} {
		c := seedClaim(t, repo, status)
		_, err := svc.Update(context.Background(), c.ID, UpdateInput{PayerName: &payer})
		if !errors.Is(err, ErrNotEditable) {
			t.Errorf("edit in %s: expected ErrNotEditable, got %v", status, err)
		}
	}

	for _, status := range []string{StatusDraft, StatusDenied} {
		c := seedClaim(t, repo, status)
		got, err := svc.Update(context.Background(), c.ID, UpdateInput{PayerName: &payer})
		if err != nil {
			t.Fatalf("edit in %s: unexpected error: %v", status, err)
		}
		if *got.PayerName != "Cigna" {
			t.Errorf("edit in %s: payer not updated", status)
		}
		if got.Status != status {
			t.Errorf("edit must not change status, got %s", got.Status)
		}
	}
}

func TestApplyOutcome_DeniedRequiresAnalysisAndZeroPaid(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusSubmitted)

	if _, err := svc.ApplyOutcome(context.Background(), c.ID, StatusDenied, nil); err == nil {
		t.Fatal("expected error when denial analysis is missing")
	}

	got, err := svc.ApplyOutcome(context.Background(), c.ID, StatusDenied, &DenialAnalysis{
		DenialReason:      "Service not covered",
		RootCause:         "Missing prior authorization",
		RecommendedAction: "Obtain retro-auth and resubmit",
		CARCCodes:         []string{"197"},
		RARCCodes:         []string{"N210"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusDenied {
		t.Errorf("expected denied, got %s", got.Status)
	}
	if got.PayerPaidAmount == nil || *got.PayerPaidAmount != 0 {
		t.Error("denied claims must record a $0 payer payment")
	}
	if got.DenialReason == nil || got.AdjudicationDate == nil {
		t.Error("denied claims must carry a denial reason and adjudication date")
	}
}

func TestApplyOutcome_PaidAndApprovedAmounts(t *testing.T) {
	svc, repo, _ := newTestService()

	c := seedClaim(t, repo, StatusSubmitted)
	got, err := svc.ApplyOutcome(context.Background(), c.ID, StatusPaid, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *got.PayerPaidAmount != 425.00 {
		t.Errorf("paid outcome must pay the full charge, got %v", *got.PayerPaidAmount)
	}

	c = seedClaim(t, repo, StatusSubmitted)
	got, err = svc.ApplyOutcome(context.Background(), c.ID, StatusApproved, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *got.PayerPaidAmount >= 425.00 || *got.PayerPaidAmount <= 0 {
		t.Errorf("approved outcome must pay a discounted amount, got %v", *got.PayerPaidAmount)
	}
}

func TestApplyOutcome_AbortsWhenStatusMovedOn(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusPaid)

	_, err := svc.ApplyOutcome(context.Background(), c.ID, StatusApproved, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on a settled claim, got %v", err)
	}
}

func TestUpload_CreatesProcessingClaimAndQueuesJob(t *testing.T) {
	svc, repo, queue := newTestService()
	pid := uuid.New()

	c, err := svc.Upload(context.Background(), pid, "Active", []UploadFile{
		{FileName: "encounter.pdf", Purpose: "ENCOUNTER_NOTE", Content: strings.NewReader("note text")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", c.Status)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.EligibilityStatus == nil || *got.EligibilityStatus != "Active" {
		t.Error("expected eligibility captured at upload")
	}

	job, err := queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("expected a queued job: %v", err)
	}
	if job.Type != jobs.TypeClaimProcess {
		t.Errorf("expected %s, got %s", jobs.TypeClaimProcess, job.Type)
	}
}

func TestFinishSynthesis_MovesToDraft(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusProcessing)

	payer := "UnitedHealthcare"
	charge := 612.50
	err := svc.FinishSynthesis(context.Background(), c.ID, SynthesisResult{
		PayerName:         &payer,
		TotalChargeAmount: &charge,
		EligibilityStatus: "Active",
		ServiceLines: []*ServiceLine{
			{CPTCode: "29881", ICD10Codes: []string{"S83.241A"}, Units: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != StatusDraft {
		t.Errorf("expected draft, got %s", got.Status)
	}
	if *got.PayerName != "UnitedHealthcare" || *got.TotalChargeAmount != 612.50 {
		t.Error("synthesized fields not applied")
	}
	if len(got.ServiceLines) != 1 {
		t.Errorf("expected 1 service line, got %d", len(got.ServiceLines))
	}
}

func TestFailSynthesis_MovesToDeniedWithReason(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusProcessing)

	if err := svc.FailSynthesis(context.Background(), c.ID, "no parseable documents"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != StatusDenied {
		t.Errorf("expected denied, got %s", got.Status)
	}
	if got.DenialReason == nil || got.ProcessingError == nil {
		t.Error("failed synthesis must record a denial reason and processing error")
	}
}

// recordingTx wraps each WithinTx call so tests can see whether writes were
// grouped and whether the group reported failure.
type recordingTx struct {
	calls  int
	failed bool
}

func (r *recordingTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	r.calls++
	err := fn(ctx)
	if err != nil {
		r.failed = true
	}
	return err
}

type failingLineRepo struct {
	*mockRepo
}

func (f *failingLineRepo) ReplaceServiceLines(context.Context, uuid.UUID, []*ServiceLine) error {
	return errors.New("service_line write refused")
}

func TestUpdate_FieldAndLineWritesShareOneTransaction(t *testing.T) {
	repo := newMockRepo()
	tx := &recordingTx{}
	svc := NewService(repo, newMockDocRepo(), storage.NewMemStore(), jobs.NewMemQueue(), tx, zerolog.Nop())
	c := seedClaim(t, repo, StatusDraft)

	payer := "Cigna"
	_, err := svc.Update(context.Background(), c.ID, UpdateInput{
		PayerName:    &payer,
		ServiceLines: []*ServiceLine{{CPTCode: "99213", Units: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.calls != 1 {
		t.Errorf("expected one transaction for field and line writes, got %d", tx.calls)
	}
	if tx.failed {
		t.Error("successful update must commit")
	}
}

func TestUpdate_LineWriteFailureRollsBackTransaction(t *testing.T) {
	repo := newMockRepo()
	tx := &recordingTx{}
	svc := NewService(&failingLineRepo{repo}, newMockDocRepo(), storage.NewMemStore(), jobs.NewMemQueue(), tx, zerolog.Nop())
	c := seedClaim(t, repo, StatusDraft)

	payer := "Cigna"
	_, err := svc.Update(context.Background(), c.ID, UpdateInput{
		PayerName:    &payer,
		ServiceLines: []*ServiceLine{{CPTCode: "99213", Units: 1}},
	})
	if err == nil {
		t.Fatal("expected the line write failure to surface")
	}
	if !tx.failed {
		t.Error("the failed write must abort the shared transaction")
	}
}

func TestUpdate_SplitsDelimitedDiagnosisCodes(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, repo, StatusDraft)

	_, err := svc.Update(context.Background(), c.ID, UpdateInput{
		ServiceLines: []*ServiceLine{{
			CPTCode:    "29881",
			ICD10Codes: []string{"M17.11, M25.561", "", " S83.241A "},
			Modifiers:  []string{"LT, 59"},
			Units:      1,
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if len(got.ServiceLines) != 1 {
		t.Fatalf("expected 1 service line, got %d", len(got.ServiceLines))
	}
	wantICD := []string{"M17.11", "M25.561", "S83.241A"}
	gotICD := got.ServiceLines[0].ICD10Codes
	if len(gotICD) != len(wantICD) {
		t.Fatalf("expected %v, got %v", wantICD, gotICD)
	}
	for i := range wantICD {
		if gotICD[i] != wantICD[i] {
			t.Errorf("code %d: expected %q, got %q", i, wantICD[i], gotICD[i])
		}
	}
	if mods := got.ServiceLines[0].Modifiers; len(mods) != 2 || mods[0] != "LT" || mods[1] != "59" {
		t.Errorf("expected modifiers split to [LT 59], got %v", mods)
	}
}
