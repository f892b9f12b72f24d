package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/revclarity/revclarity/internal/domain/claim"
	"github.com/revclarity/revclarity/internal/domain/orthopilot"
	"github.com/revclarity/revclarity/internal/domain/patient"
	"github.com/revclarity/revclarity/internal/platform/ai"
	"github.com/revclarity/revclarity/internal/platform/db"
	"github.com/revclarity/revclarity/internal/platform/jobs"
	"github.com/revclarity/revclarity/internal/platform/storage"
)

// -- in-memory repositories --

type claimRepo struct {
	claims map[uuid.UUID]*claim.Claim
	lines  map[uuid.UUID][]*claim.ServiceLine
}

func newClaimRepo() *claimRepo {
	return &claimRepo{
		claims: make(map[uuid.UUID]*claim.Claim),
		lines:  make(map[uuid.UUID][]*claim.ServiceLine),
	}
}

func (m *claimRepo) Create(_ context.Context, c *claim.Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *claimRepo) GetByID(_ context.Context, id uuid.UUID) (*claim.Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, claim.ErrClaimNotFound
	}
	cp := *c
	cp.ServiceLines = m.lines[id]
	return &cp, nil
}

func (m *claimRepo) Update(_ context.Context, c *claim.Claim) error {
	if _, ok := m.claims[c.ID]; !ok {
		return claim.ErrClaimNotFound
	}
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *claimRepo) List(_ context.Context, _ claim.ListFilter, _, _ int) ([]*claim.Claim, int, error) {
	return nil, 0, nil
}

func (m *claimRepo) ReplaceServiceLines(_ context.Context, claimID uuid.UUID, lines []*claim.ServiceLine) error {
	m.lines[claimID] = lines
	return nil
}

type claimDocRepo struct {
	docs map[uuid.UUID]*claim.Document
}

func newClaimDocRepo() *claimDocRepo {
	return &claimDocRepo{docs: make(map[uuid.UUID]*claim.Document)}
}

func (m *claimDocRepo) Create(_ context.Context, d *claim.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.docs[d.ID] = d
	return nil
}

func (m *claimDocRepo) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*claim.Document, error) {
	var docs []*claim.Document
	for _, d := range m.docs {
		if d.ClaimID == claimID {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (m *claimDocRepo) SetParsedText(_ context.Context, id uuid.UUID, text string) error {
	if d, ok := m.docs[id]; ok {
		d.ParsedText = &text
	}
	return nil
}

type patientRepo struct {
	patients map[uuid.UUID]*patient.Patient
}

func newPatientRepo() *patientRepo {
	return &patientRepo{patients: make(map[uuid.UUID]*patient.Patient)}
}

func (m *patientRepo) Create(_ context.Context, p *patient.Patient) error {
	p.ID = uuid.New()
	m.patients[p.ID] = p
	return nil
}

func (m *patientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (m *patientRepo) Update(_ context.Context, p *patient.Patient) error {
	m.patients[p.ID] = p
	return nil
}

func (m *patientRepo) List(_ context.Context, _, _ int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

type benefitRepo struct {
	benefits map[uuid.UUID]*patient.PolicyBenefit
}

func newBenefitRepo() *benefitRepo {
	return &benefitRepo{benefits: make(map[uuid.UUID]*patient.PolicyBenefit)}
}

func (m *benefitRepo) Upsert(_ context.Context, b *patient.PolicyBenefit) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.benefits[b.PatientID] = b
	return nil
}

func (m *benefitRepo) GetByPatient(_ context.Context, patientID uuid.UUID) (*patient.PolicyBenefit, error) {
	b, ok := m.benefits[patientID]
	if !ok {
		return nil, patient.ErrBenefitNotFound
	}
	return b, nil
}

type patientDocRepo struct {
	docs map[uuid.UUID]*patient.Document
}

func newPatientDocRepo() *patientDocRepo {
	return &patientDocRepo{docs: make(map[uuid.UUID]*patient.Document)}
}

func (m *patientDocRepo) Create(_ context.Context, d *patient.Document) error {
	d.ID = uuid.New()
	m.docs[d.ID] = d
	return nil
}

func (m *patientDocRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, patient.ErrDocumentNotFound
	}
	return d, nil
}

func (m *patientDocRepo) ListByPatient(_ context.Context, _ uuid.UUID, _, _ int) ([]*patient.Document, int, error) {
	return nil, 0, nil
}

func (m *patientDocRepo) SetParsedText(_ context.Context, id uuid.UUID, text string) error {
	d, ok := m.docs[id]
	if !ok {
		return patient.ErrDocumentNotFound
	}
	d.ParsedText = &text
	return nil
}

type inboxRepo struct {
	docs map[uuid.UUID]*orthopilot.Document
}

func newInboxRepo() *inboxRepo {
	return &inboxRepo{docs: make(map[uuid.UUID]*orthopilot.Document)}
}

func (m *inboxRepo) Create(_ context.Context, d *orthopilot.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.docs[d.ID] = d
	return nil
}

func (m *inboxRepo) GetByID(_ context.Context, id uuid.UUID) (*orthopilot.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, orthopilot.ErrDocumentNotFound
	}
	return d, nil
}

func (m *inboxRepo) List(_ context.Context, _ string, _, _ int) ([]*orthopilot.Document, int, error) {
	return nil, 0, nil
}

func (m *inboxRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	d, ok := m.docs[id]
	if !ok {
		return orthopilot.ErrDocumentNotFound
	}
	if d.Status != orthopilot.StatusPending {
		return orthopilot.ErrNotPending
	}
	d.Status = orthopilot.StatusProcessing
	return nil
}

func (m *inboxRepo) MarkCompleted(_ context.Context, id uuid.UUID, classification string, parsedText *string, extraction *orthopilot.Extraction) error {
	d := m.docs[id]
	d.Status = orthopilot.StatusCompleted
	d.Classification = classification
	d.ParsedText = parsedText
	d.Extraction = extraction
	return nil
}

func (m *inboxRepo) MarkError(_ context.Context, id uuid.UUID, msg string) error {
	d := m.docs[id]
	d.Status = orthopilot.StatusError
	d.ProcessingError = &msg
	return nil
}

// -- fixture --

type fixture struct {
	worker   *Worker
	claims   *claim.Service
	crepo    *claimRepo
	patients *patient.Service
	prepo    *patientRepo
	brepo    *benefitRepo
	inbox    *orthopilot.Service
	irepo    *inboxRepo
	files    *storage.MemStore
	queue    *jobs.MemQueue
}

func newFixture() *fixture {
	files := storage.NewMemStore()
	queue := jobs.NewMemQueue()
	log := zerolog.Nop()
	stub := ai.NewStubCollaborator()

	crepo := newClaimRepo()
	prepo := newPatientRepo()
	brepo := newBenefitRepo()
	irepo := newInboxRepo()

	patients := patient.NewService(prepo, brepo, newPatientDocRepo(), files, queue, log)
	claims := claim.NewService(crepo, newClaimDocRepo(), files, queue, db.NopTransactor{}, log)
	inbox := orthopilot.NewService(irepo, files, queue, stub, log)

	w := New(claims, patients, inbox, stub, files, Config{
		SimulateMinLatency: 0,
		SimulateMaxLatency: time.Millisecond,
	}, log)

	return &fixture{
		worker: w, claims: claims, crepo: crepo,
		patients: patients, prepo: prepo, brepo: brepo,
		inbox: inbox, irepo: irepo, files: files, queue: queue,
	}
}

func seedClaim(t *testing.T, f *fixture, status string) *claim.Claim {
	t.Helper()
	payer := "Aetna"
	charge := 425.00
	c := &claim.Claim{
		ID:                uuid.New(),
		PatientID:         uuid.New(),
		Status:            status,
		PayerName:         &payer,
		TotalChargeAmount: &charge,
	}
	if err := f.crepo.Create(context.Background(), c); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	return c
}

func simulateJob(t *testing.T, claimID uuid.UUID) *jobs.Job {
	t.Helper()
	job, err := jobs.NewJob(jobs.TypeClaimSimulate, jobs.Key(jobs.TypeClaimSimulate, claimID),
		claim.SimulatePayload{ClaimID: claimID})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	return job
}

// -- tests --

func TestSimulateOutcome_AppliesExactlyOneTerminalMutation(t *testing.T) {
	f := newFixture()
	c := seedClaim(t, f, claim.StatusSubmitted)

	if err := f.worker.SimulateOutcome(context.Background(), simulateJob(t, c.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := f.claims.Get(context.Background(), c.ID)
	switch got.Status {
	case claim.StatusApproved, claim.StatusDenied, claim.StatusPaid:
	default:
		t.Fatalf("expected a terminal outcome, got %s", got.Status)
	}
	if got.AdjudicationDate == nil {
		t.Error("adjudication date must be set")
	}
	if got.PayerPaidAmount == nil {
		t.Fatal("payer paid amount must be set")
	}

	switch got.Status {
	case claim.StatusDenied:
		if *got.PayerPaidAmount != 0 {
			t.Errorf("denied claims pay $0, got %v", *got.PayerPaidAmount)
		}
		if got.DenialReason == nil || got.RecommendedAction == nil {
			t.Error("denied claims must carry a denial analysis")
		}
		if len(got.CARCCodes) == 0 {
			t.Error("denied claims must carry CARC codes")
		}
	case claim.StatusPaid:
		if *got.PayerPaidAmount != 425.00 {
			t.Errorf("paid claims receive the full charge, got %v", *got.PayerPaidAmount)
		}
	case claim.StatusApproved:
		if *got.PayerPaidAmount <= 0 || *got.PayerPaidAmount >= 425.00 {
			t.Errorf("approved claims receive a discounted amount, got %v", *got.PayerPaidAmount)
		}
	}
}

func TestSimulateOutcome_OutcomeDistribution(t *testing.T) {
	f := newFixture()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c := seedClaim(t, f, claim.StatusSubmitted)
		if err := f.worker.SimulateOutcome(context.Background(), simulateJob(t, c.ID)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := f.claims.Get(context.Background(), c.ID)
		seen[got.Status] = true
	}
	for _, want := range []string{claim.StatusApproved, claim.StatusDenied, claim.StatusPaid} {
		if !seen[want] {
			t.Errorf("expected %s to occur across 200 draws", want)
		}
	}
}

func TestSimulateOutcome_AbortsWhenClaimMovedOn(t *testing.T) {
	f := newFixture()
	c := seedClaim(t, f, claim.StatusPaid)

	if err := f.worker.SimulateOutcome(context.Background(), simulateJob(t, c.ID)); err != nil {
		t.Fatalf("stale job must be a silent no-op, got %v", err)
	}
	got, _ := f.claims.Get(context.Background(), c.ID)
	if got.Status != claim.StatusPaid || got.AdjudicationDate != nil {
		t.Error("settled claim must not be mutated by a stale simulation")
	}
}

func TestProcessClaim_SynthesizesDraft(t *testing.T) {
	f := newFixture()

	p := &patient.Patient{FirstName: "Jane", LastName: "Doe"}
	if err := f.patients.Create(context.Background(), p); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	c, err := f.claims.Upload(context.Background(), p.ID, "Unknown", []claim.UploadFile{
		{FileName: "encounter.txt", Purpose: "ENCOUNTER_NOTE", Content: strings.NewReader("knee arthroscopy note")},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	job, err := f.queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := f.worker.ProcessClaim(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := f.claims.Get(context.Background(), c.ID)
	if got.Status != claim.StatusDraft {
		t.Errorf("expected draft after synthesis, got %s", got.Status)
	}
	if got.PayerName == nil || got.TotalChargeAmount == nil {
		t.Error("synthesized claims carry payer and charge")
	}
	if len(got.ServiceLines) == 0 {
		t.Error("expected suggested service lines")
	}
}

func TestProcessClaim_SkipsNonProcessing(t *testing.T) {
	f := newFixture()
	c := seedClaim(t, f, claim.StatusDraft)

	job, err := jobs.NewJob(jobs.TypeClaimProcess, "", claim.ProcessPayload{ClaimID: c.ID})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := f.worker.ProcessClaim(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := f.claims.Get(context.Background(), c.ID)
	if got.Status != claim.StatusDraft {
		t.Error("non-processing claims must be left alone")
	}
}

func TestExtractBenefits_RecordsPolicy(t *testing.T) {
	f := newFixture()

	p := &patient.Patient{FirstName: "Jane", LastName: "Doe"}
	if err := f.patients.Create(context.Background(), p); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	doc, err := f.patients.UploadDocument(context.Background(), p.ID, "policy.pdf", patient.PurposePolicyDoc,
		strings.NewReader("Aetna PPO, member W123, coverage effective 2025-01-01"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	job, err := f.queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := f.worker.ExtractBenefits(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := f.patients.Benefits(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("expected recorded benefits: %v", err)
	}
	if b.PayerName == "" || !b.PolicyActive {
		t.Errorf("unexpected benefit record: %+v", b)
	}
	if f.patients.Eligibility(context.Background(), p.ID) != patient.EligibilityActive {
		t.Error("expected Active eligibility after extraction")
	}

	stored, _, err := f.patients.OpenDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("open document: %v", err)
	}
	if stored.ParsedText == nil {
		t.Error("expected parsed text recorded on the document")
	}
}

func TestProcessDocument_RunsInboxPipeline(t *testing.T) {
	f := newFixture()

	d, err := f.inbox.Upload(context.Background(), "referral_fax.pdf", strings.NewReader("referral"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	job, err := f.queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := f.worker.ProcessDocument(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := f.inbox.Get(context.Background(), d.ID)
	if got.Status != orthopilot.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
	if got.Classification != orthopilot.ClassificationReferralFax {
		t.Errorf("expected REFERRAL_FAX, got %s", got.Classification)
	}
}
