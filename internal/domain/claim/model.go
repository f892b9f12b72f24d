package claim

import (
	"time"

	"github.com/google/uuid"
)

// Claim statuses. A claim moves draft -> submitted -> approved/denied/paid;
// processing is the transient state while the worker synthesizes a claim from
// uploaded documents.
const (
	StatusDraft      = "draft"
	StatusProcessing = "processing"
	StatusSubmitted  = "submitted"
	StatusApproved   = "approved"
	StatusDenied     = "denied"
	StatusPaid       = "paid"
)

// ValidStatuses lists every recognized claim status.
var ValidStatuses = map[string]bool{
	StatusDraft:      true,
	StatusProcessing: true,
	StatusSubmitted:  true,
	StatusApproved:   true,
	StatusDenied:     true,
	StatusPaid:       true,
}

// ComplianceFlag is an advisory raised during claim synthesis, stored as
// JSONB alongside the claim.
type ComplianceFlag struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Claim maps to the claim table.
type Claim struct {
	ID                          uuid.UUID        `db:"id" json:"id"`
	PatientID                   uuid.UUID        `db:"patient_id" json:"patient_id"`
	Status                      string           `db:"status" json:"status"`
	PayerName                   *string          `db:"payer_name" json:"payer_name,omitempty"`
	TotalChargeAmount           *float64         `db:"total_charge_amount" json:"total_charge_amount,omitempty"`
	PatientResponsibilityAmount *float64         `db:"patient_responsibility_amount" json:"patient_responsibility_amount,omitempty"`
	PayerPaidAmount             *float64         `db:"payer_paid_amount" json:"payer_paid_amount,omitempty"`
	DateOfService               *time.Time       `db:"date_of_service" json:"date_of_service,omitempty"`
	SubmissionDate              *time.Time       `db:"submission_date" json:"submission_date,omitempty"`
	AdjudicationDate            *time.Time       `db:"adjudication_date" json:"adjudication_date,omitempty"`
	EDITransactionID            *string          `db:"edi_transaction_id" json:"edi_transaction_id,omitempty"`
	EligibilityStatus           *string          `db:"eligibility_status" json:"eligibility_status,omitempty"`
	ComplianceFlags             []ComplianceFlag `db:"compliance_flags" json:"compliance_flags,omitempty"`
	DenialReason                *string          `db:"denial_reason" json:"denial_reason,omitempty"`
	DenialRootCause             *string          `db:"denial_root_cause" json:"denial_root_cause,omitempty"`
	RecommendedAction           *string          `db:"recommended_action" json:"recommended_action,omitempty"`
	CARCCodes                   []string         `db:"carc_codes" json:"carc_codes,omitempty"`
	RARCCodes                   []string         `db:"rarc_codes" json:"rarc_codes,omitempty"`
	ProcessingError             *string          `db:"processing_error" json:"processing_error,omitempty"`
	CreatedAt                   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                   time.Time        `db:"updated_at" json:"updated_at"`

	ServiceLines []*ServiceLine `db:"-" json:"service_lines,omitempty"`
}

// ServiceLine maps to the service_line table: one billed procedure on a claim.
type ServiceLine struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ClaimID          uuid.UUID `db:"claim_id" json:"claim_id"`
	LineNumber       int       `db:"line_number" json:"line_number"`
	CPTCode          string    `db:"cpt_code" json:"cpt_code"`
	Modifiers        []string  `db:"modifiers" json:"modifiers,omitempty"`
	ICD10Codes       []string  `db:"icd10_codes" json:"icd10_codes,omitempty"`
	DiagnosisPointer *string   `db:"diagnosis_pointer" json:"diagnosis_pointer,omitempty"`
	Units            int       `db:"units" json:"units"`
	ChargeAmount     *float64  `db:"charge_amount" json:"charge_amount,omitempty"`
	ConfidenceScore  *float64  `db:"confidence_score" json:"confidence_score,omitempty"`
	SuggestionSource *string   `db:"suggestion_source" json:"suggestion_source,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Document maps to the claim_document table: a source document attached to a
// claim at upload time.
type Document struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ClaimID    uuid.UUID `db:"claim_id" json:"claim_id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	FilePath   string    `db:"file_path" json:"file_path"`
	Purpose    string    `db:"purpose" json:"purpose"`
	ParsedText *string   `db:"parsed_text" json:"parsed_text,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
