package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	AddressLine *string    `db:"address_line" json:"address_line,omitempty"`
	City        *string    `db:"city" json:"city,omitempty"`
	State       *string    `db:"state" json:"state,omitempty"`
	Zip         *string    `db:"zip" json:"zip,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "First Last" for display and AI prompts.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Eligibility statuses surfaced on claims.
const (
	EligibilityActive   = "Active"
	EligibilityInactive = "Inactive - No Policy on File"
	EligibilityUnknown  = "Unknown"
)

// PolicyBenefit maps to the policy_benefit table: insurance coverage details
// extracted from a patient's policy documents.
type PolicyBenefit struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	PayerName    string     `db:"payer_name" json:"payer_name"`
	MemberID     *string    `db:"member_id" json:"member_id,omitempty"`
	GroupNumber  *string    `db:"group_number" json:"group_number,omitempty"`
	CopayAmount  *float64   `db:"copay_amount" json:"copay_amount,omitempty"`
	Deductible   *float64   `db:"deductible" json:"deductible,omitempty"`
	PolicyActive bool       `db:"policy_active" json:"policy_active"`
	VerifiedAt   *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Document purposes for patient uploads.
const (
	PurposeIntakeForm    = "INTAKE_FORM"
	PurposePolicyDoc     = "POLICY_DOC"
	PurposeEncounterNote = "ENCOUNTER_NOTE"
	PurposeOther         = "OTHER"
)

// ValidPurposes lists accepted patient document purposes.
var ValidPurposes = map[string]bool{
	PurposeIntakeForm:    true,
	PurposePolicyDoc:     true,
	PurposeEncounterNote: true,
	PurposeOther:         true,
}

// Document maps to the patient_document table.
type Document struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	FilePath   string    `db:"file_path" json:"file_path"`
	Purpose    string    `db:"purpose" json:"purpose"`
	ParsedText *string   `db:"parsed_text" json:"parsed_text,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
