// Package ai defines the AI collaborator boundary: claim synthesis from
// intake documents, denial analysis, referral document intelligence, policy
// benefit extraction, and the OrthoPilot chat assistant. The live
// implementation calls the Anthropic API; the stub produces deterministic
// results for development and tests.
package ai

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("model returned an empty response")

// ServiceLineSuggestion is one AI-suggested billable line.
type ServiceLineSuggestion struct {
	CPTCode          string   `json:"cpt_code"`
	ICD10Codes       []string `json:"icd10_codes"`
	Modifiers        []string `json:"modifiers"`
	Units            int      `json:"units"`
	Charge           *float64 `json:"charge,omitempty"`
	DiagnosisPointer string   `json:"diagnosis_pointer"`
	Confidence       *float64 `json:"confidence,omitempty"`
}

// ComplianceFlag marks a coding or documentation concern on a claim.
type ComplianceFlag struct {
	Level   string `json:"level"` // error | warning | info
	Message string `json:"message"`
}

// ClaimSynthesisRequest carries everything the model needs to draft a claim.
type ClaimSynthesisRequest struct {
	PatientName   string
	DocumentTexts []string
}

// ClaimSynthesisResult is the drafted claim content.
type ClaimSynthesisResult struct {
	PayerName         *string                 `json:"payer_name,omitempty"`
	TotalChargeAmount *float64                `json:"total_charge_amount,omitempty"`
	DateOfService     *string                 `json:"date_of_service,omitempty"` // YYYY-MM-DD
	ServiceLines      []ServiceLineSuggestion `json:"service_lines"`
	ComplianceFlags   []ComplianceFlag        `json:"compliance_flags"`
}

// DenialAnalysisRequest summarizes a denied claim for root-cause analysis.
type DenialAnalysisRequest struct {
	PayerName    string
	CPTCodes     []string
	ICD10Codes   []string
	ChargeAmount float64
}

// DenialAnalysis explains a denial and how to fix it.
type DenialAnalysis struct {
	DenialReason      string   `json:"denial_reason"`
	RootCause         string   `json:"root_cause"`
	RecommendedAction string   `json:"recommended_action"`
	CARCCodes         []string `json:"carc_codes"`
	RARCCodes         []string `json:"rarc_codes"`
}

// Document classifications produced by ProcessDocument.
const (
	ClassUnclassified = "UNCLASSIFIED"
	ClassReferralFax  = "REFERRAL_FAX"
	ClassDictatedNote = "DICTATED_NOTE"
	ClassModMedNote   = "MODMED_NOTE"
	ClassNonReferral  = "NON_REFERRAL"
)

// DocumentRequest carries an inbox document for classification + extraction.
type DocumentRequest struct {
	FileName string
	Text     string
}

// ReferralExtraction holds fields pulled from a referral fax.
type ReferralExtraction struct {
	PatientName       string `json:"patient_name"`
	PatientDOB        string `json:"patient_dob"`
	ReferringProvider string `json:"referring_provider"`
	ReferralReason    string `json:"referral_reason"`
	InsuranceCarrier  string `json:"insurance_carrier"`
	Urgency           string `json:"urgency"`
}

// DictatedNoteExtraction holds fields pulled from a dictated visit note.
type DictatedNoteExtraction struct {
	PatientName      string   `json:"patient_name"`
	VisitDate        string   `json:"visit_date"`
	Assessment       string   `json:"assessment"`
	SuggestedActions []string `json:"suggested_actions"`
}

// ModMedNoteExtraction holds fields pulled from a ModMed encounter note.
type ModMedNoteExtraction struct {
	PatientName    string   `json:"patient_name"`
	EncounterID    string   `json:"encounter_id"`
	CPTSuggestions []string `json:"cpt_suggestions"`
	ICDSuggestions []string `json:"icd_suggestions"`
}

// DocumentResult is the classification plus the variant payload matching it.
// Exactly one of the extraction pointers is set, or none for NON_REFERRAL.
type DocumentResult struct {
	Classification string                  `json:"classification"`
	Referral       *ReferralExtraction     `json:"referral,omitempty"`
	DictatedNote   *DictatedNoteExtraction `json:"dictated_note,omitempty"`
	ModMedNote     *ModMedNoteExtraction   `json:"modmed_note,omitempty"`
}

// BenefitExtraction holds policy benefit fields pulled from an insurance
// document.
type BenefitExtraction struct {
	PayerName    string   `json:"payer_name"`
	MemberID     string   `json:"member_id"`
	GroupNumber  string   `json:"group_number"`
	CopayAmount  *float64 `json:"copay_amount,omitempty"`
	Deductible   *float64 `json:"deductible,omitempty"`
	PolicyActive bool     `json:"policy_active"`
}

// ChatMessage is one turn of the OrthoPilot chat.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Collaborator is the AI boundary consumed by workers and handlers.
type Collaborator interface {
	SynthesizeClaim(ctx context.Context, req ClaimSynthesisRequest) (*ClaimSynthesisResult, error)
	AnalyzeDenial(ctx context.Context, req DenialAnalysisRequest) (*DenialAnalysis, error)
	ProcessDocument(ctx context.Context, req DocumentRequest) (*DocumentResult, error)
	ExtractBenefits(ctx context.Context, text string) (*BenefitExtraction, error)
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}
