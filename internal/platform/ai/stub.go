package ai

import (
	"context"
	"strings"
)

// StubCollaborator produces deterministic results without network calls.
// Classification is keyword-driven so development uploads behave predictably.
type StubCollaborator struct{}

// NewStubCollaborator returns a StubCollaborator.
func NewStubCollaborator() *StubCollaborator {
	return &StubCollaborator{}
}

func (s *StubCollaborator) SynthesizeClaim(_ context.Context, req ClaimSynthesisRequest) (*ClaimSynthesisResult, error) {
	payer := "Aetna"
	charge := 425.00
	confidence := 0.82
	lineCharge := 425.00

	result := &ClaimSynthesisResult{
		PayerName:         &payer,
		TotalChargeAmount: &charge,
		ServiceLines: []ServiceLineSuggestion{
			{
				CPTCode:          "99203",
				ICD10Codes:       []string{"M17.11"},
				Units:            1,
				Charge:           &lineCharge,
				DiagnosisPointer: "A",
				Confidence:       &confidence,
			},
		},
	}
	if len(req.DocumentTexts) == 0 {
		result.ComplianceFlags = append(result.ComplianceFlags, ComplianceFlag{
			Level:   "warning",
			Message: "no intake documents attached; claim drafted from demographics only",
		})
	}
	return result, nil
}

func (s *StubCollaborator) AnalyzeDenial(_ context.Context, req DenialAnalysisRequest) (*DenialAnalysis, error) {
	return &DenialAnalysis{
		DenialReason:      "Service not covered under the patient's current plan",
		RootCause:         "Prior authorization was not on file at the time of submission",
		RecommendedAction: "Obtain retro-authorization from the payer and resubmit with the authorization number",
		CARCCodes:         []string{"197"},
		RARCCodes:         []string{"N210"},
	}, nil
}

func (s *StubCollaborator) ProcessDocument(_ context.Context, req DocumentRequest) (*DocumentResult, error) {
	haystack := strings.ToLower(req.FileName + " " + req.Text)

	switch {
	case strings.Contains(haystack, "referral") || strings.Contains(haystack, "fax"):
		return &DocumentResult{
			Classification: ClassReferralFax,
			Referral: &ReferralExtraction{
				PatientName:       "Jane Doe",
				PatientDOB:        "1968-04-12",
				ReferringProvider: "Dr. Alan Reed",
				ReferralReason:    "Right knee pain, evaluate for arthroscopy",
				InsuranceCarrier:  "Aetna",
				Urgency:           "routine",
			},
		}, nil
	case strings.Contains(haystack, "dictat") || strings.Contains(haystack, "transcript"):
		return &DocumentResult{
			Classification: ClassDictatedNote,
			DictatedNote: &DictatedNoteExtraction{
				PatientName:      "Jane Doe",
				VisitDate:        "2025-06-02",
				Assessment:       "Medial meniscus tear, right knee",
				SuggestedActions: []string{"Order MRI", "Schedule follow-up in 2 weeks"},
			},
		}, nil
	case strings.Contains(haystack, "modmed") || strings.Contains(haystack, "encounter"):
		return &DocumentResult{
			Classification: ClassModMedNote,
			ModMedNote: &ModMedNoteExtraction{
				PatientName:    "Jane Doe",
				EncounterID:    "ENC-20450",
				CPTSuggestions: []string{"29881"},
				ICDSuggestions: []string{"S83.241A"},
			},
		}, nil
	default:
		return &DocumentResult{Classification: ClassNonReferral}, nil
	}
}

func (s *StubCollaborator) ExtractBenefits(_ context.Context, text string) (*BenefitExtraction, error) {
	copay := 35.00
	deductible := 1500.00
	return &BenefitExtraction{
		PayerName:    "Aetna",
		MemberID:     "W123456789",
		GroupNumber:  "GRP-4417",
		CopayAmount:  &copay,
		Deductible:   &deductible,
		PolicyActive: !strings.Contains(strings.ToLower(text), "terminated"),
	}, nil
}

func (s *StubCollaborator) Chat(_ context.Context, messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyResponse
	}
	last := messages[len(messages)-1]
	return "I looked into that. Regarding \"" + last.Content + "\": check the document inbox for newly processed referrals and confirm insurance before scheduling.", nil
}
