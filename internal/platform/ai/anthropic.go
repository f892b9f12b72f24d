package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 2048
)

// AnthropicCollaborator implements Collaborator against the Anthropic API.
type AnthropicCollaborator struct {
	client sdk.Client
	model  string
	logger zerolog.Logger
}

// NewAnthropicCollaborator creates a live collaborator. An empty model uses
// the package default.
func NewAnthropicCollaborator(apiKey, model string, logger zerolog.Logger) *AnthropicCollaborator {
	if model == "" {
		model = defaultModel
	}
	return &AnthropicCollaborator{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
	}
}

func (a *AnthropicCollaborator) complete(ctx context.Context, system, user string) (string, error) {
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: defaultMaxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	a.logger.Debug().
		Str("model", a.model).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Msg("model call")

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// completeJSON runs a completion and unmarshals the reply into out, tolerating
// markdown code fences around the JSON body.
func (a *AnthropicCollaborator) completeJSON(ctx context.Context, system, user string, out interface{}) error {
	text, err := a.complete(ctx, system, user)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return fmt.Errorf("anthropic: parse model JSON: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

const synthesisSystem = `You are a medical billing assistant for an orthopedic practice.
Given intake documents for a patient, draft the billable claim.
Respond with JSON only, matching this schema:
{"payer_name": string|null, "total_charge_amount": number|null,
 "date_of_service": "YYYY-MM-DD"|null,
 "service_lines": [{"cpt_code": string, "icd10_codes": [string], "modifiers": [string],
   "units": number, "charge": number|null, "diagnosis_pointer": string, "confidence": number}],
 "compliance_flags": [{"level": "error"|"warning"|"info", "message": string}]}`

func (a *AnthropicCollaborator) SynthesizeClaim(ctx context.Context, req ClaimSynthesisRequest) (*ClaimSynthesisResult, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Patient: %s\n\n", req.PatientName)
	for i, text := range req.DocumentTexts {
		fmt.Fprintf(&user, "--- Document %d ---\n%s\n\n", i+1, text)
	}

	var result ClaimSynthesisResult
	if err := a.completeJSON(ctx, synthesisSystem, user.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

const denialSystem = `You are a medical billing denial analyst.
Given a denied claim, explain the most likely denial and how to resolve it.
Respond with JSON only:
{"denial_reason": string, "root_cause": string, "recommended_action": string,
 "carc_codes": [string], "rarc_codes": [string]}`

func (a *AnthropicCollaborator) AnalyzeDenial(ctx context.Context, req DenialAnalysisRequest) (*DenialAnalysis, error) {
	user := fmt.Sprintf("Payer: %s\nCPT codes: %s\nICD-10 codes: %s\nBilled amount: $%.2f",
		req.PayerName,
		strings.Join(req.CPTCodes, ", "),
		strings.Join(req.ICD10Codes, ", "),
		req.ChargeAmount)

	var result DenialAnalysis
	if err := a.completeJSON(ctx, denialSystem, user, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

const documentSystem = `You are a document intake assistant for an orthopedic practice.
Classify the document as REFERRAL_FAX, DICTATED_NOTE, MODMED_NOTE, or NON_REFERRAL,
and extract the fields for that classification.
Respond with JSON only:
{"classification": string,
 "referral": {"patient_name": string, "patient_dob": string, "referring_provider": string,
   "referral_reason": string, "insurance_carrier": string, "urgency": string} | null,
 "dictated_note": {"patient_name": string, "visit_date": string, "assessment": string,
   "suggested_actions": [string]} | null,
 "modmed_note": {"patient_name": string, "encounter_id": string,
   "cpt_suggestions": [string], "icd_suggestions": [string]} | null}`

func (a *AnthropicCollaborator) ProcessDocument(ctx context.Context, req DocumentRequest) (*DocumentResult, error) {
	user := fmt.Sprintf("File name: %s\n\n%s", req.FileName, req.Text)

	var result DocumentResult
	if err := a.completeJSON(ctx, documentSystem, user, &result); err != nil {
		return nil, err
	}
	if result.Classification == "" {
		result.Classification = ClassNonReferral
	}
	return &result, nil
}

const benefitsSystem = `You are an insurance verification assistant.
Extract policy benefit details from the document.
Respond with JSON only:
{"payer_name": string, "member_id": string, "group_number": string,
 "copay_amount": number|null, "deductible": number|null, "policy_active": boolean}`

func (a *AnthropicCollaborator) ExtractBenefits(ctx context.Context, text string) (*BenefitExtraction, error) {
	var result BenefitExtraction
	if err := a.completeJSON(ctx, benefitsSystem, text, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

const chatSystem = `You are OrthoPilot, an assistant for front-office staff at an
orthopedic practice. Answer questions about referrals, intake documents, and
scheduling follow-ups. Be concise and concrete.`

func (a *AnthropicCollaborator) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: defaultMaxTokens,
		System:    []sdk.TextBlockParam{{Text: chatSystem}},
	}
	for _, m := range messages {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(block))
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: chat: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}
