package claim

import (
	"errors"
	"time"
)

var (
	ErrClaimNotFound      = errors.New("claim not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotEditable        = errors.New("claim is not editable in its current status")
	ErrSimulationInFlight = errors.New("an outcome simulation is already in flight for this claim")
)

// editableStatuses are the only statuses in which claim fields may change.
var editableStatuses = map[string]bool{
	StatusDraft:  true,
	StatusDenied: true,
}

// simulatableStatuses are the only statuses from which an outcome can be
// drawn. A denied claim may be simulated again after resubmission review.
var simulatableStatuses = map[string]bool{
	StatusSubmitted: true,
	StatusDenied:    true,
}

// Editable reports whether the claim's fields may be updated.
func (c *Claim) Editable() bool {
	return editableStatuses[c.Status]
}

// CanSimulate reports whether an outcome simulation may be dispatched.
func (c *Claim) CanSimulate() bool {
	return simulatableStatuses[c.Status]
}

// Submit moves a draft claim to submitted, stamping the submission date.
func (c *Claim) Submit(now time.Time) error {
	if c.Status != StatusDraft {
		return ErrInvalidTransition
	}
	c.Status = StatusSubmitted
	c.SubmissionDate = &now
	return nil
}

// Resubmit moves a denied claim back to submitted. Denial and adjudication
// fields are cleared so the claim reads as awaiting adjudication again; the
// original submission date is retained so ageing reports stay accurate.
func (c *Claim) Resubmit() error {
	if c.Status != StatusDenied {
		return ErrInvalidTransition
	}
	c.Status = StatusSubmitted
	c.AdjudicationDate = nil
	c.PayerPaidAmount = nil
	c.DenialReason = nil
	c.DenialRootCause = nil
	c.RecommendedAction = nil
	c.CARCCodes = nil
	c.RARCCodes = nil
	return nil
}

// Adjudicate applies a simulated payer outcome. The caller supplies the
// resulting status (approved, denied or paid) and the payer-paid amount;
// denial details are set separately by the worker when the outcome is denied.
func (c *Claim) Adjudicate(outcome string, paid float64, now time.Time) error {
	if !c.CanSimulate() {
		return ErrInvalidTransition
	}
	switch outcome {
	case StatusApproved, StatusDenied, StatusPaid:
	default:
		return ErrInvalidTransition
	}
	c.Status = outcome
	c.AdjudicationDate = &now
	c.PayerPaidAmount = &paid
	if outcome != StatusDenied {
		c.DenialReason = nil
		c.DenialRootCause = nil
		c.RecommendedAction = nil
		c.CARCCodes = nil
		c.RARCCodes = nil
	}
	return nil
}
