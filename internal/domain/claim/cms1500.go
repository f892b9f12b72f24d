package claim

import (
	"fmt"
	"strings"
	"time"
)

// CMS1500Input carries the patient details the form needs but the claim row
// does not store.
type CMS1500Input struct {
	PatientName string
	PatientDOB  *time.Time
	Address     string
}

// RenderCMS1500 renders the claim as a plain-text CMS-1500 field listing,
// suitable for download and manual review. It is not a pixel-aligned form
// image; box numbers follow the paper form.
func RenderCMS1500(c *Claim, in CMS1500Input) string {
	var b strings.Builder

	fmtDate := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("01/02/2006")
	}
	fmtAmount := func(a *float64) string {
		if a == nil {
			return ""
		}
		return fmt.Sprintf("%.2f", *a)
	}

	b.WriteString("HEALTH INSURANCE CLAIM FORM (CMS-1500)\n")
	b.WriteString(strings.Repeat("=", 54) + "\n\n")
	b.WriteString(fmt.Sprintf("CLAIM ID: %s\n", c.ID))
	b.WriteString(fmt.Sprintf("STATUS:   %s\n\n", strings.ToUpper(c.Status)))

	payer := ""
	if c.PayerName != nil {
		payer = *c.PayerName
	}
	b.WriteString(fmt.Sprintf("BOX 1   INSURANCE PLAN:        %s\n", payer))
	b.WriteString(fmt.Sprintf("BOX 2   PATIENT NAME:          %s\n", in.PatientName))
	b.WriteString(fmt.Sprintf("BOX 3   PATIENT DOB:           %s\n", fmtDate(in.PatientDOB)))
	b.WriteString(fmt.Sprintf("BOX 5   PATIENT ADDRESS:       %s\n", in.Address))
	b.WriteString(fmt.Sprintf("BOX 14  DATE OF SERVICE:       %s\n", fmtDate(c.DateOfService)))

	// Box 21: up to 12 diagnosis codes, lettered A-L across all lines.
	var diags []string
	seen := map[string]bool{}
	for _, l := range c.ServiceLines {
		for _, code := range l.ICD10Codes {
			if !seen[code] && len(diags) < 12 {
				seen[code] = true
				diags = append(diags, code)
			}
		}
	}
	b.WriteString("BOX 21  DIAGNOSIS CODES:\n")
	for i, d := range diags {
		b.WriteString(fmt.Sprintf("        %c. %s\n", 'A'+i, d))
	}

	b.WriteString("BOX 24  SERVICE LINES:\n")
	for _, l := range c.ServiceLines {
		mods := strings.Join(l.Modifiers, " ")
		b.WriteString(fmt.Sprintf("        %2d  CPT %s %s  UNITS %d  CHARGE %s\n",
			l.LineNumber, l.CPTCode, mods, l.Units, fmtAmount(l.ChargeAmount)))
	}

	b.WriteString(fmt.Sprintf("BOX 28  TOTAL CHARGE:          %s\n", fmtAmount(c.TotalChargeAmount)))
	b.WriteString(fmt.Sprintf("BOX 29  AMOUNT PAID:           %s\n", fmtAmount(c.PayerPaidAmount)))
	b.WriteString(fmt.Sprintf("        PATIENT RESPONSIBILITY: %s\n", fmtAmount(c.PatientResponsibilityAmount)))
	b.WriteString(fmt.Sprintf("        SUBMISSION DATE:       %s\n", fmtDate(c.SubmissionDate)))
	b.WriteString(fmt.Sprintf("        ADJUDICATION DATE:     %s\n", fmtDate(c.AdjudicationDate)))
	if c.EDITransactionID != nil {
		b.WriteString(fmt.Sprintf("        EDI TRANSACTION:       %s\n", *c.EDITransactionID))
	}
	return b.String()
}
