package orthopilot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tealeg/xlsx/v2"
)

// ExportReferrals renders every completed referral fax as an XLSX workbook,
// one row per referral, mirroring the daily worklist the front desk reviews.
func (s *Service) ExportReferrals(ctx context.Context) ([]byte, error) {
	docs, err := s.Referrals(ctx)
	if err != nil {
		return nil, err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Referrals")
	if err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range []string{"Received", "File", "Patient", "DOB", "Referring Provider", "Reason", "Insurance", "Urgency"} {
		header.AddCell().Value = h
	}

	for _, d := range docs {
		if d.Extraction == nil || d.Extraction.Referral == nil {
			continue
		}
		ref := d.Extraction.Referral
		row := sheet.AddRow()
		row.AddCell().Value = d.CreatedAt.Format("2006-01-02 15:04")
		row.AddCell().Value = d.FileName
		row.AddCell().Value = ref.PatientName
		row.AddCell().Value = ref.PatientDOB
		row.AddCell().Value = ref.ReferringProvider
		row.AddCell().Value = ref.ReferralReason
		row.AddCell().Value = ref.InsuranceCarrier
		row.AddCell().Value = ref.Urgency
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportModMedNotes renders every completed ModMed note as an XLSX workbook.
func (s *Service) ExportModMedNotes(ctx context.Context) ([]byte, error) {
	docs, err := s.ModMedNotes(ctx)
	if err != nil {
		return nil, err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("ModMed Notes")
	if err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range []string{"Received", "File", "Patient", "Encounter", "CPT Suggestions", "ICD Suggestions"} {
		header.AddCell().Value = h
	}

	for _, d := range docs {
		if d.Extraction == nil || d.Extraction.ModMedNote == nil {
			continue
		}
		note := d.Extraction.ModMedNote
		row := sheet.AddRow()
		row.AddCell().Value = d.CreatedAt.Format("2006-01-02 15:04")
		row.AddCell().Value = d.FileName
		row.AddCell().Value = note.PatientName
		row.AddCell().Value = note.EncounterID
		row.AddCell().Value = strings.Join(note.CPTSuggestions, ", ")
		row.AddCell().Value = strings.Join(note.ICDSuggestions, ", ")
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
