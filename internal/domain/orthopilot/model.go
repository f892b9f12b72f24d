package orthopilot

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/revclarity/revclarity/internal/platform/ai"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotPending       = errors.New("document is not pending")
)

// Document processing statuses. PENDING and PROCESSING are transient;
// COMPLETED and ERROR are terminal and never change automatically.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusError      = "ERROR"
)

// Document classifications assigned when processing completes.
const (
	ClassificationUnclassified = "UNCLASSIFIED"
	ClassificationReferralFax  = "REFERRAL_FAX"
	ClassificationDictatedNote = "DICTATED_NOTE"
	ClassificationModMedNote   = "MODMED_NOTE"
	ClassificationNonReferral  = "NON_REFERRAL"
)

// ValidClassifications lists every recognized classification.
var ValidClassifications = map[string]bool{
	ClassificationUnclassified: true,
	ClassificationReferralFax:  true,
	ClassificationDictatedNote: true,
	ClassificationModMedNote:   true,
	ClassificationNonReferral:  true,
}

// Extraction is the classification-discriminated payload stored as JSONB.
// Exactly one variant is set, matching the document's classification;
// NON_REFERRAL documents carry no payload at all.
type Extraction struct {
	Referral     *ai.ReferralExtraction     `json:"referral,omitempty"`
	DictatedNote *ai.DictatedNoteExtraction `json:"dictated_note,omitempty"`
	ModMedNote   *ai.ModMedNoteExtraction   `json:"modmed_note,omitempty"`
}

// Document maps to the orthopilot_document table: one item in the inbox.
type Document struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	FileName        string      `db:"file_name" json:"file_name"`
	FilePath        string      `db:"file_path" json:"file_path"`
	Status          string      `db:"status" json:"status"`
	Classification  string      `db:"classification" json:"classification"`
	ParsedText      *string     `db:"parsed_text" json:"parsed_text,omitempty"`
	Extraction      *Extraction `db:"extraction" json:"extraction,omitempty"`
	ProcessingError *string     `db:"processing_error" json:"processing_error,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the document has finished processing.
func (d *Document) Terminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusError
}
