package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revclarity/revclarity/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const claimCols = `id, patient_id, status, payer_name, total_charge_amount,
	patient_responsibility_amount, payer_paid_amount, date_of_service,
	submission_date, adjudication_date, edi_transaction_id, eligibility_status,
	compliance_flags, denial_reason, denial_root_cause, recommended_action,
	carc_codes, rarc_codes, processing_error, created_at, updated_at`

func (r *repoPG) scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	var flags []byte
	err := row.Scan(&c.ID, &c.PatientID, &c.Status, &c.PayerName, &c.TotalChargeAmount,
		&c.PatientResponsibilityAmount, &c.PayerPaidAmount, &c.DateOfService,
		&c.SubmissionDate, &c.AdjudicationDate, &c.EDITransactionID, &c.EligibilityStatus,
		&flags, &c.DenialReason, &c.DenialRootCause, &c.RecommendedAction,
		&c.CARCCodes, &c.RARCCodes, &c.ProcessingError, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &c.ComplianceFlags); err != nil {
			return nil, fmt.Errorf("decode compliance flags: %w", err)
		}
	}
	return &c, nil
}

func marshalFlags(flags []ComplianceFlag) ([]byte, error) {
	if flags == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(flags)
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	flags, err := marshalFlags(c.ComplianceFlags)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO claim (id, patient_id, status, payer_name, total_charge_amount,
			patient_responsibility_amount, payer_paid_amount, date_of_service,
			submission_date, adjudication_date, edi_transaction_id, eligibility_status,
			compliance_flags, denial_reason, denial_root_cause, recommended_action,
			carc_codes, rarc_codes, processing_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		c.ID, c.PatientID, c.Status, c.PayerName, c.TotalChargeAmount,
		c.PatientResponsibilityAmount, c.PayerPaidAmount, c.DateOfService,
		c.SubmissionDate, c.AdjudicationDate, c.EDITransactionID, c.EligibilityStatus,
		flags, c.DenialReason, c.DenialRootCause, c.RecommendedAction,
		c.CARCCodes, c.RARCCodes, c.ProcessingError)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := r.scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claim WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.serviceLines(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ServiceLines = lines
	return c, nil
}

func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	flags, err := marshalFlags(c.ComplianceFlags)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim SET status=$2, payer_name=$3, total_charge_amount=$4,
			patient_responsibility_amount=$5, payer_paid_amount=$6, date_of_service=$7,
			submission_date=$8, adjudication_date=$9, edi_transaction_id=$10,
			eligibility_status=$11, compliance_flags=$12, denial_reason=$13,
			denial_root_cause=$14, recommended_action=$15, carc_codes=$16,
			rarc_codes=$17, processing_error=$18, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.PayerName, c.TotalChargeAmount,
		c.PatientResponsibilityAmount, c.PayerPaidAmount, c.DateOfService,
		c.SubmissionDate, c.AdjudicationDate, c.EDITransactionID,
		c.EligibilityStatus, flags, c.DenialReason,
		c.DenialRootCause, c.RecommendedAction, c.CARCCodes,
		c.RARCCodes, c.ProcessingError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Claim, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	if filter.Status != "" {
		n++
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, filter.Status)
	}
	if filter.PatientID != nil {
		n++
		where += fmt.Sprintf(" AND patient_id = $%d", n)
		args = append(args, *filter.PatientID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + claimCols + ` FROM claim` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Claim
	for rows.Next() {
		c, err := r.scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

const lineCols = `id, claim_id, line_number, cpt_code, modifiers, icd10_codes,
	diagnosis_pointer, units, charge_amount, confidence_score, suggestion_source, created_at`

func (r *repoPG) serviceLines(ctx context.Context, claimID uuid.UUID) ([]*ServiceLine, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lineCols+` FROM service_line WHERE claim_id = $1 ORDER BY line_number`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*ServiceLine
	for rows.Next() {
		var l ServiceLine
		if err := rows.Scan(&l.ID, &l.ClaimID, &l.LineNumber, &l.CPTCode, &l.Modifiers,
			&l.ICD10Codes, &l.DiagnosisPointer, &l.Units, &l.ChargeAmount,
			&l.ConfidenceScore, &l.SuggestionSource, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, &l)
	}
	return lines, nil
}

func (r *repoPG) ReplaceServiceLines(ctx context.Context, claimID uuid.UUID, lines []*ServiceLine) error {
	conn := r.conn(ctx)
	if _, err := conn.Exec(ctx, `DELETE FROM service_line WHERE claim_id = $1`, claimID); err != nil {
		return err
	}
	for i, l := range lines {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.ClaimID = claimID
		l.LineNumber = i + 1
		if _, err := conn.Exec(ctx, `
			INSERT INTO service_line (id, claim_id, line_number, cpt_code, modifiers,
				icd10_codes, diagnosis_pointer, units, charge_amount, confidence_score, suggestion_source)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			l.ID, l.ClaimID, l.LineNumber, l.CPTCode, l.Modifiers,
			l.ICD10Codes, l.DiagnosisPointer, l.Units, l.ChargeAmount,
			l.ConfidenceScore, l.SuggestionSource); err != nil {
			return err
		}
	}
	return nil
}

type documentRepoPG struct{ pool *pgxpool.Pool }

func NewDocumentRepoPG(pool *pgxpool.Pool) DocumentRepository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const claimDocCols = `id, claim_id, patient_id, file_name, file_path, purpose, parsed_text, created_at`

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_document (id, claim_id, patient_id, file_name, file_path, purpose, parsed_text)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.ClaimID, d.PatientID, d.FileName, d.FilePath, d.Purpose, d.ParsedText)
	return err
}

func (r *documentRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimDocCols+` FROM claim_document WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.PatientID, &d.FileName, &d.FilePath,
			&d.Purpose, &d.ParsedText, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, nil
}

func (r *documentRepoPG) SetParsedText(ctx context.Context, id uuid.UUID, text string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE claim_document SET parsed_text = $2 WHERE id = $1`, id, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("claim document not found")
	}
	return nil
}
