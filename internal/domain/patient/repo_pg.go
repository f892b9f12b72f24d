package patient

import (
	"context"
	"errors"

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

const patientCols = `id, first_name, last_name, date_of_birth, phone, email,
	address_line, city, state, zip, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Phone, &p.Email,
		&p.AddressLine, &p.City, &p.State, &p.Zip, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, first_name, last_name, date_of_birth, phone, email,
			address_line, city, state, zip)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Phone, p.Email,
		p.AddressLine, p.City, p.State, p.Zip)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4, phone=$5,
			email=$6, address_line=$7, city=$8, state=$9, zip=$10, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Phone,
		p.Email, p.AddressLine, p.City, p.State, p.Zip)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

type benefitRepoPG struct{ pool *pgxpool.Pool }

func NewBenefitRepoPG(pool *pgxpool.Pool) BenefitRepository {
	return &benefitRepoPG{pool: pool}
}

func (r *benefitRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const benefitCols = `id, patient_id, payer_name, member_id, group_number,
	copay_amount, deductible, policy_active, verified_at, created_at, updated_at`

func (r *benefitRepoPG) Upsert(ctx context.Context, b *PolicyBenefit) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO policy_benefit (id, patient_id, payer_name, member_id, group_number,
			copay_amount, deductible, policy_active, verified_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (patient_id) DO UPDATE SET
			payer_name=EXCLUDED.payer_name, member_id=EXCLUDED.member_id,
			group_number=EXCLUDED.group_number, copay_amount=EXCLUDED.copay_amount,
			deductible=EXCLUDED.deductible, policy_active=EXCLUDED.policy_active,
			verified_at=EXCLUDED.verified_at, updated_at=NOW()`,
		b.ID, b.PatientID, b.PayerName, b.MemberID, b.GroupNumber,
		b.CopayAmount, b.Deductible, b.PolicyActive, b.VerifiedAt)
	return err
}

func (r *benefitRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*PolicyBenefit, error) {
	var b PolicyBenefit
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+benefitCols+` FROM policy_benefit WHERE patient_id = $1`, patientID).
		Scan(&b.ID, &b.PatientID, &b.PayerName, &b.MemberID, &b.GroupNumber,
			&b.CopayAmount, &b.Deductible, &b.PolicyActive, &b.VerifiedAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBenefitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
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

const documentCols = `id, patient_id, file_name, file_path, purpose, parsed_text, created_at`

func (r *documentRepoPG) scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.FileName, &d.FilePath, &d.Purpose, &d.ParsedText, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	return &d, err
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_document (id, patient_id, file_name, file_path, purpose, parsed_text)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.PatientID, d.FileName, d.FilePath, d.Purpose, d.ParsedText)
	return err
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.scanDocument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+documentCols+` FROM patient_document WHERE id = $1`, id))
}

func (r *documentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_document WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+documentCols+` FROM patient_document WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *documentRepoPG) SetParsedText(ctx context.Context, id uuid.UUID, text string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_document SET parsed_text = $2 WHERE id = $1`, id, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
