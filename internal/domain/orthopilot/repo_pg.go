package orthopilot

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

const docCols = `id, file_name, file_path, status, classification, parsed_text,
	extraction, processing_error, created_at, updated_at`

func (r *repoPG) scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var extraction []byte
	err := row.Scan(&d.ID, &d.FileName, &d.FilePath, &d.Status, &d.Classification,
		&d.ParsedText, &extraction, &d.ProcessingError, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(extraction) > 0 {
		if err := json.Unmarshal(extraction, &d.Extraction); err != nil {
			return nil, fmt.Errorf("decode extraction: %w", err)
		}
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.Classification == "" {
		d.Classification = ClassificationUnclassified
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO orthopilot_document (id, file_name, file_path, status, classification)
		VALUES ($1,$2,$3,$4,$5)`,
		d.ID, d.FileName, d.FilePath, d.Status, d.Classification)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.scanDocument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+docCols+` FROM orthopilot_document WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, classification string, limit, offset int) ([]*Document, int, error) {
	where := ``
	args := []interface{}{}
	if classification != "" {
		where = ` WHERE classification = $1`
		args = append(args, classification)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orthopilot_document`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + docCols + ` FROM orthopilot_document` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
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

func (r *repoPG) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orthopilot_document SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, StatusProcessing, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

func (r *repoPG) MarkCompleted(ctx context.Context, id uuid.UUID, classification string, parsedText *string, extraction *Extraction) error {
	var raw []byte
	if extraction != nil {
		var err error
		raw, err = json.Marshal(extraction)
		if err != nil {
			return err
		}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orthopilot_document SET status = $2, classification = $3,
			parsed_text = $4, extraction = $5, processing_error = NULL, updated_at = NOW()
		WHERE id = $1`,
		id, StatusCompleted, classification, parsedText, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *repoPG) MarkError(ctx context.Context, id uuid.UUID, msg string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orthopilot_document SET status = $2, processing_error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, StatusError, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
